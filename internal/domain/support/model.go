package support

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOpen    Status = "Open"
	StatusReplied Status = "Replied"
)

type Message struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SenderID  uuid.UUID `db:"sender_id" json:"senderId"`
	Message   string    `db:"message" json:"message"`
	Reply     *string   `db:"reply" json:"reply,omitempty"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	// Populated by admin listings.
	SenderName  string `db:"-" json:"senderName,omitempty"`
	SenderEmail string `db:"-" json:"senderEmail,omitempty"`
	SenderRole  string `db:"-" json:"senderRole,omitempty"`
}

type CreateRequest struct {
	Message string `json:"message"`
}

type ReplyRequest struct {
	Reply string `json:"reply"`
}
