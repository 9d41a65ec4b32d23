package inbox

import (
	"time"

	"github.com/google/uuid"
)

// Type classifies a notification for the client's icon and filter.
type Type string

const (
	TypeRequest    Type = "request"
	TypeAcceptance Type = "acceptance"
	TypeRejection  Type = "rejection"
	TypeCompletion Type = "completion"
	TypeEmergency  Type = "emergency"
	TypeInfo       Type = "info"
)

func (t Type) Valid() bool {
	switch t {
	case TypeRequest, TypeAcceptance, TypeRejection, TypeCompletion, TypeEmergency, TypeInfo:
		return true
	}
	return false
}

// Notification is one in-app inbox entry.
type Notification struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	UserID           uuid.UUID  `db:"user_id" json:"userId"`
	Title            string     `db:"title" json:"title"`
	Message          string     `db:"message" json:"message"`
	Type             Type       `db:"type" json:"type"`
	IsRead           bool       `db:"is_read" json:"isRead"`
	RelatedRequestID *uuid.UUID `db:"related_request_id" json:"relatedRequestId,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
}

// ListLimit caps how many notifications List returns.
const ListLimit = 100
