package support

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)
	ListBySender(ctx context.Context, senderID uuid.UUID) ([]*Message, error)
	// List returns messages newest first, optionally filtered by status.
	List(ctx context.Context, status Status, limit, offset int) ([]*Message, int, error)
	SetReply(ctx context.Context, m *Message) error
}
