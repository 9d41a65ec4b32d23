package donation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Request) error
	CreateBatch(ctx context.Context, items []*Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)
	UpdateStatus(ctx context.Context, r *Request) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Request, int, error)
	CountByStatus(ctx context.Context, status Status) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
