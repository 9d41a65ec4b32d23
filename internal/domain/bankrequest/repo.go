package bankrequest

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)
	// Resolve persists status, resolved_date and resolved_by.
	Resolve(ctx context.Context, r *Request) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Request, int, error)
	CountByStatus(ctx context.Context, status Status) (int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
