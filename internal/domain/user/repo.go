package user

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lifelink/lifelink/internal/platform/auth"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	SetAvailability(ctx context.Context, id uuid.UUID, available bool, lastDonation *time.Time) error
	// ClaimAvailability flips an available donor to unavailable and reports
	// whether this call made the change.
	ClaimAvailability(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListDonors(ctx context.Context, f DonorFilter) ([]*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	CountByRole(ctx context.Context) (map[auth.Role]int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
