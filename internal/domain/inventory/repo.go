package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UnitRepository persists blood units. Claim and create run on the
// transaction in ctx when there is one.
type UnitRepository interface {
	CountAvailable(ctx context.Context) (map[BloodType]int, error)
	CountAvailableByType(ctx context.Context, bt BloodType) (int, error)
	CreateBatch(ctx context.Context, units []*BloodUnit) error
	// ClaimAvailable flips up to n Available units of bt to Used, skipping
	// rows locked by concurrent claims. It may return fewer than n.
	ClaimAvailable(ctx context.Context, bt BloodType, n int, hospitalID *uuid.UUID, by uuid.UUID) ([]*BloodUnit, error)
	List(ctx context.Context, f UnitFilter, limit, offset int) ([]*BloodUnit, int, error)
	ListAvailableWithDonors(ctx context.Context, bt BloodType) ([]*DonorUnit, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	DonorExists(ctx context.Context, id uuid.UUID) (bool, error)
}
