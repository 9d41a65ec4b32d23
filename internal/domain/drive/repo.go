package drive

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Drive) error
	GetByID(ctx context.Context, id uuid.UUID) (*Drive, error)
	// ListUpcoming returns Upcoming drives dated on or after from, soonest
	// first, with AttendeeCount set.
	ListUpcoming(ctx context.Context, from time.Time) ([]*Drive, error)
	ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]*Drive, error)
	ListAttendees(ctx context.Context, driveIDs []uuid.UUID) ([]*Attendee, error)
	AddAttendee(ctx context.Context, a *Attendee) error
	// SetAttendance reports false when the donor is not registered.
	SetAttendance(ctx context.Context, driveID, donorID uuid.UUID, status AttendeeStatus) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	CountUpcoming(ctx context.Context, from time.Time) (int, error)
}
