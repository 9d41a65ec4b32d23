package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/platform/apperr"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/db"
	"github.com/lifelink/lifelink/internal/platform/events"
	"github.com/lifelink/lifelink/internal/platform/websocket"
)

// ErrInsufficientStock is returned when fewer Available units exist than a
// subtraction or approval needs.
var ErrInsufficientStock = &apperr.Error{Kind: apperr.ErrBusinessRule, Msg: "insufficient stock"}

type Service struct {
	units  UnitRepository
	tx     db.TxRunner
	events *events.Emitter
	live   websocket.EventPublisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(units UnitRepository, tx db.TxRunner, emitter *events.Emitter, live websocket.EventPublisher, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	return &Service{units: units, tx: tx, events: emitter, live: live, logger: logger, now: time.Now}
}

// Stock returns the Available count of every blood type in canonical order.
func (s *Service) Stock(ctx context.Context) ([]StockEntry, error) {
	counts, err := s.units.CountAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("count stock: %w", err)
	}
	out := make([]StockEntry, 0, len(BloodTypes))
	for _, bt := range BloodTypes {
		out = append(out, StockEntry{BloodType: bt, Units: counts[bt]})
	}
	return out, nil
}

// Adjust adds or subtracts units of one type and returns the new count.
func (s *Service) Adjust(ctx context.Context, actor auth.Identity, req AdjustRequest) (*StockEntry, error) {
	bt, err := ParseBloodType(req.BloodType)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if req.Quantity < 1 {
		return nil, apperr.Validation("quantity must be at least 1")
	}

	switch req.Action {
	case ActionAdd:
		err = s.add(ctx, actor, bt, req)
	case ActionSubtract:
		err = s.subtract(ctx, actor, bt, int(req.Quantity))
	case ActionSet:
		return nil, apperr.Validation("set is not supported, use add or subtract")
	default:
		return nil, apperr.Validation("action must be add or subtract")
	}
	if err != nil {
		return nil, err
	}

	n, err := s.units.CountAvailableByType(ctx, bt)
	if err != nil {
		return nil, fmt.Errorf("count stock: %w", err)
	}
	entry := &StockEntry{BloodType: bt, Units: n}
	s.StockChanged(ctx, actor.UserID, bt, n)
	return entry, nil
}

func (s *Service) add(ctx context.Context, actor auth.Identity, bt BloodType, req AdjustRequest) error {
	name := strings.TrimSpace(req.ManualDonorName)
	phone := strings.TrimSpace(req.ManualDonorPhone)
	rawDonor := strings.TrimSpace(req.DonorID)

	var donorID *uuid.UUID
	var manualName, manualPhone *string
	switch {
	case rawDonor != "" && (name != "" || phone != ""):
		return apperr.Validation("give either a registered donor or manual donor details, not both")
	case rawDonor != "":
		id, err := uuid.Parse(rawDonor)
		if err != nil {
			return apperr.Validation("invalid donorId")
		}
		ok, err := s.units.DonorExists(ctx, id)
		if err != nil {
			return fmt.Errorf("check donor: %w", err)
		}
		if !ok {
			return apperr.NotFound("donor")
		}
		donorID = &id
	case name != "" && phone != "":
		manualName, manualPhone = &name, &phone
	default:
		return apperr.Validation("a registered donor or a manual donor name and phone is required")
	}

	donated := s.now()
	if req.DonationDate != nil && !req.DonationDate.IsZero() {
		donated = *req.DonationDate
	}
	by := actor.UserID

	n := int(req.Quantity)
	units := make([]*BloodUnit, 0, n)
	for i := 0; i < n; i++ {
		units = append(units, &BloodUnit{
			BloodType:        bt,
			DonorID:          donorID,
			ManualDonorName:  manualName,
			ManualDonorPhone: manualPhone,
			Status:           StatusAvailable,
			DonationDate:     donated,
			ExpiryDate:       ExpiryFor(donated),
			UpdatedBy:        &by,
		})
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.units.CreateBatch(ctx, units); err != nil {
			return fmt.Errorf("create units: %w", err)
		}
		return nil
	})
}

func (s *Service) subtract(ctx context.Context, actor auth.Identity, bt BloodType, n int) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		_, err := s.Claim(ctx, bt, n, nil, actor.UserID)
		return err
	})
}

// Claim marks exactly n Available units of bt as Used. It must run inside a
// transaction so a short claim rolls back.
func (s *Service) Claim(ctx context.Context, bt BloodType, n int, hospitalID *uuid.UUID, by uuid.UUID) ([]*BloodUnit, error) {
	available, err := s.units.CountAvailableByType(ctx, bt)
	if err != nil {
		return nil, fmt.Errorf("count stock: %w", err)
	}
	if available < n {
		return nil, fmt.Errorf("%w: need %d units of %s, have %d", ErrInsufficientStock, n, bt, available)
	}
	claimed, err := s.units.ClaimAvailable(ctx, bt, n, hospitalID, by)
	if err != nil {
		return nil, fmt.Errorf("claim units: %w", err)
	}
	if len(claimed) < n {
		return nil, fmt.Errorf("%w: claimed %d of %d units of %s", ErrInsufficientStock, len(claimed), n, bt)
	}
	return claimed, nil
}

// StockChanged pushes the new count of bt to live subscribers and the event feed.
func (s *Service) StockChanged(ctx context.Context, actorID uuid.UUID, bt BloodType, units int) {
	entry := StockEntry{BloodType: bt, Units: units}
	if s.live != nil {
		ev, err := websocket.NewEvent(websocket.TopicStock, events.TypeStockChanged, "blood_unit", string(bt), entry)
		if err == nil {
			err = s.live.Publish(ctx, ev)
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("blood_type", string(bt)).Msg("push stock update")
		}
	}
	s.events.Emit(ctx, events.TypeStockChanged, "blood_unit", string(bt), actorID.String(), entry)
}

func (s *Service) ListUnits(ctx context.Context, f UnitFilter, limit, offset int) ([]*BloodUnit, int, error) {
	if f.BloodType != "" && !f.BloodType.Valid() {
		return nil, 0, apperr.Validation("invalid blood type %q", f.BloodType)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("invalid status %q", f.Status)
	}
	items, total, err := s.units.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list units: %w", err)
	}
	return items, total, nil
}

// DonorsByBloodType lists Available units of bt with who donated each.
func (s *Service) DonorsByBloodType(ctx context.Context, bt BloodType) ([]*DonorUnit, error) {
	if !bt.Valid() {
		return nil, apperr.Validation("invalid blood type %q", bt)
	}
	items, err := s.units.ListAvailableWithDonors(ctx, bt)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}
	return items, nil
}

// ExpireOverdue flips Available units past their expiry date to Expired.
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.units.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire units: %w", err)
	}
	if n > 0 {
		s.logger.Info().Int64("units", n).Msg("expired overdue blood units")
	}
	return n, nil
}

// RunExpirySweeper calls ExpireOverdue every interval until ctx is done.
func (s *Service) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireOverdue(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}
