package bankrequest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/domain/donation"
	"github.com/lifelink/lifelink/internal/domain/inbox"
	"github.com/lifelink/lifelink/internal/domain/inventory"
	"github.com/lifelink/lifelink/internal/domain/user"
	"github.com/lifelink/lifelink/internal/platform/apperr"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/db"
	"github.com/lifelink/lifelink/internal/platform/events"
	"github.com/lifelink/lifelink/internal/platform/notification"
)

// StockKeeper is the inventory surface an approval draws on.
type StockKeeper interface {
	Claim(ctx context.Context, bt inventory.BloodType, n int, hospitalID *uuid.UUID, by uuid.UUID) ([]*inventory.BloodUnit, error)
	Stock(ctx context.Context) ([]inventory.StockEntry, error)
	StockChanged(ctx context.Context, actorID uuid.UUID, bt inventory.BloodType, units int)
}

// CreditRecorder stores the donation records that credit donors whose units
// were issued.
type CreditRecorder interface {
	RecordCredits(ctx context.Context, credits []*donation.Request) error
}

// Accounts resolves user ids to accounts.
type Accounts interface {
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
}

var errInvalidTransition = apperr.Business("invalid status transition")

type Service struct {
	repo     Repository
	stock    StockKeeper
	credits  CreditRecorder
	accounts Accounts
	inbox    inbox.Notifier
	mailer   *notification.Mailer
	tx       db.TxRunner
	events   *events.Emitter
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, stock StockKeeper, credits CreditRecorder, accounts Accounts, notifier inbox.Notifier,
	mailer *notification.Mailer, tx db.TxRunner, emitter *events.Emitter, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	return &Service{
		repo:     repo,
		stock:    stock,
		credits:  credits,
		accounts: accounts,
		inbox:    notifier,
		mailer:   mailer,
		tx:       tx,
		events:   emitter,
		logger:   logger,
		now:      time.Now,
	}
}

func notFound(err error, what string) error {
	if db.IsNoRows(err) {
		return apperr.NotFound("request")
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "get bank request")
	}
	return r, nil
}

// Create files a request. Hospitals and recipients request for themselves;
// admins enter requests on behalf of a named hospital.
func (s *Service) Create(ctx context.Context, actor auth.Identity, req CreateRequest) (*Request, error) {
	bt, err := inventory.ParseBloodType(req.BloodType)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if req.UnitsNeeded < 1 {
		return nil, apperr.Validation("unitsNeeded must be at least 1")
	}
	urgency, err := donation.ParseUrgency(req.Urgency)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	r := &Request{
		RequesterRole: actor.Role,
		BloodType:     bt,
		UnitsNeeded:   req.UnitsNeeded,
		Urgency:       urgency,
		Status:        StatusPending,
	}
	if name := strings.TrimSpace(req.PatientName); name != "" {
		r.PatientName = &name
	}

	switch actor.Role {
	case auth.RoleHospital, auth.RoleRecipient:
		acct, err := s.accounts.Get(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		id := actor.UserID
		r.HospitalID = &id
		if actor.Role == auth.RoleHospital {
			r.HospitalName = acct.DisplayName()
		} else {
			r.HospitalName = "Recipient: " + acct.Name
		}
	case auth.RoleAdmin:
		r.HospitalName = strings.TrimSpace(req.HospitalName)
		if r.HospitalName == "" {
			return nil, apperr.Validation("hospitalName is required")
		}
	default:
		return nil, apperr.Forbidden("not authorized to create requests")
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create bank request: %w", err)
	}

	msg := fmt.Sprintf("%s has requested %d units of %s (%s)", r.HospitalName, r.UnitsNeeded, r.BloodType, r.Urgency)
	s.inbox.NotifyAdmins(ctx, "New Blood Request", msg, inbox.TypeInfo, &r.ID)
	s.events.Emit(ctx, events.TypeBankRequestCreated, "hospital_request", r.ID.String(), actor.UserID.String(), r)
	return r, nil
}

// List returns every request to admins and only their own to everyone else.
func (s *Service) List(ctx context.Context, actor auth.Identity, status string, limit, offset int) ([]*Request, int, error) {
	var f Filter
	if !actor.Is(auth.RoleAdmin) {
		f.HospitalID = &actor.UserID
	}
	if strings.TrimSpace(status) != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return nil, 0, apperr.Validation("%s", err.Error())
		}
		f.Status = st
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list bank requests: %w", err)
	}
	return items, total, nil
}

// Approve issues the requested units from stock in one transaction: the units
// are claimed, each registered donor is credited and the request is resolved.
// A short claim leaves everything untouched.
func (s *Service) Approve(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Request, error) {
	var (
		r       *Request
		credits []*donation.Request
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = s.repo.GetForUpdate(ctx, id); err != nil {
			return notFound(err, "lock bank request")
		}
		if !r.Status.CanTransition(StatusApproved) {
			return errInvalidTransition
		}

		units, err := s.stock.Claim(ctx, r.BloodType, r.UnitsNeeded, r.HospitalID, actor.UserID)
		if err != nil {
			return err
		}

		now := s.now()
		for _, u := range units {
			if u.DonorID == nil {
				continue
			}
			credits = append(credits, donation.NewCredit(*u.DonorID, u.BloodType, actor.UserID, r.ID, r.HospitalName, now))
		}
		if len(credits) > 0 {
			if err := s.credits.RecordCredits(ctx, credits); err != nil {
				return err
			}
		}

		r.Status = StatusApproved
		r.ResolvedDate = &now
		r.ResolvedBy = &actor.UserID
		if err := s.repo.Resolve(ctx, r); err != nil {
			return fmt.Errorf("approve bank request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("request_id", r.ID.String()).
		Str("blood_type", string(r.BloodType)).
		Int("units", r.UnitsNeeded).
		Int("credited_donors", len(credits)).
		Msg("bank request approved")

	s.notifyRequester(ctx, r, "Request Approved",
		fmt.Sprintf("Your request for %d unit(s) of %s has been approved.", r.UnitsNeeded, r.BloodType),
		inbox.TypeAcceptance, notification.TplRequestApproved)
	for _, c := range credits {
		s.inbox.Notify(ctx, c.DonorID, "Blood Donation Used!",
			fmt.Sprintf("Good news! Your %s blood donation was used to help a patient. Thank you for your kindness!", c.BloodType),
			inbox.TypeCompletion, &c.ID)
		if donor, err := s.accounts.Get(ctx, c.DonorID); err == nil {
			s.mailer.Send(ctx, notification.TplDonationUsed, donor.Email, map[string]string{
				"name":     donor.Name,
				"hospital": r.HospitalName,
			})
		}
	}
	s.publishStock(ctx, actor.UserID, r.BloodType)
	s.events.Emit(ctx, events.TypeBankRequestApproved, "hospital_request", r.ID.String(), actor.UserID.String(), r)
	return r, nil
}

func (s *Service) publishStock(ctx context.Context, actorID uuid.UUID, bt inventory.BloodType) {
	stock, err := s.stock.Stock(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("read stock after approval")
		return
	}
	for _, e := range stock {
		if e.BloodType == bt {
			s.stock.StockChanged(ctx, actorID, bt, e.Units)
			return
		}
	}
}

// notifyRequester reaches the requesting account, if there is one. tplID may
// be empty to skip the email.
func (s *Service) notifyRequester(ctx context.Context, r *Request, title, msg string, typ inbox.Type, tplID string) {
	if r.HospitalID == nil {
		return
	}
	s.inbox.Notify(ctx, *r.HospitalID, title, msg, typ, &r.ID)
	if tplID == "" {
		return
	}
	acct, err := s.accounts.Get(ctx, *r.HospitalID)
	if err != nil {
		s.logger.Debug().Err(err).Str("request_id", r.ID.String()).Msg("requester lookup for email")
		return
	}
	s.mailer.Send(ctx, tplID, acct.Email, map[string]string{
		"name":       acct.DisplayName(),
		"units":      strconv.Itoa(r.UnitsNeeded),
		"blood_type": string(r.BloodType),
	})
}

func (s *Service) Reject(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Request, error) {
	var r *Request
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = s.repo.GetForUpdate(ctx, id); err != nil {
			return notFound(err, "lock bank request")
		}
		if !r.Status.CanTransition(StatusRejected) {
			return errInvalidTransition
		}
		now := s.now()
		r.Status = StatusRejected
		r.ResolvedDate = &now
		r.ResolvedBy = &actor.UserID
		if err := s.repo.Resolve(ctx, r); err != nil {
			return fmt.Errorf("reject bank request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyRequester(ctx, r, "Request Rejected",
		fmt.Sprintf("Your request for %d unit(s) of %s has been rejected.", r.UnitsNeeded, r.BloodType),
		inbox.TypeRejection, "")
	s.events.Emit(ctx, events.TypeBankRequestRejected, "hospital_request", r.ID.String(), actor.UserID.String(), r)
	return r, nil
}

// Complete records that the approved units arrived.
func (s *Service) Complete(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Request, error) {
	var r *Request
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = s.repo.GetForUpdate(ctx, id); err != nil {
			return notFound(err, "lock bank request")
		}
		if !actor.Is(auth.RoleAdmin) && !r.OwnedBy(actor.UserID) {
			return apperr.Forbidden("not authorized to complete this request")
		}
		if !r.Status.CanTransition(StatusCompleted) {
			return errInvalidTransition
		}
		now := s.now()
		r.Status = StatusCompleted
		r.ResolvedDate = &now
		if err := s.repo.Resolve(ctx, r); err != nil {
			return fmt.Errorf("complete bank request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("%s has marked the request for %s (%d units) as RECEIVED.", r.HospitalName, r.BloodType, r.UnitsNeeded)
	s.inbox.NotifyAdmins(ctx, "Blood Received by Hospital", msg, inbox.TypeCompletion, &r.ID)
	return r, nil
}

// UpdateStatus dispatches a {status} body to the matching transition.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Identity, id uuid.UUID, status string) (*Request, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	switch st {
	case StatusApproved:
		return s.Approve(ctx, actor, id)
	case StatusRejected:
		return s.Reject(ctx, actor, id)
	case StatusCompleted:
		return s.Complete(ctx, actor, id)
	}
	return nil, errInvalidTransition
}

// Delete removes a finished request from the owner's history.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id uuid.UUID) error {
	r, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.Is(auth.RoleAdmin) && !r.OwnedBy(actor.UserID) {
		return apperr.Forbidden("not authorized to delete this request history")
	}
	if !r.Status.Terminal() {
		return apperr.Business("only completed or rejected requests can be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete bank request: %w", err)
	}
	return nil
}

func (s *Service) CountPending(ctx context.Context) (int, error) {
	n, err := s.repo.CountByStatus(ctx, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("count pending bank requests: %w", err)
	}
	return n, nil
}
