package donation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/domain/inbox"
	"github.com/lifelink/lifelink/internal/domain/inventory"
	"github.com/lifelink/lifelink/internal/domain/user"
	"github.com/lifelink/lifelink/internal/platform/apperr"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/db"
	"github.com/lifelink/lifelink/internal/platform/events"
	"github.com/lifelink/lifelink/internal/platform/notification"
)

// DonorDirectory is the slice of the user service donation needs.
type DonorDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
	FindDonors(ctx context.Context, f user.DonorFilter) ([]*user.User, error)
	ClaimAvailability(ctx context.Context, donorID uuid.UUID, at time.Time) error
}

// ErrDonorUnavailable is returned when the addressed donor cannot take the request.
var ErrDonorUnavailable = user.ErrDonorUnavailable

var errInvalidTransition = apperr.Business("invalid status transition")

// MyRequestsLimit caps the history returned to a single user.
const MyRequestsLimit = 200

type Service struct {
	repo   Repository
	donors DonorDirectory
	inbox  inbox.Notifier
	mailer *notification.Mailer
	tx     db.TxRunner
	events *events.Emitter
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, donors DonorDirectory, notifier inbox.Notifier, mailer *notification.Mailer, tx db.TxRunner, emitter *events.Emitter, logger zerolog.Logger) *Service {
	if tx == nil {
		tx = db.NoopTxRunner{}
	}
	return &Service{
		repo:   repo,
		donors: donors,
		inbox:  notifier,
		mailer: mailer,
		tx:     tx,
		events: emitter,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("donation request")
		}
		return nil, fmt.Errorf("get donation request: %w", err)
	}
	return r, nil
}

func (s *Service) lockForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := s.repo.GetForUpdate(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("donation request")
		}
		return nil, fmt.Errorf("lock donation request: %w", err)
	}
	return r, nil
}

// lookupUser returns nil when the account is gone; callers only use it for
// display text.
func (s *Service) lookupUser(ctx context.Context, id uuid.UUID) *user.User {
	u, err := s.donors.Get(ctx, id)
	if err != nil {
		s.logger.Debug().Err(err).Str("user_id", id.String()).Msg("lookup user")
		return nil
	}
	return u
}

func displayName(u *user.User, fallback string) string {
	if u == nil {
		return fallback
	}
	return u.DisplayName()
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// availableDonor loads id and checks it is a donor who can take a request.
func (s *Service) availableDonor(ctx context.Context, id uuid.UUID) (*user.User, error) {
	d, err := s.donors.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, ErrDonorUnavailable
		}
		return nil, err
	}
	if d.Role != auth.RoleDonor || !d.IsAvailable {
		return nil, ErrDonorUnavailable
	}
	return d, nil
}

// Create addresses a request to one donor on behalf of a recipient or hospital.
func (s *Service) Create(ctx context.Context, actor auth.Identity, req CreateRequest) (*Request, error) {
	requester, ok := RequesterFor(actor)
	if !ok {
		return nil, apperr.Forbidden("only recipients and hospitals can create donation requests")
	}
	if req.DonorID == uuid.Nil {
		return nil, apperr.Validation("donorId is required")
	}
	urgency, err := ParseUrgency(req.Urgency)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	units := req.UnitsNeeded
	if units == 0 {
		units = 1
	}
	if units < 1 {
		return nil, apperr.Validation("unitsNeeded must be at least 1")
	}

	donor, err := s.availableDonor(ctx, req.DonorID)
	if err != nil {
		return nil, err
	}

	var bt inventory.BloodType
	switch {
	case strings.TrimSpace(req.BloodType) != "":
		if bt, err = inventory.ParseBloodType(req.BloodType); err != nil {
			return nil, apperr.Validation("%s", err.Error())
		}
	case donor.BloodType != nil:
		bt = *donor.BloodType
	default:
		return nil, apperr.Validation("bloodType is required")
	}

	r := &Request{
		DonorID:      donor.ID,
		RequestedBy:  requester,
		BloodType:    bt,
		UnitsNeeded:  units,
		Urgency:      urgency,
		PatientName:  optional(req.PatientName),
		ContactPhone: optional(req.ContactPhone),
		Message:      optional(req.Message),
		Type:         TypeIndividual,
		Status:       StatusPending,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create donation request: %w", err)
	}

	actorName := displayName(s.lookupUser(ctx, actor.UserID), "Someone")
	patient := deref(r.PatientName)
	if patient == "" {
		patient = "a patient"
	}
	msg := fmt.Sprintf("%s has requested %d unit(s) of %s blood for %s", actorName, units, bt, patient)
	s.inbox.Notify(ctx, donor.ID, "New Donation Request", msg, inbox.TypeRequest, &r.ID)
	s.mailer.Send(ctx, notification.TplDonationRequest, donor.Email, map[string]string{
		"name":       donor.Name,
		"blood_type": string(bt),
		"message":    msg,
	})
	return r, nil
}

// MyRequests returns the caller's request history: addressed to them for
// donors, issued by them for recipients and hospitals, everything for admins.
func (s *Service) MyRequests(ctx context.Context, actor auth.Identity) ([]*Request, error) {
	var f Filter
	switch actor.Role {
	case auth.RoleDonor:
		f.DonorID = &actor.UserID
	case auth.RoleAdmin:
	default:
		f.RequesterID = &actor.UserID
	}
	items, _, err := s.repo.List(ctx, f, MyRequestsLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("list donation requests: %w", err)
	}
	return items, nil
}

// Pending lists a donor's open requests, most urgent first.
func (s *Service) Pending(ctx context.Context, actor auth.Identity) ([]*Request, error) {
	if !actor.Is(auth.RoleDonor) {
		return nil, apperr.Forbidden("only donors have pending requests")
	}
	items, _, err := s.repo.List(ctx, Filter{DonorID: &actor.UserID, Status: StatusPending, ByUrgency: true}, MyRequestsLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	sortByUrgency(items)
	return items, nil
}

var urgencyRank = map[Urgency]int{UrgencyCritical: 0, UrgencyUrgent: 1, UrgencyNormal: 2}

func sortByUrgency(items []*Request) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := urgencyRank[items[i].Urgency], urgencyRank[items[j].Urgency]
		if ri != rj {
			return ri < rj
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// respondable locks a request the actor may accept or reject.
func (s *Service) respondable(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Request, error) {
	r, err := s.lockForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.DonorID != actor.UserID {
		return nil, apperr.Forbidden("this request is addressed to another donor")
	}
	if r.Status != StatusPending {
		return nil, apperr.Business("request is already %s", r.Status)
	}
	return r, nil
}

// Accept takes the request and marks the donor unavailable in the same
// transaction. A donor who is no longer available gets ErrDonorUnavailable.
func (s *Service) Accept(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Request, error) {
	var r *Request
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = s.respondable(ctx, actor, id); err != nil {
			return err
		}
		now := s.now()
		if err := s.donors.ClaimAvailability(ctx, actor.UserID, now); err != nil {
			return err
		}
		r.Status = StatusAccepted
		r.AcceptedAt = &now
		if err := s.repo.UpdateStatus(ctx, r); err != nil {
			return fmt.Errorf("accept donation request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	donor := s.lookupUser(ctx, actor.UserID)
	msg := fmt.Sprintf("%s has accepted your donation request.", displayName(donor, "The donor"))
	if donor != nil {
		msg = fmt.Sprintf("%s has accepted your donation request. Contact: %s, Address: %s", donor.Name, donor.Phone, donor.Address)
	}
	s.inbox.Notify(ctx, r.RequestedBy.ID, "Request Accepted", msg, inbox.TypeAcceptance, &r.ID)
	s.events.Emit(ctx, events.TypeDonationAccepted, "donation_request", r.ID.String(), actor.UserID.String(), r)
	return r, nil
}

// Reject declines the request. The donor's availability is left alone.
func (s *Service) Reject(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Request, error) {
	var r *Request
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = s.respondable(ctx, actor, id); err != nil {
			return err
		}
		r.Status = StatusRejected
		if err := s.repo.UpdateStatus(ctx, r); err != nil {
			return fmt.Errorf("reject donation request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	name := displayName(s.lookupUser(ctx, actor.UserID), "The donor")
	s.inbox.Notify(ctx, r.RequestedBy.ID, "Request Rejected", name+" has rejected your donation request", inbox.TypeRejection, &r.ID)
	return r, nil
}

// Respond dispatches a donor's accepted|rejected answer.
func (s *Service) Respond(ctx context.Context, actor auth.Identity, id uuid.UUID, status string) (*Request, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, apperr.Validation("status must be accepted or rejected")
	}
	switch st {
	case StatusAccepted:
		return s.Accept(ctx, actor, id)
	case StatusRejected:
		return s.Reject(ctx, actor, id)
	}
	return nil, apperr.Validation("status must be accepted or rejected")
}

// Complete closes an accepted request. The donor, the requester or an admin
// may do it.
func (s *Service) Complete(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Request, error) {
	var r *Request
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = s.lockForUpdate(ctx, id); err != nil {
			return err
		}
		if !actor.Is(auth.RoleAdmin) && !r.IsParticipant(actor.UserID) {
			return apperr.Forbidden("not a participant in this request")
		}
		switch r.Status {
		case StatusCompleted:
			return apperr.Business("request is already completed")
		case StatusAccepted:
		default:
			return errInvalidTransition
		}
		now := s.now()
		r.Status = StatusCompleted
		r.CompletedAt = &now
		if err := s.repo.UpdateStatus(ctx, r); err != nil {
			return fmt.Errorf("complete donation request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.inbox.Notify(ctx, r.DonorID, "Donation Completed!",
		"Your blood donation has been marked as complete. You can now download your certificate from your history!",
		inbox.TypeCompletion, &r.ID)
	if r.RequestedBy.ID != actor.UserID {
		s.inbox.Notify(ctx, r.RequestedBy.ID, "Blood Received",
			"The blood donation request has been marked as complete. Thank you for using LifeLink!",
			inbox.TypeCompletion, &r.ID)
	}
	s.events.Emit(ctx, events.TypeDonationCompleted, "donation_request", r.ID.String(), actor.UserID.String(), r)
	return r, nil
}

// Delete removes a finished request from a participant's history.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id uuid.UUID) error {
	r, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.Is(auth.RoleAdmin) && !r.IsParticipant(actor.UserID) {
		return apperr.Forbidden("not a participant in this request")
	}
	if !r.Status.Terminal() {
		return apperr.Business("only completed or rejected requests can be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete donation request: %w", err)
	}
	return nil
}

// EmergencyBroadcast alerts every available donor of a type, optionally in
// one city, and returns how many were notified.
func (s *Service) EmergencyBroadcast(ctx context.Context, actor auth.Identity, req EmergencyRequest) (int, error) {
	bt, err := inventory.ParseBloodType(req.BloodType)
	if err != nil {
		return 0, apperr.Validation("%s", err.Error())
	}
	yes := true
	donors, err := s.donors.FindDonors(ctx, user.DonorFilter{BloodType: bt, City: strings.TrimSpace(req.City), Available: &yes})
	if err != nil {
		return 0, err
	}
	if len(donors) == 0 {
		return 0, nil
	}

	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		patient := strings.TrimSpace(req.PatientName)
		if patient == "" {
			patient = "a patient"
		}
		msg = "Emergency blood needed for " + patient
	}
	contact := strings.TrimSpace(req.ContactPhone)
	if contact == "" {
		if hospital := s.lookupUser(ctx, actor.UserID); hospital != nil {
			contact = hospital.Phone
		}
	}
	if contact != "" {
		msg += " - Contact: " + contact
	}

	ids := make([]uuid.UUID, 0, len(donors))
	for _, d := range donors {
		ids = append(ids, d.ID)
	}
	sent := s.inbox.NotifyMany(ctx, ids, "Emergency Blood Request", msg, inbox.TypeEmergency, nil)
	s.logger.Info().Str("blood_type", string(bt)).Int("notified", sent).Str("by", actor.UserID.String()).Msg("emergency broadcast")
	return sent, nil
}

// NotifyDonor is the admin's direct request to one donor.
func (s *Service) NotifyDonor(ctx context.Context, actor auth.Identity, req NotifyDonorRequest) (*Request, error) {
	if req.DonorID == uuid.Nil {
		return nil, apperr.Validation("donorId is required")
	}
	donor, err := s.donors.Get(ctx, req.DonorID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("donor")
		}
		return nil, err
	}
	if donor.Role != auth.RoleDonor {
		return nil, apperr.NotFound("donor")
	}

	var bt inventory.BloodType
	switch {
	case strings.TrimSpace(req.BloodType) != "":
		if bt, err = inventory.ParseBloodType(req.BloodType); err != nil {
			return nil, apperr.Validation("%s", err.Error())
		}
	case donor.BloodType != nil:
		bt = *donor.BloodType
	default:
		return nil, apperr.Validation("bloodType is required")
	}

	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		msg = fmt.Sprintf("We urgently need %s blood. Please consider donating.", bt)
	}
	r := &Request{
		DonorID:     donor.ID,
		RequestedBy: Requester{Kind: RequesterAdmin, ID: actor.UserID},
		BloodType:   bt,
		UnitsNeeded: 1,
		Urgency:     UrgencyNormal,
		Message:     &msg,
		Type:        TypeIndividual,
		Status:      StatusPending,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create donation request: %w", err)
	}
	s.inbox.Notify(ctx, donor.ID, "New Donation Request", msg, inbox.TypeRequest, &r.ID)
	s.mailer.Send(ctx, notification.TplDonationRequest, donor.Email, map[string]string{
		"name":       donor.Name,
		"blood_type": string(bt),
		"message":    msg,
	})
	return r, nil
}

// BulkRequest creates one request per matching donor and returns how many
// were created. Availability is not filtered: a drive is scheduled ahead.
func (s *Service) BulkRequest(ctx context.Context, actor auth.Identity, req BulkRequest) (int, error) {
	var f user.DonorFilter
	if raw := strings.TrimSpace(req.BloodType); raw != "" && !strings.EqualFold(raw, BloodTypeAll) {
		bt, err := inventory.ParseBloodType(raw)
		if err != nil {
			return 0, apperr.Validation("%s", err.Error())
		}
		f.BloodType = bt
	}
	typ := req.Type
	switch typ {
	case "":
		typ = TypeBroadcast
	case TypeBroadcast, TypeDrive:
	default:
		return 0, apperr.Validation("type must be Broadcast or Drive")
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return 0, apperr.Validation("message is required")
	}

	donors, err := s.donors.FindDonors(ctx, f)
	if err != nil {
		return 0, err
	}
	items := make([]*Request, 0, len(donors))
	targets := make([]*user.User, 0, len(donors))
	for _, d := range donors {
		if d.BloodType == nil {
			continue
		}
		m := msg
		items = append(items, &Request{
			DonorID:       d.ID,
			RequestedBy:   Requester{Kind: RequesterAdmin, ID: actor.UserID},
			BloodType:     *d.BloodType,
			UnitsNeeded:   1,
			Urgency:       UrgencyNormal,
			Message:       &m,
			Type:          typ,
			Status:        StatusPending,
			ScheduledDate: req.ScheduledDate,
			Location:      optional(req.Location),
			StartTime:     optional(req.StartTime),
			EndTime:       optional(req.EndTime),
			Latitude:      req.Latitude,
			Longitude:     req.Longitude,
		})
		targets = append(targets, d)
	}
	if len(items) == 0 {
		return 0, &apperr.Error{Kind: apperr.ErrNotFound, Msg: "no matching donors found"}
	}
	if err := s.repo.CreateBatch(ctx, items); err != nil {
		return 0, fmt.Errorf("create bulk requests: %w", err)
	}

	title := "New Blood Drive"
	if typ == TypeBroadcast {
		title = "Urgent Blood Request"
	}
	for i, d := range targets {
		s.inbox.Notify(ctx, d.ID, title, msg, inbox.TypeRequest, &items[i].ID)
		s.mailer.Send(ctx, notification.TplBulkRequest, d.Email, map[string]string{
			"name":    d.Name,
			"type":    string(typ),
			"message": msg,
		})
	}
	s.logger.Info().Int("donors", len(items)).Str("type", string(typ)).Str("by", actor.UserID.String()).Msg("bulk donation request")
	return len(items), nil
}

func (s *Service) AdminList(ctx context.Context, status string, limit, offset int) ([]*Request, int, error) {
	var f Filter
	if strings.TrimSpace(status) != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return nil, 0, apperr.Validation("%s", err.Error())
		}
		f.Status = st
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list donation requests: %w", err)
	}
	return items, total, nil
}

// AdminUpdateStatus overrides the workflow and sets any valid status.
func (s *Service) AdminUpdateStatus(ctx context.Context, actor auth.Identity, id uuid.UUID, status string) (*Request, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	r, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	r.Status = st
	switch st {
	case StatusAccepted:
		r.AcceptedAt = &now
	case StatusCompleted:
		r.CompletedAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, r); err != nil {
		return nil, fmt.Errorf("update donation request: %w", err)
	}
	s.logger.Info().Str("request_id", id.String()).Str("status", string(st)).Str("by", actor.UserID.String()).Msg("donation request status overridden")
	return r, nil
}

func (s *Service) AdminDelete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete donation request: %w", err)
	}
	return nil
}

// RecordCredits stores completed credit records. It joins the caller's
// transaction when there is one.
func (s *Service) RecordCredits(ctx context.Context, credits []*Request) error {
	if err := s.repo.CreateBatch(ctx, credits); err != nil {
		return fmt.Errorf("record donation credits: %w", err)
	}
	return nil
}

func (s *Service) CountPending(ctx context.Context) (int, error) {
	n, err := s.repo.CountByStatus(ctx, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("count pending donation requests: %w", err)
	}
	return n, nil
}
