package drive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/domain/inbox"
	"github.com/lifelink/lifelink/internal/domain/inventory"
	"github.com/lifelink/lifelink/internal/platform/apperr"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/db"
	"github.com/lifelink/lifelink/internal/platform/events"
)

// ErrAlreadyRegistered is returned when a donor registers for the same drive twice.
var ErrAlreadyRegistered = &apperr.Error{Kind: apperr.ErrConflict, Msg: "already registered for this drive"}

type Service struct {
	repo   Repository
	inbox  inbox.Notifier
	events *events.Emitter
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, notifier inbox.Notifier, emitter *events.Emitter, logger zerolog.Logger) *Service {
	return &Service{repo: repo, inbox: notifier, events: emitter, logger: logger, now: time.Now}
}

func (s *Service) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) get(ctx context.Context, id uuid.UUID) (*Drive, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("drive")
		}
		return nil, fmt.Errorf("get drive: %w", err)
	}
	return d, nil
}

func normalizeBloodTypes(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool)
	for _, raw := range in {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.EqualFold(raw, AllBloodTypes) {
			return []string{AllBloodTypes}, nil
		}
		bt, err := inventory.ParseBloodType(raw)
		if err != nil {
			return nil, err
		}
		if !seen[string(bt)] {
			seen[string(bt)] = true
			out = append(out, string(bt))
		}
	}
	if len(out) == 0 {
		return []string{AllBloodTypes}, nil
	}
	return out, nil
}

// Create schedules a drive organized by the caller.
func (s *Service) Create(ctx context.Context, actor auth.Identity, req CreateRequest) (*Drive, error) {
	d := &Drive{
		OrganizerID: actor.UserID,
		Title:       strings.TrimSpace(req.Title),
		StartTime:   strings.TrimSpace(req.StartTime),
		EndTime:     strings.TrimSpace(req.EndTime),
		Location:    strings.TrimSpace(req.Location),
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Description: strings.TrimSpace(req.Description),
		Status:      StatusUpcoming,
	}
	switch {
	case d.Title == "":
		return nil, apperr.Validation("title is required")
	case d.StartTime == "" || d.EndTime == "":
		return nil, apperr.Validation("startTime and endTime are required")
	case d.Location == "":
		return nil, apperr.Validation("location is required")
	}

	date, err := parseDate(req.Date)
	if err != nil {
		return nil, apperr.Validation("date must be YYYY-MM-DD")
	}
	if date.Before(s.today()) {
		return nil, apperr.Validation("date cannot be in the past")
	}
	d.Date = date

	if d.BloodTypes, err = normalizeBloodTypes(req.BloodTypes); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}

	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create drive: %w", err)
	}
	s.logger.Info().Str("drive_id", d.ID.String()).Str("organizer", actor.UserID.String()).Msg("drive scheduled")
	return d, nil
}

// parseDate accepts a bare date or a full RFC 3339 timestamp.
func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(DateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func (s *Service) ListUpcoming(ctx context.Context) ([]*Drive, error) {
	items, err := s.repo.ListUpcoming(ctx, s.today())
	if err != nil {
		return nil, fmt.Errorf("list drives: %w", err)
	}
	return items, nil
}

// MyDrives returns the caller's drives with their attendee lists.
func (s *Service) MyDrives(ctx context.Context, actor auth.Identity) ([]*Drive, error) {
	items, err := s.repo.ListByOrganizer(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list drives: %w", err)
	}
	if len(items) == 0 {
		return items, nil
	}
	ids := make([]uuid.UUID, len(items))
	byID := make(map[uuid.UUID]*Drive, len(items))
	for i, d := range items {
		ids[i] = d.ID
		byID[d.ID] = d
		d.Attendees = []*Attendee{}
	}
	attendees, err := s.repo.ListAttendees(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	for _, a := range attendees {
		if d, ok := byID[a.DriveID]; ok {
			d.Attendees = append(d.Attendees, a)
		}
	}
	for _, d := range items {
		d.AttendeeCount = len(d.Attendees)
	}
	return items, nil
}

// Register signs the calling donor up for an upcoming drive.
func (s *Service) Register(ctx context.Context, actor auth.Identity, driveID uuid.UUID) (*Drive, error) {
	if !actor.Is(auth.RoleDonor) {
		return nil, apperr.Forbidden("only donors can register for drives")
	}
	d, err := s.get(ctx, driveID)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusUpcoming {
		return nil, apperr.Business("drive is %s", strings.ToLower(string(d.Status)))
	}
	if d.Date.Before(s.today()) {
		return nil, apperr.Business("drive has already taken place")
	}

	a := &Attendee{DriveID: d.ID, DonorID: actor.UserID, Status: AttendeeRegistered}
	if err := s.repo.AddAttendee(ctx, a); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("register for drive: %w", err)
	}
	d.AttendeeCount++

	s.inbox.Notify(ctx, d.OrganizerID, "New Drive Registration",
		fmt.Sprintf("A donor registered for %q on %s", d.Title, d.Date.Format(DateLayout)),
		inbox.TypeInfo, &d.ID)
	s.events.Emit(ctx, events.TypeDriveRegistered, "blood_drive", d.ID.String(), actor.UserID.String(), a)
	return d, nil
}

// managed loads a drive the caller organizes, or any drive for admins.
func (s *Service) managed(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Drive, error) {
	d, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.OrganizerID != actor.UserID && !actor.Is(auth.RoleAdmin) {
		return nil, apperr.Forbidden("only the organizer can manage this drive")
	}
	return d, nil
}

// UpdateStatus closes an upcoming drive as Completed or Cancelled.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Identity, id uuid.UUID, status string) (*Drive, error) {
	st := Status(strings.TrimSpace(status))
	if st != StatusCompleted && st != StatusCancelled {
		return nil, apperr.Validation("status must be Completed or Cancelled")
	}
	d, err := s.managed(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if d.Status != StatusUpcoming {
		return nil, apperr.Business("invalid status transition")
	}
	if err := s.repo.UpdateStatus(ctx, id, st); err != nil {
		return nil, fmt.Errorf("update drive: %w", err)
	}
	d.Status = st
	return d, nil
}

// MarkAttendance records whether a registered donor showed up.
func (s *Service) MarkAttendance(ctx context.Context, actor auth.Identity, driveID, donorID uuid.UUID, status string) error {
	st := AttendeeStatus(strings.TrimSpace(status))
	if st != AttendeeAttended && st != AttendeeMissed {
		return apperr.Validation("status must be Attended or Missed")
	}
	if _, err := s.managed(ctx, actor, driveID); err != nil {
		return err
	}
	ok, err := s.repo.SetAttendance(ctx, driveID, donorID, st)
	if err != nil {
		return fmt.Errorf("mark attendance: %w", err)
	}
	if !ok {
		return apperr.NotFound("attendee")
	}
	return nil
}

func (s *Service) CountUpcoming(ctx context.Context) (int, error) {
	n, err := s.repo.CountUpcoming(ctx, s.today())
	if err != nil {
		return 0, fmt.Errorf("count drives: %w", err)
	}
	return n, nil
}
