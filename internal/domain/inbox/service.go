package inbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/platform/apperr"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/db"
)

// LivePusher delivers a payload to a user's open websocket connections.
type LivePusher interface {
	PublishToUser(ctx context.Context, userID uuid.UUID, typ, resourceType, resourceID string, data interface{}) error
}

// Notifier is what other services depend on to reach a user's inbox.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message string, typ Type, relatedID *uuid.UUID)
	NotifyMany(ctx context.Context, userIDs []uuid.UUID, title, message string, typ Type, relatedID *uuid.UUID) int
	NotifyAdmins(ctx context.Context, title, message string, typ Type, relatedID *uuid.UUID) int
}

type Service struct {
	repo   Repository
	live   LivePusher
	logger zerolog.Logger
}

func NewService(repo Repository, live LivePusher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, live: live, logger: logger}
}

// Notify stores a notification and pushes it to the user's live
// connections. Failures are logged, never returned: a missed notification
// must not undo the change that triggered it.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, title, message string, typ Type, relatedID *uuid.UUID) {
	s.notify(ctx, userID, title, message, typ, relatedID)
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, title, message string, typ Type, relatedID *uuid.UUID) bool {
	if !typ.Valid() {
		typ = TypeInfo
	}
	n := &Notification{
		UserID:           userID,
		Title:            title,
		Message:          message,
		Type:             typ,
		RelatedRequestID: relatedID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Str("title", title).Msg("create notification")
		return false
	}
	if s.live != nil {
		if err := s.live.PublishToUser(ctx, userID, "notification", "notification", n.ID.String(), n); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("push notification")
		}
	}
	return true
}

// NotifyMany notifies each user and returns how many were stored.
func (s *Service) NotifyMany(ctx context.Context, userIDs []uuid.UUID, title, message string, typ Type, relatedID *uuid.UUID) int {
	sent := 0
	for _, id := range userIDs {
		if s.notify(ctx, id, title, message, typ, relatedID) {
			sent++
		}
	}
	return sent
}

// NotifyAdmins notifies every admin account.
func (s *Service) NotifyAdmins(ctx context.Context, title, message string, typ Type, relatedID *uuid.UUID) int {
	ids, err := s.repo.AdminIDs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("list admins for notification")
		return 0
	}
	return s.NotifyMany(ctx, ids, title, message, typ, relatedID)
}

func (s *Service) List(ctx context.Context, actor auth.Identity) ([]*Notification, error) {
	items, err := s.repo.ListByUser(ctx, actor.UserID, ListLimit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

func (s *Service) owned(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("notification")
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if n.UserID != actor.UserID && !actor.Is(auth.RoleAdmin) {
		return nil, apperr.Forbidden("not authorized to access this notification")
	}
	return n, nil
}

func (s *Service) MarkRead(ctx context.Context, actor auth.Identity, id uuid.UUID) (*Notification, error) {
	n, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	n.IsRead = true
	return n, nil
}

func (s *Service) MarkAllRead(ctx context.Context, actor auth.Identity) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, actor.UserID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Identity, id uuid.UUID) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}
