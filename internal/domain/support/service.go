package support

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lifelink/lifelink/internal/domain/inbox"
	"github.com/lifelink/lifelink/internal/platform/apperr"
	"github.com/lifelink/lifelink/internal/platform/auth"
	"github.com/lifelink/lifelink/internal/platform/db"
)

// previewLen bounds the message excerpt carried in admin notifications.
const previewLen = 80

type Service struct {
	repo   Repository
	inbox  inbox.Notifier
	logger zerolog.Logger
}

func NewService(repo Repository, notifier inbox.Notifier, logger zerolog.Logger) *Service {
	return &Service{repo: repo, inbox: notifier, logger: logger}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}

// Create files a support message from the caller and alerts the admins.
func (s *Service) Create(ctx context.Context, actor auth.Identity, req CreateRequest) (*Message, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, apperr.Validation("message is required")
	}
	m := &Message{SenderID: actor.UserID, Message: text, Status: StatusOpen}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create support message: %w", err)
	}
	s.inbox.NotifyAdmins(ctx, "New Support Message", preview(text), inbox.TypeInfo, &m.ID)
	return m, nil
}

func (s *Service) Mine(ctx context.Context, actor auth.Identity) ([]*Message, error) {
	items, err := s.repo.ListBySender(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list support messages: %w", err)
	}
	return items, nil
}

func (s *Service) AdminList(ctx context.Context, status string, limit, offset int) ([]*Message, int, error) {
	st := Status(strings.TrimSpace(status))
	if st != "" && st != StatusOpen && st != StatusReplied {
		return nil, 0, apperr.Validation("status must be Open or Replied")
	}
	items, total, err := s.repo.List(ctx, st, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list support messages: %w", err)
	}
	return items, total, nil
}

// Reply answers a message. Replying again overwrites the earlier reply.
func (s *Service) Reply(ctx context.Context, actor auth.Identity, id uuid.UUID, req ReplyRequest) (*Message, error) {
	text := strings.TrimSpace(req.Reply)
	if text == "" {
		return nil, apperr.Validation("reply is required")
	}
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("message")
		}
		return nil, fmt.Errorf("get support message: %w", err)
	}
	m.Reply = &text
	m.Status = StatusReplied
	if err := s.repo.SetReply(ctx, m); err != nil {
		return nil, fmt.Errorf("reply to support message: %w", err)
	}

	s.inbox.Notify(ctx, m.SenderID, "Support Reply", preview(text), inbox.TypeInfo, &m.ID)
	s.logger.Info().Str("message_id", m.ID.String()).Str("admin", actor.UserID.String()).Msg("support message replied")
	return m, nil
}
