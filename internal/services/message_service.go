// Package services – MessageService
//
// This file implements MessageService, the message-persistence collaborator
// driven by the message relay. It validates and normalizes content, persists
// new direct messages, and applies the edit and soft-delete transitions with
// author checks:
//
//	created -> [edited]* -> deleted
//
// Deleted is terminal: further edits or deletes return ErrMessageDeleted.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include message and user identifiers where applicable.
package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/repo"
)

// DefaultMaxContentRunes is the message length cap used by the server.
const DefaultMaxContentRunes = 2000

// MessageService coordinates direct-message persistence.
type MessageService struct {
	DB *gorm.DB

	// MaxContentRunes caps message length; <= 0 disables the check.
	MaxContentRunes int
}

// NormalizeContent trims surrounding whitespace and applies Unicode NFC so
// visually identical texts compare equal.
func NormalizeContent(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func (s *MessageService) validate(content string) (string, error) {
	content = NormalizeContent(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return "", ErrTooLong
	}
	return content, nil
}

// Create persists a message from senderID to receiverID. A non-nil parentID
// must reference an existing message; otherwise ErrMessageNotFound.
func (s *MessageService) Create(ctx context.Context, senderID, receiverID uint, content string, parentID *uint) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.Int64("sender.id", int64(senderID)),
			attribute.Int64("receiver.id", int64(receiverID)),
		),
	)
	defer span.End()

	content, err := s.validate(content)
	if err != nil {
		return nil, err
	}
	if parentID != nil {
		if _, err := repo.GetMessage(ctx, s.DB, *parentID); err != nil {
			if isNotFound(err) {
				return nil, ErrMessageNotFound
			}
			return nil, err
		}
	}
	return repo.CreateMessage(ctx, s.DB, senderID, receiverID, content, parentID)
}

// Get returns a message by id, or ErrMessageNotFound.
func (s *MessageService) Get(ctx context.Context, id uint) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, s.DB, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

// Edit replaces the content of messageID on behalf of actorID.
//
// Errors: ErrMessageNotFound, ErrForbidden (actor is not the author),
// ErrMessageDeleted, ErrEmptyContent / ErrTooLong.
func (s *MessageService) Edit(ctx context.Context, messageID, actorID uint, content string) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Edit",
		trace.WithAttributes(
			attribute.Int64("message.id", int64(messageID)),
			attribute.Int64("actor.id", int64(actorID)),
		),
	)
	defer span.End()

	var out *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.authorize(ctx, tx, messageID, actorID)
		if err != nil {
			return err
		}
		content, err := s.validate(content)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := repo.UpdateMessageContent(ctx, tx, m.ID, content, now); err != nil {
			if isNotFound(err) {
				return ErrMessageDeleted
			}
			return err
		}
		m.Content = content
		m.EditedAt = &now
		out = m
		return nil
	})
	return out, err
}

// Delete soft-deletes messageID on behalf of actorID. The returned record
// keeps its id and participants and carries domain.DeletedPlaceholder.
func (s *MessageService) Delete(ctx context.Context, messageID, actorID uint) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.Int64("message.id", int64(messageID)),
			attribute.Int64("actor.id", int64(actorID)),
		),
	)
	defer span.End()

	var out *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.authorize(ctx, tx, messageID, actorID)
		if err != nil {
			return err
		}
		if err := repo.SoftDeleteMessage(ctx, tx, m.ID); err != nil {
			if isNotFound(err) {
				return ErrMessageDeleted
			}
			return err
		}
		m.IsDeleted = true
		m.Content = domain.DeletedPlaceholder
		out = m
		return nil
	})
	return out, err
}

func (s *MessageService) authorize(ctx context.Context, tx *gorm.DB, messageID, actorID uint) (*domain.Message, error) {
	m, err := repo.GetMessage(ctx, tx, messageID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if m.SenderID != actorID {
		return nil, ErrForbidden
	}
	if m.IsDeleted {
		return nil, ErrMessageDeleted
	}
	return m, nil
}

// Conversation returns a page of messages between userID and otherID in
// send order, plus the total count.
func (s *MessageService) Conversation(ctx context.Context, userID, otherID uint, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Conversation",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int64("other.id", int64(otherID)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if _, err := repo.GetUser(ctx, s.DB, otherID); err != nil {
		return nil, 0, mapUserErr(err)
	}

	total, err := repo.CountConversation(ctx, s.DB, userID, otherID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListConversation(ctx, s.DB, userID, otherID, (page-1)*pageSize, pageSize)
	return items, total, err
}
