// Package services – NotificationService
//
// This file implements NotificationService, the notification storage read by
// the REST surface and written by the NotificationBridge.
package services

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/repo"
)

// Listing limits.
const (
	DefaultNotificationLimit = 30
	MaxNotificationLimit     = 100
)

// NotificationService manages persisted notifications.
type NotificationService struct {
	DB *gorm.DB
}

// Create persists n.
func (s *NotificationService) Create(ctx context.Context, n *domain.Notification) error {
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(n.UserID)),
			attribute.String("notification.type", n.Type),
		),
	)
	defer span.End()
	return repo.CreateNotification(ctx, s.DB, n)
}

// List returns the newest notifications of userID. limit is clamped to
// [1, MaxNotificationLimit] with DefaultNotificationLimit for <= 0.
func (s *NotificationService) List(ctx context.Context, userID uint, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	if limit > MaxNotificationLimit {
		limit = MaxNotificationLimit
	}
	ctx, span := otel.Tracer("services/NotificationService").Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()
	return repo.ListNotifications(ctx, s.DB, userID, limit)
}

// MarkRead flags one notification owned by userID, or ErrNotificationNotFound.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) error {
	if err := repo.MarkNotificationRead(ctx, s.DB, id, userID); err != nil {
		if isNotFound(err) {
			return ErrNotificationNotFound
		}
		return err
	}
	return nil
}

// MarkAllRead flags every unread notification of userID.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	return repo.MarkAllNotificationsRead(ctx, s.DB, userID)
}

// MarkReadByLink flags the unread notifications of userID pointing at link.
func (s *NotificationService) MarkReadByLink(ctx context.Context, userID uint, link string) (int64, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return 0, nil
	}
	return repo.MarkNotificationsReadByLink(ctx, s.DB, userID, link)
}

// Unread returns the unread count and newest unread timestamp of userID.
func (s *NotificationService) Unread(ctx context.Context, userID uint) (int64, *time.Time, error) {
	return repo.UnreadStats(ctx, s.DB, userID)
}
