// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Notification model, including the unread aggregate used by the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/flamewall/realtime/internal/domain"
)

// CreateNotification persists n and fills its ID and CreatedAt.
func CreateNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Create(n).Error
}

// ListNotifications returns the newest notifications for userID (CreatedAt DESC, ID DESC).
func ListNotifications(ctx context.Context, db *gorm.DB, userID uint, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkNotificationRead flags a single notification owned by userID.
// It returns ErrNotFound when the row is missing or owned by someone else.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id, userID uint) error {
	var n domain.Notification
	if err := db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&n).Update("read", true).Error
}

// MarkAllNotificationsRead flags every unread notification of userID and
// returns how many rows changed.
func MarkAllNotificationsRead(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

// MarkNotificationsReadByLink flags the unread notifications of userID that
// point at link (e.g. opening a conversation clears its message alerts).
func MarkNotificationsReadByLink(ctx context.Context, db *gorm.DB, userID uint, link string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND link = ? AND read = ?", userID, link, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}

// UnreadStats returns the number of unread notifications for userID and the
// creation time of the newest one (nil when there are none).
func UnreadStats(ctx context.Context, db *gorm.DB, userID uint) (count int64, latest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Notification{}).Where("user_id = ? AND read = ?", userID, false)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// avoid MAX() -> TEXT in SQLite
	var row struct {
		CreatedAt time.Time
	}
	if err = q.Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
