// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the direct
// Message model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/flamewall/realtime/internal/domain"
)

// CreateMessage inserts a new direct message row.
func CreateMessage(ctx context.Context, db *gorm.DB, senderID, receiverID uint, content string, parentID *uint) (*domain.Message, error) {
	m := &domain.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		ParentID:   parentID,
		SentAt:     time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id uint) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageContent rewrites the content of a non-deleted message and
// stamps EditedAt. It returns ErrNotFound when no live row matched.
func UpdateMessageContent(ctx context.Context, db *gorm.DB, id uint, content string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{"content": content, "edited_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteMessage sets the deleted flag and replaces the visible content
// with domain.DeletedPlaceholder. It returns ErrNotFound when no live row matched.
func SoftDeleteMessage(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{"is_deleted": true, "content": domain.DeletedPlaceholder})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversation returns messages exchanged between a and b in both
// directions, ordered deterministically (SentAt ASC, ID ASC).
func ListConversation(ctx context.Context, db *gorm.DB, a, b uint, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("sent_at ASC, id ASC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountConversation returns the number of messages between a and b.
func CountConversation(ctx context.Context, db *gorm.DB, a, b uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Count(&total).Error
	return total, err
}
