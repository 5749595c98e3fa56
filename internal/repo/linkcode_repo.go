// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the LinkCode
// model used by the account-linking flow.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/flamewall/realtime/internal/domain"
)

// ErrDuplicate indicates that a unique constraint rejected the insert.
var ErrDuplicate = errors.New("duplicate")

// DeleteLinkCodesForUser removes every code owned by userID.
func DeleteLinkCodesForUser(ctx context.Context, db *gorm.DB, userID uint) error {
	return db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.LinkCode{}).Error
}

// CreateLinkCode inserts a code and returns ErrDuplicate on unique violation.
func CreateLinkCode(ctx context.Context, db *gorm.DB, userID uint, code string, ttl time.Duration) (*domain.LinkCode, error) {
	now := time.Now().UTC()
	rec := &domain.LinkCode{
		Code:      code,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// GetValidLinkCode returns a non-expired code or ErrNotFound.
func GetValidLinkCode(ctx context.Context, db *gorm.DB, code string, now time.Time) (*domain.LinkCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}
	var rec domain.LinkCode
	err := db.WithContext(ctx).
		Where("code = ? AND expires_at > ?", code, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeleteLinkCode removes a consumed code by primary key.
func DeleteLinkCode(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).Delete(&domain.LinkCode{}, id).Error
}

// isUniqueViolation detects UNIQUE failures across drivers.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
