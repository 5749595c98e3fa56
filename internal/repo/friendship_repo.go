// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Friendship model.
//
// Error semantics:
//   - A duplicate (requester_id, receiver_id) pair relies on the database
//     unique constraint and is returned as ErrDuplicate.
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/flamewall/realtime/internal/domain"
)

// AreFriends reports whether an accepted friendship exists in either direction.
func AreFriends(ctx context.Context, db *gorm.DB, a, b uint) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("status = ?", domain.FriendshipAccepted).
		Where("(requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

// FindFriendship returns the row between a and b in either direction, or ErrNotFound.
func FindFriendship(ctx context.Context, db *gorm.DB, a, b uint) (*domain.Friendship, error) {
	var f domain.Friendship
	err := db.WithContext(ctx).
		Where("(requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)", a, b, b, a).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFriendship fetches a friendship by id, or ErrNotFound.
func GetFriendship(ctx context.Context, db *gorm.DB, id uint) (*domain.Friendship, error) {
	var f domain.Friendship
	if err := db.WithContext(ctx).First(&f, id).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// CreateFriendRequest inserts a pending request from requester to receiver.
func CreateFriendRequest(ctx context.Context, db *gorm.DB, requesterID, receiverID uint) (*domain.Friendship, error) {
	f := &domain.Friendship{
		RequesterID: requesterID,
		ReceiverID:  receiverID,
		Status:      domain.FriendshipPending,
	}
	if err := db.WithContext(ctx).Create(f).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return f, nil
}

// AcceptFriendship moves a pending request to accepted. It returns
// ErrNotFound when the row does not exist or is no longer pending.
func AcceptFriendship(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).
		Model(&domain.Friendship{}).
		Where("id = ? AND status = ?", id, domain.FriendshipPending).
		Update("status", domain.FriendshipAccepted)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
