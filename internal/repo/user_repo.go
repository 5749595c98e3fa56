// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateUser(ctx, db, username) -> *domain.User, error
//   - GetUser(ctx, db, id) -> *domain.User, error
//   - GetUserByExternalID(ctx, db, externalID) -> *domain.User, error
//   - GetUserByExternalUsername(ctx, db, name) -> *domain.User, error
//   - LinkExternalIdentity(ctx, db, id, externalID, externalUsername) -> error
//   - SetGameOnline(ctx, db, id, online) -> error
//
// Usage:
//
//	u, err := repo.GetUser(ctx, db, id)
//	if errors.Is(err, repo.ErrNotFound) {
//	    // handle missing
//	} else if err != nil {
//	    // handle DB failure
//	}
package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/flamewall/realtime/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateUser inserts a new account with the given username.
func CreateUser(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	u := &domain.User{Username: strings.TrimSpace(username)}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by primary key, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByExternalID resolves a user from a linked game identity.
func GetUserByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByExternalUsername resolves a user from a linked game display name.
// Matching is case-insensitive because game names are.
func GetUserByExternalUsername(ctx context.Context, db *gorm.DB, name string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("LOWER(external_username) = ?", strings.ToLower(strings.TrimSpace(name))).
		First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// LinkExternalIdentity writes the game identity onto the user row.
// It returns ErrNotFound when no row was affected.
func LinkExternalIdentity(ctx context.Context, db *gorm.DB, id uint, externalID, externalUsername string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"external_id":       externalID,
			"external_username": externalUsername,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetGameOnline records the plugin-reported online flag for a user.
// It returns ErrNotFound when no row was affected.
func SetGameOnline(ctx context.Context, db *gorm.DB, id uint, online bool) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Update("is_game_online", online)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
