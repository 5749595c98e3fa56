// Package services – UserService
//
// This file implements UserService, the user-lookup collaborator consumed by
// the socket authenticator, the message relay and the linking bridge. It
// resolves accounts by id or by linked game identity and records the
// plugin-reported game presence.
package services

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/repo"
)

// UserService provides read access to accounts plus the game-online flag.
type UserService struct {
	DB *gorm.DB
}

// Get returns the user with id, or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id uint) (*domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Get",
		trace.WithAttributes(attribute.Int64("user.id", int64(id))),
	)
	defer span.End()

	u, err := repo.GetUser(ctx, s.DB, id)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return u, nil
}

// GetByExternalID returns the user linked to a game identity, or ErrUserNotFound.
func (s *UserService) GetByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, ErrUserNotFound
	}
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "GetByExternalID",
		trace.WithAttributes(attribute.String("external.id", externalID)),
	)
	defer span.End()

	u, err := repo.GetUserByExternalID(ctx, s.DB, externalID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return u, nil
}

// GetByExternalUsername returns the user linked to a game display name.
func (s *UserService) GetByExternalUsername(ctx context.Context, name string) (*domain.User, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrUserNotFound
	}
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "GetByExternalUsername")
	defer span.End()

	u, err := repo.GetUserByExternalUsername(ctx, s.DB, name)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return u, nil
}

// SetGameOnline records the plugin-reported status for the user linked to
// externalID and returns the updated user.
func (s *UserService) SetGameOnline(ctx context.Context, externalID string, online bool) (*domain.User, error) {
	u, err := s.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if err := repo.SetGameOnline(ctx, s.DB, u.ID, online); err != nil {
		return nil, mapUserErr(err)
	}
	u.IsGameOnline = online
	return u, nil
}

func mapUserErr(err error) error {
	if isNotFound(err) {
		return ErrUserNotFound
	}
	return err
}

// isNotFound treats repo-level not found sentinels as "not found" in a
// driver-agnostic way. It also checks gorm.ErrRecordNotFound for safety.
func isNotFound(err error) bool {
	if errors.Is(err, repo.ErrNotFound) {
		return true
	}
	return errors.Is(err, gorm.ErrRecordNotFound)
}
