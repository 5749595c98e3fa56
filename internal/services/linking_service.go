// Package services – LinkingService
//
// This file implements the account-linking bridge: a signed-in user asks for
// a one-time code over REST, types it in game, and the game-server plugin
// submits it together with the player's identity over the socket.
//
// Codes are 6 uppercase hex characters (3 random bytes). A user holds at
// most one code (delete-then-create) and the code column is unique, so
// generation retries on collision.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/repo"
)

const (
	// DefaultLinkCodeTTL is used when LinkingService.TTL is zero.
	DefaultLinkCodeTTL = 5 * time.Minute

	linkCodeBytes   = 3
	maxCodeAttempts = 5
)

// LinkingService issues and redeems link codes.
type LinkingService struct {
	DB  *gorm.DB
	TTL time.Duration
	// Rand is the entropy source; nil means crypto/rand.
	Rand io.Reader
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (s *LinkingService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *LinkingService) newCode() (string, error) {
	r := s.Rand
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, linkCodeBytes)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read entropy: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// GenerateCode invalidates any existing code of userID and returns a fresh one.
//
// Errors: ErrUserNotFound, ErrAlreadyLinked, ErrCodeSpaceExhausted.
func (s *LinkingService) GenerateCode(ctx context.Context, userID uint) (*domain.LinkCode, error) {
	ctx, span := otel.Tracer("services/LinkingService").Start(ctx, "GenerateCode",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()

	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultLinkCodeTTL
	}

	var out *domain.LinkCode
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.DeleteLinkCodesForUser(ctx, tx, userID); err != nil {
			return err
		}
		u, err := repo.GetUser(ctx, tx, userID)
		if err != nil {
			return mapUserErr(err)
		}
		if u.IsLinked() {
			return ErrAlreadyLinked
		}
		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			code, err := s.newCode()
			if err != nil {
				return err
			}
			rec, err := repo.CreateLinkCode(ctx, tx, userID, code, ttl)
			if errors.Is(err, repo.ErrDuplicate) {
				continue
			}
			if err != nil {
				return err
			}
			out = rec
			return nil
		}
		return ErrCodeSpaceExhausted
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyAndLink redeems code for the game identity (externalID,
// externalUsername) and returns the updated user. The code is consumed on
// success, so a second submission fails with ErrLinkCodeNotFound.
//
// Errors: ErrLinkCodeNotFound (missing, expired or consumed),
// ErrExternalIDTaken, ErrUserNotFound.
func (s *LinkingService) VerifyAndLink(ctx context.Context, code, externalID, externalUsername string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/LinkingService").Start(ctx, "VerifyAndLink",
		trace.WithAttributes(attribute.String("external.id", externalID)),
	)
	defer span.End()

	code = strings.ToUpper(strings.TrimSpace(code))
	externalID = strings.TrimSpace(externalID)
	externalUsername = strings.TrimSpace(externalUsername)
	if externalID == "" {
		return nil, ErrLinkCodeNotFound
	}

	var out *domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lc, err := repo.GetValidLinkCode(ctx, tx, code, s.now())
		if err != nil {
			if isNotFound(err) {
				return ErrLinkCodeNotFound
			}
			return err
		}
		if owner, err := repo.GetUserByExternalID(ctx, tx, externalID); err == nil {
			if owner.ID != lc.UserID {
				return ErrExternalIDTaken
			}
		} else if !isNotFound(err) {
			return err
		}
		u, err := repo.GetUser(ctx, tx, lc.UserID)
		if err != nil {
			return mapUserErr(err)
		}
		if err := repo.LinkExternalIdentity(ctx, tx, u.ID, externalID, externalUsername); err != nil {
			if errors.Is(err, repo.ErrDuplicate) || isUniqueErr(err) {
				return ErrExternalIDTaken
			}
			return mapUserErr(err)
		}
		if err := repo.DeleteLinkCode(ctx, tx, lc.ID); err != nil {
			return err
		}
		u.ExternalID = &externalID
		u.ExternalUsername = &externalUsername
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// isUniqueErr attempts to detect unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isUniqueErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
