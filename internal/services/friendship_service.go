// Package services – FriendshipService
//
// This file implements FriendshipService, which answers the friendship
// precondition used by the message relay and produces the
// friendship.requested / friendship.accepted domain events consumed by the
// notification bridge. Service-level errors (ErrSelfFriendship,
// ErrFriendshipExists, ErrFriendshipNotFound, ErrFriendshipNotPending,
// ErrForbidden) are returned for predictable cases so handlers can map them
// to HTTP results consistently.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/events"
	"github.com/flamewall/realtime/internal/repo"
)

// FriendshipService implements the friendship use-cases.
type FriendshipService struct {
	DB *gorm.DB
	// Events receives friendship.* events. Nil disables publishing.
	Events events.Publisher
}

// AreFriends reports whether a and b have an accepted friendship.
func (s *FriendshipService) AreFriends(ctx context.Context, a, b uint) (bool, error) {
	ctx, span := otel.Tracer("services/FriendshipService").Start(ctx, "AreFriends",
		trace.WithAttributes(
			attribute.Int64("user.a", int64(a)),
			attribute.Int64("user.b", int64(b)),
		),
	)
	defer span.End()
	return repo.AreFriends(ctx, s.DB, a, b)
}

// Request records a pending request from requesterID to receiverID.
//
// Semantics and validation:
//   - requester == receiver -> ErrSelfFriendship.
//   - either user missing -> ErrUserNotFound.
//   - any existing row between the pair (either direction) -> ErrFriendshipExists.
//
// On success a FriendshipRequested event is published after the insert
// commits.
func (s *FriendshipService) Request(ctx context.Context, requesterID, receiverID uint) (*domain.Friendship, error) {
	ctx, span := otel.Tracer("services/FriendshipService").Start(ctx, "Request",
		trace.WithAttributes(
			attribute.Int64("requester.id", int64(requesterID)),
			attribute.Int64("receiver.id", int64(receiverID)),
		),
	)
	defer span.End()

	if requesterID == receiverID {
		return nil, ErrSelfFriendship
	}

	var (
		f                   *domain.Friendship
		requester, receiver *domain.User
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if requester, err = repo.GetUser(ctx, tx, requesterID); err != nil {
			return mapUserErr(err)
		}
		if receiver, err = repo.GetUser(ctx, tx, receiverID); err != nil {
			return mapUserErr(err)
		}
		if _, err := repo.FindFriendship(ctx, tx, requesterID, receiverID); err == nil {
			return ErrFriendshipExists
		} else if !isNotFound(err) {
			return err
		}
		f, err = repo.CreateFriendRequest(ctx, tx, requesterID, receiverID)
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrFriendshipExists
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.FriendshipRequested{FriendshipID: f.ID, Requester: *requester, Receiver: *receiver})
	return f, nil
}

// Accept moves a pending request to accepted on behalf of actorID, who must
// be the receiver. On success a FriendshipAccepted event is published.
func (s *FriendshipService) Accept(ctx context.Context, friendshipID, actorID uint) (*domain.Friendship, error) {
	ctx, span := otel.Tracer("services/FriendshipService").Start(ctx, "Accept",
		trace.WithAttributes(
			attribute.Int64("friendship.id", int64(friendshipID)),
			attribute.Int64("actor.id", int64(actorID)),
		),
	)
	defer span.End()

	var (
		f                   *domain.Friendship
		requester, receiver *domain.User
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if f, err = repo.GetFriendship(ctx, tx, friendshipID); err != nil {
			if isNotFound(err) {
				return ErrFriendshipNotFound
			}
			return err
		}
		if f.ReceiverID != actorID {
			return ErrForbidden
		}
		if f.Status != domain.FriendshipPending {
			return ErrFriendshipNotPending
		}
		if err := repo.AcceptFriendship(ctx, tx, f.ID); err != nil {
			if isNotFound(err) {
				return ErrFriendshipNotPending
			}
			return err
		}
		f.Status = domain.FriendshipAccepted
		if requester, err = repo.GetUser(ctx, tx, f.RequesterID); err != nil {
			return mapUserErr(err)
		}
		if receiver, err = repo.GetUser(ctx, tx, f.ReceiverID); err != nil {
			return mapUserErr(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.FriendshipAccepted{FriendshipID: f.ID, Requester: *requester, Receiver: *receiver})
	return f, nil
}

func (s *FriendshipService) publish(ctx context.Context, e events.Event) {
	if s.Events != nil {
		s.Events.Publish(ctx, e)
	}
}
