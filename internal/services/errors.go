// Package services defines the business logic behind the realtime gateway:
// user lookup, friendships, direct messages, notifications and account
// linking. This file centralizes service-level error values so that they can
// be consistently returned by service methods and checked by callers.
//
// Translation into socket error frames or HTTP status codes is performed by
// the realtime and handlers packages.
package services

import "errors"

var (
	// ErrUserNotFound indicates that a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrMessageNotFound indicates that the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrForbidden is returned when the caller is not the author of the
	// message or otherwise not allowed to act on the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrMessageDeleted is returned when editing or deleting a message that
	// was already deleted.
	ErrMessageDeleted = errors.New("message already deleted")

	// ErrEmptyContent is returned for blank message content.
	ErrEmptyContent = errors.New("content is empty")

	// ErrTooLong is returned when message content exceeds the configured limit.
	ErrTooLong = errors.New("content too long")
)

// Friendship errors.
var (
	ErrSelfFriendship       = errors.New("cannot befriend yourself")
	ErrFriendshipExists     = errors.New("friendship already exists")
	ErrFriendshipNotFound   = errors.New("friend request not found")
	ErrFriendshipNotPending = errors.New("friend request is not pending")
)

// Notification errors.
var ErrNotificationNotFound = errors.New("notification not found")

// Account-linking errors.
var (
	// ErrAlreadyLinked is returned when requesting a code for an account
	// that already carries a game identity.
	ErrAlreadyLinked = errors.New("account already linked")

	// ErrLinkCodeNotFound covers missing, expired and already-consumed codes.
	ErrLinkCodeNotFound = errors.New("invalid or expired code")

	// ErrExternalIDTaken is returned when the game identity is already bound
	// to a different account.
	ErrExternalIDTaken = errors.New("game account already linked to another user")

	// ErrCodeSpaceExhausted is returned when repeated generation attempts
	// keep colliding with existing codes.
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique link code")
)
