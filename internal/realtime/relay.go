package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/events"
	"github.com/flamewall/realtime/internal/services"
)

// Reasons a send is dropped. The sender never learns which one applied.
var (
	ErrSenderNotFound    = errors.New("sender not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrNotFriends        = errors.New("sender and recipient are not friends")
	ErrDuplicateMessage  = errors.New("duplicate message within dedup window")
)

// UserDirectory resolves users by website or game identity.
type UserDirectory interface {
	Get(ctx context.Context, id uint) (*domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	GetByExternalUsername(ctx context.Context, name string) (*domain.User, error)
}

// FriendChecker answers the messaging precondition.
type FriendChecker interface {
	AreFriends(ctx context.Context, a, b uint) (bool, error)
}

// MessageStore persists direct messages.
type MessageStore interface {
	Create(ctx context.Context, senderID, receiverID uint, content string, parentID *uint) (*domain.Message, error)
	Edit(ctx context.Context, messageID, actorID uint, content string) (*domain.Message, error)
	Delete(ctx context.Context, messageID, actorID uint) (*domain.Message, error)
}

// WebPrivateMessage is forwarded to the plugins when the recipient is in game.
type WebPrivateMessage struct {
	RecipientExternalID string `json:"recipientExternalId"`
	SenderUsername      string `json:"senderUsername"`
	Content             string `json:"content"`
}

// MessageDeleted is the payload of messageDeleted.
type MessageDeleted struct {
	MessageID uint `json:"messageId"`
}

// Relay validates, persists and fans out direct messages.
type Relay struct {
	Users    UserDirectory
	Friends  FriendChecker
	Messages MessageStore
	Ledger   Ledger
	Presence *Registry
	Rooms    Emitter
	Events   events.Publisher
}

// Send delivers content from senderID to recipientID. A nil message with a
// non-nil error means the send was dropped; callers log it and stay silent.
func (r *Relay) Send(ctx context.Context, senderID, recipientID uint, content string, parentID *uint) (*domain.Message, error) {
	sender, err := r.Users.Get(ctx, senderID)
	if err != nil {
		return nil, r.drop("sender_not_found", fmt.Errorf("%w: %v", ErrSenderNotFound, err))
	}
	recipient, err := r.Users.Get(ctx, recipientID)
	if err != nil {
		return nil, r.drop("recipient_not_found", fmt.Errorf("%w: %v", ErrRecipientNotFound, err))
	}
	return r.deliver(ctx, sender, recipient, content, parentID)
}

// SendFromGame relays an in-game private message: the sender is resolved by
// game id and the recipient by game name.
func (r *Relay) SendFromGame(ctx context.Context, senderExternalID, recipientExternalName, content string) (*domain.Message, error) {
	sender, err := r.Users.GetByExternalID(ctx, senderExternalID)
	if err != nil {
		return nil, r.drop("sender_not_found", fmt.Errorf("%w: %v", ErrSenderNotFound, err))
	}
	recipient, err := r.Users.GetByExternalUsername(ctx, recipientExternalName)
	if err != nil {
		return nil, r.drop("recipient_not_found", fmt.Errorf("%w: %v", ErrRecipientNotFound, err))
	}
	return r.deliver(ctx, sender, recipient, content, nil)
}

func (r *Relay) deliver(ctx context.Context, sender, recipient *domain.User, content string, parentID *uint) (*domain.Message, error) {
	ok, err := r.Friends.AreFriends(ctx, sender.ID, recipient.ID)
	if err != nil {
		return nil, r.drop("friend_check_failed", fmt.Errorf("friendship check: %w", err))
	}
	if !ok {
		log.Warn().
			Uint("sender_id", sender.ID).
			Uint("recipient_id", recipient.ID).
			Msg("blocked message to non-friend")
		return nil, r.drop("not_friends", ErrNotFriends)
	}

	sig := NewSignature(sender.ID, recipient.ID, content)
	fresh, err := r.Ledger.CheckAndInsert(ctx, sig)
	switch {
	case err != nil:
		// ledger unavailable: accept the send rather than block messaging
		log.Warn().Err(err).Msg("dedup ledger unavailable; continuing without it")
	case !fresh:
		return nil, r.drop("duplicate", ErrDuplicateMessage)
	}

	msg, err := r.Messages.Create(ctx, sender.ID, recipient.ID, content, parentID)
	if err != nil {
		if rmErr := r.Ledger.Remove(ctx, sig); rmErr != nil {
			log.Warn().Err(rmErr).Msg("dedup ledger remove failed")
		}
		return nil, r.drop("persist_failed", fmt.Errorf("persist message: %w", err))
	}

	if sender.ID != recipient.ID {
		if r.Presence.IsViewing(recipient.ID, sender.ID) {
			log.Debug().Uint("recipient_id", recipient.ID).Msg("recipient viewing conversation; notification suppressed")
		} else {
			r.Events.Publish(ctx, events.MessageSent{Message: *msg, Sender: *sender, Recipient: *recipient})
		}
	}

	r.Rooms.Emit(UserRoom(sender.ID), EventNewMessage, msg)
	if recipient.ID != sender.ID {
		r.Rooms.Emit(UserRoom(recipient.ID), EventNewMessage, msg)
	}

	if recipient.IsLinked() && recipient.IsGameOnline {
		name := sender.Username
		if sender.ExternalUsername != nil && *sender.ExternalUsername != "" {
			name = *sender.ExternalUsername
		}
		r.Rooms.Emit(PluginRoom, EventWebPrivateMessage, WebPrivateMessage{
			RecipientExternalID: *recipient.ExternalID,
			SenderUsername:      name,
			Content:             msg.Content,
		})
	}
	return msg, nil
}

func (r *Relay) drop(reason string, err error) error {
	relayDropped.WithLabelValues(reason).Inc()
	return err
}

// Edit rewrites a message authored by actorID and emits messageEdited to
// both participants.
func (r *Relay) Edit(ctx context.Context, actorID, messageID uint, content string) (*domain.Message, error) {
	msg, err := r.Messages.Edit(ctx, messageID, actorID, content)
	if err != nil {
		return nil, err
	}
	r.emitPair(msg, EventMessageEdited, msg)
	return msg, nil
}

// Delete soft-deletes a message authored by actorID and emits
// messageDeleted to both participants.
func (r *Relay) Delete(ctx context.Context, actorID, messageID uint) (*domain.Message, error) {
	msg, err := r.Messages.Delete(ctx, messageID, actorID)
	if err != nil {
		return nil, err
	}
	r.emitPair(msg, EventMessageDeleted, MessageDeleted{MessageID: msg.ID})
	return msg, nil
}

func (r *Relay) emitPair(msg *domain.Message, event string, data any) {
	r.Rooms.Emit(UserRoom(msg.SenderID), event, data)
	if msg.ReceiverID != msg.SenderID {
		r.Rooms.Emit(UserRoom(msg.ReceiverID), event, data)
	}
}

// commandError maps edit/delete failures to the message sent back to the
// originating connection.
func commandError(err error) string {
	switch {
	case errors.Is(err, services.ErrMessageNotFound):
		return "Message not found."
	case errors.Is(err, services.ErrForbidden):
		return "You can only change your own messages."
	case errors.Is(err, services.ErrMessageDeleted):
		return "Message was already deleted."
	case errors.Is(err, services.ErrEmptyContent):
		return "Message content is empty."
	case errors.Is(err, services.ErrTooLong):
		return "Message content is too long."
	}
	return "Request failed."
}
