// Package events carries domain events from their producers (message relay,
// friendship service, notification bridge) to the single notification
// consumer over an explicit bounded queue, optionally mirroring each event
// to NATS for other processes.
package events

import "github.com/flamewall/realtime/internal/domain"

// Topics.
const (
	TopicMessageSent         = "message.sent"
	TopicFriendshipRequested = "friendship.requested"
	TopicFriendshipAccepted  = "friendship.accepted"
	TopicNotificationCreated = "notification.created"
)

// Event is anything published on the Bus.
type Event interface {
	Topic() string
}

// MessageSent fires after a direct message is persisted and the recipient is
// not currently viewing the conversation with the sender.
type MessageSent struct {
	Message   domain.Message `json:"message"`
	Sender    domain.User    `json:"sender"`
	Recipient domain.User    `json:"recipient"`
}

func (MessageSent) Topic() string { return TopicMessageSent }

// FriendshipRequested fires when Requester asks Receiver to be friends.
type FriendshipRequested struct {
	FriendshipID uint        `json:"friendship_id"`
	Requester    domain.User `json:"requester"`
	Receiver     domain.User `json:"receiver"`
}

func (FriendshipRequested) Topic() string { return TopicFriendshipRequested }

// FriendshipAccepted fires when Receiver accepts Requester's request.
type FriendshipAccepted struct {
	FriendshipID uint        `json:"friendship_id"`
	Requester    domain.User `json:"requester"`
	Receiver     domain.User `json:"receiver"`
}

func (FriendshipAccepted) Topic() string { return TopicFriendshipAccepted }

// NotificationCreated fires after a notification row is persisted.
type NotificationCreated struct {
	Notification domain.Notification `json:"notification"`
}

func (NotificationCreated) Topic() string { return TopicNotificationCreated }
