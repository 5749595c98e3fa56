// Package services – NotificationBridge
//
// NotificationBridge is the single consumer of the events.Bus. It turns
// message.sent, friendship.requested and friendship.accepted into persisted
// notifications, publishes notification.created for each one, and on that
// event pushes the record live to the owner's connection. Delivery is
// best-effort and at-most-once: persistence failures are logged, counted and
// swallowed.
package services

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/events"
)

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notifications handled by the bridge by type and outcome.",
	},
	[]string{"type", "outcome"}, // outcome: created|failed|pushed
)

func init() {
	prometheus.MustRegister(notificationsTotal)
}

// NotificationPusher delivers a persisted notification to its owner in real time.
type NotificationPusher interface {
	PushNotification(n domain.Notification)
}

// NotificationStore persists notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
}

// NotificationBridge implements events.Handler.
type NotificationBridge struct {
	Store  NotificationStore
	Events events.Publisher
	Push   NotificationPusher
}

// Handle implements events.Handler.
func (b *NotificationBridge) Handle(ctx context.Context, e events.Event) {
	switch ev := e.(type) {
	case events.NotificationCreated:
		if b.Push != nil {
			b.Push.PushNotification(ev.Notification)
			notificationsTotal.WithLabelValues(ev.Notification.Type, "pushed").Inc()
		}
	default:
		n, ok := Template(e)
		if !ok {
			log.Debug().Str("topic", e.Topic()).Msg("no notification template; event ignored")
			return
		}
		if err := b.Store.Create(ctx, n); err != nil {
			notificationsTotal.WithLabelValues(n.Type, "failed").Inc()
			log.Error().Err(err).
				Str("topic", e.Topic()).
				Uint("user_id", n.UserID).
				Msg("notification persist failed; dropped")
			return
		}
		notificationsTotal.WithLabelValues(n.Type, "created").Inc()
		if b.Events != nil {
			b.Events.Publish(ctx, events.NotificationCreated{Notification: *n})
		}
	}
}

// Template renders the notification for a domain event. It reports false
// for events that do not produce a notification.
func Template(e events.Event) (*domain.Notification, bool) {
	switch ev := e.(type) {
	case events.MessageSent:
		return &domain.Notification{
			UserID:  ev.Recipient.ID,
			Title:   "New Message",
			Message: fmt.Sprintf("You have a new message from %s.", ev.Sender.Username),
			Type:    events.TopicMessageSent,
			Link:    link(fmt.Sprintf("/messages/%d", ev.Sender.ID)),
		}, true
	case events.FriendshipRequested:
		return &domain.Notification{
			UserID:  ev.Receiver.ID,
			Title:   "New Friend Request",
			Message: fmt.Sprintf("%s wants to be your friend.", ev.Requester.Username),
			Type:    events.TopicFriendshipRequested,
			Link:    link("/friends"),
		}, true
	case events.FriendshipAccepted:
		return &domain.Notification{
			UserID:  ev.Requester.ID,
			Title:   "Friend Request Accepted",
			Message: fmt.Sprintf("%s is now your friend.", ev.Receiver.Username),
			Type:    events.TopicFriendshipAccepted,
			Link:    link(fmt.Sprintf("/users/%d", ev.Receiver.ID)),
		}, true
	}
	return nil, false
}

func link(s string) *string { return &s }
