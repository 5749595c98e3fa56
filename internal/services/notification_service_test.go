package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/events"
)

func TestNotificationService_ListClampAndMarks(t *testing.T) {
	db := newTestDB(t)
	svc := &NotificationService{DB: db}
	a := mkUser(t, db, "alice")
	b := mkUser(t, db, "bob")
	ctx := context.Background()

	link := "/messages/2"
	for i := 0; i < 3; i++ {
		n := &domain.Notification{UserID: a.ID, Title: "t", Message: "m", Type: "message.sent", Link: &link}
		if err := svc.Create(ctx, n); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	other := &domain.Notification{UserID: b.ID, Title: "t", Message: "m", Type: "x"}
	if err := svc.Create(ctx, other); err != nil {
		t.Fatalf("Create other: %v", err)
	}

	list, err := svc.List(ctx, a.ID, 0)
	if err != nil || len(list) != 3 {
		t.Fatalf("List default: len=%d err=%v", len(list), err)
	}
	list, _ = svc.List(ctx, a.ID, 1)
	if len(list) != 1 {
		t.Fatalf("List limit 1: len=%d", len(list))
	}
	list, _ = svc.List(ctx, a.ID, 10_000)
	if len(list) != 3 {
		t.Fatalf("List clamp: len=%d", len(list))
	}

	if err := svc.MarkRead(ctx, a.ID, other.ID); !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("expected ErrNotificationNotFound for foreign id, got %v", err)
	}
	if err := svc.MarkRead(ctx, a.ID, list[0].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if n, err := svc.MarkReadByLink(ctx, a.ID, "  "); err != nil || n != 0 {
		t.Fatalf("blank link should be a no-op: n=%d err=%v", n, err)
	}
	if n, err := svc.MarkReadByLink(ctx, a.ID, link); err != nil || n != 2 {
		t.Fatalf("MarkReadByLink = %d, %v; want 2", n, err)
	}
	count, _, err := svc.Unread(ctx, a.ID)
	if err != nil || count != 0 {
		t.Fatalf("Unread(a) = %d, %v", count, err)
	}
	if n, err := svc.MarkAllRead(ctx, b.ID); err != nil || n != 1 {
		t.Fatalf("MarkAllRead(b) = %d, %v", n, err)
	}
}

func TestTemplate(t *testing.T) {
	alice := domain.User{ID: 1, Username: "alice"}
	bob := domain.User{ID: 2, Username: "bob"}

	cases := []struct {
		name  string
		ev    events.Event
		owner uint
		title string
		msg   string
		typ   string
		link  string
	}{
		{"message", events.MessageSent{Sender: alice, Recipient: bob}, 2, "New Message", "You have a new message from alice.", "message.sent", "/messages/1"},
		{"requested", events.FriendshipRequested{Requester: alice, Receiver: bob}, 2, "New Friend Request", "alice wants to be your friend.", "friendship.requested", "/friends"},
		{"accepted", events.FriendshipAccepted{Requester: alice, Receiver: bob}, 1, "Friend Request Accepted", "bob is now your friend.", "friendship.accepted", "/users/2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, ok := Template(tc.ev)
			if !ok {
				t.Fatalf("expected a template")
			}
			if n.UserID != tc.owner || n.Title != tc.title || n.Message != tc.msg || n.Type != tc.typ || n.Link == nil || *n.Link != tc.link {
				t.Fatalf("unexpected notification: %+v (link=%v)", n, n.Link)
			}
		})
	}
	if _, ok := Template(events.NotificationCreated{}); ok {
		t.Fatalf("notification.created must not produce a notification")
	}
}

type recordingPusher struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (p *recordingPusher) PushNotification(n domain.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, n)
}

type failingStore struct{}

func (failingStore) Create(context.Context, *domain.Notification) error {
	return errors.New("db down")
}

func TestNotificationBridge_PersistsPublishesAndPushes(t *testing.T) {
	db := newTestDB(t)
	alice := mkUser(t, db, "alice")
	bob := mkUser(t, db, "bob")

	store := &NotificationService{DB: db}
	pub := &recordingPublisher{}
	push := &recordingPusher{}
	bridge := &NotificationBridge{Store: store, Events: pub, Push: push}
	ctx := context.Background()

	bridge.Handle(ctx, events.MessageSent{Sender: *alice, Recipient: *bob})

	stored, _ := store.List(ctx, bob.ID, 0)
	if len(stored) != 1 || stored[0].Type != events.TopicMessageSent {
		t.Fatalf("expected one persisted notification, got %+v", stored)
	}
	evs := pub.snapshot()
	if len(evs) != 1 {
		t.Fatalf("expected notification.created to be published, got %d events", len(evs))
	}
	created, ok := evs[0].(events.NotificationCreated)
	if !ok || created.Notification.ID != stored[0].ID {
		t.Fatalf("unexpected event: %#v", evs[0])
	}
	if len(push.items) != 0 {
		t.Fatalf("push must wait for notification.created")
	}

	// second stage: the same handler pushes it live
	bridge.Handle(ctx, created)
	if len(push.items) != 1 || push.items[0].UserID != bob.ID {
		t.Fatalf("expected push to bob, got %+v", push.items)
	}
}

func TestNotificationBridge_PersistFailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{}
	push := &recordingPusher{}
	bridge := &NotificationBridge{Store: failingStore{}, Events: pub, Push: push}

	bridge.Handle(context.Background(), events.FriendshipRequested{
		Requester: domain.User{ID: 1, Username: "a"},
		Receiver:  domain.User{ID: 2, Username: "b"},
	})
	if len(pub.snapshot()) != 0 || len(push.items) != 0 {
		t.Fatalf("failed persistence must not publish or push")
	}
}

func TestNotificationBridge_EndToEndOverBus(t *testing.T) {
	db := newTestDB(t)
	alice := mkUser(t, db, "alice")
	bob := mkUser(t, db, "bob")

	bus := events.NewBus(8)
	push := &recordingPusher{}
	bridge := &NotificationBridge{Store: &NotificationService{DB: db}, Events: bus, Push: push}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		bus.Run(ctx, bridge)
		close(done)
	}()

	bus.Publish(context.Background(), events.FriendshipAccepted{Requester: *alice, Receiver: *bob})

	waitFor(t, func() bool {
		push.mu.Lock()
		defer push.mu.Unlock()
		return len(push.items) == 1
	})
	push.mu.Lock()
	got := push.items[0]
	push.mu.Unlock()
	if got.UserID != alice.ID || got.Type != events.TopicFriendshipAccepted {
		t.Fatalf("unexpected pushed notification: %+v", got)
	}
	cancel()
	<-done
}
