package services

import (
	"context"
	"errors"
	"testing"

	"github.com/flamewall/realtime/internal/domain"
	"github.com/flamewall/realtime/internal/events"
)

func TestFriendship_Request_Validation(t *testing.T) {
	db := newTestDB(t)
	pub := &recordingPublisher{}
	svc := &FriendshipService{DB: db, Events: pub}
	a := mkUser(t, db, "alice")
	ctx := context.Background()

	if _, err := svc.Request(ctx, a.ID, a.ID); !errors.Is(err, ErrSelfFriendship) {
		t.Fatalf("expected ErrSelfFriendship, got %v", err)
	}
	if _, err := svc.Request(ctx, a.ID, a.ID+99); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if n := len(pub.snapshot()); n != 0 {
		t.Fatalf("no events expected on failures, got %d", n)
	}
}

func TestFriendship_RequestAccept_PublishesEvents(t *testing.T) {
	db := newTestDB(t)
	pub := &recordingPublisher{}
	svc := &FriendshipService{DB: db, Events: pub}
	a := mkUser(t, db, "alice")
	b := mkUser(t, db, "bob")
	ctx := context.Background()

	f, err := svc.Request(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if f.Status != domain.FriendshipPending {
		t.Fatalf("status = %q, want pending", f.Status)
	}
	// reverse direction is the same pair
	if _, err := svc.Request(ctx, b.ID, a.ID); !errors.Is(err, ErrFriendshipExists) {
		t.Fatalf("expected ErrFriendshipExists, got %v", err)
	}

	if ok, _ := svc.AreFriends(ctx, a.ID, b.ID); ok {
		t.Fatalf("pending must not be friends")
	}

	// only the receiver may accept
	if _, err := svc.Accept(ctx, f.ID, a.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for requester accepting, got %v", err)
	}
	if _, err := svc.Accept(ctx, f.ID+50, b.ID); !errors.Is(err, ErrFriendshipNotFound) {
		t.Fatalf("expected ErrFriendshipNotFound, got %v", err)
	}
	got, err := svc.Accept(ctx, f.ID, b.ID)
	if err != nil || got.Status != domain.FriendshipAccepted {
		t.Fatalf("Accept: got=%+v err=%v", got, err)
	}
	if _, err := svc.Accept(ctx, f.ID, b.ID); !errors.Is(err, ErrFriendshipNotPending) {
		t.Fatalf("expected ErrFriendshipNotPending, got %v", err)
	}
	if ok, _ := svc.AreFriends(ctx, b.ID, a.ID); !ok {
		t.Fatalf("expected friends after accept")
	}

	evs := pub.snapshot()
	if len(evs) != 2 {
		t.Fatalf("expected 2 events, got %d", len(evs))
	}
	req, ok := evs[0].(events.FriendshipRequested)
	if !ok || req.Requester.ID != a.ID || req.Receiver.ID != b.ID {
		t.Fatalf("unexpected first event: %#v", evs[0])
	}
	acc, ok := evs[1].(events.FriendshipAccepted)
	if !ok || acc.Requester.Username != "alice" || acc.Receiver.Username != "bob" {
		t.Fatalf("unexpected second event: %#v", evs[1])
	}
}

func TestFriendship_NilPublisher(t *testing.T) {
	db := newTestDB(t)
	svc := &FriendshipService{DB: db}
	a := mkUser(t, db, "alice")
	b := mkUser(t, db, "bob")
	if _, err := svc.Request(context.Background(), a.ID, b.ID); err != nil {
		t.Fatalf("Request without publisher: %v", err)
	}
}
