package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flamewall/realtime/internal/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (s *recordingSink) Mirror(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, e.Topic())
	return s.err
}

func TestBus_PublishDropsWhenFull(t *testing.T) {
	b := NewBus(1)
	baseDropped := testutil.ToFloat64(busDropped.WithLabelValues(TopicMessageSent))

	if !b.Publish(context.Background(), MessageSent{}) {
		t.Fatalf("first publish should be accepted")
	}
	if b.Publish(context.Background(), MessageSent{}) {
		t.Fatalf("second publish should be dropped on a full queue")
	}
	if b.Len() != 1 {
		t.Fatalf("Len = %d, want 1", b.Len())
	}
	if got := testutil.ToFloat64(busDropped.WithLabelValues(TopicMessageSent)); got != baseDropped+1 {
		t.Fatalf("dropped counter = %v, want %v", got, baseDropped+1)
	}
}

func TestNewBus_MinimumBuffer(t *testing.T) {
	b := NewBus(0)
	if !b.Publish(context.Background(), NotificationCreated{}) {
		t.Fatalf("buffer should be clamped to at least 1")
	}
}

func TestBus_RunDeliversInOrderAndMirrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("mirror down")}
	b := NewBus(8, sink)

	want := []string{TopicFriendshipRequested, TopicFriendshipAccepted, TopicNotificationCreated}
	b.Publish(context.Background(), FriendshipRequested{Requester: domain.User{ID: 1}})
	b.Publish(context.Background(), FriendshipAccepted{})
	b.Publish(context.Background(), NotificationCreated{})

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, len(want))
	done := make(chan struct{})
	go func() {
		b.Run(ctx, HandlerFunc(func(_ context.Context, e Event) { got <- e.Topic() }))
		close(done)
	}()

	for i, w := range want {
		select {
		case topic := <-got:
			if topic != w {
				t.Fatalf("event %d topic = %q, want %q", i, topic, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.topics) != len(want) {
		t.Fatalf("sink saw %d events, want %d (errors must not stop delivery)", len(sink.topics), len(want))
	}
}
