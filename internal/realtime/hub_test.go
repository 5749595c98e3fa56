package realtime

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/flamewall/realtime/internal/domain"
)

func readFrame(t *testing.T, c *Conn) Frame {
	t.Helper()
	select {
	case b := <-c.Outbound():
		var f Frame
		if err := json.Unmarshal(b, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return f
	default:
		t.Fatalf("no frame queued on %s", c.ID)
	}
	return Frame{}
}

func TestUserRoom(t *testing.T) {
	if got := UserRoom(42); got != "user-42" {
		t.Fatalf("UserRoom = %q", got)
	}
}

func TestHub_EmitToRoomMembersOnly(t *testing.T) {
	h := NewHub()
	a := NewConn("a", UserPrincipal(domain.User{ID: 1}), 4)
	b := NewConn("b", UserPrincipal(domain.User{ID: 2}), 4)
	p := NewConn("p", PluginPrincipal(), 4)
	h.Join(UserRoom(1), a)
	h.Join(UserRoom(2), b)
	h.Join(PluginRoom, p)

	if n := h.Emit(UserRoom(1), EventNewMessage, map[string]int{"id": 7}); n != 1 {
		t.Fatalf("delivered to %d connections, want 1", n)
	}
	f := readFrame(t, a)
	if f.Event != EventNewMessage || string(f.Data) != `{"id":7}` {
		t.Fatalf("unexpected frame %+v", f)
	}
	if len(b.Outbound()) != 0 || len(p.Outbound()) != 0 {
		t.Fatalf("other rooms must not receive the frame")
	}

	if n := h.Emit(UserRoom(99), EventNewMessage, nil); n != 0 {
		t.Fatalf("empty room should be a no-op, got %d", n)
	}

	h.Leave(UserRoom(1), a)
	if h.Size(UserRoom(1)) != 0 {
		t.Fatalf("room should be empty after Leave")
	}
}

func TestConn_DropsWhenQueueFullOrClosed(t *testing.T) {
	c := NewConn("c", PluginPrincipal(), 1)
	before := testutil.ToFloat64(wsFramesDropped)

	if !c.Emit("x", 1) {
		t.Fatalf("first frame should be queued")
	}
	if c.Emit("x", 2) {
		t.Fatalf("second frame should be dropped")
	}
	if got := testutil.ToFloat64(wsFramesDropped) - before; got != 1 {
		t.Fatalf("dropped counter delta = %v, want 1", got)
	}

	<-c.Outbound()
	c.Close()
	c.Close()
	if c.Emit("x", 3) {
		t.Fatalf("closed connection must not accept frames")
	}
}

func TestHub_PushNotification(t *testing.T) {
	h := NewHub()
	c := NewConn("c", UserPrincipal(domain.User{ID: 3}), 2)
	h.Join(UserRoom(3), c)

	h.PushNotification(domain.Notification{ID: 9, UserID: 3, Title: "New Message"})
	f := readFrame(t, c)
	if f.Event != EventNewNotification {
		t.Fatalf("event = %q", f.Event)
	}
	var n domain.Notification
	if err := json.Unmarshal(f.Data, &n); err != nil || n.ID != 9 {
		t.Fatalf("payload = %s (%v)", f.Data, err)
	}
}

func TestPrincipal(t *testing.T) {
	var zero Principal
	if zero.IsUser() || zero.IsPlugin() || zero.Kind().String() != "unauthenticated" {
		t.Fatalf("zero principal must be unauthenticated")
	}
	p := PluginPrincipal()
	if !p.IsPlugin() || p.UserID() != 0 {
		t.Fatalf("plugin principal mismatch")
	}
	if _, ok := p.User(); ok {
		t.Fatalf("plugin has no user")
	}
	u := UserPrincipal(domain.User{ID: 4, Username: "alice"})
	if got, ok := u.User(); !ok || got.Username != "alice" || u.UserID() != 4 || u.Kind() != KindUser {
		t.Fatalf("user principal mismatch")
	}
}
