package realtime

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"github.com/flamewall/realtime/internal/domain"
)

// PluginRoom groups every game-server plugin connection.
const PluginRoom = "minecraft-plugins"

// Server to client event names.
const (
	EventNewMessage        = "newMessage"
	EventMessageEdited     = "messageEdited"
	EventMessageDeleted    = "messageDeleted"
	EventNewNotification   = "newNotification"
	EventLinkStatus        = "linkStatus"
	EventUserStatusUpdate  = "userStatusUpdate"
	EventWebPrivateMessage = "webPrivateMessage"
	EventError             = "error"
)

// UserRoom is the room of a single user.
func UserRoom(userID uint) string {
	return "user-" + strconv.FormatUint(uint64(userID), 10)
}

// Frame is the JSON envelope of every socket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// Conn is one authenticated socket. Outbound frames go through a bounded
// queue drained by a single writer goroutine.
type Conn struct {
	ID        string
	Principal Principal

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
	handshake trace.Link
}

// NewConn returns a connection with a send queue of the given size.
func NewConn(id string, p Principal, buffer int) *Conn {
	if buffer < 1 {
		buffer = 1
	}
	l := log.With().Str("conn_id", id).Str("kind", p.Kind().String())
	if p.IsUser() {
		l = l.Uint("user_id", p.UserID())
	}
	return &Conn{
		ID:        id,
		Principal: p,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		log:       l.Logger(),
	}
}

// Logger returns the connection-scoped logger.
func (c *Conn) Logger() *zerolog.Logger { return &c.log }

// Emit sends an event to this connection only.
func (c *Conn) Emit(event string, data any) bool {
	b, err := encodeFrame(event, data)
	if err != nil {
		c.log.Error().Err(err).Str("event", event).Msg("encode frame")
		return false
	}
	return c.enqueue(b)
}

func (c *Conn) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		wsFramesDropped.Inc()
		c.log.Warn().Msg("send queue full; frame dropped")
		return false
	}
}

// Outbound is drained by the writer goroutine.
func (c *Conn) Outbound() <-chan []byte { return c.send }

// Done is closed by Close.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close marks the connection finished; it is safe to call repeatedly.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Emitter fans an event out to every connection in a room.
type Emitter interface {
	Emit(room, event string, data any) int
}

// Hub holds room membership.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Conn
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]*Conn)}
}

// Join adds c to room.
func (h *Hub) Join(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Conn)
		h.rooms[room] = members
	}
	members[c.ID] = c
}

// Leave removes c from room and drops the room when it becomes empty.
func (h *Hub) Leave(room string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, c.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Size returns the number of connections in room.
func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Emit encodes the frame once and queues it on every member of room. It
// returns the number of connections that accepted the frame; an empty room
// is a no-op.
func (h *Hub) Emit(room, event string, data any) int {
	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()
	if len(members) == 0 {
		return 0
	}

	b, err := encodeFrame(event, data)
	if err != nil {
		log.Error().Err(err).Str("room", room).Str("event", event).Msg("encode frame")
		return 0
	}
	n := 0
	for _, c := range members {
		if c.enqueue(b) {
			n++
		}
	}
	return n
}

// PushNotification delivers a persisted notification to its owner's room.
func (h *Hub) PushNotification(n domain.Notification) {
	h.Emit(UserRoom(n.UserID), EventNewNotification, n)
}
