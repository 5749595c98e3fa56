package realtime

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// PresenceMirror receives every effective presence change so other processes
// can see who is online. Writes are best-effort.
type PresenceMirror interface {
	Online(ctx context.Context, userID uint, connID string) error
	Offline(ctx context.Context, userID uint, connID string) error
}

const mirrorTimeout = 500 * time.Millisecond

// Registry tracks the active connection of each user (last writer wins) and
// which conversation each user has open.
type Registry struct {
	mu      sync.Mutex
	conns   map[uint]string
	viewing map[uint]uint

	mirror PresenceMirror
}

// NewRegistry returns an empty registry. mirror may be nil.
func NewRegistry(mirror PresenceMirror) *Registry {
	return &Registry{
		conns:   make(map[uint]string),
		viewing: make(map[uint]uint),
		mirror:  mirror,
	}
}

// Register records connID as the active connection of userID, replacing any
// previous one.
func (r *Registry) Register(userID uint, connID string) {
	r.mu.Lock()
	r.conns[userID] = connID
	r.mu.Unlock()

	if r.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := r.mirror.Online(ctx, userID, connID); err != nil {
			log.Warn().Err(err).Uint("user_id", userID).Msg("presence mirror online failed")
		}
	}
}

// Unregister removes the entry only if it still points at connID, so a late
// disconnect of a replaced connection does not log out the new one. It
// reports whether an entry was removed.
func (r *Registry) Unregister(userID uint, connID string) bool {
	r.mu.Lock()
	cur, ok := r.conns[userID]
	removed := ok && cur == connID
	if removed {
		delete(r.conns, userID)
		delete(r.viewing, userID)
	}
	r.mu.Unlock()

	if removed && r.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := r.mirror.Offline(ctx, userID, connID); err != nil {
			log.Warn().Err(err).Uint("user_id", userID).Msg("presence mirror offline failed")
		}
	}
	return removed
}

// IsOnline reports whether userID has an active connection.
func (r *Registry) IsOnline(userID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[userID]
	return ok
}

// ConnectionID returns the active connection id of userID.
func (r *Registry) ConnectionID(userID uint) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.conns[userID]
	return id, ok
}

// SetViewing marks that userID has the conversation with peerID open.
func (r *Registry) SetViewing(userID, peerID uint) {
	r.mu.Lock()
	r.viewing[userID] = peerID
	r.mu.Unlock()
}

// ClearViewing forgets the open conversation of userID.
func (r *Registry) ClearViewing(userID uint) {
	r.mu.Lock()
	delete(r.viewing, userID)
	r.mu.Unlock()
}

// IsViewing reports whether userID currently has the conversation with peerID open.
func (r *Registry) IsViewing(userID, peerID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.viewing[userID]
	return ok && cur == peerID
}

// Online returns the number of users with an active connection.
func (r *Registry) Online() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// ---------- Redis mirror ----------

// presence key: <prefix>:presence:<userID>, value: connection id
const defaultKeyPrefix = "flamewall"

// deletes the key only while it still holds the given connection id
var offlineScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisPresence mirrors the registry into Redis.
type RedisPresence struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPresence returns a mirror writing keys under prefix with the given
// ttl (0 keeps keys until the user goes offline).
func NewRedisPresence(rdb *redis.Client, prefix string, ttl time.Duration) *RedisPresence {
	return &RedisPresence{rdb: rdb, prefix: keyPrefix(prefix), ttl: ttl}
}

// keyPrefix drops trailing separators so "app" and "app:" name the same keys.
func keyPrefix(prefix string) string {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		return defaultKeyPrefix
	}
	return prefix
}

func (p *RedisPresence) key(userID uint) string {
	return p.prefix + ":presence:" + strconv.FormatUint(uint64(userID), 10)
}

// Online implements PresenceMirror.
func (p *RedisPresence) Online(ctx context.Context, userID uint, connID string) error {
	return p.rdb.Set(ctx, p.key(userID), connID, p.ttl).Err()
}

// Offline implements PresenceMirror.
func (p *RedisPresence) Offline(ctx context.Context, userID uint, connID string) error {
	return offlineScript.Run(ctx, p.rdb, []string{p.key(userID)}, connID).Err()
}

// Lookup returns the mirrored connection id of userID.
func (p *RedisPresence) Lookup(ctx context.Context, userID uint) (connID string, online bool, err error) {
	val, err := p.rdb.Get(ctx, p.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
