package realtime

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flamewall/realtime/internal/services"
)

// DefaultDedupWindow is how long a send signature suppresses identical sends.
const DefaultDedupWindow = 2 * time.Second

// Signature identifies a send attempt for duplicate suppression.
type Signature struct {
	SenderID   uint
	ReceiverID uint
	Content    string
}

// NewSignature builds the signature of a send; content is normalized the
// same way it is persisted.
func NewSignature(senderID, receiverID uint, content string) Signature {
	return Signature{SenderID: senderID, ReceiverID: receiverID, Content: services.NormalizeContent(content)}
}

func (s Signature) String() string {
	return strconv.FormatUint(uint64(s.SenderID), 10) + ":" +
		strconv.FormatUint(uint64(s.ReceiverID), 10) + ":" + s.Content
}

// Hash is a fixed-size form of the signature for external stores.
func (s Signature) Hash() string {
	sum := sha256.Sum256([]byte(s.String()))
	return hex.EncodeToString(sum[:])
}

// Ledger remembers recent signatures for a fixed window.
type Ledger interface {
	// CheckAndInsert reports true if sig was not present and is now recorded.
	CheckAndInsert(ctx context.Context, sig Signature) (bool, error)
	// Remove forgets sig before its window ends.
	Remove(ctx context.Context, sig Signature) error
}

// ---------- in-memory ----------

type ledgerEntry struct {
	gen   uint64
	timer *time.Timer
}

// MemoryLedger is a process-local Ledger. Every entry expires window after
// insertion regardless of later activity.
type MemoryLedger struct {
	window time.Duration

	mu      sync.Mutex
	gen     uint64
	entries map[Signature]ledgerEntry
}

// NewMemoryLedger returns an empty ledger; window <= 0 means DefaultDedupWindow.
func NewMemoryLedger(window time.Duration) *MemoryLedger {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &MemoryLedger{window: window, entries: make(map[Signature]ledgerEntry)}
}

// CheckAndInsert implements Ledger.
func (l *MemoryLedger) CheckAndInsert(_ context.Context, sig Signature) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.entries[sig]; dup {
		return false, nil
	}
	l.gen++
	gen := l.gen
	l.entries[sig] = ledgerEntry{
		gen:   gen,
		timer: time.AfterFunc(l.window, func() { l.expire(sig, gen) }),
	}
	return true, nil
}

// expire drops sig only if it is still the insertion that scheduled it.
func (l *MemoryLedger) expire(sig Signature, gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[sig]; ok && e.gen == gen {
		delete(l.entries, sig)
	}
}

// Remove implements Ledger.
func (l *MemoryLedger) Remove(_ context.Context, sig Signature) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[sig]; ok {
		e.timer.Stop()
		delete(l.entries, sig)
	}
	return nil
}

// Len returns the number of live signatures.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops all pending expiry timers.
func (l *MemoryLedger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for sig, e := range l.entries {
		e.timer.Stop()
		delete(l.entries, sig)
	}
}

// ---------- Redis ----------

// RedisLedger shares the window across processes using SET NX PX.
type RedisLedger struct {
	rdb    *redis.Client
	prefix string
	window time.Duration
}

// NewRedisLedger returns a Redis-backed ledger; window <= 0 means DefaultDedupWindow.
func NewRedisLedger(rdb *redis.Client, prefix string, window time.Duration) *RedisLedger {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &RedisLedger{rdb: rdb, prefix: keyPrefix(prefix), window: window}
}

func (l *RedisLedger) key(sig Signature) string {
	return l.prefix + ":dedup:" + sig.Hash()
}

// CheckAndInsert implements Ledger.
func (l *RedisLedger) CheckAndInsert(ctx context.Context, sig Signature) (bool, error) {
	return l.rdb.SetNX(ctx, l.key(sig), 1, l.window).Result()
}

// Remove implements Ledger.
func (l *RedisLedger) Remove(ctx context.Context, sig Signature) error {
	return l.rdb.Del(ctx, l.key(sig)).Err()
}
