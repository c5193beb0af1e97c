package chatlock

import (
	"container/list"
	"sync"

	"github.com/arjunblj/memorycore/internal/idtime"
)

const (
	defaultDedupeTTLMs    = 120_000
	defaultDedupeCapacity = 10_000
)

// ShortLivedDedupeCache answers seen(key, now) with a TTL and a max-entries
// FIFO cap, used by channel adapters to drop duplicate updates (§4.H).
// container/list gives FIFO-by-insertion eviction directly; no third-party
// LRU is a fit here since the policy is insertion order, not recency (see
// DESIGN.md).
type ShortLivedDedupeCache struct {
	mu       sync.Mutex
	ttlMs    int64
	capacity int
	clock    idtime.Clock

	order   *list.List
	entries map[string]*list.Element
}

type dedupeEntry struct {
	key      string
	seenAtMs idtime.Millis
}

// DedupeOption configures a ShortLivedDedupeCache.
type DedupeOption func(*ShortLivedDedupeCache)

func WithDedupeTTLMs(ttlMs int64) DedupeOption {
	return func(c *ShortLivedDedupeCache) { c.ttlMs = ttlMs }
}

func WithDedupeCapacity(n int) DedupeOption {
	return func(c *ShortLivedDedupeCache) { c.capacity = n }
}

func WithDedupeClock(clock idtime.Clock) DedupeOption {
	return func(c *ShortLivedDedupeCache) { c.clock = clock }
}

func NewShortLivedDedupeCache(opts ...DedupeOption) *ShortLivedDedupeCache {
	c := &ShortLivedDedupeCache{
		ttlMs:    defaultDedupeTTLMs,
		capacity: defaultDedupeCapacity,
		clock:    idtime.SystemClock,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seen reports whether key was already recorded within ttlMs, and records
// it as seen now if not (or if its prior sighting has expired). Eviction
// happens oldest-first once capacity is exceeded (testable property 5).
func (c *ShortLivedDedupeCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*dedupeEntry)
		if now.Since(e.seenAtMs).Milliseconds() <= c.ttlMs {
			return true
		}
		c.order.Remove(el)
		delete(c.entries, key)
	}

	el := c.order.PushBack(&dedupeEntry{key: key, seenAtMs: now})
	c.entries[key] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*dedupeEntry).key)
	}

	return false
}

// Len reports the number of tracked keys, for tests asserting eviction.
func (c *ShortLivedDedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
