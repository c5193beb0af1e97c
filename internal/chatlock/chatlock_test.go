package chatlock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arjunblj/memorycore/internal/idtime"
)

// TestPerKeyLock_RunExclusive_OrdersInvocations is scenario S6: two tasks
// enter runExclusive("c1", ...) back to back, the second while the first is
// still running; invocation order must equal append order, with no
// interleaving.
func TestPerKeyLock_RunExclusive_OrdersInvocations(t *testing.T) {
	l := NewPerKeyLock()
	var mu sync.Mutex
	var log []int
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 1; i <= 2; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			<-start
			// Task 2 invokes 20ms after task 1, inside task 1's 50ms body.
			time.Sleep(time.Duration(id-1) * 20 * time.Millisecond)
			RunExclusive(l, "c1", func() struct{} {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(50 * time.Millisecond)
				mu.Lock()
				log = append(log, id)
				active--
				mu.Unlock()
				return struct{}{}
			})
		}(i)
	}
	close(start)
	wg.Wait()

	require.Len(t, log, 2)
	require.Equal(t, []int{1, 2}, log, "append order must equal invocation order")
	require.Equal(t, 1, maxActive, "task bodies must not interleave")
}

func TestPerKeyLock_EvictsZeroWaiterEntries(t *testing.T) {
	l := NewPerKeyLock()
	RunExclusive(l, "c1", func() struct{} { return struct{}{} })
	require.Equal(t, 0, l.Len(), "entry with zero waiters must be garbage-collected")
}

func TestPerKeyLock_DifferentKeysRunConcurrently(t *testing.T) {
	l := NewPerKeyLock()
	var wg sync.WaitGroup
	start := time.Now()

	for _, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(k string) {
			defer wg.Done()
			RunExclusive(l, k, func() struct{} {
				time.Sleep(100 * time.Millisecond)
				return struct{}{}
			})
		}(key)
	}
	wg.Wait()

	require.Less(t, time.Since(start), 180*time.Millisecond, "different keys must not serialize against each other")
}

// TestShortLivedDedupeCache_TTL is testable property 5: seen(key, t+delta)
// is true iff delta <= ttlMs.
func TestShortLivedDedupeCache_TTL(t *testing.T) {
	now := idtime.Millis(0)
	clock := func() idtime.Millis { return now }
	c := NewShortLivedDedupeCache(WithDedupeTTLMs(100), WithDedupeClock(clock))

	require.False(t, c.Seen("k"))
	now = 50
	require.True(t, c.Seen("k"), "within ttl must be seen")
	now = 101
	require.False(t, c.Seen("k"), "past ttl must not be seen")
}

func TestShortLivedDedupeCache_FIFOEvictsOldestFirst(t *testing.T) {
	now := idtime.Millis(0)
	clock := func() idtime.Millis { return now }
	c := NewShortLivedDedupeCache(WithDedupeTTLMs(1_000_000), WithDedupeCapacity(2), WithDedupeClock(clock))

	c.Seen("oldest")
	now = 1
	c.Seen("middle")
	now = 2
	c.Seen("newest") // evicts "oldest"

	require.Equal(t, 2, c.Len())
	now = 3
	require.False(t, c.Seen("oldest"), "oldest entry must have been evicted first")
}

func TestReconnectGuard_OnlyOnePending(t *testing.T) {
	g := NewReconnectGuard()
	var calls int32
	ok1 := g.Schedule(50, func() { calls++ })
	ok2 := g.Schedule(50, func() { calls++ })

	require.True(t, ok1)
	require.False(t, ok2, "a second schedule while one is pending must report false")

	g.Clear()
	require.False(t, g.Pending())
}

func TestTypingTracker_ReleaseReportsLastHolder(t *testing.T) {
	var emits int32
	var mu sync.Mutex
	tr := NewTypingTracker(10, func(key string) {
		mu.Lock()
		emits++
		mu.Unlock()
	})

	tr.Acquire("chat1")
	tr.Acquire("chat1")
	require.Equal(t, 2, tr.ActiveHolders("chat1"))

	require.False(t, tr.Release("chat1"), "releasing one of two holders is not the last")
	require.True(t, tr.Release("chat1"), "releasing the final holder must report true")
	require.Equal(t, 0, tr.ActiveHolders("chat1"))
}
