package chatlock

import (
	"sync"
	"time"
)

// ReconnectGuard ensures at most one pending reconnect timer is scheduled
// at a time (§4.H).
type ReconnectGuard struct {
	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

func NewReconnectGuard() *ReconnectGuard {
	return &ReconnectGuard{}
}

// Schedule arms task to run after delayMs. Returns true iff newly scheduled,
// false iff a reconnect was already pending (task is not re-armed).
func (g *ReconnectGuard) Schedule(delayMs int64, task func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending {
		return false
	}
	g.pending = true
	g.timer = time.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() {
		g.mu.Lock()
		g.pending = false
		g.mu.Unlock()
		task()
	})
	return true
}

// Clear cancels any pending reconnect timer.
func (g *ReconnectGuard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.pending = false
}

// Pending reports whether a reconnect is currently scheduled.
func (g *ReconnectGuard) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}
