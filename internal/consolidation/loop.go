package consolidation

import (
	"context"
	"sync"
	"time"

	"github.com/arjunblj/memorycore/internal/logging"
)

// Loop is the Consolidation Loop's background ticker (§4.G), grounded on
// the same stopChan-gated skeleton as scheduler.Loop (itself grounded on
// engine/schedules.go's SessionScheduler): run once immediately, then on
// every tick, interruptible mid-sleep for clean shutdown.
type Loop struct {
	co          *Consolidator
	intervalMs  int64
	enabled     bool

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewLoop builds a Loop from the Consolidator and its own config fields
// (config.MemoryConfig.ConsolidationEnabled / ConsolidationIntervalMs;
// config load rejects an interval below 60s).
func NewLoop(co *Consolidator, enabled bool, intervalMs int64) *Loop {
	return &Loop{co: co, enabled: enabled, intervalMs: intervalMs}
}

// Start starts the loop in a background goroutine. A second call while
// already running is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		logging.Log.Warnf("[consolidation] loop already running")
		return
	}
	if !l.enabled {
		logging.Log.Infof("[consolidation] loop disabled by config")
		return
	}
	l.running = true
	l.stopChan = make(chan struct{})
	logging.Log.Infof("[consolidation] starting loop | interval=%dms", l.intervalMs)
	go l.run(ctx)
}

// Stop stops the loop gracefully.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		return
	}
	close(l.stopChan)
	l.running = false
}

func (l *Loop) isStopping() bool {
	select {
	case <-l.stopChan:
		return true
	default:
		return false
	}
}

func (l *Loop) sleepWithCancel(d time.Duration) bool {
	select {
	case <-time.After(d):
		return false
	case <-l.stopChan:
		return true
	}
}

func (l *Loop) run(ctx context.Context) {
	if l.isStopping() || ctx.Err() != nil {
		return
	}
	l.co.RunOnce(ctx)

	interval := time.Duration(l.intervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.co.RunOnce(ctx)
		case <-l.stopChan:
			logging.Log.Infof("[consolidation] loop stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// HealthCheck reports whether the loop is currently running (§6:
// ConsolidationLoop.healthCheck()).
func (l *Loop) HealthCheck() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
