package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/arjunblj/memorycore/internal/config"
	"github.com/arjunblj/memorycore/internal/logging"
	"github.com/arjunblj/memorycore/internal/store"
)

// DeliverFunc sends ev to its chat. The scheduler calls it once per claimed,
// non-suppressed event; a non-nil error releases the event's claim so a
// later pass can retry it.
type DeliverFunc func(ctx context.Context, ev store.ProactiveEvent, isGroup bool) error

const (
	claimWindowMs = 0 // only events already due; heartbeat_interval_ms sets the poll cadence
	claimBatch    = 25
	claimLeaseMs  = 60_000
)

// Loop is the Event Scheduler's background ticker, grounded on
// engine/schedules.go's SessionScheduler: a stopChan-gated goroutine that
// runs one pass immediately, then on every heartbeat tick, and can be
// interrupted mid-sleep for clean shutdown.
type Loop struct {
	sched    *Scheduler
	cfg      config.ProactiveConfig
	deliver  DeliverFunc
	claimID  string

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewLoop builds a Loop. claimID identifies this process/worker for the
// lease-based claim protocol (§4.E); composition roots typically derive it
// from hostname+pid.
func NewLoop(sched *Scheduler, cfg config.ProactiveConfig, claimID string, deliver DeliverFunc) *Loop {
	return &Loop{sched: sched, cfg: cfg, claimID: claimID, deliver: deliver}
}

// Start starts the loop in a background goroutine. A second call while
// already running is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		logging.Log.Warnf("[scheduler] loop already running")
		return
	}
	if !l.cfg.Enabled {
		logging.Log.Infof("[scheduler] proactive loop disabled by config")
		return
	}
	l.running = true
	l.stopChan = make(chan struct{})
	logging.Log.Infof("[scheduler] starting loop | heartbeat=%dms", l.cfg.HeartbeatIntervalMs)
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
	l.tick(ctx)

	interval := time.Duration(l.cfg.HeartbeatIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.tick(ctx)
		case <-l.stopChan:
			logging.Log.Infof("[scheduler] loop stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick claims up to claimBatch due events, evaluates suppression per event,
// and invokes deliver for every surviving one — catching and logging every
// error so one bad event never stalls the pass (§7: "Background loops catch
// and log every tick error and continue").
func (l *Loop) tick(ctx context.Context) {
	claimed, err := l.sched.ClaimPendingEvents(ctx, claimWindowMs, claimBatch, claimLeaseMs, l.claimID)
	if err != nil {
		logging.Log.Errorf("[scheduler] claim pass failed: %v", err)
		return
	}
	if len(claimed) == 0 {
		return
	}
	logging.Log.Infof("[scheduler] claimed %d pending event(s)", len(claimed))

	for _, c := range claimed {
		isGroup := isGroupChat(c.Event.ChatID)
		reason, err := l.sched.EvaluateSuppression(ctx, c.Event.ChatID, isGroup, limitsForScope(l.cfg, isGroup))
		if err != nil {
			logging.Log.Errorf("[scheduler] suppression check failed for event %d: %v", c.Event.EventID, err)
			_ = l.sched.ReleaseClaim(ctx, c.Event.EventID, c.ClaimID)
			continue
		}
		if reason != SuppressNone {
			logging.Log.Infof("[scheduler] event %d suppressed: %s", c.Event.EventID, reason)
			_ = l.sched.ReleaseClaim(ctx, c.Event.EventID, c.ClaimID)
			continue
		}

		if err := l.deliver(ctx, c.Event, isGroup); err != nil {
			logging.Log.Errorf("[scheduler] delivery failed for event %d: %v", c.Event.EventID, err)
			_ = l.sched.ReleaseClaim(ctx, c.Event.EventID, c.ClaimID)
			continue
		}

		if err := l.sched.MarkDelivered(ctx, c.Event.EventID, c.ClaimID); err != nil {
			logging.Log.Errorf("[scheduler] mark-delivered failed for event %d: %v", c.Event.EventID, err)
			continue
		}
		if err := l.sched.LogProactiveSend(ctx, c.Event.ChatID, c.Event.EventID); err != nil {
			logging.Log.Errorf("[scheduler] log-send failed for event %d: %v", c.Event.EventID, err)
		}
	}
}

// HealthCheck reports whether the loop is currently running, mirroring the
// ConsolidationLoop.healthCheck() surface of §6.
func (l *Loop) HealthCheck() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
