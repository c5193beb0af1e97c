// Command memorycore is the composition root: it loads configuration,
// opens both SQLite databases, wires the Memory Store, Event Scheduler,
// Memory Extractor, Consolidation Loop, Mirror, and Per-Chat Serializer
// registries, starts the background loops, and blocks until signaled.
//
// Grounded on GhiaC-Agentize's cmd/agentize/main.go (flag parse → config.Load
// → construct → start → block) and its top-level agentize.go composition
// (construct store, then scheduler, then Start(ctx)) — generalized from one
// knowledge-tree instance to this core's storage/scheduling/extraction stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/arjunblj/memorycore/internal/chatlock"
	"github.com/arjunblj/memorycore/internal/config"
	"github.com/arjunblj/memorycore/internal/consolidation"
	"github.com/arjunblj/memorycore/internal/extractor"
	"github.com/arjunblj/memorycore/internal/llmiface"
	"github.com/arjunblj/memorycore/internal/logging"
	"github.com/arjunblj/memorycore/internal/memory"
	"github.com/arjunblj/memorycore/internal/mirror"
	"github.com/arjunblj/memorycore/internal/scheduler"
	"github.com/arjunblj/memorycore/internal/store"
)

// core bundles every collaborator interface §6 exposes, constructed once
// per process.
type core struct {
	Store          *memory.Store
	Scheduler      *scheduler.Scheduler
	SchedulerLoop  *scheduler.Loop
	Extractor      *extractor.Extractor
	Consolidator   *consolidation.Consolidator
	ConsolidationLoop *consolidation.Loop
	PerKeyLock     *chatlock.PerKeyLock
	DedupeCache    *chatlock.ShortLivedDedupeCache
	ReconnectGuard *chatlock.ReconnectGuard
	TypingTracker  *chatlock.TypingTracker
}

func main() {
	configPath := flag.String("config", "", "Path to TOML configuration file (optional; env overrides + defaults apply regardless)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Log.Errorf("config load failed: %v", err)
		os.Exit(1)
	}

	logging.Log.Infof("=== memorycore ===")
	logging.Log.Infof("data dir: %s", cfg.DataDir)
	logging.Log.Infof("memory enabled: %v | proactive enabled: %v", cfg.Memory.Enabled, cfg.Proactive.Enabled)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := build(ctx, cfg)
	if err != nil {
		logging.Log.Errorf("failed to build core: %v", err)
		os.Exit(1)
	}

	// Both loops launch their own background goroutine and return
	// immediately; errgroup.Group still gives us one place that starts
	// them together and fails fast if either start ever grows a reason
	// to report an error (a supervised restart, a pre-flight check).
	var startGroup errgroup.Group
	startGroup.Go(func() error {
		c.SchedulerLoop.Start(ctx)
		return nil
	})
	startGroup.Go(func() error {
		c.ConsolidationLoop.Start(ctx)
		return nil
	})
	if err := startGroup.Wait(); err != nil {
		logging.Log.Errorf("failed to start background loops: %v", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logging.Log.Infof("shutting down")
	c.SchedulerLoop.Stop()
	c.ConsolidationLoop.Stop()
	cancel()
}

// build constructs every collaborator exposed by §6, in the order the
// teacher's own composition does: storage, then the components that depend
// on it, then the background loops that depend on those.
func build(ctx context.Context, cfg *config.Config) (*core, error) {
	memDB, _, err := store.OpenMemory(ctx, filepath.Join(cfg.DataDir, "memory.db"), 0)
	if err != nil {
		return nil, fmt.Errorf("open memory.db: %w", err)
	}
	proactiveDB, err := store.OpenProactive(ctx, filepath.Join(cfg.DataDir, "proactive.db"))
	if err != nil {
		return nil, fmt.Errorf("open proactive.db: %w", err)
	}

	st := memory.New(memDB)
	sch := scheduler.New(proactiveDB)

	backend := buildLLMBackend()

	claimID := fmt.Sprintf("memorycore-%d", os.Getpid())
	schedLoop := scheduler.NewLoop(sch, cfg.Proactive, claimID, stubDeliver)

	ex := extractor.New(st, sch, backend)

	mirrorSink := buildMirror(cfg)
	var consOpts []consolidation.Option
	if mirrorSink != nil {
		consOpts = append(consOpts, consolidation.WithMirror(mirrorSink))
	}
	co := consolidation.New(st, ex, backend, cfg.Memory, consOpts...)
	consLoop := consolidation.NewLoop(co, cfg.Memory.ConsolidationEnabled, cfg.Memory.ConsolidationIntervalMs)

	return &core{
		Store:             st,
		Scheduler:         sch,
		SchedulerLoop:     schedLoop,
		Extractor:         ex,
		Consolidator:      co,
		ConsolidationLoop: consLoop,
		PerKeyLock:        chatlock.NewPerKeyLock(),
		DedupeCache:       chatlock.NewShortLivedDedupeCache(),
		ReconnectGuard:    chatlock.NewReconnectGuard(),
		TypingTracker:     chatlock.NewTypingTracker(4_000, func(key string) {}),
	}, nil
}

// buildLLMBackend wires the default dev LLMBackend straight to go-openai
// (§6: "the default dev wiring in cmd/memorycore" uses the SDK directly,
// matching the teacher's own choice). Model names and the API key come from
// the standard OpenAI env vars; an empty key still constructs a client so
// the process can start, deferring the failure to the first Complete call.
func buildLLMBackend() llmiface.LLMBackend {
	client := openai.NewClient(os.Getenv("OPENAI_API_KEY"))
	defaultModel := os.Getenv("MEMORYCORE_DEFAULT_MODEL")
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	fastModel := os.Getenv("MEMORYCORE_FAST_MODEL")
	if fastModel == "" {
		fastModel = "gpt-4o-mini"
	}
	return &llmiface.OpenAIBackend{Client: client, DefaultModel: defaultModel, FastModel: fastModel}
}

// buildMirror constructs the best-effort lesson mirror at <data_dir>/md.
// A failure here is logged and the process starts without step 6 rather
// than failing to boot over a non-essential operator-inspection feature.
func buildMirror(cfg *config.Config) mirror.Sink {
	path := filepath.Join(cfg.DataDir, "md", "lessons.yaml")
	sink, err := mirror.NewFileSink(path)
	if err != nil {
		logging.Log.Warnf("mirror disabled: %v", err)
		return nil
	}
	return sink
}

// stubDeliver is the default DeliverFunc: the outer CLI shell that wires a
// real channel adapter is out of this core's scope (spec.md §6: "Exit codes
// and CLI surface are defined by the outer CLI shell and are not part of
// this core specification"); this logs what would have been sent.
func stubDeliver(ctx context.Context, ev store.ProactiveEvent, isGroup bool) error {
	logging.Log.Infof("[deliver:stub] chat=%s event=%d kind=%s (no channel adapter wired)", ev.ChatID, ev.EventID, ev.Kind)
	return nil
}
