// Package config loads the core's single TOML configuration file, applies
// environment overrides, and validates numeric bounds and path containment
// at load. Any violation is a fatal *errs.ConfigError — generalizes the
// teacher's flat env-driven Config/Load() shape (config/config.go) from a
// handful of env vars onto a TOML document.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/arjunblj/memorycore/internal/errs"
)

// Config is the root configuration document.
type Config struct {
	DataDir      string `toml:"data_dir"`
	IdentityDir  string `toml:"identity_dir"`
	SkillsDir    string `toml:"skills_dir"`
	ProjectDir   string `toml:"project_dir"`
	Memory       MemoryConfig
	Proactive    ProactiveConfig
	Engine       EngineConfig
}

type MemoryConfig struct {
	Enabled             bool    `toml:"enabled"`
	ContextBudgetTokens int     `toml:"context_budget_tokens"`
	CapsuleEnabled      bool    `toml:"capsule_enabled"`
	CapsuleMaxTokens    int     `toml:"capsule_max_tokens"`
	DecayEnabled        bool    `toml:"decay_enabled"`
	DecayHalfLifeDays   float64 `toml:"decay_half_life_days"`

	RetrievalRRFK           int     `toml:"retrieval_rrf_k"`
	RetrievalFTSWeight      float64 `toml:"retrieval_fts_weight"`
	RetrievalVecWeight      float64 `toml:"retrieval_vec_weight"`
	RetrievalRecencyWeight  float64 `toml:"retrieval_recency_weight"`

	FeedbackEnabled          bool    `toml:"feedback_enabled"`
	FeedbackFinalizeAfterMs  int64   `toml:"feedback_finalize_after_ms"`
	FeedbackSuccessThreshold float64 `toml:"feedback_success_threshold"`
	FeedbackFailureThreshold float64 `toml:"feedback_failure_threshold"`

	ConsolidationEnabled               bool   `toml:"consolidation_enabled"`
	ConsolidationIntervalMs            int64  `toml:"consolidation_interval_ms"`
	ConsolidationModelRole             string `toml:"consolidation_model_role"`
	ConsolidationMaxEpisodesPerRun     int    `toml:"consolidation_max_episodes_per_run"`
	ConsolidationDirtyGroupLimit       int    `toml:"consolidation_dirty_group_limit"`
	ConsolidationDirtyPublicStyleLimit int    `toml:"consolidation_dirty_public_style_limit"`
	ConsolidationDirtyPersonLimit      int    `toml:"consolidation_dirty_person_limit"`
}

type ScopeLimits struct {
	MaxPerDay          int   `toml:"max_per_day"`
	MaxPerWeek         int   `toml:"max_per_week"`
	CooldownAfterUserMs int64 `toml:"cooldown_after_user_ms"`
	PauseAfterIgnored  int   `toml:"pause_after_ignored"`
}

type ProactiveConfig struct {
	Enabled             bool        `toml:"enabled"`
	HeartbeatIntervalMs int64       `toml:"heartbeat_interval_ms"`
	DM                  ScopeLimits `toml:"dm"`
	Group               ScopeLimits `toml:"group"`
}

type LimiterConfig struct {
	Capacity       int     `toml:"capacity"`
	RefillPerSecond float64 `toml:"refill_per_second"`
}

type PerChatLimiterConfig struct {
	LimiterConfig
	StaleAfterMs  int64 `toml:"stale_after_ms"`
	SweepInterval int64 `toml:"sweep_interval"`
}

type SessionConfig struct {
	FetchLimit int `toml:"fetch_limit"`
}

type ContextConfig struct {
	MaxTokensDefault         int `toml:"max_tokens_default"`
	IdentityPromptMaxTokens  int `toml:"identity_prompt_max_tokens"`
	PromptSkillsMaxTokens    int `toml:"prompt_skills_max_tokens"`
}

type GenerationConfig struct {
	ReactiveMaxSteps  int `toml:"reactive_max_steps"`
	ProactiveMaxSteps int `toml:"proactive_max_steps"`
	MaxRegens         int `toml:"max_regens"`
}

type EngineConfig struct {
	Limiter        LimiterConfig        `toml:"limiter"`
	PerChatLimiter PerChatLimiterConfig `toml:"per_chat_limiter"`
	Session        SessionConfig        `toml:"session"`
	Context        ContextConfig        `toml:"context"`
	Generation     GenerationConfig     `toml:"generation"`
}

// Default returns the baseline configuration, matching the teacher's
// DefaultSessionSchedulerConfig/DefaultSummarizationPrompts pattern of a
// pure function returning a populated struct literal.
func Default() Config {
	return Config{
		DataDir:     "./data",
		IdentityDir: "./identity",
		SkillsDir:   "./skills",
		ProjectDir:  ".",
		Memory: MemoryConfig{
			Enabled:                true,
			ContextBudgetTokens:    4000,
			CapsuleEnabled:         true,
			CapsuleMaxTokens:       400,
			DecayEnabled:           true,
			DecayHalfLifeDays:      30,
			RetrievalRRFK:          60,
			RetrievalFTSWeight:     0.6,
			RetrievalVecWeight:     0.4,
			RetrievalRecencyWeight: 0.2,

			FeedbackEnabled:          false,
			FeedbackFinalizeAfterMs: 5 * 60 * 1000,
			FeedbackSuccessThreshold: 0.7,
			FeedbackFailureThreshold: 0.3,

			ConsolidationEnabled:               true,
			ConsolidationIntervalMs:            60_000,
			ConsolidationModelRole:             "fast",
			ConsolidationMaxEpisodesPerRun:     50,
			ConsolidationDirtyGroupLimit:       10,
			ConsolidationDirtyPublicStyleLimit: 10,
			ConsolidationDirtyPersonLimit:      10,
		},
		Proactive: ProactiveConfig{
			Enabled:             true,
			HeartbeatIntervalMs: 60_000,
			DM: ScopeLimits{
				MaxPerDay: 3, MaxPerWeek: 10, CooldownAfterUserMs: 2 * 60 * 60 * 1000, PauseAfterIgnored: 3,
			},
			Group: ScopeLimits{
				MaxPerDay: 1, MaxPerWeek: 4, CooldownAfterUserMs: 6 * 60 * 60 * 1000, PauseAfterIgnored: 2,
			},
		},
		Engine: EngineConfig{
			Limiter: LimiterConfig{Capacity: 20, RefillPerSecond: 0.5},
			PerChatLimiter: PerChatLimiterConfig{
				LimiterConfig: LimiterConfig{Capacity: 5, RefillPerSecond: 0.1},
				StaleAfterMs:  30 * 60 * 1000,
				SweepInterval: 5 * 60 * 1000,
			},
			Session:    SessionConfig{FetchLimit: 200},
			Context:    ContextConfig{MaxTokensDefault: 4000, IdentityPromptMaxTokens: 800, PromptSkillsMaxTokens: 600},
			Generation: GenerationConfig{ReactiveMaxSteps: 2, ProactiveMaxSteps: 2, MaxRegens: 1},
		},
	}
}

// Load reads path (a TOML file), merges it onto Default(), applies
// MEMORYCORE_*-prefixed environment overrides (the teacher's
// AGENTIZE_*-prefix idiom, config/config.go, renamed to this project),
// validates bounds and path containment, and returns the result. A missing
// file is not an error — Default() plus env overrides stands alone, the
// same "env vars only" degraded mode the teacher supports.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, &errs.ConfigError{Field: "path", Reason: err.Error()}
			}
		} else if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, &errs.ConfigError{Field: "toml", Reason: err.Error()}
		}
	}

	applyEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := canonicalizePaths(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEMORYCORE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("MEMORYCORE_IDENTITY_DIR"); v != "" {
		cfg.IdentityDir = v
	}
	if v := os.Getenv("MEMORYCORE_SKILLS_DIR"); v != "" {
		cfg.SkillsDir = v
	}
	if v := os.Getenv("MEMORYCORE_MEMORY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Memory.Enabled = b
		}
	}
	if v := os.Getenv("MEMORYCORE_PROACTIVE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Proactive.Enabled = b
		}
	}
	if v := os.Getenv("MEMORYCORE_CONSOLIDATION_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Memory.ConsolidationIntervalMs = n
		}
	}
}

// validate enforces the numeric-bound requirements of §6: integers vs
// floats, ranges, and non-negativity. Any violation is a fatal ConfigError.
func validate(cfg *Config) error {
	if cfg.Memory.RetrievalRRFK <= 0 {
		return &errs.ConfigError{Field: "memory.retrieval_rrf_k", Reason: "must be positive"}
	}
	for _, w := range []struct {
		name string
		val  float64
	}{
		{"memory.retrieval_fts_weight", cfg.Memory.RetrievalFTSWeight},
		{"memory.retrieval_vec_weight", cfg.Memory.RetrievalVecWeight},
		{"memory.retrieval_recency_weight", cfg.Memory.RetrievalRecencyWeight},
	} {
		if w.val < 0 {
			return &errs.ConfigError{Field: w.name, Reason: "must be non-negative"}
		}
	}
	if cfg.Memory.DecayHalfLifeDays <= 0 {
		return &errs.ConfigError{Field: "memory.decay_half_life_days", Reason: "must be positive"}
	}
	if cfg.Memory.ConsolidationIntervalMs < 60_000 {
		return &errs.ConfigError{Field: "memory.consolidation_interval_ms", Reason: "floor is 60000ms"}
	}
	if cfg.Engine.Limiter.Capacity <= 0 {
		return &errs.ConfigError{Field: "engine.limiter.capacity", Reason: "must be positive"}
	}
	if cfg.Engine.Limiter.RefillPerSecond < 0 {
		return &errs.ConfigError{Field: "engine.limiter.refill_per_second", Reason: "must be non-negative"}
	}
	return nil
}

// canonicalizePaths resolves DataDir/IdentityDir/SkillsDir to absolute
// paths, follows symlinks, and verifies each is contained within
// ProjectDir after resolution — the spec's anti-traversal requirement.
func canonicalizePaths(cfg *Config) error {
	projectAbs, err := filepath.Abs(cfg.ProjectDir)
	if err != nil {
		return &errs.ConfigError{Field: "project_dir", Reason: err.Error()}
	}
	if resolved, err := filepath.EvalSymlinks(projectAbs); err == nil {
		projectAbs = resolved
	}

	for _, p := range []*string{&cfg.DataDir, &cfg.IdentityDir, &cfg.SkillsDir} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return &errs.ConfigError{Field: *p, Reason: err.Error()}
		}
		resolved := abs
		if r, err := filepath.EvalSymlinks(abs); err == nil {
			resolved = r
		}
		if !withinDir(resolved, projectAbs) {
			return &errs.ConfigError{Field: *p, Reason: fmt.Sprintf("path %q escapes project directory %q", resolved, projectAbs)}
		}
		*p = abs
	}
	return nil
}

func withinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}

// Duration is a convenience for config fields stored as milliseconds.
func Duration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
