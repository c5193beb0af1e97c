package scheduler

import (
	"context"

	"github.com/arjunblj/memorycore/internal/config"
	"github.com/arjunblj/memorycore/internal/idtime"
)

const (
	dayMs  = 24 * 60 * 60 * 1000
	weekMs = 7 * dayMs
)

// SuppressionReason names which rule fired, or "" if nothing suppressed the
// send.
type SuppressionReason string

const (
	SuppressNone        SuppressionReason = ""
	SuppressScopeCap    SuppressionReason = "scope_cap"
	SuppressCooldown    SuppressionReason = "cooldown_after_user"
	SuppressIgnoredTail SuppressionReason = "pause_after_ignored"
)

// EvaluateSuppression applies the fixed evaluation order spec.md §9 settles
// on — (1) scope cap, (2) per-chat cooldown-after-user, (3)
// pause-after-ignored — shortcutting on the first rule that fires.
func (s *Scheduler) EvaluateSuppression(ctx context.Context, chatID idtime.ChatID, isGroup bool, limits config.ScopeLimits) (SuppressionReason, error) {
	daily, err := s.CountRecentSendsForScope(ctx, isGroup, dayMs)
	if err != nil {
		return SuppressNone, err
	}
	if limits.MaxPerDay > 0 && daily >= limits.MaxPerDay {
		return SuppressScopeCap, nil
	}
	weekly, err := s.CountRecentSendsForScope(ctx, isGroup, weekMs)
	if err != nil {
		return SuppressNone, err
	}
	if limits.MaxPerWeek > 0 && weekly >= limits.MaxPerWeek {
		return SuppressScopeCap, nil
	}

	if limits.CooldownAfterUserMs > 0 {
		recent, err := s.CountRecentSendsForChat(ctx, chatID, limits.CooldownAfterUserMs)
		if err != nil {
			return SuppressNone, err
		}
		if recent > 0 {
			return SuppressCooldown, nil
		}
	}

	if limits.PauseAfterIgnored > 0 {
		ignored, err := s.CountIgnoredRecent(ctx, chatID)
		if err != nil {
			return SuppressNone, err
		}
		if ignored >= limits.PauseAfterIgnored {
			return SuppressIgnoredTail, nil
		}
	}

	return SuppressNone, nil
}

// limitsForScope picks dm vs group limits the way the turn layer does: one
// config struct per scope (§6: "proactive.{..., dm.{...}, group.{...}}").
func limitsForScope(cfg config.ProactiveConfig, isGroup bool) config.ScopeLimits {
	if isGroup {
		return cfg.Group
	}
	return cfg.DM
}
