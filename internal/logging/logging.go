// Package logging provides the structured logger shared by every core
// component: storage, retrieval, the memory store, the scheduler, the
// extractor, consolidation, and the composition root.
package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Logger wraps slog with printf-style convenience methods.
type Logger struct {
	logger *slog.Logger
}

// Log is the package-level logger. Components that don't carry their own
// Logger field (most don't) call through this singleton, matching the
// teacher's single global Log instance.
var Log = &Logger{
	logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})),
}

// New builds a Logger writing at the given level, as structured JSON when
// json is true and as slog text otherwise, for
// components (tests, alternate entrypoints) that want their own handle
// instead of the package singleton.
func New(level slog.Level, json bool) *Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return &Logger{logger: slog.New(handler)}
}

func (l *Logger) Infof(format string, args ...any)  { l.logger.Info(sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...any)  { l.logger.Warn(sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...any) { l.logger.Error(sprintf(format, args...)) }
func (l *Logger) Debugf(format string, args ...any) { l.logger.Debug(sprintf(format, args...)) }

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
