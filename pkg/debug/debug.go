// Package debug sets up process logging and gates verbose output by
// category.
//
// Categories pick the subsystems to debug (WEICHE_DEBUG or
// observability.logging.debug). The level picks how much is logged
// (WEICHE_LOG_LEVEL or observability.logging.level). Debug output needs
// both: the category switched on and a level of DEBUG or TRACE.
//
//	debug.Log("agent", "step finished", "step", n)
//	debug.Trace("providers", "request body", "body", debug.Truncate(body, 2048))
//
// Known categories: agent, providers, engine, tools, mcp, auth, http,
// config. "all" enables every category.
package debug

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// LevelTrace sits below slog.LevelDebug. Full payloads are logged at
// this level.
const LevelTrace = slog.LevelDebug - 4

// Categories is a set of enabled debug categories.
type Categories map[string]bool

// ParseCategories reads a comma-separated category list. Names are case
// insensitive.
func ParseCategories(s string) Categories {
	c := Categories{}
	for cat := range strings.SplitSeq(s, ",") {
		if cat = strings.ToLower(strings.TrimSpace(cat)); cat != "" {
			c[cat] = true
		}
	}
	return c
}

// Has reports whether cat is enabled, directly or through "all".
func (c Categories) Has(cat string) bool {
	return c["all"] || c[cat]
}

var active atomic.Pointer[Categories]

func init() {
	SetCategories(ParseCategories(os.Getenv("WEICHE_DEBUG")))
}

// SetCategories replaces the enabled categories.
func SetCategories(c Categories) {
	active.Store(&c)
}

// Enabled reports whether debug output is on for category.
func Enabled(category string) bool {
	c := active.Load()
	return c != nil && c.Has(category)
}

// Options select what gets logged and how.
type Options struct {
	// Categories is a comma-separated category list.
	Categories string

	// Level is ERROR, WARN, INFO, DEBUG or TRACE. Default: INFO.
	Level string

	// Format is "text" or "json". Default: text.
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// Setup builds a logger from opts, installs it as the slog default and
// returns it. WEICHE_DEBUG and WEICHE_LOG_LEVEL take precedence over the
// matching options.
func Setup(opts Options) *slog.Logger {
	cats := opts.Categories
	if v := os.Getenv("WEICHE_DEBUG"); v != "" {
		cats = v
	}
	SetCategories(ParseCategories(cats))

	level := opts.Level
	if v := os.Getenv("WEICHE_LOG_LEVEL"); v != "" {
		level = v
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logger := slog.New(NewHandler(out, opts.Format, ParseLevel(level)))
	slog.SetDefault(logger)
	return logger
}

// NewHandler returns a JSON handler for format "json" and a text handler
// otherwise. Records at LevelTrace are labelled TRACE.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	ho := &slog.HandlerOptions{Level: level, ReplaceAttr: traceLabel}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

func traceLabel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
			return slog.String(slog.LevelKey, "TRACE")
		}
	}
	return a
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean INFO.
func ParseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "TRACE":
		return LevelTrace
	case "WARNING":
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Log writes a DEBUG record tagged with category, if the category is on.
func Log(category, msg string, args ...any) {
	emit(slog.LevelDebug, category, msg, args)
}

// Trace writes a TRACE record tagged with category, if the category is on.
func Trace(category, msg string, args ...any) {
	emit(LevelTrace, category, msg, args)
}

func emit(level slog.Level, category, msg string, args []any) {
	if !Enabled(category) {
		return
	}
	ctx := context.Background()
	logger := slog.Default()
	if !logger.Enabled(ctx, level) {
		return
	}
	logger.Log(ctx, level, msg, append([]any{"debug", category}, args...)...)
}

// Truncate shortens s to at most maxLen bytes without splitting a UTF-8
// sequence, appending "..." when something was cut.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
