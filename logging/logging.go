// Package logging provides the probe's console log format on top of log/slog.
//
// Every record is written immediately as a single line:
//
//	[2024-01-01 12:00:00] SUCCESS: Basic connection test passed.
//
// Two levels are added to slog's set: SUCCESS sits between INFO and WARN, CRITICAL above ERROR.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	LevelSuccess  = slog.Level(2)
	LevelCritical = slog.Level(12)
)

// TimeFormat is the timestamp layout of console lines.
const TimeFormat = "2006-01-02 15:04:05"

// LevelName returns the upper-case name printed for l.
func LevelName(l slog.Level) string {
	switch {
	case l >= LevelCritical:
		return "CRITICAL"
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= LevelSuccess:
		return "SUCCESS"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// ParseLevel maps LOG_LEVEL values to a slog level. Unknown values report ok=false and info.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "success":
		return LevelSuccess, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ConsoleHandler renders records as "[timestamp] LEVEL: message". Attributes are not printed;
// use the JSON format when they are needed.
type ConsoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
}

// NewConsoleHandler writes to w, dropping records below level.
func NewConsoleHandler(w io.Writer, level slog.Leveler) *ConsoleHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &ConsoleHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *ConsoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("[%s] %s: %s\n", ts.Format(TimeFormat), LevelName(r.Level), r.Message)
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line)
	return err
}

func (h *ConsoleHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *ConsoleHandler) WithGroup(string) slog.Handler { return h }

// New builds a logger for format ("text" or "json"). level can only lower the threshold to
// DEBUG; INFO and above are always written.
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	level = min(level, slog.LevelInfo)
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if len(groups) == 0 && a.Key == slog.LevelKey {
					if l, ok := a.Value.Any().(slog.Level); ok {
						a.Value = slog.StringValue(LevelName(l))
					}
				}
				return a
			},
		}))
	}
	return slog.New(NewConsoleHandler(w, level))
}

// Critical logs msg at LevelCritical.
func Critical(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	logger.Log(ctx, LevelCritical, msg, args...)
}
