package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"
)

var lineRE = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] [A-Z]+: .*$`)

func TestLevelName(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "DEBUG"},
		{slog.LevelInfo, "INFO"},
		{LevelSuccess, "SUCCESS"},
		{slog.LevelWarn, "WARNING"},
		{slog.LevelError, "ERROR"},
		{LevelCritical, "CRITICAL"},
	}
	for _, tt := range tests {
		if got := LevelName(tt.level); got != tt.want {
			t.Errorf("LevelName(%v) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{"", slog.LevelInfo, true},
		{"DEBUG", slog.LevelDebug, true},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "text", slog.LevelInfo)
	ctx := context.Background()

	logger.Info("Database connection successful.", slog.String("ignored", "attr"))
	logger.Log(ctx, LevelSuccess, "Basic connection test passed.")
	logger.Warn("No entries found in the logs table.")
	logger.Error("Found 3 users with NULL email addresses.")
	Critical(ctx, logger, "One or more health checks failed.")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	wantSuffixes := []string{
		"] INFO: Database connection successful.",
		"] SUCCESS: Basic connection test passed.",
		"] WARNING: No entries found in the logs table.",
		"] ERROR: Found 3 users with NULL email addresses.",
		"] CRITICAL: One or more health checks failed.",
	}
	if len(lines) != len(wantSuffixes) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(wantSuffixes), buf.String())
	}
	for i, line := range lines {
		if !lineRE.MatchString(line) {
			t.Errorf("line %d %q does not match console format", i, line)
		}
		if !strings.HasSuffix(line, wantSuffixes[i]) {
			t.Errorf("line %d = %q, want suffix %q", i, line, wantSuffixes[i])
		}
	}
}

func TestConsoleUsesRecordTime(t *testing.T) {
	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, slog.LevelInfo)
	ts := time.Date(2024, 1, 1, 8, 30, 0, 0, time.Local)
	r := slog.NewRecord(ts, slog.LevelInfo, "hello", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if got, want := buf.String(), "[2024-01-01 08:30:00] INFO: hello\n"; got != want {
		t.Errorf("Handle() wrote %q, want %q", got, want)
	}
}

func TestConsoleDropsBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "text", slog.LevelInfo)
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record written at info level: %q", buf.String())
	}
}

func TestLevelNeverHidesInfoOrAbove(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(&buf, format, slog.LevelError)
			ctx := context.Background()
			logger.Info("Database connection successful.")
			logger.Log(ctx, LevelSuccess, "Basic connection test passed.")
			logger.Warn("No entries found in the logs table.")
			logger.Debug("hidden")

			out := buf.String()
			for _, msg := range []string{"Database connection successful.", "Basic connection test passed.", "No entries found in the logs table."} {
				if !strings.Contains(out, msg) {
					t.Errorf("%q not written at LOG_LEVEL=error:\n%s", msg, out)
				}
			}
			if strings.Contains(out, "hidden") {
				t.Errorf("debug record written: %q", out)
			}
		})
	}
}

func TestDebugLevelWritesDebug(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "text", slog.LevelDebug).Debug("visible")
	if !strings.HasSuffix(buf.String(), "] DEBUG: visible\n") {
		t.Errorf("debug record missing: %q", buf.String())
	}
}

func TestJSONFormatLevelNames(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "json", slog.LevelInfo)
	logger.Log(context.Background(), LevelSuccess, "ok", slog.String("check", "connectivity"))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if rec["level"] != "SUCCESS" {
		t.Errorf("level = %v, want SUCCESS", rec["level"])
	}
	if rec["check"] != "connectivity" {
		t.Errorf("check attr = %v, want connectivity", rec["check"])
	}
}
