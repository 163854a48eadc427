package probe

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/onnwee/db-health-probe/logging"
)

// Status is the outcome recorded for a single check.
type Status string

const (
	StatusInfo    Status = "info"
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Level maps s to the log level its line is written at.
func (s Status) Level() slog.Level {
	switch s {
	case StatusSuccess:
		return logging.LevelSuccess
	case StatusWarning:
		return slog.LevelWarn
	case StatusError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CheckResult is what one check observed.
type CheckResult struct {
	Name     string
	Status   Status
	Message  string
	Duration time.Duration

	// Count is the row count the check read, where it reads one.
	Count int64
	// LastEntry is the newest logs.created_at (freshness check only).
	LastEntry sql.NullTime
}

// Report is the outcome of one probe run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Checks     []CheckResult
	Healthy    bool

	// Err is the error that ended the run early; nil when every check passed.
	Err error
}

// ExitCode is the process status for the report: 0 healthy, 1 otherwise.
func (r *Report) ExitCode() int {
	if r.Healthy {
		return 0
	}
	return 1
}

// Check returns the result recorded under name.
func (r *Report) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}
