// Package readiness blocks until the database accepts connections or the attempt budget runs out.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/onnwee/db-health-probe/telemetry"
)

// ErrNotReady is returned when every attempt failed.
var ErrNotReady = errors.New("database did not become ready")

// Pinger opens and immediately closes a connection. *db.Connector satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Waiter retries Pinger until it succeeds.
type Waiter struct {
	Pinger   Pinger
	Attempts int
	Delay    time.Duration
	// Timeout bounds each attempt; zero leaves it to the Pinger.
	Timeout time.Duration
	Logger  *slog.Logger

	// after is time.After; tests replace it.
	after func(time.Duration) <-chan time.Time
}

// New returns a Waiter with the given budget, logging through slog.Default().
func New(p Pinger, attempts int, delay, timeout time.Duration) *Waiter {
	return &Waiter{Pinger: p, Attempts: attempts, Delay: delay, Timeout: timeout, Logger: slog.Default()}
}

// Wait pings up to Attempts times, sleeping Delay after each failure except the last.
// It returns nil on the first success, ErrNotReady when the budget is spent, or ctx.Err() when
// cancelled while waiting.
func (w *Waiter) Wait(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	after := w.after
	if after == nil {
		after = time.After
	}
	attempts := w.Attempts
	if attempts < 1 {
		attempts = 1
	}

	logger.Info("Waiting for database to be ready...")
	var lastErr error
	for i := 1; i <= attempts; i++ {
		telemetry.SetGauge(telemetry.ReadinessAttempts, float64(i))
		if lastErr = w.ping(ctx); lastErr == nil {
			logger.Info("Database is ready!", slog.Int("attempt", i))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn(fmt.Sprintf("Database not ready yet, retrying in %s seconds... (%d/%d)",
			strconv.FormatFloat(w.Delay.Seconds(), 'f', -1, 64), i, attempts),
			slog.Any("err", lastErr))
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-after(w.Delay):
		}
	}
	logger.Error("Database did not become ready in time. Exiting.", slog.Any("err", lastErr))
	return fmt.Errorf("%w after %d attempts: %w", ErrNotReady, attempts, lastErr)
}

func (w *Waiter) ping(ctx context.Context) error {
	if w.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.Timeout)
		defer cancel()
	}
	return w.Pinger.Ping(ctx)
}
