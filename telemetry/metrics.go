// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
//
// The probe is a short-lived process, so metrics live in a dedicated Registry that is pushed to
// a Pushgateway at the end of a run instead of being scraped.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the Pushgateway job label.
const JobName = "db_health_probe"

var (
	once sync.Once

	// Registry holds every probe metric; nothing is registered with the default registerer.
	Registry *prometheus.Registry

	// Histograms (seconds)
	CheckDuration *prometheus.HistogramVec

	// Gauges
	CheckStatus           *prometheus.GaugeVec // 1 for the status the check ended in
	RunSuccess            prometheus.Gauge     // 1=healthy,0=unhealthy
	LastRunTimestamp      prometheus.Gauge
	UsersRows             prometheus.Gauge
	NullEmailUsers        prometheus.Gauge
	LogRows               prometheus.Gauge
	LastLogEntryTimestamp prometheus.Gauge
	ReadinessAttempts     prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		Registry = prometheus.NewRegistry()
		f := promauto.With(Registry)
		CheckDuration = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbprobe_check_duration_seconds",
			Help:    "Wall-clock duration of each health check query",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"check"})
		CheckStatus = f.NewGaugeVec(prometheus.GaugeOpts{Name: "dbprobe_check_status", Help: "Final status of each check (1 for the status reached)"}, []string{"check", "status"})
		RunSuccess = f.NewGauge(prometheus.GaugeOpts{Name: "dbprobe_run_success", Help: "Overall outcome of the last run (1=pass, 0=fail)"})
		LastRunTimestamp = f.NewGauge(prometheus.GaugeOpts{Name: "dbprobe_last_run_timestamp_seconds", Help: "Unix time the last run finished"})
		UsersRows = f.NewGauge(prometheus.GaugeOpts{Name: "dbprobe_users_rows", Help: "Row count of the users table"})
		NullEmailUsers = f.NewGauge(prometheus.GaugeOpts{Name: "dbprobe_users_null_email_rows", Help: "Users rows without an email address"})
		LogRows = f.NewGauge(prometheus.GaugeOpts{Name: "dbprobe_logs_rows", Help: "Row count of the logs table"})
		LastLogEntryTimestamp = f.NewGauge(prometheus.GaugeOpts{Name: "dbprobe_logs_last_entry_timestamp_seconds", Help: "Unix time of the newest logs row (0 when empty)"})
		ReadinessAttempts = f.NewGauge(prometheus.GaugeOpts{Name: "dbprobe_readiness_attempts", Help: "Connection attempts used by the readiness wait"})
	})
}

// CheckObserver returns the duration observer for check, or nil before Init.
func CheckObserver(check string) prometheus.Observer {
	if CheckDuration == nil {
		return nil
	}
	return CheckDuration.WithLabelValues(check)
}

// SetCheckStatus marks status as the final status of check, clearing any earlier one.
func SetCheckStatus(check, status string) {
	if CheckStatus == nil {
		return
	}
	CheckStatus.DeletePartialMatch(prometheus.Labels{"check": check})
	CheckStatus.WithLabelValues(check, status).Set(1)
}

// RecordRun sets the run outcome gauges.
func RecordRun(healthy bool, finished time.Time) {
	if RunSuccess == nil {
		return
	}
	if healthy {
		RunSuccess.Set(1)
	} else {
		RunSuccess.Set(0)
	}
	LastRunTimestamp.Set(float64(finished.Unix()))
}

// SetGauge sets g to v if metrics were initialised.
func SetGauge(g prometheus.Gauge, v float64) {
	if g != nil {
		g.Set(v)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Push replaces the metrics of this job's grouping on the Pushgateway at url.
func Push(ctx context.Context, url string, grouping map[string]string) error {
	if Registry == nil {
		return fmt.Errorf("telemetry not initialised")
	}
	p := push.New(url, JobName).Gatherer(Registry)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the run id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns base with a run_id attribute if ctx carries one.
func LoggerWithCorr(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := GetCorrelation(ctx); id != "" {
		return base.With(slog.String("run_id", id))
	}
	return base
}
