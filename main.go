// Command db-health-probe runs a one-shot health check against the application database.
// It:
//   - Loads configuration from the environment (and an optional YAML file).
//   - Optionally waits for the database to accept connections (WAIT_FOR_DB=true).
//   - Runs the check battery on a single connection and logs each result.
//   - Pushes run metrics to a Pushgateway when PUSHGATEWAY_URL is set.
//
// The exit status is 0 when every check passed and 1 otherwise.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/db-health-probe/config"
	"github.com/onnwee/db-health-probe/db"
	"github.com/onnwee/db-health-probe/logging"
	"github.com/onnwee/db-health-probe/probe"
	"github.com/onnwee/db-health-probe/readiness"
	"github.com/onnwee/db-health-probe/telemetry"
)

const serviceName = "db-health-probe"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Stdout))
}

// run executes one probe run writing log lines to w and returns the exit status.
func run(w io.Writer) int {
	// Load .env file if present (local dev convenience only)
	_ = godotenv.Load(".env")

	logger := newLogger(w, os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("PROBE_CONFIG_FILE"))
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		return 1
	}
	// The config file may carry its own logging settings.
	logger = newLogger(w, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	telemetry.Init()
	shutdown, err := telemetry.InitTracing(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), serviceName, version)
	if err != nil {
		slog.Warn("tracing initialization failed, continuing without traces", slog.Any("err", err))
		shutdown = func() {}
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connector := db.NewConnector(cfg)

	if cfg.WaitForDB {
		w := readiness.New(connector.WithTimeout(cfg.ConnectTimeout), cfg.WaitRetries, cfg.WaitDelay, cfg.ConnectTimeout)
		w.Logger = logger
		if err := w.Wait(ctx); err != nil {
			pushMetrics(cfg)
			return 1
		}
	}

	p := probe.New(probe.SQLConnector(connector.Open), cfg.Address(), probe.WithLogger(logger))
	report := p.Run(ctx)
	pushMetrics(cfg)

	if !report.Healthy {
		logging.Critical(ctx, logger, "One or more health checks failed.")
	}
	return report.ExitCode()
}

func newLogger(w io.Writer, format, level string) *slog.Logger {
	lvl, ok := logging.ParseLevel(level)
	logger := logging.New(w, format, lvl)
	if !ok {
		logger.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	return logger
}

// pushMetrics is best effort; a failed push never changes the exit status.
func pushMetrics(cfg *config.Config) {
	if cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetry.Push(ctx, cfg.PushgatewayURL, map[string]string{"instance": cfg.Address()}); err != nil {
		slog.Warn("metrics push failed", slog.Any("err", err))
	}
}
