package probe_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/db-health-probe/config"
	"github.com/onnwee/db-health-probe/db"
	"github.com/onnwee/db-health-probe/logging"
	"github.com/onnwee/db-health-probe/probe"
	"github.com/onnwee/db-health-probe/testutil"
)

// postgresConfig turns a postgres:// DSN into the config the probe binary would load.
func postgresConfig(t *testing.T, dsn string) *config.Config {
	t.Helper()
	u, err := url.Parse(dsn)
	if err != nil || !strings.HasPrefix(u.Scheme, "postgres") {
		t.Skipf("TEST_PG_DSN is not a postgres:// URL: %q", dsn)
	}
	password, _ := u.User.Password()
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	return &config.Config{
		DBName:         strings.TrimPrefix(u.Path, "/"),
		DBUser:         u.User.Username(),
		DBPassword:     password,
		DBHost:         u.Hostname(),
		DBPort:         port,
		DBDriver:       config.DriverPgx,
		DBSSLMode:      "disable",
		WaitRetries:    config.DefaultWaitRetries,
		WaitDelay:      config.DefaultWaitDelay,
		ConnectTimeout: config.DefaultConnectTimeout,
	}
}

func newPostgresProbe(t *testing.T, dsn string, buf *bytes.Buffer) *probe.Probe {
	t.Helper()
	cfg := postgresConfig(t, dsn)
	require.NoError(t, cfg.Validate())
	connector := db.NewConnector(cfg)
	return probe.New(probe.SQLConnector(connector.Open), cfg.Address(), probe.WithLogger(logging.New(buf, "text", slog.LevelInfo)))
}

func TestProbeAgainstPostgres(t *testing.T) {
	database, dsn := testutil.SetupTestDB(t)
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		testutil.Truncate(t, database)
		testutil.SeedUsers(t, database, 100, 0)
		last := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		testutil.SeedLogs(t, database, last.Add(-time.Hour), last)

		var buf bytes.Buffer
		report := newPostgresProbe(t, dsn, &buf).Run(ctx)

		require.True(t, report.Healthy, buf.String())
		assert.Contains(t, buf.String(), "Users table row count: 100")
		assert.Contains(t, buf.String(), "Logs table: 2 rows, last entry timestamp 2024-01-01T00:00:00Z")
		assert.Contains(t, buf.String(), "All health checks completed successfully.")
	})

	t.Run("null emails", func(t *testing.T) {
		testutil.Truncate(t, database)
		testutil.SeedUsers(t, database, 97, 3)
		testutil.SeedLogs(t, database, time.Now())

		var buf bytes.Buffer
		report := newPostgresProbe(t, dsn, &buf).Run(ctx)

		assert.False(t, report.Healthy)
		assert.Equal(t, 1, report.ExitCode())
		assert.Contains(t, buf.String(), "ERROR: Found 3 users with NULL email addresses.")
	})

	t.Run("empty logs", func(t *testing.T) {
		testutil.Truncate(t, database)
		testutil.SeedUsers(t, database, 1, 0)

		var buf bytes.Buffer
		report := newPostgresProbe(t, dsn, &buf).Run(ctx)

		assert.True(t, report.Healthy, buf.String())
		assert.Contains(t, buf.String(), "WARNING: No entries found in the logs table.")
	})

	t.Run("missing table", func(t *testing.T) {
		require.NoError(t, testutil.DropSchema(database))
		t.Cleanup(func() { require.NoError(t, testutil.ApplySchema(database)) })

		var buf bytes.Buffer
		report := newPostgresProbe(t, dsn, &buf).Run(ctx)

		assert.False(t, report.Healthy)
		assert.Equal(t, probe.KindConnectivity, probe.Classify(report.Err))
		assert.Contains(t, buf.String(), "ERROR: Database error:")
		assert.Contains(t, buf.String(), "Database connection closed.")
	})
}
