// Package testutil provides a disposable Postgres database carrying the users/logs schema.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16-alpine"

// SetupTestDB returns a handle to a database with the probe schema applied, plus its DSN.
// TEST_PG_DSN is used when set; otherwise a throwaway container is started. The test is
// skipped when neither is available. Tables are emptied before returning.
func SetupTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		dsn = startContainer(t)
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := ApplySchema(database); err != nil {
		database.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	Truncate(t, database)
	return database, dsn
}

func startContainer(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("TEST_PG_DSN not set and -short given; skipping container start")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctr, err := tcpostgres.Run(ctx, postgresImage,
		tcpostgres.WithDatabase("health_db"),
		tcpostgres.WithUsername("health_user"),
		tcpostgres.WithPassword("health_password"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to read container dsn: %v", err)
	}
	return dsn
}

// Truncate removes every row from users and logs.
func Truncate(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec(`TRUNCATE logs, users RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// SeedUsers inserts withEmail users that have an address and nullEmail users that do not.
func SeedUsers(t *testing.T, db *sql.DB, withEmail, nullEmail int) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO users(username, email)
		SELECT 'user-' || g, 'user-' || g || '@example.com' FROM generate_series(1, $1) AS g`, withEmail)
	if err != nil {
		t.Fatalf("failed to seed users: %v", err)
	}
	_, err = db.Exec(`INSERT INTO users(username, email)
		SELECT 'noemail-' || g, NULL FROM generate_series(1, $1) AS g`, nullEmail)
	if err != nil {
		t.Fatalf("failed to seed users without email: %v", err)
	}
}

// SeedLogs inserts one log row per timestamp.
func SeedLogs(t *testing.T, db *sql.DB, createdAt ...time.Time) {
	t.Helper()
	for _, ts := range createdAt {
		if _, err := db.Exec(`INSERT INTO logs(message, created_at) VALUES ($1, $2)`, "seed", ts); err != nil {
			t.Fatalf("failed to seed log row: %v", err)
		}
	}
}
