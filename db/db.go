// Package db opens the database handle the probe runs against.
//
// Three database/sql drivers are linked in and selected by config.Config.DBDriver:
// pgx (default), lib/pq registered as "postgres", and go-sql-driver registered as "mysql".
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // mysql driver registered as 'mysql'
	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "github.com/lib/pq"              // lib/pq postgres driver registered as 'postgres'

	"github.com/onnwee/db-health-probe/config"
)

// Connector opens single-connection handles. Statements run outside any transaction, so
// every statement is committed on its own.
type Connector struct {
	cfg *config.Config

	// ConnectTimeout bounds dialing and the initial ping. Zero keeps driver defaults.
	ConnectTimeout time.Duration

	open func(driverName, dsn string) (*sql.DB, error)
}

// NewConnector returns a Connector for cfg using the driver's default timeouts.
func NewConnector(cfg *config.Config) *Connector {
	return &Connector{cfg: cfg, open: sql.Open}
}

// WithTimeout returns a copy of c whose connection attempts give up after d.
func (c *Connector) WithTimeout(d time.Duration) *Connector {
	cp := *c
	cp.ConnectTimeout = d
	return &cp
}

// Open establishes the connection and verifies it with a ping. The returned handle never
// holds more than one connection; the caller owns it and must Close it.
func (c *Connector) Open(ctx context.Context) (*sql.DB, error) {
	database, err := c.open(c.cfg.DBDriver, c.cfg.DSN(c.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("open %s driver: %w", c.cfg.DBDriver, err)
	}
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	if c.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
	}
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("connect to %s: %w", c.cfg.Address(), err)
	}
	return database, nil
}

// Ping opens a connection and closes it straight away.
func (c *Connector) Ping(ctx context.Context) error {
	database, err := c.Open(ctx)
	if err != nil {
		return err
	}
	return database.Close()
}
