// Package probe runs the database health-check battery.
//
// A run is strictly linear: connect, run each check in order on the one connection, close.
// Connectivity and unexpected errors end the run; a failed integrity check ends it as well.
// An empty logs table only produces a warning. The connection is closed exactly once on
// every path.
package probe

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/db-health-probe/telemetry"
)

// Conn is the connection a run owns. *sql.DB satisfies it.
type Conn interface {
	Querier
	Close() error
}

// Connector opens the connection for a run.
type Connector interface {
	Open(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Conn, error)

func (f ConnectorFunc) Open(ctx context.Context) (Conn, error) { return f(ctx) }

// SQLConnector adapts a *sql.DB opener such as db.Connector.Open.
func SQLConnector(open func(ctx context.Context) (*sql.DB, error)) Connector {
	return ConnectorFunc(func(ctx context.Context) (Conn, error) {
		database, err := open(ctx)
		if err != nil {
			return nil, err
		}
		return database, nil
	})
}

// Probe runs the check battery against the database behind its Connector.
type Probe struct {
	connector Connector
	address   string
	checks    []Check
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Probe)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option { return func(p *Probe) { p.logger = l } }

// WithChecks replaces the default battery.
func WithChecks(checks ...Check) Option { return func(p *Probe) { p.checks = checks } }

// New returns a Probe that connects through c. address is only used in log lines.
func New(c Connector, address string, opts ...Option) *Probe {
	p := &Probe{
		connector: c,
		address:   address,
		checks:    DefaultChecks(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Session is a live connection with the logger of the run it belongs to.
type Session struct {
	conn   Conn
	logger *slog.Logger
	closed bool
}

// Connect opens the run's connection. The error is a *CheckError whose kind is
// KindConnectivity for driver or network failures.
func (p *Probe) Connect(ctx context.Context, logger *slog.Logger) (*Session, error) {
	logger.Info(fmt.Sprintf("Attempting to connect to database at %s...", p.address))
	conn, err := p.connector.Open(ctx)
	if err != nil {
		return nil, asCheckError("connect", err)
	}
	logger.Info("Database connection successful.")
	return &Session{conn: conn, logger: logger}, nil
}

// Close releases the connection. Calls after the first are no-ops.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.conn.Close(); err != nil {
		s.logger.Error(fmt.Sprintf("Failed to close database connection: %v", err))
		return err
	}
	s.logger.Info("Database connection closed.")
	return nil
}

// Run performs one complete probe run and never panics on database errors; every failure
// is logged and reflected in the returned Report.
func (p *Probe) Run(ctx context.Context) *Report {
	report := &Report{RunID: uuid.NewString(), StartedAt: p.now()}
	ctx = telemetry.WithCorrelation(ctx, report.RunID)
	logger := telemetry.LoggerWithCorr(ctx, p.logger)

	ctx, span := telemetry.StartSpan(ctx, "probe.run", attribute.String("db.address", p.address))
	defer func() {
		report.FinishedAt = p.now()
		telemetry.RecordRun(report.Healthy, report.FinishedAt)
		telemetry.EndSpan(span, report.Err)
	}()

	sess, err := p.Connect(ctx, logger)
	if err != nil {
		report.Err = err
		logFailure(logger, err)
		return report
	}
	defer func() { _ = sess.Close() }()

	p.RunChecks(ctx, sess, report)
	return report
}

// RunChecks executes the battery on sess, appending results to report and setting
// report.Healthy when nothing failed.
func (p *Probe) RunChecks(ctx context.Context, sess *Session, report *Report) {
	logger := sess.logger
	for _, c := range p.checks {
		res, err := p.runCheck(ctx, sess, c)
		if err == nil {
			report.Checks = append(report.Checks, res)
			continue
		}

		ce := asCheckError(c.Name, err)
		switch ce.Kind {
		case KindDataFreshness:
			res.Status = StatusWarning
			logger.Warn("No entries found in the logs table.", slog.String("check", c.Name))
			report.Checks = append(report.Checks, res)
			continue
		case KindDataIntegrity:
			// Already logged at ERROR by runCheck. Nothing after this check runs.
		default:
			res.Status = StatusError
			res.Message = ce.Err.Error()
			logFailure(logger, ce)
		}
		report.Checks = append(report.Checks, res)
		report.Err = ce
		return
	}
	report.Healthy = true
	logger.Info("All health checks completed successfully.")
}

func (p *Probe) runCheck(ctx context.Context, sess *Session, c Check) (res CheckResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "probe.check",
		attribute.String("check", c.Name),
		attribute.String("db.statement", c.Query),
	)
	d := telemetry.TimeFunc(telemetry.CheckObserver(c.Name), func() {
		res, err = c.Run(ctx, sess.conn)
	})
	res.Name = c.Name
	res.Duration = d

	if res.Message != "" {
		res.Message = fmt.Sprintf("%s (Query took %.4fs)", res.Message, d.Seconds())
		sess.logger.Log(ctx, res.Status.Level(), res.Message,
			slog.String("check", c.Name),
			slog.Duration("duration", d),
		)
	}

	status, spanErr, observed := res.Status, err, true
	if err != nil {
		switch Classify(err) {
		case KindDataFreshness:
			status, spanErr = StatusWarning, nil
		case KindDataIntegrity:
			status = StatusError
		default:
			status, observed = StatusError, false
		}
	}
	telemetry.SetCheckStatus(c.Name, string(status))
	if observed {
		recordValues(res)
	}
	telemetry.EndSpan(span, spanErr)
	return res, err
}

// recordValues exports the numbers a check read.
func recordValues(res CheckResult) {
	switch res.Name {
	case CheckUsersRowCount:
		telemetry.SetGauge(telemetry.UsersRows, float64(res.Count))
	case CheckLogsFreshness:
		telemetry.SetGauge(telemetry.LogRows, float64(res.Count))
		var ts float64
		if res.LastEntry.Valid {
			ts = float64(res.LastEntry.Time.Unix())
		}
		telemetry.SetGauge(telemetry.LastLogEntryTimestamp, ts)
	case CheckEmailIntegrity:
		telemetry.SetGauge(telemetry.NullEmailUsers, float64(res.Count))
	}
}

// logFailure writes the ERROR line for a run-ending error.
func logFailure(logger *slog.Logger, err error) {
	ce := asCheckError("run", err)
	switch ce.Kind {
	case KindConnectivity:
		logger.Error(fmt.Sprintf("Database error: %v", ce.Err), slog.String("check", ce.Check))
	default:
		logger.Error(fmt.Sprintf("An unexpected error occurred: %v", ce.Err), slog.String("check", ce.Check))
	}
}
