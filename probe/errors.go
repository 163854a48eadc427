package probe

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ErrorKind tells the run loop how to log a failure and whether to keep going.
type ErrorKind int

const (
	// KindConnectivity covers driver and transport failures; the run aborts.
	KindConnectivity ErrorKind = iota
	// KindDataIntegrity means a check's business rule was violated; the run fails.
	KindDataIntegrity
	// KindDataFreshness is a soft condition logged as a warning; the run continues.
	KindDataFreshness
	// KindUnexpected is anything else; the run aborts.
	KindUnexpected
)

// String returns a human-readable name for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindDataIntegrity:
		return "data_integrity"
	case KindDataFreshness:
		return "data_freshness"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unexpected"
	}
}

var (
	ErrNullEmails   = errors.New("users without email address")
	ErrNoLogEntries = errors.New("no entries found in the logs table")
)

// CheckError ties a failure to the check that produced it.
type CheckError struct {
	Check string
	Kind  ErrorKind
	Err   error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s check failed (%s): %v", e.Check, e.Kind, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

// IsDatabaseError reports whether err was raised by a database driver or the network
// underneath it, as opposed to a bug or a value conversion problem.
func IsDatabaseError(err error) bool {
	if err == nil {
		return false
	}
	var (
		pgErr      *pgconn.PgError
		connectErr *pgconn.ConnectError
		parseErr   *pgconn.ParseConfigError
		pqErr      *pq.Error
		mysqlErr   *mysql.MySQLError
		netErr     net.Error
	)
	switch {
	case errors.As(err, &pgErr), errors.As(err, &connectErr), errors.As(err, &parseErr):
		return true
	case errors.As(err, &pqErr), errors.As(err, &mysqlErr):
		return true
	case errors.As(err, &netErr):
		return true
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone), errors.Is(err, mysql.ErrInvalidConn):
		return true
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return true
	}
	return false
}

// Classify returns the kind carried by a *CheckError, otherwise derives one from err.
func Classify(err error) ErrorKind {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if IsDatabaseError(err) {
		return KindConnectivity
	}
	return KindUnexpected
}

// asCheckError wraps err for check unless it already is a *CheckError.
func asCheckError(check string, err error) *CheckError {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce
	}
	return &CheckError{Check: check, Kind: Classify(err), Err: err}
}
