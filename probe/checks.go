package probe

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Check names, used in logs, metrics and spans.
const (
	CheckConnectivity   = "connectivity"
	CheckUsersRowCount  = "users_row_count"
	CheckLogsFreshness  = "logs_freshness"
	CheckEmailIntegrity = "email_integrity"
)

const (
	queryConnectivity = `SELECT 1`
	queryUsersCount   = `SELECT COUNT(*) FROM users`
	queryLogsFresh    = `SELECT COUNT(*), MAX(created_at) FROM logs`
	queryNullEmails   = `SELECT COUNT(*) FROM users WHERE email IS NULL`
)

// Querier is the part of *sql.DB the checks need.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Check is one diagnostic query and its interpretation. A returned error that is not a
// *CheckError is classified by Classify.
type Check struct {
	Name  string
	Query string
	Run   func(ctx context.Context, q Querier) (CheckResult, error)
}

// DefaultChecks returns the battery in execution order.
func DefaultChecks() []Check {
	return []Check{
		{Name: CheckConnectivity, Query: queryConnectivity, Run: checkConnectivity},
		{Name: CheckUsersRowCount, Query: queryUsersCount, Run: checkUsersRowCount},
		{Name: CheckLogsFreshness, Query: queryLogsFresh, Run: checkLogsFreshness},
		{Name: CheckEmailIntegrity, Query: queryNullEmails, Run: checkEmailIntegrity},
	}
}

// checkConnectivity fails as a connectivity error whatever the cause: a broken SELECT 1
// cannot be told apart from a dead connection.
func checkConnectivity(ctx context.Context, q Querier) (CheckResult, error) {
	var one int
	if err := q.QueryRowContext(ctx, queryConnectivity).Scan(&one); err != nil {
		return CheckResult{}, &CheckError{Check: CheckConnectivity, Kind: KindConnectivity, Err: err}
	}
	return CheckResult{Status: StatusSuccess, Message: "Basic connection test passed."}, nil
}

func checkUsersRowCount(ctx context.Context, q Querier) (CheckResult, error) {
	var n int64
	if err := q.QueryRowContext(ctx, queryUsersCount).Scan(&n); err != nil {
		return CheckResult{}, fmt.Errorf("count users: %w", err)
	}
	return CheckResult{
		Status:  StatusInfo,
		Message: fmt.Sprintf("Users table row count: %d", n),
		Count:   n,
	}, nil
}

func checkLogsFreshness(ctx context.Context, q Querier) (CheckResult, error) {
	var (
		n    int64
		last sql.NullTime
	)
	if err := q.QueryRowContext(ctx, queryLogsFresh).Scan(&n, &last); err != nil {
		return CheckResult{}, fmt.Errorf("read latest log entry: %w", err)
	}
	res := CheckResult{Status: StatusInfo, Count: n, LastEntry: last}
	if !last.Valid {
		res.Message = fmt.Sprintf("Logs table: %d rows, last entry timestamp none", n)
		return res, &CheckError{Check: CheckLogsFreshness, Kind: KindDataFreshness, Err: ErrNoLogEntries}
	}
	res.Message = fmt.Sprintf("Logs table: %d rows, last entry timestamp %s", n, last.Time.UTC().Format(time.RFC3339))
	return res, nil
}

func checkEmailIntegrity(ctx context.Context, q Querier) (CheckResult, error) {
	var n int64
	if err := q.QueryRowContext(ctx, queryNullEmails).Scan(&n); err != nil {
		return CheckResult{}, fmt.Errorf("count users without email: %w", err)
	}
	if n > 0 {
		res := CheckResult{
			Status:  StatusError,
			Message: fmt.Sprintf("Found %d users with NULL email addresses.", n),
			Count:   n,
		}
		return res, &CheckError{Check: CheckEmailIntegrity, Kind: KindDataIntegrity, Err: fmt.Errorf("%w: %d", ErrNullEmails, n)}
	}
	return CheckResult{Status: StatusSuccess, Message: "No users found with NULL email addresses."}, nil
}
