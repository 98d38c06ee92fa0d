package postgresql

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes this package reasons about.
const (
	CodeUniqueViolation      = "23505"
	CodeDuplicateTable       = "42P07"
	CodeDuplicateObject      = "42710"
	CodeUndefinedTable       = "42P01"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeAdminShutdown        = "57P01"
	CodeCannotConnectNow     = "57P03"
	CodeTooManyConnections   = "53300"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsAlreadyExists reports a concurrent creator winning a CREATE race:
// duplicate relation, duplicate object, or the pg_type unique index that
// CREATE TABLE IF NOT EXISTS can still trip.
func IsAlreadyExists(err error) bool {
	switch pgCode(err) {
	case CodeDuplicateTable, CodeDuplicateObject, CodeUniqueViolation:
		return true
	}
	return false
}

func IsUndefinedTable(err error) bool {
	return pgCode(err) == CodeUndefinedTable
}

// IsTransient reports errors caused by the connection or by contention,
// where repeating the statement may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}

	code := pgCode(err)
	switch {
	case code == "":
	case len(code) == 5 && code[:2] == "08":
		return true
	case code == CodeSerializationFailure, code == CodeDeadlockDetected,
		code == CodeAdminShutdown, code == CodeCannotConnectNow, code == CodeTooManyConnections:
		return true
	default:
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
