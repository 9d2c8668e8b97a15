package apperr

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes mapped at the boundary.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// From converts any error into an *Error. Constraint violations that escaped
// the repositories become CONFLICT or INVALID_REFERENCE, connection failures
// become SERVICE_UNAVAILABLE and everything else is INTERNAL_ERROR.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return Wrap(CodeConflict, err, "resource already exists").
				WithDetails(map[string]string{"constraint": pgErr.ConstraintName})
		case pgForeignKeyViolation:
			return Wrap(CodeInvalidReference, err, "referenced resource does not exist").
				WithDetails(map[string]string{"constraint": pgErr.ConstraintName})
		case pgCheckViolation:
			return Wrap(CodeValidation, err, "value violates a constraint")
		}
	}
	if IsConnectionError(err) {
		return Unavailable(err)
	}
	return Wrap(CodeInternal, err, "internal error")
}

// IsConnectionError reports failures reaching the database rather than
// failures of a statement.
func IsConnectionError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
