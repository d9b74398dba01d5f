package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/backoffice/internal/errs"
)

// PostgreSQL SQLSTATE error codes that get a dedicated kind.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrInsufficientPriv    = "42501"
	pgErrInvalidPassword     = "28P01"
	pgErrQueryCanceled       = "57014"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
// err must be non-nil.
func mapError(err error, msg string) *errs.Error {
	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// No rows
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, auth)
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// classifySQLState maps a SQLSTATE code to an ErrKind.
func classifySQLState(code string) errs.ErrKind {
	switch code {
	case pgErrUniqueViolation, pgErrForeignKeyViolation:
		return errs.ErrKindConflict
	case pgErrInsufficientPriv, pgErrInvalidPassword:
		return errs.ErrKindPermissionDenied
	case pgErrQueryCanceled:
		return errs.ErrKindTimeout
	}
	// Class 08: connection exceptions
	if len(code) >= 2 && code[:2] == "08" {
		return errs.ErrKindConnectionFailed
	}
	return errs.ErrKindQueryFailed
}
