package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/backoffice/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied   = 1044
	errAccessDenied     = 1045
	errNoDatabase       = 1046
	errUnknownDatabase  = 1049
	errTooManyConns     = 1040
	errUserConnLimit    = 1203
	errDuplicateEntry   = 1062
	errRowIsReferenced  = 1451
	errNoReferencedRow  = 1452
	errTableAccessDeny  = 1142
	errLockWaitTimeout  = 1205
	errQueryInterrupted = 1317
)

// mapError translates go-sql-driver/mysql errors into *errs.Error.
// err must be non-nil.
func mapError(err error, msg string) *errs.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	if errors.Is(err, gomysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
	}
	return errs.Wrap(errs.ErrKindQueryFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errNoDatabase, errUnknownDatabase, errTooManyConns, errUserConnLimit:
		return errs.ErrKindConnectionFailed
	case errDBAccessDenied, errAccessDenied, errTableAccessDeny:
		return errs.ErrKindPermissionDenied
	case errDuplicateEntry, errRowIsReferenced, errNoReferencedRow:
		return errs.ErrKindConflict
	case errLockWaitTimeout, errQueryInterrupted:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
