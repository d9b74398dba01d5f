package mysql

import (
	"context"
	"database/sql"
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/backoffice/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no rows", sql.ErrNoRows, errs.ErrKindNotFound},
		{"duplicate", &gomysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, errs.ErrKindConflict},
		{"referenced", &gomysql.MySQLError{Number: 1451, Message: "Cannot delete"}, errs.ErrKindConflict},
		{"access denied", &gomysql.MySQLError{Number: 1045, Message: "Access denied"}, errs.ErrKindPermissionDenied},
		{"unknown db", &gomysql.MySQLError{Number: 1049, Message: "Unknown database"}, errs.ErrKindConnectionFailed},
		{"syntax", &gomysql.MySQLError{Number: 1064, Message: "You have an error"}, errs.ErrKindQueryFailed},
		{"invalid conn", gomysql.ErrInvalidConn, errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapError(tt.err, "op").Kind)
		})
	}
}

func TestNormalizeDSN_ParseTime(t *testing.T) {
	dsn, err := normalizeDSN("admin:secret@tcp(localhost:3306)/backoffice")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")

	_, err = normalizeDSN("not a dsn")
	assert.Error(t, err)
}
