package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialect_Rebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{
			name:    "postgres untouched",
			dialect: DialectPostgres,
			in:      "SELECT * FROM widgets WHERE id = $1",
			want:    "SELECT * FROM widgets WHERE id = $1",
		},
		{
			name:    "mysql positional",
			dialect: DialectMySQL,
			in:      "UPDATE widgets SET name = $1, active = $2 WHERE id = $3",
			want:    "UPDATE widgets SET name = ?, active = ? WHERE id = ?",
		},
		{
			name:    "multi digit placeholders",
			dialect: DialectMySQL,
			in:      "SELECT $10, $11",
			want:    "SELECT ?, ?",
		},
		{
			name:    "quoted literal kept",
			dialect: DialectMySQL,
			in:      "SELECT '$1' AS price, name FROM t WHERE a = $1",
			want:    "SELECT '$1' AS price, name FROM t WHERE a = ?",
		},
		{
			name:    "bare dollar kept",
			dialect: DialectMySQL,
			in:      "SELECT $ FROM t",
			want:    "SELECT $ FROM t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.Rebind(tt.in))
		})
	}
}

func TestDialect_BoolLiteral(t *testing.T) {
	assert.Equal(t, "t", DialectPostgres.BoolLiteral(true))
	assert.Equal(t, "f", DialectPostgres.BoolLiteral(false))
	assert.Equal(t, 1, DialectMySQL.BoolLiteral(true))
	assert.Equal(t, 0, DialectMySQL.BoolLiteral(false))
	assert.True(t, DialectPostgres.SupportsReturning())
	assert.False(t, DialectMySQL.SupportsReturning())
}

func TestDriver_Dialect(t *testing.T) {
	assert.Equal(t, DialectMySQL, DriverMySQL.Dialect())
	assert.Equal(t, DialectPostgres, DriverPostgres.Dialect())
	assert.Equal(t, DialectPostgres, Driver("").Dialect())
}
