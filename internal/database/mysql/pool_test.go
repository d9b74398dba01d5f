package mysql

import (
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
	}{
		{"bare", "u:p@tcp(localhost:3306)/db"},
		{"explicitly off", "u:p@tcp(localhost:3306)/db?parseTime=false&clientFoundRows=false"},
		{"keeps other params", "u:p@tcp(localhost:3306)/db?charset=utf8mb4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := normalizeDSN(tt.dsn)
			require.NoError(t, err)
			assert.Contains(t, dsn, "clientFoundRows=true")
			assert.Contains(t, dsn, "parseTime=true")

			c, err := gomysql.ParseDSN(dsn)
			require.NoError(t, err)
			assert.True(t, c.ClientFoundRows)
			assert.True(t, c.ParseTime)
			assert.Equal(t, "db", c.DBName)
		})
	}
}

func TestNormalizeDSN_Invalid(t *testing.T) {
	_, err := normalizeDSN("not a dsn")
	assert.Error(t, err)
}
