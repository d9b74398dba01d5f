package database

import (
	"strings"
)

// Dialect controls the placeholder style and literal conventions of a backend.
// Builders always emit Postgres-style $n placeholders; only the query
// execution boundary calls Rebind.
type Dialect int

const (
	// DialectPostgres uses $1, $2, … placeholders.
	DialectPostgres Dialect = iota

	// DialectMySQL uses ? placeholders.
	DialectMySQL
)

func (d Dialect) String() string {
	if d == DialectMySQL {
		return "mysql"
	}
	return "postgres"
}

// SupportsReturning reports whether INSERT/UPDATE/DELETE … RETURNING is available.
func (d Dialect) SupportsReturning() bool {
	return d == DialectPostgres
}

// BoolLiteral returns the backend's wire representation of b.
func (d Dialect) BoolLiteral(b bool) any {
	if d == DialectMySQL {
		if b {
			return 1
		}
		return 0
	}
	if b {
		return "t"
	}
	return "f"
}

// Rebind rewrites $n placeholders into the dialect's own syntax.
// Placeholders inside single-quoted literals, double-quoted identifiers
// and dollar-quoted strings are left alone.
func (d Dialect) Rebind(sql string) string {
	if d == DialectPostgres || !strings.Contains(sql, "$") {
		return sql
	}

	var sb strings.Builder
	sb.Grow(len(sql))

	var quote byte
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			sb.WriteByte(c)
		case c == '\'' || c == '"' || c == '`':
			quote = c
			sb.WriteByte(c)
		case c == '$' && i+1 < len(sql) && isDigit(sql[i+1]):
			j := i + 1
			for j < len(sql) && isDigit(sql[j]) {
				j++
			}
			sb.WriteByte('?')
			i = j - 1
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
