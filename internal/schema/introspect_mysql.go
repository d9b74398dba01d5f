package schema

import (
	"context"
	"fmt"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
)

// MySQLIntrospector implements Reader for MySQL, where a schema is a database.
// Queries fall back to DATABASE() when no schema name is configured.
type MySQLIntrospector struct {
	db     database.DB
	schema string
}

// NewMySQLIntrospector creates a MySQL introspector bound to one database.
func NewMySQLIntrospector(db database.DB, schema string) *MySQLIntrospector {
	return &MySQLIntrospector{db: db, schema: schema}
}

const currentSchema = "COALESCE(NULLIF(?, ''), DATABASE())"

func (m *MySQLIntrospector) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ` + currentSchema + `
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := m.db.Query(ctx, q, m.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan table name: %w", err)
	}
	return tables, nil
}

func (m *MySQLIntrospector) TableExists(ctx context.Context, table string) (bool, error) {
	const q = `
		SELECT COUNT(*) > 0
		FROM information_schema.tables
		WHERE table_schema = ` + currentSchema + ` AND table_name = ?`

	row, err := m.db.QueryRow(ctx, q, m.schema, table)
	if err != nil {
		return false, fmt.Errorf("table exists check: %w", err)
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("table exists check: %w", err)
	}
	return exists, nil
}

func (m *MySQLIntrospector) InspectTable(ctx context.Context, table string) (*TableInfo, error) {
	const keysQuery = `
		SELECT kcu.column_name, tc.constraint_type, tc.constraint_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = ` + currentSchema + `
		  AND tc.table_name   = ?
		  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')`

	// column_type stands in for udt_name: it keeps the display width that
	// tells tinyint(1) booleans apart from integers.
	const columnsQuery = `
		SELECT
			column_name,
			data_type,
			column_default,
			is_nullable,
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			column_type
		FROM information_schema.columns
		WHERE table_schema = ` + currentSchema + ` AND table_name = ?
		ORDER BY ordinal_position`

	rows, err := m.db.Query(ctx, keysQuery, m.schema, table)
	if err != nil {
		return nil, fmt.Errorf("inspect constraints %s: %w", table, err)
	}
	keys, err := scanKeyConstraints(rows)
	if err != nil {
		return nil, fmt.Errorf("scan constraint: %w", err)
	}

	rows, err = m.db.Query(ctx, columnsQuery, m.schema, table)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	cols, err := scanColumns(rows)
	if err != nil {
		return nil, fmt.Errorf("scan column: %w", err)
	}
	if len(cols) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s does not exist", table)
	}

	info := &TableInfo{Schema: m.schema, Name: table, Columns: cols}
	applyConstraints(info, keys)
	return info, nil
}

func (m *MySQLIntrospector) ForeignKeys(ctx context.Context) ([]ForeignKey, error) {
	const q = `
		SELECT
			rc.constraint_name,
			kcu.table_name             AS from_table,
			kcu.column_name            AS from_column,
			kcu.referenced_table_name  AS to_table,
			kcu.referenced_column_name AS to_column
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage kcu
			ON rc.constraint_name = kcu.constraint_name
			AND rc.constraint_schema = kcu.table_schema
		WHERE rc.constraint_schema = ` + currentSchema + `
		ORDER BY rc.constraint_name`

	rows, err := m.db.Query(ctx, q, m.schema)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	fks, err := scanForeignKeys(rows)
	if err != nil {
		return nil, fmt.Errorf("scan foreign key: %w", err)
	}
	return fks, nil
}
