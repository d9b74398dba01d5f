package schema

import (
	"context"
	"fmt"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
)

// PgIntrospector implements Reader for PostgreSQL using information_schema.
type PgIntrospector struct {
	db     database.DB
	schema string
}

// NewPgIntrospector creates a Postgres introspector bound to one schema.
func NewPgIntrospector(db database.DB, schema string) *PgIntrospector {
	return &PgIntrospector{db: db, schema: schema}
}

func (p *PgIntrospector) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := p.db.Query(ctx, q, p.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables, err := scanStrings(rows)
	if err != nil {
		return nil, fmt.Errorf("scan table name: %w", err)
	}
	return tables, nil
}

func (p *PgIntrospector) TableExists(ctx context.Context, table string) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`

	row, err := p.db.QueryRow(ctx, q, p.schema, table)
	if err != nil {
		return false, fmt.Errorf("table exists check: %w", err)
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("table exists check: %w", err)
	}
	return exists, nil
}

func (p *PgIntrospector) InspectTable(ctx context.Context, table string) (*TableInfo, error) {
	const keysQuery = `
		SELECT kcu.column_name, tc.constraint_type, tc.constraint_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.table_schema = $1
		  AND tc.table_name   = $2
		  AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')`

	const columnsQuery = `
		SELECT
			column_name,
			data_type,
			column_default,
			is_nullable,
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			udt_name
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := p.db.Query(ctx, keysQuery, p.schema, table)
	if err != nil {
		return nil, fmt.Errorf("inspect constraints %s.%s: %w", p.schema, table, err)
	}
	keys, err := scanKeyConstraints(rows)
	if err != nil {
		return nil, fmt.Errorf("scan constraint: %w", err)
	}

	rows, err = p.db.Query(ctx, columnsQuery, p.schema, table)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s.%s: %w", p.schema, table, err)
	}
	cols, err := scanColumns(rows)
	if err != nil {
		return nil, fmt.Errorf("scan column: %w", err)
	}
	if len(cols) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s.%s does not exist", p.schema, table)
	}

	info := &TableInfo{Schema: p.schema, Name: table, Columns: cols}
	applyConstraints(info, keys)
	return info, nil
}

func (p *PgIntrospector) ForeignKeys(ctx context.Context) ([]ForeignKey, error) {
	const q = `
		SELECT
			tc.constraint_name,
			kcu.table_name   AS from_table,
			kcu.column_name  AS from_column,
			ccu.table_name   AS to_table,
			ccu.column_name  AS to_column
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		ORDER BY tc.constraint_name`

	rows, err := p.db.Query(ctx, q, p.schema)
	if err != nil {
		return nil, fmt.Errorf("list foreign keys: %w", err)
	}
	fks, err := scanForeignKeys(rows)
	if err != nil {
		return nil, fmt.Errorf("scan foreign key: %w", err)
	}
	return fks, nil
}
