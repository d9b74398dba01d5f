// Package schema reads table and column metadata from the database catalog.
package schema

import (
	"context"

	"github.com/koustreak/backoffice/internal/database"
)

// Reader is the interface for introspecting the tables of one schema.
type Reader interface {
	// ListTables returns all user tables, sorted by name.
	ListTables(ctx context.Context) ([]string, error)

	// TableExists checks whether a table exists.
	TableExists(ctx context.Context, table string) (bool, error)

	// InspectTable returns full column info for a table. A table with no
	// columns in the catalog does not exist and yields errs.ErrKindNotFound.
	InspectTable(ctx context.Context, table string) (*TableInfo, error)

	// ForeignKeys returns every foreign key in the schema.
	ForeignKeys(ctx context.Context) ([]ForeignKey, error)
}

// ForDB returns the Reader matching db's dialect. An empty schemaName means
// "public" on Postgres and the connection's current database on MySQL.
func ForDB(db database.DB, schemaName string) Reader {
	if db.Dialect() == database.DialectMySQL {
		return NewMySQLIntrospector(db, schemaName)
	}
	if schemaName == "" {
		schemaName = "public"
	}
	return NewPgIntrospector(db, schemaName)
}

func scanStrings(rows database.Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanKeyConstraints(rows database.Rows) ([]keyConstraint, error) {
	defer rows.Close()

	var keys []keyConstraint
	for rows.Next() {
		var k keyConstraint
		if err := rows.Scan(&k.column, &k.kind, &k.name); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// scanColumns reads rows of (column_name, data_type, column_default,
// is_nullable, character_maximum_length, numeric_precision, numeric_scale,
// udt_name).
func scanColumns(rows database.Rows) ([]ColumnInfo, error) {
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var nullable string

		if err := rows.Scan(
			&col.Name,
			&col.DataType,
			&col.DefaultValue,
			&nullable,
			&col.MaxLength,
			&col.NumericPrecision,
			&col.NumericScale,
			&col.UDTName,
		); err != nil {
			return nil, err
		}
		col.IsNullable = nullable == "YES"
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func scanForeignKeys(rows database.Rows) ([]ForeignKey, error) {
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Name, &fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}
