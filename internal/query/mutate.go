package query

import (
	"fmt"
	"strings"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
)

// columnValues accumulates column/value pairs in insertion order.
type columnValues struct {
	columns []string
	args    []any
}

func (c *columnValues) add(column string, value any) {
	c.columns = append(c.columns, column)
	c.args = append(c.args, value)
}

// InsertBuilder renders INSERT INTO table (cols) VALUES ($1, …).
type InsertBuilder struct {
	table string
	cv    columnValues
}

// Insert starts an INSERT into table.
func Insert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// Set adds a column and the value to store in it.
func (b *InsertBuilder) Set(column string, value any) *InsertBuilder {
	b.cv.add(column, value)
	return b
}

// Len returns the number of columns added so far.
func (b *InsertBuilder) Len() int {
	return len(b.cv.columns)
}

// Build renders the statement. With no columns it inserts DEFAULT VALUES.
func (b *InsertBuilder) Build() (string, []any, error) {
	if strings.TrimSpace(b.table) == "" {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "insert requires a table")
	}
	if len(b.cv.columns) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", b.table), nil, nil
	}

	placeholders := make([]string, len(b.cv.columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.table, strings.Join(b.cv.columns, ", "), strings.Join(placeholders, ", "))
	return sql, append([]any(nil), b.cv.args...), nil
}

// Query builds the statement and binds it to db for execution.
func (b *InsertBuilder) Query(db database.DB) (*Query, error) {
	sql, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return New(db, sql, args...), nil
}

// UpdateBuilder renders UPDATE table SET … WHERE pk = $last.
type UpdateBuilder struct {
	table   string
	pk      string
	pkValue any
	cv      columnValues
}

// Update starts an UPDATE of the row whose pk column equals pkValue.
func Update(table, pk string, pkValue any) *UpdateBuilder {
	return &UpdateBuilder{table: table, pk: pk, pkValue: pkValue}
}

// Set adds a column assignment.
func (b *UpdateBuilder) Set(column string, value any) *UpdateBuilder {
	b.cv.add(column, value)
	return b
}

// Len returns the number of assignments added so far.
func (b *UpdateBuilder) Len() int {
	return len(b.cv.columns)
}

// Build renders the statement. An update with no assignments is a caller error.
func (b *UpdateBuilder) Build() (string, []any, error) {
	if strings.TrimSpace(b.table) == "" || strings.TrimSpace(b.pk) == "" {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "update requires a table and key column")
	}
	if len(b.cv.columns) == 0 {
		return "", nil, errs.Newf(errs.ErrKindInvalidInput, "update of %s has no columns to set", b.table)
	}
	if isNull(b.pkValue) {
		return "", nil, errs.Newf(errs.ErrKindInvalidInput, "update of %s requires a key value", b.table)
	}

	sets := make([]string, len(b.cv.columns))
	for i, col := range b.cv.columns {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}

	args := append(append([]any(nil), b.cv.args...), b.pkValue)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		b.table, strings.Join(sets, ", "), b.pk, len(args))
	return sql, args, nil
}

// Query builds the statement and binds it to db for execution.
func (b *UpdateBuilder) Query(db database.DB) (*Query, error) {
	sql, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return New(db, sql, args...), nil
}

// DeleteBuilder renders DELETE FROM table WHERE pk = $1.
type DeleteBuilder struct {
	table   string
	pk      string
	pkValue any
}

// Delete starts a DELETE of the row whose pk column equals pkValue.
func Delete(table, pk string, pkValue any) *DeleteBuilder {
	return &DeleteBuilder{table: table, pk: pk, pkValue: pkValue}
}

// Build renders the statement.
func (b *DeleteBuilder) Build() (string, []any, error) {
	if strings.TrimSpace(b.table) == "" || strings.TrimSpace(b.pk) == "" {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "delete requires a table and key column")
	}
	if isNull(b.pkValue) {
		return "", nil, errs.Newf(errs.ErrKindInvalidInput, "delete from %s requires a key value", b.table)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1", b.table, b.pk), []any{b.pkValue}, nil
}

// Query builds the statement and binds it to db for execution.
func (b *DeleteBuilder) Query(db database.DB) (*Query, error) {
	sql, args, err := b.Build()
	if err != nil {
		return nil, err
	}
	return New(db, sql, args...), nil
}
