package mapper

import (
	"context"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
	"github.com/koustreak/backoffice/internal/logger"
	"github.com/koustreak/backoffice/internal/query"
	"github.com/koustreak/backoffice/internal/schema"
)

// TableMapper is the CRUD and metadata façade over one table.
type TableMapper struct {
	db      database.DB
	table   string
	columns []*Column
	byName  map[string]*Column

	primaryKey    string
	unique        []string
	orderBy       string
	orderDir      query.SortDirection
	selectColumns string

	constraints []columnConstraint
}

type columnConstraint struct {
	column string
	name   string
}

// Option configures a TableMapper at construction.
type Option func(*TableMapper)

// WithOrderBy sets the default ORDER BY column and direction. The primary
// key ascending is used otherwise.
func WithOrderBy(column string, dir query.SortDirection) Option {
	return func(m *TableMapper) {
		m.orderBy = column
		m.orderDir = dir
	}
}

// WithSelectColumns sets the default select-clause expression.
func WithSelectColumns(expr string) Option {
	return func(m *TableMapper) { m.selectColumns = expr }
}

// WithConstraint attaches a named constraint to column once it is introspected.
func WithConstraint(column, constraint string) Option {
	return func(m *TableMapper) {
		m.constraints = append(m.constraints, columnConstraint{column: column, name: constraint})
	}
}

// ListOptions are the caller-controlled parts of a listing. Unlike the
// filter passed to Select, every column named here is checked against the
// table's columns, so the values may come from a request.
type ListOptions struct {
	Filter    query.Filter
	OrderBy   string
	Direction query.SortDirection
	Limit     int
	Offset    int
}

// New introspects table through reader and returns its mapper. A table the
// catalog does not know yields errs.ErrKindNotFound; a composite primary
// key is rejected.
func New(ctx context.Context, db database.DB, reader schema.Reader, table string, opts ...Option) (*TableMapper, error) {
	info, err := reader.InspectTable(ctx, table)
	if err != nil {
		return nil, err
	}

	pks := info.PrimaryKeys()
	if len(pks) > 1 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "table %s: composite primary key %v is not supported", table, pks)
	}

	m := &TableMapper{
		db:            db,
		table:         table,
		byName:        make(map[string]*Column, len(info.Columns)),
		selectColumns: "*",
	}
	for _, ci := range info.Columns {
		col := newColumn(ci)
		m.columns = append(m.columns, col)
		m.byName[col.Name()] = col
		if col.IsUnique() {
			m.unique = append(m.unique, col.Name())
		}
	}
	if len(pks) == 1 {
		m.primaryKey = pks[0]
		m.orderBy = pks[0]
	} else {
		m.orderBy = m.columns[0].Name()
	}

	for _, opt := range opts {
		opt(m)
	}

	if _, ok := m.byName[m.orderBy]; !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "table %s: order-by column %q does not exist", table, m.orderBy)
	}
	for _, c := range m.constraints {
		col, ok := m.byName[c.column]
		if !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "table %s: constraint %q on unknown column %q", table, c.name, c.column)
		}
		col.AddConstraint(c.name)
	}
	m.constraints = nil

	logger.FromContext(ctx).DebugWith("table mapped", map[string]interface{}{
		"table":       table,
		"columns":     len(m.columns),
		"primary_key": m.primaryKey,
	})
	return m, nil
}

func (m *TableMapper) Table() string             { return m.table }
func (m *TableMapper) Dialect() database.Dialect { return m.db.Dialect() }

// PrimaryKey returns the primary-key column name, or "" for keyless tables.
func (m *TableMapper) PrimaryKey() string { return m.primaryKey }

// Columns returns the columns in ordinal order.
func (m *TableMapper) Columns() []*Column {
	return append([]*Column(nil), m.columns...)
}

// Column looks a column up by exact name.
func (m *TableMapper) Column(name string) (*Column, bool) {
	c, ok := m.byName[name]
	return c, ok
}

// UniqueColumns returns the columns covered by a single-column unique constraint.
func (m *TableMapper) UniqueColumns() []string {
	return append([]string(nil), m.unique...)
}

// OrderBy returns the default ordering.
func (m *TableMapper) OrderBy() (string, query.SortDirection) {
	return m.orderBy, m.orderDir
}

// Select returns the rows matching filter in the default order. An empty
// columns expression selects the mapper's default columns. The filter's
// column expressions are trusted and passed through as written.
func (m *TableMapper) Select(ctx context.Context, columns string, filter query.Filter) (*database.RowSet, error) {
	if columns == "" {
		columns = m.selectColumns
	}
	q, err := query.From(m.table).
		Columns(columns).
		Filter(filter).
		OrderBy(m.orderBy, m.orderDir).
		Query(m.db)
	if err != nil {
		return nil, err
	}
	return q.Execute(ctx)
}

// List is Select for request-supplied options.
func (m *TableMapper) List(ctx context.Context, opts ListOptions) (*database.RowSet, error) {
	for _, name := range opts.Filter.Columns() {
		if _, ok := m.byName[name]; !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "table %s has no column %q", m.table, name)
		}
	}

	orderBy, dir := m.orderBy, m.orderDir
	if opts.OrderBy != "" {
		if _, ok := m.byName[opts.OrderBy]; !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "table %s has no column %q", m.table, opts.OrderBy)
		}
		orderBy, dir = opts.OrderBy, opts.Direction
	}

	q, err := query.From(m.table).
		Columns(m.selectColumns).
		Filter(opts.Filter).
		OrderBy(orderBy, dir).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Query(m.db)
	if err != nil {
		return nil, err
	}
	return q.Execute(ctx)
}

// Count returns the number of rows matching filter.
func (m *TableMapper) Count(ctx context.Context, filter query.Filter) (int64, error) {
	q, err := query.From(m.table).Columns("count(*)").Filter(filter).Query(m.db)
	if err != nil {
		return 0, err
	}
	v, err := q.GetOne(ctx)
	if err != nil {
		return 0, err
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, errs.Newf(errs.ErrKindQueryFailed, "count(*) returned %T", v)
	}
	return n, nil
}

// SelectForPrimaryKey returns the row with primary key pk, or nil when
// there is none. Only a failing query is an error.
func (m *TableMapper) SelectForPrimaryKey(ctx context.Context, pk any, columns string) (database.Record, error) {
	if err := m.requirePrimaryKey(); err != nil {
		return nil, err
	}
	rs, err := m.Select(ctx, columns, query.Filter{query.Cond(m.primaryKey, "=", pk)})
	if err != nil {
		return nil, err
	}
	return rs.First(), nil
}

// Insert stores input as a new row and returns the generated primary key,
// or the affected row count for tables without one. On backends without
// RETURNING a primary key supplied in input is returned as given.
//
// Keys that are not columns are dropped. Boolean columns missing from
// input are stored as false, and blank strings are replaced by the
// column's Blank value.
func (m *TableMapper) Insert(ctx context.Context, input map[string]any) (any, error) {
	b := query.Insert(m.table)
	for _, col := range m.columns {
		v, ok := input[col.Name()]
		switch {
		case !ok && col.Kind() == KindBoolean:
			b.Set(col.Name(), false)
		case !ok:
			continue
		case isBlank(v) && v != nil:
			b.Set(col.Name(), col.Blank(m.db.Dialect()))
		default:
			b.Set(col.Name(), v)
		}
	}

	q, err := b.Query(m.db)
	if err != nil {
		return nil, err
	}
	q.AlterBooleanArgs()

	if m.primaryKey == "" {
		res, err := q.Exec(ctx)
		if err != nil {
			return nil, err
		}
		return res.RowsAffected, nil
	}
	id, err := q.ExecuteWithReturnField(ctx, m.primaryKey)
	if err != nil {
		return nil, err
	}
	// Without RETURNING the driver only knows auto-increment ids; a key the
	// caller supplied is the row's id, not the affected row count.
	if !m.db.Dialect().SupportsReturning() {
		if v, ok := input[m.primaryKey]; ok && !isBlank(v) {
			return v, nil
		}
	}
	return id, nil
}

// UpdateByPrimaryKey writes the columns of input that differ from the
// stored row. record is the row as previously fetched; when nil it is
// loaded first, and a missing row is errs.ErrKindNotFound.
//
// Callers are expected to check ChangedValues first: an input that changes
// nothing builds no statement and is errs.ErrKindInvalidInput.
func (m *TableMapper) UpdateByPrimaryKey(ctx context.Context, input map[string]any, pk any, record database.Record) (any, error) {
	if err := m.requirePrimaryKey(); err != nil {
		return nil, err
	}
	if record == nil {
		var err error
		record, err = m.SelectForPrimaryKey(ctx, pk, "*")
		if err != nil {
			return nil, err
		}
		if record == nil {
			return nil, errs.Newf(errs.ErrKindNotFound, "%s: no row with %s = %v", m.table, m.primaryKey, pk)
		}
	}
	return m.update(ctx, m.ChangedValues(input, record), pk)
}

// UpdateAllByPrimaryKey writes every column present in input without
// comparing against the stored row.
func (m *TableMapper) UpdateAllByPrimaryKey(ctx context.Context, input map[string]any, pk any) (any, error) {
	if err := m.requirePrimaryKey(); err != nil {
		return nil, err
	}
	values := make(map[string]any, len(input))
	for k, v := range input {
		if _, ok := m.byName[k]; ok {
			values[k] = v
		}
	}
	return m.update(ctx, values, pk)
}

func (m *TableMapper) update(ctx context.Context, values map[string]any, pk any) (any, error) {
	b := query.Update(m.table, m.primaryKey, pk)
	for _, col := range m.columns {
		v, ok := values[col.Name()]
		if !ok {
			continue
		}
		if isBlank(v) && v != nil {
			v = col.Blank(m.db.Dialect())
		}
		b.Set(col.Name(), v)
	}
	if b.Len() == 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "%s: no changes submitted", m.table)
	}

	q, err := b.Query(m.db)
	if err != nil {
		return nil, err
	}
	return q.AlterBooleanArgs().ExecuteWithReturnField(ctx, m.primaryKey)
}

// DeleteByPrimaryKey removes the row with primary key pk and returns the
// returning column of the deleted row (the primary key when empty). A key
// that matches nothing is errs.ErrKindNotFound.
func (m *TableMapper) DeleteByPrimaryKey(ctx context.Context, pk any, returning string) (any, error) {
	if err := m.requirePrimaryKey(); err != nil {
		return nil, err
	}
	if returning == "" {
		returning = m.primaryKey
	} else if _, ok := m.byName[returning]; !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "table %s has no column %q", m.table, returning)
	}

	q, err := query.Delete(m.table, m.primaryKey, pk).Query(m.db)
	if err != nil {
		return nil, err
	}
	return q.ExecuteWithReturnField(ctx, returning)
}

// ChangedValues returns the entries of input that name a column and differ
// from record, compared with Column.Equal.
func (m *TableMapper) ChangedValues(input map[string]any, record database.Record) map[string]any {
	changed := make(map[string]any)
	for name, v := range input {
		col, ok := m.byName[name]
		if !ok {
			continue
		}
		if !col.Equal(v, record[name]) {
			changed[name] = v
		}
	}
	return changed
}

// Validate checks every column named in input. It reports the first
// violation in column order.
func (m *TableMapper) Validate(input map[string]any) error {
	for _, col := range m.columns {
		v, ok := input[col.Name()]
		if !ok {
			continue
		}
		if isBlank(v) && v != nil {
			v = col.Blank(m.db.Dialect())
		}
		if err := col.Validate(v); err != nil {
			return err
		}
	}
	return nil
}

func (m *TableMapper) requirePrimaryKey() error {
	if m.primaryKey == "" {
		return errs.Newf(errs.ErrKindInvalidInput, "table %s has no primary key", m.table)
	}
	return nil
}
