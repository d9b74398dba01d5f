package mapper

import (
	"context"
	"strings"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
	"github.com/koustreak/backoffice/internal/query"
)

// ViewColumn maps an output alias to its source expression, e.g.
// {Alias: "role", Expr: "roles.name"}.
type ViewColumn struct {
	Alias string
	Expr  string
}

// ViewMapper is a read-only listing over a primary table joined with its
// lookup tables. Filters and ordering name aliases only, which keeps
// request input from reaching the FROM clause or arbitrary expressions.
// Writes go through Primary.
type ViewMapper struct {
	primary  *TableMapper
	name     string
	from     string
	columns  []ViewColumn
	byAlias  map[string]string
	selectEx string
	orderBy  string
	orderDir query.SortDirection
}

// ViewOption configures a ViewMapper.
type ViewOption func(*ViewMapper)

// WithViewOrderBy sets the default ordering by alias.
func WithViewOrderBy(alias string, dir query.SortDirection) ViewOption {
	return func(v *ViewMapper) {
		v.orderBy = alias
		v.orderDir = dir
	}
}

// NewView builds a view named name selecting columns from the trusted
// from clause ("widgets JOIN roles ON roles.id = widgets.role_id").
func NewView(primary *TableMapper, name, from string, columns []ViewColumn, opts ...ViewOption) (*ViewMapper, error) {
	if primary == nil {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "view %s: primary table is required", name)
	}
	if strings.TrimSpace(from) == "" {
		from = primary.Table()
	}
	if len(columns) == 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "view %s: no columns", name)
	}

	v := &ViewMapper{
		primary: primary,
		name:    name,
		from:    from,
		columns: append([]ViewColumn(nil), columns...),
		byAlias: make(map[string]string, len(columns)),
	}

	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		if c.Alias == "" || c.Expr == "" {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "view %s: column needs both alias and expression", name)
		}
		if _, dup := v.byAlias[c.Alias]; dup {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "view %s: duplicate alias %q", name, c.Alias)
		}
		v.byAlias[c.Alias] = c.Expr
		parts = append(parts, c.Expr+" AS "+c.Alias)
	}
	v.selectEx = strings.Join(parts, ", ")
	v.orderBy = columns[0].Alias

	for _, opt := range opts {
		opt(v)
	}
	if _, ok := v.byAlias[v.orderBy]; !ok {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "view %s: order-by alias %q does not exist", name, v.orderBy)
	}
	return v, nil
}

func (v *ViewMapper) Name() string          { return v.name }
func (v *ViewMapper) Primary() *TableMapper { return v.primary }
func (v *ViewMapper) Columns() []ViewColumn { return append([]ViewColumn(nil), v.columns...) }

// Select returns the rows matching filter, whose columns are aliases.
func (v *ViewMapper) Select(ctx context.Context, filter query.Filter) (*database.RowSet, error) {
	return v.List(ctx, ListOptions{Filter: filter})
}

// List is Select with ordering and paging. OrderBy names an alias.
func (v *ViewMapper) List(ctx context.Context, opts ListOptions) (*database.RowSet, error) {
	for _, alias := range opts.Filter.Columns() {
		if _, ok := v.byAlias[alias]; !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "view %s has no column %q", v.name, alias)
		}
	}

	orderBy, dir := v.orderBy, v.orderDir
	if opts.OrderBy != "" {
		if _, ok := v.byAlias[opts.OrderBy]; !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "view %s has no column %q", v.name, opts.OrderBy)
		}
		orderBy, dir = opts.OrderBy, opts.Direction
	}

	q, err := query.Select(v.primary.db, query.SelectSpec{
		Columns: v.selectEx,
		From:    v.from,
		Filter:  opts.Filter.Rename(func(alias string) string { return v.byAlias[alias] }),
		OrderBy: v.byAlias[orderBy] + " " + dir.String(),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
	if err != nil {
		return nil, err
	}
	return q.Execute(ctx)
}
