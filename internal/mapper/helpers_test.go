package mapper

import (
	"context"
	"sort"

	"github.com/koustreak/backoffice/internal/errs"
	"github.com/koustreak/backoffice/internal/schema"
)

// staticReader serves fixed catalog answers.
type staticReader map[string]*schema.TableInfo

func (r staticReader) ListTables(context.Context) ([]string, error) {
	var names []string
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (r staticReader) TableExists(_ context.Context, table string) (bool, error) {
	_, ok := r[table]
	return ok, nil
}

func (r staticReader) InspectTable(_ context.Context, table string) (*schema.TableInfo, error) {
	info, ok := r[table]
	if !ok {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s does not exist", table)
	}
	return info, nil
}

func (r staticReader) ForeignKeys(context.Context) ([]schema.ForeignKey, error) { return nil, nil }

func ptr[T any](v T) *T { return &v }

type colOpt func(*schema.ColumnInfo)

func pk(c *schema.ColumnInfo)       { c.IsPrimaryKey = true }
func unique(c *schema.ColumnInfo)   { c.IsUnique = true }
func nullable(c *schema.ColumnInfo) { c.IsNullable = true }

func withDefault(expr string) colOpt {
	return func(c *schema.ColumnInfo) { c.DefaultValue = ptr(expr) }
}

func maxLen(n int64) colOpt {
	return func(c *schema.ColumnInfo) { c.MaxLength = ptr(n) }
}

func info(name, dataType, udt string, opts ...colOpt) schema.ColumnInfo {
	c := schema.ColumnInfo{Name: name, DataType: dataType, UDTName: udt}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// widgetsTable is widgets(id serial pk, name text not null,
// active boolean not null default false).
func widgetsTable() *schema.TableInfo {
	return &schema.TableInfo{Schema: "public", Name: "widgets", Columns: []schema.ColumnInfo{
		info("id", "integer", "int4", pk, withDefault("nextval('widgets_id_seq'::regclass)")),
		info("name", "text", "text"),
		info("active", "boolean", "bool", withDefault("false")),
	}}
}

func itemsTable() *schema.TableInfo {
	return &schema.TableInfo{Schema: "public", Name: "items", Columns: []schema.ColumnInfo{
		info("id", "bigint", "int8", pk),
		info("title", "character varying", "varchar", maxLen(8)),
		info("note", "text", "text", nullable),
		info("qty", "integer", "int4"),
		info("price", "numeric", "numeric"),
		info("active", "boolean", "bool"),
		info("sku", "character varying", "varchar", unique),
	}}
}
