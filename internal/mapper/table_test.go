package mapper

import (
	"context"
	"testing"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/database/dbtest"
	"github.com/koustreak/backoffice/internal/errs"
	"github.com/koustreak/backoffice/internal/query"
	"github.com/koustreak/backoffice/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widgetCols = []string{"id", "name", "active"}

func newWidgets(t *testing.T, db database.DB, opts ...Option) *TableMapper {
	t.Helper()
	m, err := New(context.Background(), db, staticReader{"widgets": widgetsTable()}, "widgets", opts...)
	require.NoError(t, err)
	return m
}

func newItems(t *testing.T, db database.DB, opts ...Option) *TableMapper {
	t.Helper()
	m, err := New(context.Background(), db, staticReader{"items": itemsTable()}, "items", opts...)
	require.NoError(t, err)
	return m
}

func TestNew_Metadata(t *testing.T) {
	m := newItems(t, dbtest.New())

	assert.Equal(t, "items", m.Table())
	assert.Equal(t, "id", m.PrimaryKey())
	assert.Equal(t, []string{"sku"}, m.UniqueColumns())
	require.Len(t, m.Columns(), 7)
	assert.Equal(t, "title", m.Columns()[1].Name())

	col, ok := m.Column("price")
	require.True(t, ok)
	assert.Equal(t, KindDecimal, col.Kind())

	_, ok = m.Column("PRICE")
	assert.False(t, ok, "lookup is by exact name")

	by, dir := m.OrderBy()
	assert.Equal(t, "id", by)
	assert.Equal(t, query.Asc, dir)
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New()

	_, err := New(ctx, db, staticReader{}, "gadgets")
	assert.True(t, errs.IsNotFound(err), "unknown table")

	composite := &schema.TableInfo{Name: "links", Columns: []schema.ColumnInfo{
		info("a", "integer", "int4", pk),
		info("b", "integer", "int4", pk),
	}}
	_, err = New(ctx, db, staticReader{"links": composite}, "links")
	assert.True(t, errs.IsInvalidInput(err), "composite key")

	_, err = New(ctx, db, staticReader{"widgets": widgetsTable()}, "widgets", WithConstraint("missing", ConstraintPositive))
	assert.True(t, errs.IsInvalidInput(err), "constraint on unknown column")

	_, err = New(ctx, db, staticReader{"widgets": widgetsTable()}, "widgets", WithOrderBy("missing", query.Desc))
	assert.True(t, errs.IsInvalidInput(err), "order by unknown column")
}

func TestNew_KeylessTableOrdersByFirstColumn(t *testing.T) {
	keyless := &schema.TableInfo{Name: "login_attempts", Columns: []schema.ColumnInfo{
		info("created", "timestamp with time zone", "timestamptz"),
		info("username", "text", "text"),
	}}
	m, err := New(context.Background(), dbtest.New(), staticReader{"login_attempts": keyless}, "login_attempts")
	require.NoError(t, err)

	by, _ := m.OrderBy()
	assert.Equal(t, "created", by)
	assert.Empty(t, m.PrimaryKey())

	_, err = m.SelectForPrimaryKey(context.Background(), 1, "")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestTableMapper_WidgetsScenario(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New()
	m := newWidgets(t, db)

	// insert
	db.Once("INSERT INTO widgets", dbtest.Response{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}})
	id, err := m.Insert(ctx, map[string]any{"name": "foo"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	call := db.LastCall()
	assert.Equal(t, "INSERT INTO widgets (name, active) VALUES ($1, $2) RETURNING id", call.SQL)
	assert.Equal(t, []any{"foo", "f"}, call.Args)

	// select by filter
	db.Once("SELECT * FROM widgets WHERE name", dbtest.Response{
		Columns: widgetCols,
		Rows:    [][]any{{int64(1), "foo", false}},
	})
	rs, err := m.Select(ctx, "", query.Filter{{Column: "name", Operators: []string{"="}, Values: []any{"foo"}}})
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, database.Record{"id": int64(1), "name": "foo", "active": false}, rs.First())
	assert.Equal(t, "SELECT * FROM widgets WHERE name = $1 ORDER BY id ASC", db.LastCall().SQL)

	// update changes only name
	db.Once("SELECT * FROM widgets WHERE id", dbtest.Response{
		Columns: widgetCols,
		Rows:    [][]any{{int64(1), "foo", false}},
	})
	db.Once("UPDATE widgets", dbtest.Response{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}})
	_, err = m.UpdateByPrimaryKey(ctx, map[string]any{"name": "bar", "active": false}, int64(1), nil)
	require.NoError(t, err)

	call = db.LastCall()
	assert.Equal(t, "UPDATE widgets SET name = $1 WHERE id = $2 RETURNING id", call.SQL)
	assert.Equal(t, []any{"bar", int64(1)}, call.Args)

	// delete, then the row is gone
	db.Once("DELETE FROM widgets", dbtest.Response{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}})
	deleted, err := m.DeleteByPrimaryKey(ctx, int64(1), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, "DELETE FROM widgets WHERE id = $1 RETURNING id", db.LastCall().SQL)

	db.Once("SELECT * FROM widgets WHERE id", dbtest.Response{Columns: widgetCols})
	rec, err := m.SelectForPrimaryKey(ctx, int64(1), "")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestTableMapper_InsertDefaults(t *testing.T) {
	db := dbtest.New().On("INSERT INTO items", dbtest.Response{Columns: []string{"id"}, Rows: [][]any{{int64(9)}}})
	m := newItems(t, db)

	_, err := m.Insert(context.Background(), map[string]any{
		"title":     "",
		"note":      "",
		"qty":       "",
		"price":     "",
		"active":    "",
		"sku":       "A-1",
		"is_admin":  true, // not a column
		"csrfToken": "x",
	})
	require.NoError(t, err)

	call := db.LastCall()
	assert.Equal(t, "INSERT INTO items (title, note, qty, price, active, sku) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id", call.SQL)
	assert.Equal(t, []any{"", nil, 0, 0, "f", "A-1"}, call.Args)
}

func TestTableMapper_InsertDefaults_MySQL(t *testing.T) {
	db := dbtest.NewDialect(database.DialectMySQL).On("INSERT INTO items", dbtest.Response{RowsAffected: 1, LastInsertID: 12})
	m := newItems(t, db)

	id, err := m.Insert(context.Background(), map[string]any{"title": "t", "qty": 2, "price": "1.5", "sku": "B"})
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	call := db.LastCall()
	assert.Equal(t, "INSERT INTO items (title, qty, price, active, sku) VALUES (?, ?, ?, ?, ?)", call.SQL)
	assert.Equal(t, []any{"t", 2, "1.5", 0, "B"}, call.Args)
}

func TestTableMapper_InsertSuppliedKey_MySQL(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
		res   dbtest.Response
		want  any
	}{
		{"supplied key", map[string]any{"id": 77, "title": "t", "sku": "C"}, dbtest.Response{RowsAffected: 1}, 77},
		{"supplied key wins over driver id", map[string]any{"id": "80", "sku": "D"}, dbtest.Response{RowsAffected: 1, LastInsertID: 80}, "80"},
		{"blank key uses generated id", map[string]any{"id": "", "sku": "E"}, dbtest.Response{RowsAffected: 1, LastInsertID: 13}, int64(13)},
		{"no key and no generated id", map[string]any{"sku": "F"}, dbtest.Response{RowsAffected: 1}, int64(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := dbtest.NewDialect(database.DialectMySQL).On("INSERT INTO items", tt.res)
			m := newItems(t, db)

			id, err := m.Insert(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestTableMapper_InsertSuppliedKey_Postgres(t *testing.T) {
	db := dbtest.New().On("INSERT INTO items", dbtest.Response{Columns: []string{"id"}, Rows: [][]any{{int64(77)}}})
	m := newItems(t, db)

	id, err := m.Insert(context.Background(), map[string]any{"id": "77", "sku": "C"})
	require.NoError(t, err)
	assert.Equal(t, int64(77), id, "RETURNING value is authoritative")
}

func TestTableMapper_InsertWithoutPrimaryKey(t *testing.T) {
	keyless := &schema.TableInfo{Name: "login_attempts", Columns: []schema.ColumnInfo{
		info("username", "text", "text"),
		info("success", "boolean", "bool"),
	}}
	db := dbtest.New().On("INSERT INTO login_attempts", dbtest.Response{RowsAffected: 1})
	m, err := New(context.Background(), db, staticReader{"login_attempts": keyless}, "login_attempts")
	require.NoError(t, err)

	n, err := m.Insert(context.Background(), map[string]any{"username": "ada", "success": true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NotContains(t, db.LastCall().SQL, "RETURNING")
	assert.Equal(t, []any{"ada", "t"}, db.LastCall().Args)
}

func TestTableMapper_ChangedValues(t *testing.T) {
	ab := &schema.TableInfo{Name: "pairs", Columns: []schema.ColumnInfo{
		info("id", "integer", "int4", pk),
		info("a", "integer", "int4"),
		info("b", "integer", "int4"),
	}}
	m, err := New(context.Background(), dbtest.New(), staticReader{"pairs": ab}, "pairs")
	require.NoError(t, err)

	changed := m.ChangedValues(map[string]any{"a": 1, "b": 2}, database.Record{"a": 1, "b": 3})
	assert.Equal(t, map[string]any{"b": 2}, changed)

	changed = m.ChangedValues(map[string]any{"a": 1, "b": 3}, database.Record{"a": 1, "b": 3})
	assert.Empty(t, changed)

	// form input arrives as strings; the driver hands back int32
	changed = m.ChangedValues(map[string]any{"a": "1", "b": "4", "zzz": "x"}, database.Record{"a": int32(1), "b": int32(3)})
	assert.Equal(t, map[string]any{"b": "4"}, changed)
}

func TestTableMapper_UpdateWithSuppliedRecord(t *testing.T) {
	db := dbtest.New().On("UPDATE items", dbtest.Response{Columns: []string{"id"}, Rows: [][]any{{int64(4)}}})
	m := newItems(t, db)

	record := database.Record{"id": int64(4), "title": "old", "note": nil, "qty": int32(1), "price": "2.50", "active": true, "sku": "S"}
	input := map[string]any{"title": "old", "note": "", "qty": "1", "price": "2.5", "active": "f"}

	_, err := m.UpdateByPrimaryKey(context.Background(), input, int64(4), record)
	require.NoError(t, err)

	call := db.LastCall()
	assert.Equal(t, "UPDATE items SET active = $1 WHERE id = $2 RETURNING id", call.SQL)
	assert.Equal(t, []any{"f", int64(4)}, call.Args)
	assert.Len(t, db.Calls(), 1, "no fetch when the record is supplied")
}

func TestTableMapper_UpdateNothingChanged(t *testing.T) {
	db := dbtest.New()
	m := newWidgets(t, db)

	record := database.Record{"id": int64(1), "name": "foo", "active": false}
	_, err := m.UpdateByPrimaryKey(context.Background(), map[string]any{"name": "foo"}, int64(1), record)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Empty(t, db.Calls())
}

func TestTableMapper_UpdateMissingRow(t *testing.T) {
	db := dbtest.New().On("SELECT * FROM widgets", dbtest.Response{Columns: widgetCols})
	m := newWidgets(t, db)

	_, err := m.UpdateByPrimaryKey(context.Background(), map[string]any{"name": "x"}, int64(99), nil)
	assert.True(t, errs.IsNotFound(err))
}

func TestTableMapper_UpdateAll(t *testing.T) {
	db := dbtest.New().On("UPDATE widgets", dbtest.Response{Columns: []string{"id"}, Rows: [][]any{{int64(2)}}})
	m := newWidgets(t, db)

	_, err := m.UpdateAllByPrimaryKey(context.Background(), map[string]any{"name": "same", "active": true, "bogus": 1}, int64(2))
	require.NoError(t, err)
	assert.Equal(t, "UPDATE widgets SET name = $1, active = $2 WHERE id = $3 RETURNING id", db.LastCall().SQL)
	assert.Equal(t, []any{"same", "t", int64(2)}, db.LastCall().Args)
}

func TestTableMapper_NotFoundSemantics(t *testing.T) {
	ctx := context.Background()
	db := dbtest.New().
		On("DELETE FROM widgets", dbtest.Response{Columns: []string{"id"}}).
		On("SELECT * FROM widgets", dbtest.Response{Columns: widgetCols})
	m := newWidgets(t, db)

	_, err := m.DeleteByPrimaryKey(ctx, int64(404), "")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
	assert.False(t, errs.IsQueryFailed(err))

	rec, err := m.SelectForPrimaryKey(ctx, int64(404), "")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestTableMapper_SelectForPrimaryKeyFailure(t *testing.T) {
	db := dbtest.New().On("SELECT", dbtest.Response{Err: errs.New(errs.ErrKindConnectionFailed, "connection reset")})
	m := newWidgets(t, db)

	rec, err := m.SelectForPrimaryKey(context.Background(), int64(1), "")
	assert.Nil(t, rec)
	assert.True(t, errs.IsConnectionFailed(err), "a broken query is not a missing row")
}

func TestTableMapper_DeleteReturning(t *testing.T) {
	db := dbtest.New().On("DELETE", dbtest.Response{Columns: []string{"name"}, Rows: [][]any{{"foo"}}})
	m := newWidgets(t, db)

	v, err := m.DeleteByPrimaryKey(context.Background(), int64(1), "name")
	require.NoError(t, err)
	assert.Equal(t, "foo", v)
	assert.Equal(t, "DELETE FROM widgets WHERE id = $1 RETURNING name", db.LastCall().SQL)

	_, err = m.DeleteByPrimaryKey(context.Background(), int64(1), "nope")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestTableMapper_List(t *testing.T) {
	db := dbtest.New().On("SELECT", dbtest.Response{Columns: widgetCols})
	m := newWidgets(t, db, WithSelectColumns("id, name"), WithOrderBy("name", query.Desc))

	_, err := m.List(context.Background(), ListOptions{
		Filter: query.Filter{query.Cond("active", "=", true)},
		Limit:  20,
		Offset: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM widgets WHERE active = $1 ORDER BY name DESC LIMIT 20 OFFSET 40", db.LastCall().SQL)

	_, err = m.List(context.Background(), ListOptions{OrderBy: "id", Direction: query.Asc})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM widgets ORDER BY id ASC", db.LastCall().SQL)

	_, err = m.List(context.Background(), ListOptions{Filter: query.Filter{query.Cond("1=1; --", "=", 1)}})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = m.List(context.Background(), ListOptions{OrderBy: "id; DROP TABLE widgets"})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestTableMapper_Count(t *testing.T) {
	db := dbtest.New().On("count(*)", dbtest.Response{Columns: []string{"count"}, Rows: [][]any{{int64(3)}}})
	m := newWidgets(t, db)

	n, err := m.Count(context.Background(), query.Filter{query.Cond("active", "=", true)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "SELECT count(*) FROM widgets WHERE active = $1", db.LastCall().SQL)
}

func TestTableMapper_Validate(t *testing.T) {
	m := newItems(t, dbtest.New(), WithConstraint("qty", ConstraintPositive))

	assert.NoError(t, m.Validate(map[string]any{"title": "short", "qty": 3}))
	assert.Error(t, m.Validate(map[string]any{"title": "far too long"}))
	assert.Error(t, m.Validate(map[string]any{"qty": 0}))
	assert.Error(t, m.Validate(map[string]any{"qty": ""}), "blank becomes 0")
	assert.NoError(t, m.Validate(map[string]any{"note": nil, "unknown": "ignored"}))
}

func TestNew_ThroughCatalog(t *testing.T) {
	db := dbtest.New().
		On("constraint_type IN", dbtest.Response{
			Columns: []string{"column_name", "constraint_type", "constraint_name"},
			Rows:    [][]any{{"id", "PRIMARY KEY", "widgets_pkey"}},
		}).
		On("FROM information_schema.columns", dbtest.Response{
			Columns: []string{"column_name", "data_type", "column_default", "is_nullable",
				"character_maximum_length", "numeric_precision", "numeric_scale", "udt_name"},
			Rows: [][]any{
				{"id", "integer", nil, "NO", nil, int64(32), int64(0), "int4"},
				{"name", "text", nil, "NO", nil, nil, nil, "text"},
				{"active", "boolean", "false", "NO", nil, nil, nil, "bool"},
			},
		})

	m, err := New(context.Background(), db, schema.ForDB(db, ""), "widgets")
	require.NoError(t, err)
	assert.Equal(t, "id", m.PrimaryKey())

	active, ok := m.Column("active")
	require.True(t, ok)
	assert.Equal(t, KindBoolean, active.Kind())
}
