package mapper

import (
	"context"
	"testing"

	"github.com/koustreak/backoffice/internal/database/dbtest"
	"github.com/koustreak/backoffice/internal/errs"
	"github.com/koustreak/backoffice/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var administratorColumns = []ViewColumn{
	{Alias: "id", Expr: "administrators.id"},
	{Alias: "username", Expr: "administrators.username"},
	{Alias: "role", Expr: "roles.name"},
}

const administratorsFrom = "administrators JOIN roles ON roles.id = administrators.role_id"

func TestViewMapper_Select(t *testing.T) {
	db := dbtest.New().On("SELECT", dbtest.Response{
		Columns: []string{"id", "username", "role"},
		Rows:    [][]any{{int64(1), "ada", "owner"}},
	})
	v, err := NewView(newWidgets(t, db), "administrators_list", administratorsFrom, administratorColumns,
		WithViewOrderBy("username", query.Asc))
	require.NoError(t, err)

	rs, err := v.Select(context.Background(), query.Filter{
		query.Cond("role", "=", "owner"),
		query.Cond("username", "ILIKE", "a%"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rs.Len())

	call := db.LastCall()
	assert.Equal(t,
		"SELECT administrators.id AS id, administrators.username AS username, roles.name AS role "+
			"FROM administrators JOIN roles ON roles.id = administrators.role_id "+
			"WHERE roles.name = $1 AND administrators.username ILIKE $2 ORDER BY administrators.username ASC",
		call.SQL)
	assert.Equal(t, []any{"owner", "a%"}, call.Args)
}

func TestViewMapper_RejectsUnknownAlias(t *testing.T) {
	db := dbtest.New()
	v, err := NewView(newWidgets(t, db), "administrators_list", administratorsFrom, administratorColumns)
	require.NoError(t, err)

	_, err = v.Select(context.Background(), query.Filter{query.Cond("roles.id", "=", 1)})
	assert.True(t, errs.IsInvalidInput(err), "source expressions are not filterable")

	_, err = v.List(context.Background(), ListOptions{OrderBy: "password"})
	assert.True(t, errs.IsInvalidInput(err))
	assert.Empty(t, db.Calls())
}

func TestViewMapper_ListPaging(t *testing.T) {
	db := dbtest.New().On("SELECT", dbtest.Response{Columns: []string{"id"}})
	v, err := NewView(newWidgets(t, db), "w", "", []ViewColumn{{Alias: "id", Expr: "widgets.id"}})
	require.NoError(t, err)

	_, err = v.List(context.Background(), ListOptions{OrderBy: "id", Direction: query.Desc, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, "SELECT widgets.id AS id FROM widgets ORDER BY widgets.id DESC LIMIT 5", db.LastCall().SQL)
}

func TestNewView_Errors(t *testing.T) {
	m := newWidgets(t, dbtest.New())

	_, err := NewView(nil, "v", "t", administratorColumns)
	assert.True(t, errs.IsInvalidInput(err))

	_, err = NewView(m, "v", "t", nil)
	assert.True(t, errs.IsInvalidInput(err))

	_, err = NewView(m, "v", "t", []ViewColumn{{Alias: "a", Expr: "x"}, {Alias: "a", Expr: "y"}})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = NewView(m, "v", "t", administratorColumns, WithViewOrderBy("nope", query.Asc))
	assert.True(t, errs.IsInvalidInput(err))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	w := newWidgets(t, dbtest.New())
	require.NoError(t, r.Register(w))
	assert.True(t, errs.IsConflict(r.Register(w)))

	v, err := NewView(w, "widget_names", "", []ViewColumn{{Alias: "name", Expr: "widgets.name"}})
	require.NoError(t, err)
	require.NoError(t, r.RegisterView(v))

	got, err := r.Table("widgets")
	require.NoError(t, err)
	assert.Same(t, w, got)

	_, err = r.Table("gadgets")
	assert.True(t, errs.IsNotFound(err))

	gotView, err := r.View("widget_names")
	require.NoError(t, err)
	assert.Same(t, v, gotView)

	assert.Equal(t, []string{"widgets"}, r.Tables())
	assert.Equal(t, []string{"widget_names"}, r.Views())
}
