package query

import (
	"context"
	"errors"
	"testing"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/database/dbtest"
	"github.com/koustreak/backoffice/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_Execute(t *testing.T) {
	db := dbtest.New().On("FROM widgets", dbtest.Response{
		Columns: []string{"id", "name"},
		Rows:    [][]any{{int64(1), "foo"}, {int64(2), "bar"}},
	})

	q := New(db, "SELECT id, name FROM widgets WHERE name != $1", "baz")
	rs, err := q.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name"}, rs.Columns)
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, database.Record{"id": int64(1), "name": "foo"}, rs.First())
	assert.Equal(t, []any{"baz"}, db.LastCall().Args)

	assert.Empty(t, q.SQL(), "buffers are reset after execution")
	assert.Nil(t, q.Args())
}

func TestQuery_SecondExecuteFails(t *testing.T) {
	db := dbtest.New().On("SELECT", dbtest.Response{Columns: []string{"n"}, Rows: [][]any{{1}}})

	q := New(db, "SELECT 1 AS n")
	_, err := q.Execute(context.Background())
	require.NoError(t, err)

	_, err = q.Execute(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Len(t, db.Calls(), 1, "second execution must not reach the database")
}

func TestQuery_FailureCarriesStatement(t *testing.T) {
	db := dbtest.New().On("INSERT", dbtest.Response{
		Err: errs.Wrap(errs.ErrKindConflict, "duplicate key", errors.New("23505")),
	})

	q := New(db, "INSERT INTO roles (name) VALUES ($1)", "admin")
	_, err := q.Exec(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConflict(err))
	assert.True(t, errs.IsFailure(err))

	sql, args, ok := errs.QueryOf(err)
	require.True(t, ok)
	assert.Equal(t, "INSERT INTO roles (name) VALUES ($1)", sql)
	assert.Equal(t, []any{"admin"}, args)

	assert.NotEmpty(t, q.SQL(), "a failed query keeps its buffers")
}

func TestQuery_AlterBooleanArgs(t *testing.T) {
	tests := []struct {
		name    string
		dialect database.Dialect
		want    []any
	}{
		{"postgres", database.DialectPostgres, []any{"t", "f", "x", 3}},
		{"mysql", database.DialectMySQL, []any{1, 0, "x", 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := dbtest.NewDialect(tt.dialect).On("UPDATE", dbtest.Response{RowsAffected: 1})
			args := []any{true, false, "x", 3}

			_, err := New(db, "UPDATE t SET a = $1, b = $2, c = $3 WHERE id = $4", args...).
				AlterBooleanArgs().
				Exec(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.want, db.LastCall().Args)
			assert.Equal(t, true, args[0], "caller's slice is untouched")
		})
	}
}

func TestQuery_NativeBooleansByDefault(t *testing.T) {
	db := dbtest.New().On("UPDATE", dbtest.Response{RowsAffected: 1})
	_, err := New(db, "UPDATE t SET a = $1 WHERE id = $2", true, 1).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{true, 1}, db.LastCall().Args)
}

func TestQuery_RebindsForMySQL(t *testing.T) {
	db := dbtest.NewDialect(database.DialectMySQL).On("SELECT", dbtest.Response{Columns: []string{"id"}})

	_, err := New(db, "SELECT id FROM widgets WHERE name = $1 AND id > $2", "a", 1).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM widgets WHERE name = ? AND id > ?", db.LastCall().SQL)
}

func TestQuery_ExecuteWithReturnField(t *testing.T) {
	t.Run("returns field of first row", func(t *testing.T) {
		db := dbtest.New().On("RETURNING id", dbtest.Response{
			Columns: []string{"id"},
			Rows:    [][]any{{int64(42)}},
		})

		v, err := New(db, "INSERT INTO widgets (name) VALUES ($1)", "foo").
			ExecuteWithReturnField(context.Background(), "id")
		require.NoError(t, err)
		assert.Equal(t, int64(42), v)
		assert.Equal(t, "INSERT INTO widgets (name) VALUES ($1) RETURNING id", db.LastCall().SQL)
	})

	t.Run("zero rows is not found", func(t *testing.T) {
		db := dbtest.New().On("RETURNING", dbtest.Response{Columns: []string{"id"}})

		_, err := New(db, "DELETE FROM widgets WHERE id = $1", 9).
			ExecuteWithReturnField(context.Background(), "id")
		require.Error(t, err)
		assert.True(t, errs.IsNotFound(err))
		assert.False(t, errs.IsQueryFailed(err))
	})

	t.Run("mysql falls back to last insert id", func(t *testing.T) {
		db := dbtest.NewDialect(database.DialectMySQL).On("INSERT", dbtest.Response{RowsAffected: 1, LastInsertID: 7})

		v, err := New(db, "INSERT INTO widgets (name) VALUES ($1)", "foo").
			ExecuteWithReturnField(context.Background(), "id")
		require.NoError(t, err)
		assert.Equal(t, int64(7), v)
		assert.NotContains(t, db.LastCall().SQL, "RETURNING")
	})

	t.Run("mysql zero rows is not found", func(t *testing.T) {
		db := dbtest.NewDialect(database.DialectMySQL).On("DELETE", dbtest.Response{})

		_, err := New(db, "DELETE FROM widgets WHERE id = $1", 9).
			ExecuteWithReturnField(context.Background(), "id")
		assert.True(t, errs.IsNotFound(err))
	})

	t.Run("empty field", func(t *testing.T) {
		_, err := New(dbtest.New(), "DELETE FROM t").ExecuteWithReturnField(context.Background(), "")
		assert.True(t, errs.IsInvalidInput(err))
	})
}

func TestQuery_GetOne(t *testing.T) {
	tests := []struct {
		name    string
		resp    dbtest.Response
		want    any
		wantErr bool
	}{
		{
			name: "one row one column",
			resp: dbtest.Response{Columns: []string{"count"}, Rows: [][]any{{int64(3)}}},
			want: int64(3),
		},
		{
			name: "zero rows",
			resp: dbtest.Response{Columns: []string{"count"}},
			want: nil,
		},
		{
			name:    "two rows",
			resp:    dbtest.Response{Columns: []string{"id"}, Rows: [][]any{{1}, {2}}},
			wantErr: true,
		},
		{
			name:    "two columns",
			resp:    dbtest.Response{Columns: []string{"id", "name"}, Rows: [][]any{{1, "a"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := dbtest.New().On("SELECT", tt.resp)
			got, err := New(db, "SELECT x FROM t").GetOne(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuery_Misuse(t *testing.T) {
	_, err := New(dbtest.New(), "   ").Execute(context.Background())
	assert.True(t, errs.IsInvalidInput(err))

	_, err = New(nil, "SELECT 1").Execute(context.Background())
	assert.True(t, errs.IsInvalidInput(err))
}
