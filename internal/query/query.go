// Package query builds and executes parameterized SQL.
//
// Builders always emit Postgres-style $n placeholders. Query is the only
// place that knows about the backend: it rebinds placeholders for the
// connection's dialect, rewrites booleans on request, and classifies
// failures into *errs.Error carrying the failing statement.
package query

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
	"github.com/koustreak/backoffice/internal/logger"
	"github.com/koustreak/backoffice/internal/metrics"
)

var observer atomic.Pointer[metrics.Metrics]

// SetMetrics installs the collectors every executed statement reports to.
// Call once during startup.
func SetMetrics(m *metrics.Metrics) {
	observer.Store(m)
}

// Query is a SQL statement plus positional arguments bound to a connection.
// A Query runs once: a successful execution clears it, and a second run
// fails with ErrKindInvalidInput until the caller rebuilds it.
type Query struct {
	db         database.DB
	sql        string
	args       []any
	alterBools bool
	executed   bool
}

// New binds sql and args to db.
func New(db database.DB, sql string, args ...any) *Query {
	return &Query{db: db, sql: sql, args: args}
}

// AlterBooleanArgs makes execution send native bool arguments as the
// backend's boolean literal instead.
func (q *Query) AlterBooleanArgs() *Query {
	q.alterBools = true
	return q
}

// SQL returns the statement as built, before placeholder rebinding.
func (q *Query) SQL() string { return q.sql }

// Args returns the positional arguments.
func (q *Query) Args() []any { return q.args }

// Execute runs the statement and materialises every returned row.
func (q *Query) Execute(ctx context.Context) (*database.RowSet, error) {
	sql, args, err := q.prepare("")
	if err != nil {
		return nil, err
	}

	started := time.Now()
	rs, err := q.query(ctx, sql, args)
	q.finish(ctx, sql, args, started, err)
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Exec runs a statement that returns no rows.
func (q *Query) Exec(ctx context.Context) (database.Result, error) {
	sql, args, err := q.prepare("")
	if err != nil {
		return database.Result{}, err
	}

	started := time.Now()
	res, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		err = errs.WithQuery(err, sql, args)
	}
	q.finish(ctx, sql, args, started, err)
	return res, err
}

// ExecuteWithReturnField runs an INSERT/UPDATE/DELETE and returns field from
// the first affected row. Zero affected rows is ErrKindNotFound.
//
// Backends without RETURNING get the generated id when the driver reports
// one, otherwise the affected row count.
func (q *Query) ExecuteWithReturnField(ctx context.Context, field string) (any, error) {
	if strings.TrimSpace(field) == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "return field must not be empty")
	}

	if q.db != nil && !q.db.Dialect().SupportsReturning() {
		res, err := q.Exec(ctx)
		if err != nil {
			return nil, err
		}
		if res.RowsAffected == 0 {
			return nil, errs.New(errs.ErrKindNotFound, "statement affected no rows")
		}
		if res.LastInsertID != 0 {
			return res.LastInsertID, nil
		}
		return res.RowsAffected, nil
	}

	sql, args, err := q.prepare(" RETURNING " + field)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	rs, err := q.query(ctx, sql, args)
	if err == nil && rs.Len() == 0 {
		err = errs.WithQuery(errs.New(errs.ErrKindNotFound, "statement affected no rows"), sql, args)
	}
	q.finish(ctx, sql, args, started, err)
	if err != nil {
		return nil, err
	}

	rec := rs.First()
	if v, ok := rec[field]; ok {
		return v, nil
	}
	// RETURNING with a qualified or aliased expression names the column differently.
	return rec[rs.Columns[0]], nil
}

// GetOne runs a statement expected to produce a single value.
// Zero rows yields (nil, nil); more than one row or column is a caller error.
func (q *Query) GetOne(ctx context.Context) (any, error) {
	sql := q.sql
	rs, err := q.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if rs.Len() == 0 {
		return nil, nil
	}
	if rs.Len() > 1 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "expected at most one row, got %d: %s", rs.Len(), sql)
	}
	if len(rs.Columns) != 1 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "expected one column, got %d: %s", len(rs.Columns), sql)
	}
	return rs.First()[rs.Columns[0]], nil
}

// prepare validates the query can run and returns the backend-ready
// statement. suffix is appended before rebinding.
func (q *Query) prepare(suffix string) (string, []any, error) {
	if q.executed {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "query already executed; build a new one")
	}
	if strings.TrimSpace(q.sql) == "" {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "query has no SQL")
	}
	if q.db == nil {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "query has no connection")
	}

	dialect := q.db.Dialect()
	args := q.args
	if q.alterBools {
		args = make([]any, len(q.args))
		for i, a := range q.args {
			if b, ok := a.(bool); ok {
				args[i] = dialect.BoolLiteral(b)
			} else {
				args[i] = a
			}
		}
	}
	return dialect.Rebind(q.sql + suffix), args, nil
}

func (q *Query) query(ctx context.Context, sql string, args []any) (*database.RowSet, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, errs.WithQuery(err, sql, args)
	}
	rs, err := database.ScanRows(rows)
	if err != nil {
		return nil, errs.WithQuery(err, sql, args)
	}
	return rs, nil
}

// finish records the execution and, on success, clears the buffers.
func (q *Query) finish(ctx context.Context, sql string, args []any, started time.Time, err error) {
	observer.Load().ObserveQuery(sql, started, err)

	logger.FromContext(ctx).DebugWith("query executed", map[string]interface{}{
		"sql":         sql,
		"args":        len(args),
		"duration_ms": time.Since(started).Milliseconds(),
		"ok":          err == nil,
	})

	if err == nil || errs.IsNotFound(err) {
		q.executed = true
		q.sql = ""
		q.args = nil
	}
}
