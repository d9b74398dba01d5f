// Package dbtest provides a scripted, in-memory database.DB for unit tests.
//
// Responses are registered against SQL substrings and matched in
// registration order:
//
//	db := dbtest.New().
//	    Once("INSERT INTO widgets", dbtest.Response{Columns: []string{"id"}, Rows: [][]any{{int64(1)}}}).
//	    On("FROM widgets", dbtest.Response{Columns: []string{"id", "name"}})
//
// Every statement is recorded and can be inspected with Calls.
package dbtest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
)

// Response is the scripted outcome of a matched statement.
type Response struct {
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	LastInsertID int64
	Err          error
}

// Call is one recorded statement.
type Call struct {
	SQL  string
	Args []any
}

type handler struct {
	match string
	resp  Response
	once  bool
	used  bool
}

// DB is a scripted database.DB. It is safe for concurrent use.
type DB struct {
	mu       sync.Mutex
	dialect  database.Dialect
	handlers []*handler
	calls    []Call
	closed   bool
	pingErr  error
}

var _ database.DB = (*DB)(nil)

// New returns an empty Postgres-dialect DB.
func New() *DB {
	return &DB{dialect: database.DialectPostgres}
}

// NewDialect returns an empty DB speaking the given dialect.
func NewDialect(d database.Dialect) *DB {
	return &DB{dialect: d}
}

// On answers every statement containing match with resp.
func (db *DB) On(match string, resp Response) *DB {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.handlers = append(db.handlers, &handler{match: match, resp: resp})
	return db
}

// Once answers the next statement containing match with resp, then retires.
func (db *DB) Once(match string, resp Response) *DB {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.handlers = append(db.handlers, &handler{match: match, resp: resp, once: true})
	return db
}

// FailPing makes Ping return err.
func (db *DB) FailPing(err error) *DB {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.pingErr = err
	return db
}

// Calls returns every recorded statement in execution order.
func (db *DB) Calls() []Call {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]Call, len(db.calls))
	copy(out, db.calls)
	return out
}

// CallsMatching returns the recorded statements containing substr.
func (db *DB) CallsMatching(substr string) []Call {
	var out []Call
	for _, c := range db.Calls() {
		if strings.Contains(c.SQL, substr) {
			out = append(out, c)
		}
	}
	return out
}

// LastCall returns the most recent statement, or a zero Call.
func (db *DB) LastCall() Call {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.calls) == 0 {
		return Call{}
	}
	return db.calls[len(db.calls)-1]
}

// Closed reports whether Close was called.
func (db *DB) Closed() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.closed
}

// --- database.DB implementation ---

func (db *DB) Ping(_ context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.pingErr
}

func (db *DB) Close() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
}

func (db *DB) Dialect() database.Dialect { return db.dialect }

func (db *DB) Query(_ context.Context, sql string, args ...any) (database.Rows, error) {
	resp, err := db.answer(sql, args)
	if err != nil {
		return nil, err
	}
	return &rows{columns: resp.Columns, data: resp.Rows, pos: -1}, nil
}

func (db *DB) QueryRow(_ context.Context, sql string, args ...any) (database.Row, error) {
	resp, err := db.answer(sql, args)
	if err != nil {
		return nil, err
	}
	if len(resp.Rows) == 0 {
		return &row{err: errs.New(errs.ErrKindNotFound, "record not found")}, nil
	}
	return &row{values: resp.Rows[0]}, nil
}

func (db *DB) Exec(_ context.Context, sql string, args ...any) (database.Result, error) {
	resp, err := db.answer(sql, args)
	if err != nil {
		return database.Result{}, err
	}
	return database.Result{RowsAffected: resp.RowsAffected, LastInsertID: resp.LastInsertID}, nil
}

func (db *DB) answer(sql string, args []any) (Response, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.calls = append(db.calls, Call{SQL: sql, Args: append([]any(nil), args...)})

	for _, h := range db.handlers {
		if h.used || !strings.Contains(sql, h.match) {
			continue
		}
		if h.once {
			h.used = true
		}
		if h.resp.Err != nil {
			return Response{}, h.resp.Err
		}
		return h.resp, nil
	}
	return Response{}, errs.Newf(errs.ErrKindQueryFailed, "dbtest: no handler for %q", sql)
}

// --- result wrappers ---

type rows struct {
	columns []string
	data    [][]any
	pos     int
}

func (r *rows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return errs.New(errs.ErrKindQueryFailed, "dbtest: scan outside of row")
	}
	return scanInto(r.data[r.pos], dest)
}

func (r *rows) Columns() ([]string, error) { return r.columns, nil }
func (r *rows) Close()                     {}
func (r *rows) Err() error                 { return nil }

type row struct {
	values []any
	err    error
}

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return errs.Newf(errs.ErrKindQueryFailed, "dbtest: row has %d values, scan has %d targets", len(values), len(dest))
	}
	for i := range dest {
		if err := assign(dest[i], values[i]); err != nil {
			return errs.Wrap(errs.ErrKindQueryFailed, fmt.Sprintf("dbtest: column %d", i), err)
		}
	}
	return nil
}

// assign mimics the conversions a driver performs when scanning.
func assign(dest, v any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer, got %T", dest)
	}
	target := dv.Elem()

	if v == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}

	switch target.Kind() {
	case reflect.Interface:
		target.Set(reflect.ValueOf(v))
		return nil
	case reflect.Ptr:
		alloc := reflect.New(target.Type().Elem())
		if err := assign(alloc.Interface(), v); err != nil {
			return err
		}
		target.Set(alloc)
		return nil
	case reflect.String:
		if s, ok := v.(string); ok {
			target.SetString(s)
		} else {
			target.SetString(fmt.Sprint(v))
		}
		return nil
	}

	vv := reflect.ValueOf(v)
	if vv.Type().AssignableTo(target.Type()) {
		target.Set(vv)
		return nil
	}
	if vv.Type().ConvertibleTo(target.Type()) && vv.Kind() != reflect.String {
		target.Set(vv.Convert(target.Type()))
		return nil
	}
	return fmt.Errorf("cannot scan %T into %s", v, target.Type())
}
