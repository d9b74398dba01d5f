package query

import (
	"reflect"
	"strings"
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// Any operator not in this list is rejected to prevent SQL injection
// through the operator position (which cannot be parameterized).
var validOps = map[string]bool{
	"=":      true,
	"!=":     true,
	"<":      true,
	">":      true,
	"<=":     true,
	">=":     true,
	"IS":     true,
	"IS NOT": true,
	"LIKE":   true,
	"ILIKE":  true,
}

// ColumnFilter holds the predicates for one column. Operators and Values
// are parallel slices; every pair becomes one clause, ANDed together.
type ColumnFilter struct {
	// Column is the SQL expression the predicates apply to,
	// e.g. "name" or "administrators.username".
	Column    string
	Operators []string
	Values    []any
}

// Filter is an ordered predicate set. Clauses are emitted in slice order,
// and within a column in operator order.
type Filter []ColumnFilter

// Cond returns a single-predicate ColumnFilter.
func Cond(column, op string, value any) ColumnFilter {
	return ColumnFilter{Column: column, Operators: []string{op}, Values: []any{value}}
}

// And appends a predicate to the entry for column, creating it if needed.
func (f Filter) And(column, op string, value any) Filter {
	for i := range f {
		if f[i].Column == column {
			f[i].Operators = append(f[i].Operators, op)
			f[i].Values = append(f[i].Values, value)
			return f
		}
	}
	return append(f, Cond(column, op, value))
}

// Columns returns the column expressions referenced by the filter.
func (f Filter) Columns() []string {
	cols := make([]string, len(f))
	for i, cf := range f {
		cols[i] = cf.Column
	}
	return cols
}

// Rename returns a copy of f with every column passed through fn.
func (f Filter) Rename(fn func(string) string) Filter {
	out := make(Filter, len(f))
	for i, cf := range f {
		out[i] = ColumnFilter{Column: fn(cf.Column), Operators: cf.Operators, Values: cf.Values}
	}
	return out
}

// ValidOperator reports whether op is allowed and returns its canonical form.
func ValidOperator(op string) (string, bool) {
	canon := strings.ToUpper(strings.Join(strings.Fields(op), " "))
	return canon, validOps[canon]
}

func isNullOp(op string) bool {
	return op == "IS" || op == "IS NOT"
}

// isNull treats untyped nil and nil pointers/maps/slices as SQL NULL.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
