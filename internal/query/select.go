package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
)

// SelectSpec describes a SELECT statement.
//
// Columns, From, Where and OrderBy are inserted verbatim and must come from
// trusted code, never from request input. Only filter values are bound.
type SelectSpec struct {
	Columns string // select-clause expression; "*" when empty
	From    string // table name or "a JOIN b ON …"
	Filter  Filter
	Where   string // extra clause ANDed after the filter
	OrderBy string
	Limit   int // 0 means no LIMIT
	Offset  int
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

func (d SortDirection) String() string {
	if d == Desc {
		return "DESC"
	}
	return "ASC"
}

// ParseDirection accepts "asc"/"desc" in any case; anything else is an error.
func ParseDirection(s string) (SortDirection, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ASC":
		return Asc, nil
	case "DESC":
		return Desc, nil
	default:
		return Asc, errs.Newf(errs.ErrKindInvalidInput, "invalid sort direction %q", s)
	}
}

// SelectBuilder constructs a parameterized SELECT query using a fluent API.
// Values are never interpolated into the SQL string; they are always passed as args.
//
// Usage:
//
//	sql, args, err := From("administrators").
//	    Columns("id, username, email").
//	    Where("active", "=", true).
//	    OrderBy("created_at", Desc).
//	    Limit(20).
//	    Build()
type SelectBuilder struct {
	spec SelectSpec
}

// From starts a new SelectBuilder reading from the given FROM expression.
func From(from string) *SelectBuilder {
	return &SelectBuilder{spec: SelectSpec{From: from}}
}

// Columns sets the select clause. If not called, SELECT * is used.
func (b *SelectBuilder) Columns(expr string) *SelectBuilder {
	b.spec.Columns = expr
	return b
}

// Where adds a predicate. Multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.spec.Filter = b.spec.Filter.And(column, op, value)
	return b
}

// Filter appends a whole predicate set.
func (b *SelectBuilder) Filter(f Filter) *SelectBuilder {
	b.spec.Filter = append(b.spec.Filter, f...)
	return b
}

// WhereRaw ANDs a trusted SQL fragment after the predicates.
func (b *SelectBuilder) WhereRaw(clause string) *SelectBuilder {
	b.spec.Where = clause
	return b
}

// OrderBy appends an ORDER BY term for the given column and direction.
// An empty column adds nothing.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	if column == "" {
		return b
	}
	term := column + " " + dir.String()
	if b.spec.OrderBy == "" {
		b.spec.OrderBy = term
	} else {
		b.spec.OrderBy += ", " + term
	}
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.spec.Limit = n
	return b
}

// Offset sets the number of rows to skip (for pagination).
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.spec.Offset = n
	return b
}

// Spec returns the accumulated statement description.
func (b *SelectBuilder) Spec() SelectSpec {
	return b.spec
}

// Build produces the final SQL string and argument slice.
func (b *SelectBuilder) Build() (string, []any, error) {
	return BuildSelect(b.spec)
}

// Query builds the statement and binds it to db for execution.
func (b *SelectBuilder) Query(db database.DB) (*Query, error) {
	return Select(db, b.spec)
}

// Select builds spec and returns it as an executable Query.
func Select(db database.DB, spec SelectSpec) (*Query, error) {
	sql, args, err := BuildSelect(spec)
	if err != nil {
		return nil, err
	}
	return New(db, sql, args...), nil
}

// BuildSelect renders spec into SQL with $n placeholders.
//
// Placeholders are numbered from $1 in clause order and only for clauses
// that bind a value: IS NULL / IS NOT NULL are emitted literally. Any
// invalid predicate fails the whole build; no partial SQL is returned.
func BuildSelect(spec SelectSpec) (string, []any, error) {
	if strings.TrimSpace(spec.From) == "" {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "select requires a FROM clause")
	}
	if spec.Limit < 0 || spec.Offset < 0 {
		return "", nil, errs.New(errs.ErrKindInvalidInput, "limit and offset must not be negative")
	}

	cols := spec.Columns
	if strings.TrimSpace(cols) == "" {
		cols = "*"
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(spec.From)

	clauses, args, err := whereClauses(spec.Filter, 1)
	if err != nil {
		return "", nil, err
	}
	if w := strings.TrimSpace(spec.Where); w != "" {
		clauses = append(clauses, w)
	}

	// --- WHERE ---
	for i, c := range clauses {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		sb.WriteString(c)
	}

	// --- ORDER BY ---
	if o := strings.TrimSpace(spec.OrderBy); o != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(o)
	}

	// --- LIMIT / OFFSET ---
	if spec.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(spec.Limit))
	}
	if spec.Offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(spec.Offset))
	}

	return sb.String(), args, nil
}

// whereClauses renders f into individual clauses, numbering placeholders
// from start.
func whereClauses(f Filter, start int) ([]string, []any, error) {
	var (
		clauses []string
		args    []any
		argIdx  = start
	)

	for _, cf := range f {
		if strings.TrimSpace(cf.Column) == "" {
			return nil, nil, errs.New(errs.ErrKindInvalidInput, "filter column must not be empty")
		}
		if len(cf.Operators) != len(cf.Values) {
			return nil, nil, errs.Newf(errs.ErrKindInvalidInput,
				"filter on %s has %d operators but %d values", cf.Column, len(cf.Operators), len(cf.Values))
		}

		for i, rawOp := range cf.Operators {
			op, ok := ValidOperator(rawOp)
			if !ok {
				return nil, nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported WHERE operator: %q", rawOp)
			}

			v := cf.Values[i]
			switch {
			case isNull(v) && isNullOp(op):
				clauses = append(clauses, fmt.Sprintf("%s %s NULL", cf.Column, op))
			case isNull(v):
				return nil, nil, errs.Newf(errs.ErrKindInvalidInput,
					"NULL value on %s requires IS or IS NOT, got %s", cf.Column, op)
			case isNullOp(op):
				return nil, nil, errs.Newf(errs.ErrKindInvalidInput,
					"operator %s on %s only accepts NULL", op, cf.Column)
			default:
				clauses = append(clauses, fmt.Sprintf("%s %s $%d", cf.Column, op, argIdx))
				args = append(args, v)
				argIdx++
			}
		}
	}

	return clauses, args, nil
}
