// Package mapper exposes uniform CRUD and metadata over introspected tables.
//
// A TableMapper is built once per table from the database catalog and is
// safe for concurrent use afterwards. Hand-declared constraints are the
// only metadata that may change after construction and they can only grow.
package mapper

import (
	"math"
	"strings"
	"sync"

	"github.com/koustreak/backoffice/internal/schema"
)

// Kind groups column types by how their values are compared and defaulted.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindDecimal
	KindBoolean
	KindTime
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindBoolean:
		return "boolean"
	case KindTime:
		return "time"
	default:
		return "other"
	}
}

// Column is the metadata of one table column.
type Column struct {
	info schema.ColumnInfo
	kind Kind

	mu          sync.RWMutex
	constraints []string
}

func newColumn(info schema.ColumnInfo) *Column {
	return &Column{info: info, kind: classify(info)}
}

func (c *Column) Name() string       { return c.info.Name }
func (c *Column) DataType() string   { return c.info.DataType }
func (c *Column) UDTName() string    { return c.info.UDTName }
func (c *Column) IsNullable() bool   { return c.info.IsNullable }
func (c *Column) IsPrimaryKey() bool { return c.info.IsPrimaryKey }
func (c *Column) IsUnique() bool     { return c.info.IsUnique }
func (c *Column) Kind() Kind         { return c.kind }

// IsNumeric reports whether the column holds integers or decimals.
func (c *Column) IsNumeric() bool { return c.kind == KindInteger || c.kind == KindDecimal }

// Default returns the column default expression, if any.
func (c *Column) Default() (string, bool) {
	if c.info.DefaultValue == nil {
		return "", false
	}
	return *c.info.DefaultValue, true
}

// MaxLength returns the character limit of a char/varchar column.
func (c *Column) MaxLength() (int64, bool) {
	if c.info.MaxLength == nil {
		return 0, false
	}
	return *c.info.MaxLength, true
}

// NumericPrecision returns the declared precision and scale of a numeric column.
func (c *Column) NumericPrecision() (precision, scale int64, ok bool) {
	if c.info.NumericPrecision == nil {
		return 0, 0, false
	}
	if c.info.NumericScale != nil {
		scale = *c.info.NumericScale
	}
	return *c.info.NumericPrecision, scale, true
}

// IntRange returns the bounds of an integer column's storage type.
func (c *Column) IntRange() (lo, hi int64, ok bool) {
	if c.kind != KindInteger {
		return 0, 0, false
	}

	t := strings.ToLower(c.info.UDTName)
	unsigned := strings.Contains(t, "unsigned")
	if i := strings.IndexAny(t, "( "); i >= 0 {
		t = t[:i]
	}

	var bits uint
	switch t {
	case "int2", "smallint":
		bits = 16
	case "int4", "integer", "int":
		bits = 32
	case "int8", "bigint":
		bits = 64
	case "tinyint":
		bits = 8
	case "mediumint":
		bits = 24
	default:
		return math.MinInt64, math.MaxInt64, true
	}

	if unsigned {
		if bits == 64 {
			return 0, math.MaxInt64, true
		}
		return 0, 1<<bits - 1, true
	}
	if bits == 64 {
		return math.MinInt64, math.MaxInt64, true
	}
	return -(1 << (bits - 1)), 1<<(bits-1) - 1, true
}

// AddConstraint attaches a named constraint such as ConstraintPositive.
// Constraints can be added but never removed.
func (c *Column) AddConstraint(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.constraints {
		if existing == name {
			return
		}
	}
	c.constraints = append(c.constraints, name)
}

// HasConstraint reports whether the named constraint was attached.
func (c *Column) HasConstraint(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, existing := range c.constraints {
		if existing == name {
			return true
		}
	}
	return false
}

// Constraints returns a copy of the attached constraint names.
func (c *Column) Constraints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.constraints...)
}

func classify(info schema.ColumnInfo) Kind {
	dt := strings.ToLower(info.DataType)
	udt := strings.ToLower(info.UDTName)

	switch {
	case dt == "boolean" || dt == "bool":
		return KindBoolean
	case dt == "tinyint" && strings.HasPrefix(udt, "tinyint(1)"):
		// MySQL spells BOOLEAN as tinyint(1).
		return KindBoolean
	case dt == "smallint" || dt == "integer" || dt == "bigint" ||
		dt == "tinyint" || dt == "mediumint" || dt == "int":
		return KindInteger
	case dt == "numeric" || dt == "decimal" || dt == "real" ||
		dt == "double precision" || dt == "double" || dt == "float":
		return KindDecimal
	case strings.HasPrefix(dt, "timestamp") || strings.HasPrefix(dt, "time") ||
		dt == "date" || dt == "datetime":
		return KindTime
	case dt == "text" || strings.HasPrefix(dt, "character") || dt == "varchar" ||
		dt == "char" || strings.HasSuffix(dt, "text") || dt == "enum" || dt == "set":
		return KindText
	default:
		return KindOther
	}
}
