package mapper

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/koustreak/backoffice/internal/database"
	"github.com/koustreak/backoffice/internal/errs"
)

// Constraints understood by Column.Validate.
const (
	ConstraintPositive    = "positive"
	ConstraintNonNegative = "non_negative"
	ConstraintNotBlank    = "not_blank"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"15:04:05",
}

// Equal reports whether a submitted value matches the stored one, compared
// according to the column kind:
//
//	text     string forms are equal
//	integer  both parse to the same int64
//	decimal  both parse to the same rational (1.50 == 1.5)
//	boolean  both parse to the same truth value (t, true, 1, yes, on)
//	time     both parse to the same instant
//
// A blank submission equals a NULL stored value. Values that cannot be
// parsed for the column kind fall back to comparing their string forms.
func (c *Column) Equal(submitted, stored any) bool {
	if stored == nil {
		return isBlank(submitted)
	}
	if submitted == nil {
		return false
	}

	switch c.kind {
	case KindInteger:
		a, okA := toInt64(submitted)
		b, okB := toInt64(stored)
		if okA && okB {
			return a == b
		}
	case KindDecimal:
		a, okA := toRat(submitted)
		b, okB := toRat(stored)
		if okA && okB {
			return a.Cmp(b) == 0
		}
	case KindBoolean:
		a, okA := toBool(submitted)
		b, okB := toBool(stored)
		if okA && okB {
			return a == b
		}
	case KindTime:
		a, okA := toTime(submitted)
		b, okB := toTime(stored)
		if okA && okB {
			return a.Equal(b)
		}
	}
	return toString(submitted) == toString(stored)
}

// Blank returns the value stored in place of a blank submission: NULL for
// nullable columns, 0 for numbers, the backend false literal for booleans
// and the empty string otherwise.
func (c *Column) Blank(d database.Dialect) any {
	switch {
	case c.info.IsNullable:
		return nil
	case c.IsNumeric():
		return 0
	case c.kind == KindBoolean:
		return d.BoolLiteral(false)
	default:
		return ""
	}
}

// Parse converts s, typically a URL path segment, to the column's Go type.
func (c *Column) Parse(s string) (any, error) {
	switch c.kind {
	case KindInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "%s: %q is not an integer", c.Name(), s)
		}
		return n, nil
	case KindDecimal:
		if _, ok := new(big.Rat).SetString(strings.TrimSpace(s)); !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "%s: %q is not a number", c.Name(), s)
		}
		return strings.TrimSpace(s), nil
	case KindBoolean:
		b, ok := toBool(s)
		if !ok {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "%s: %q is not a boolean", c.Name(), s)
		}
		return b, nil
	default:
		return s, nil
	}
}

// Validate checks v against the column's catalog limits and attached
// constraints. Nil is accepted for nullable columns and columns with a default.
func (c *Column) Validate(v any) error {
	if v == nil {
		if c.info.IsNullable || c.info.DefaultValue != nil {
			return nil
		}
		return errs.Newf(errs.ErrKindInvalidInput, "%s: value required", c.Name())
	}

	if limit, ok := c.MaxLength(); ok {
		if n := utf8.RuneCountInString(toString(v)); int64(n) > limit {
			return errs.Newf(errs.ErrKindInvalidInput, "%s: %d characters exceeds limit of %d", c.Name(), n, limit)
		}
	}

	if c.kind == KindInteger {
		n, ok := toInt64(v)
		if !ok {
			return errs.Newf(errs.ErrKindInvalidInput, "%s: %v is not an integer", c.Name(), v)
		}
		if lo, hi, _ := c.IntRange(); n < lo || n > hi {
			return errs.Newf(errs.ErrKindInvalidInput, "%s: %d out of range [%d, %d]", c.Name(), n, lo, hi)
		}
	}

	for _, name := range c.Constraints() {
		if err := c.check(name, v); err != nil {
			return err
		}
	}
	return nil
}

func (c *Column) check(constraint string, v any) error {
	switch constraint {
	case ConstraintPositive, ConstraintNonNegative:
		r, ok := toRat(v)
		if !ok {
			return errs.Newf(errs.ErrKindInvalidInput, "%s: %v is not a number", c.Name(), v)
		}
		if r.Sign() < 0 || (constraint == ConstraintPositive && r.Sign() == 0) {
			return errs.Newf(errs.ErrKindInvalidInput, "%s: must be %s", c.Name(), strings.ReplaceAll(constraint, "_", "-"))
		}
	case ConstraintNotBlank:
		if strings.TrimSpace(toString(v)) == "" {
			return errs.Newf(errs.ErrKindInvalidInput, "%s: must not be blank", c.Name())
		}
	}
	return nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case driver.Valuer:
		if dv, err := x.Value(); err == nil && dv != nil {
			return toString(dv)
		}
	}
	return fmt.Sprint(v)
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		if x > 1<<63-1 {
			return 0, false
		}
		return int64(x), true
	case float64:
		if x != float64(int64(x)) {
			return 0, false
		}
		return int64(x), true
	case string, []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(toString(x)), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toRat(v any) (*big.Rat, bool) {
	switch x := v.(type) {
	case float32:
		r := new(big.Rat).SetFloat64(float64(x))
		return r, r != nil
	case float64:
		r := new(big.Rat).SetFloat64(x)
		return r, r != nil
	case string:
		return new(big.Rat).SetString(strings.TrimSpace(x))
	case []byte:
		return new(big.Rat).SetString(strings.TrimSpace(string(x)))
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil || dv == nil {
			return nil, false
		}
		return toRat(dv)
	}
	if n, ok := toInt64(v); ok {
		return new(big.Rat).SetInt64(n), true
	}
	return nil, false
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string, []byte:
		switch strings.ToLower(strings.TrimSpace(toString(x))) {
		case "t", "true", "1", "y", "yes", "on":
			return true, true
		case "f", "false", "0", "n", "no", "off", "":
			return false, true
		}
		return false, false
	}
	if n, ok := toInt64(v); ok && (n == 0 || n == 1) {
		return n == 1, true
	}
	return false, false
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string, []byte:
		s := strings.TrimSpace(toString(x))
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
