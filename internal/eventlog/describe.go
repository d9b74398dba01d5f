package eventlog

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/koustreak/backoffice/internal/database"
)

// Formatter renders one field value for an event description.
type Formatter func(v any) string

// DescribeChanges renders changed fields as `field: old -> new`, sorted by
// field name. Fields with an entry in formatters are rendered through it.
func DescribeChanges(changed map[string]any, before database.Record, formatters map[string]Formatter) string {
	names := make([]string, 0, len(changed))
	for name := range changed {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		format := formatters[name]
		if format == nil {
			format = Quote
		}
		parts = append(parts, fmt.Sprintf("%s: %s -> %s", name, format(before[name]), format(changed[name])))
	}
	return strings.Join(parts, "; ")
}

// Quote is the default Formatter: strings are quoted, NULL is spelled out.
func Quote(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("%q", x)
	case []byte:
		return fmt.Sprintf("%q", x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// Redacted hides the value, for secrets such as password hashes.
func Redacted(any) string { return "[redacted]" }
