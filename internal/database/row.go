package database

import "github.com/koustreak/backoffice/internal/errs"

// Record is a single result row keyed by column name.
type Record map[string]any

// RowSet is a fully materialised result set. Columns keeps the order the
// backend returned them in, which maps cannot.
type RowSet struct {
	Columns []string
	Records []Record
}

// Len returns the number of rows.
func (rs *RowSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Records)
}

// First returns the first row, or nil for an empty set.
func (rs *RowSet) First() Record {
	if rs.Len() == 0 {
		return nil
	}
	return rs.Records[0]
}

// ScanRows reads all rows from the result set into a RowSet, where each
// value is the Go-native representation produced by the driver.
//
// The returned Records slice is always non-nil (empty slice on zero rows).
// ScanRows always closes the Rows; callers do not need to call Close().
func ScanRows(rows Rows) (*RowSet, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to read column names", err)
	}

	rs := &RowSet{Columns: columns, Records: make([]Record, 0)}

	for rows.Next() {
		// Allocate scan targets as *any so the driver can write any type.
		dest := make([]any, len(columns))
		destPtrs := make([]any, len(columns))
		for i := range dest {
			destPtrs[i] = &dest[i]
		}

		if err := rows.Scan(destPtrs...); err != nil {
			return nil, errs.Wrap(errs.ErrKindQueryFailed, "failed to scan row", err)
		}

		rec := make(Record, len(columns))
		for i, col := range columns {
			rec[col] = dest[i]
		}
		rs.Records = append(rs.Records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, "error during row iteration", err)
	}

	return rs, nil
}
