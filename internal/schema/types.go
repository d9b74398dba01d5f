package schema

// ColumnInfo describes a single column as reported by the catalog.
type ColumnInfo struct {
	Name     string
	DataType string // information_schema data_type: integer, character varying, boolean, ...
	UDTName  string // postgres udt_name (int4, bool, ...); mysql column_type (tinyint(1), ...)

	IsNullable   bool
	IsPrimaryKey bool
	IsUnique     bool

	DefaultValue     *string // nil if no default
	MaxLength        *int64  // nil for non-char types
	NumericPrecision *int64
	NumericScale     *int64
}

// TableInfo is the introspected shape of one table, columns in ordinal order.
type TableInfo struct {
	Schema  string
	Name    string
	Columns []ColumnInfo
}

// PrimaryKeys returns the names of the primary-key columns.
func (t *TableInfo) PrimaryKeys() []string {
	var pks []string
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			pks = append(pks, c.Name)
		}
	}
	return pks
}

// ForeignKey is a single-column reference between two tables.
type ForeignKey struct {
	Name       string
	FromTable  string
	FromColumn string
	ToTable    string
	ToColumn   string
}

const (
	constraintPrimary = "PRIMARY KEY"
	constraintUnique  = "UNIQUE"
)

// keyConstraint is one row of the key-constraint catalog query.
type keyConstraint struct {
	column string
	kind   string
	name   string
}

// applyConstraints flags primary-key columns and columns covered by a
// single-column unique constraint. Composite unique constraints make no
// individual column unique.
func applyConstraints(info *TableInfo, keys []keyConstraint) {
	width := make(map[string]int)
	for _, k := range keys {
		if k.kind == constraintUnique {
			width[k.name]++
		}
	}

	for _, k := range keys {
		for i := range info.Columns {
			col := &info.Columns[i]
			if col.Name != k.column {
				continue
			}
			switch k.kind {
			case constraintPrimary:
				col.IsPrimaryKey = true
			case constraintUnique:
				if width[k.name] == 1 {
					col.IsUnique = true
				}
			}
		}
	}
}
