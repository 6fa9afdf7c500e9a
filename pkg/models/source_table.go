package models

// SourceTable identifies one candidate relation in the source schema.
// Source tables are read-only inputs; the pipeline never mutates them.
type SourceTable struct {
	SchemaName string
	TableName  string
	RowCount   int64
}

// ColumnMetadata describes one column of a source table as reported by the
// store's catalog.
type ColumnMetadata struct {
	ColumnName      string
	DataType        string
	IsNullable      bool
	IsPrimaryKey    bool
	OrdinalPosition int
}

// ForeignKeyMetadata describes one declared foreign key constraint.
type ForeignKeyMetadata struct {
	ConstraintName string
	SourceColumn   string
	TargetTable    string
	TargetColumn   string
}

// SourceRow is one row of a source table with values aligned to Columns.
// Values are already folded into the tagged AttrValue variant so downstream
// code never sees driver-specific types.
type SourceRow struct {
	Columns []string
	Values  []AttrValue
}

// Value returns the value for column name and whether the column is present.
func (r SourceRow) Value(name string) (AttrValue, bool) {
	for i, c := range r.Columns {
		if c == name {
			return r.Values[i], true
		}
	}
	return AttrValue{}, false
}
