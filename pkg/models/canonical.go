// Package models contains domain types for poiforge.
package models

// ColumnRole classifies a canonical column's structural role.
type ColumnRole string

const (
	RoleKey        ColumnRole = "key"         // primary key column
	RoleForeignKey ColumnRole = "foreign-key" // references the districts relation
	RoleStandard   ColumnRole = "standard"
)

// ColumnSpec describes one required column of the canonical schema.
type ColumnSpec struct {
	Name     string
	DataType string // information_schema data_type, e.g. "character varying"
	Nullable bool
	Role     ColumnRole
}

// CanonicalSchema is the fixed column set every source table is checked
// against. Exactly one column has RoleKey and exactly one has RoleForeignKey.
type CanonicalSchema struct {
	Columns []ColumnSpec

	// ForeignKeyTarget is the relation the foreign-key column must reference.
	ForeignKeyTarget string
}

// DefaultCanonicalSchema returns the canonical POI source shape: a varchar
// primary key, a district foreign key, and the standard descriptive columns.
func DefaultCanonicalSchema() CanonicalSchema {
	return CanonicalSchema{
		Columns: []ColumnSpec{
			{Name: "id", DataType: "character varying", Nullable: false, Role: RoleKey},
			{Name: "district_id", DataType: "character varying", Nullable: false, Role: RoleForeignKey},
			{Name: "name", DataType: "character varying", Nullable: true, Role: RoleStandard},
			{Name: "latitude", DataType: "numeric", Nullable: true, Role: RoleStandard},
			{Name: "longitude", DataType: "numeric", Nullable: true, Role: RoleStandard},
			{Name: "neighborhood", DataType: "character varying", Nullable: true, Role: RoleStandard},
			{Name: "district", DataType: "character varying", Nullable: true, Role: RoleStandard},
			{Name: "neighborhood_id", DataType: "character varying", Nullable: true, Role: RoleStandard},
			{Name: "geometry", DataType: "character varying", Nullable: true, Role: RoleStandard},
		},
		ForeignKeyTarget: "districts",
	}
}

// Column returns the spec for name, if present.
func (s CanonicalSchema) Column(name string) (ColumnSpec, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// KeyColumn returns the single RoleKey column.
func (s CanonicalSchema) KeyColumn() ColumnSpec {
	for _, c := range s.Columns {
		if c.Role == RoleKey {
			return c
		}
	}
	return ColumnSpec{}
}

// ForeignKeyColumn returns the single RoleForeignKey column.
func (s CanonicalSchema) ForeignKeyColumn() ColumnSpec {
	for _, c := range s.Columns {
		if c.Role == RoleForeignKey {
			return c
		}
	}
	return ColumnSpec{}
}

// IsCanonical reports whether name is one of the canonical columns. Columns
// outside this set are folded into the attributes document.
func (s CanonicalSchema) IsCanonical(name string) bool {
	_, ok := s.Column(name)
	return ok
}
