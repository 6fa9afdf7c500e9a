package schema

import (
	"fmt"
	"strings"

	"github.com/layereddb/poiforge/pkg/models"
)

// typeCompat maps a canonical data type to the catalog types accepted for it.
var typeCompat = map[string]map[string]bool{
	"character varying": {
		"character varying": true,
		"varchar":           true,
		"character":         true,
		"text":              true,
	},
	"numeric": {
		"numeric":          true,
		"decimal":          true,
		"double precision": true,
		"real":             true,
	},
}

// Validate checks one table profile against the canonical schema and returns
// the complete issue list. Every check runs - validation never short-circuits,
// so one table can carry several issue kinds. A result with zero issues marks
// the table valid.
func Validate(profile TableProfile, canonical models.CanonicalSchema) models.ValidationResult {
	var issues []models.ValidationIssue

	// 1. Every non-nullable canonical column must exist.
	for _, spec := range canonical.Columns {
		if spec.Nullable {
			continue
		}
		if _, ok := profile.Column(spec.Name); !ok {
			issues = append(issues, models.ValidationIssue{
				Kind:   models.IssueMissingColumn,
				Column: spec.Name,
			})
		}
	}

	// 2. Every canonical column present must have a compatible type.
	for _, spec := range canonical.Columns {
		col, ok := profile.Column(spec.Name)
		if !ok {
			continue
		}
		if !compatibleType(spec.DataType, col.DataType) {
			issues = append(issues, models.ValidationIssue{
				Kind:   models.IssueTypeMismatch,
				Column: spec.Name,
				Detail: fmt.Sprintf("expected data type %s, got %s", spec.DataType, col.DataType),
			})
		}
	}

	// 3. Non-nullable canonical columns must hold zero nulls in live data.
	for _, spec := range canonical.Columns {
		if spec.Nullable {
			continue
		}
		if _, ok := profile.Column(spec.Name); !ok {
			continue
		}
		if n := profile.NullCounts[spec.Name]; n > 0 {
			issues = append(issues, models.ValidationIssue{
				Kind:   models.IssueNullViolation,
				Column: spec.Name,
				Detail: fmt.Sprintf("%d null values", n),
			})
		}
	}

	// 4. A primary key must be declared on the key column.
	key := canonical.KeyColumn()
	if col, ok := profile.Column(key.Name); !ok || !col.IsPrimaryKey {
		issues = append(issues, models.ValidationIssue{
			Kind:   models.IssueMissingPrimaryKey,
			Column: key.Name,
		})
	}

	// 5. A foreign key on the foreign-key column must reference the
	// districts relation.
	fkCol := canonical.ForeignKeyColumn()
	if !hasDistrictFK(profile.ForeignKeys, fkCol.Name, canonical.ForeignKeyTarget) {
		issues = append(issues, models.ValidationIssue{
			Kind:   models.IssueMissingForeignKey,
			Column: fkCol.Name,
		})
	}

	return models.ValidationResult{Table: profile.Table, Issues: issues}
}

func compatibleType(canonicalType, actualType string) bool {
	accepted, ok := typeCompat[canonicalType]
	if !ok {
		return strings.EqualFold(canonicalType, actualType)
	}
	return accepted[strings.ToLower(actualType)]
}

func hasDistrictFK(fks []models.ForeignKeyMetadata, column, target string) bool {
	for _, fk := range fks {
		if fk.SourceColumn == column && strings.Contains(strings.ToLower(fk.TargetTable), strings.ToLower(target)) {
			return true
		}
	}
	return false
}
