package models

import "fmt"

// IssueKind enumerates the validation checks a source table can fail.
type IssueKind string

const (
	IssueMissingColumn     IssueKind = "missing_column"
	IssueTypeMismatch      IssueKind = "type_mismatch"
	IssueNullViolation     IssueKind = "null_violation"
	IssueMissingPrimaryKey IssueKind = "missing_primary_key"
	IssueMissingForeignKey IssueKind = "missing_foreign_key"
)

// ValidationIssue is one reason a source table was excluded. A table with any
// issue contributes zero rows to the unified table; exclusion is binary.
type ValidationIssue struct {
	Kind   IssueKind
	Column string
	Detail string
}

// Reason renders the issue the way it is recorded in the excluded ledger.
func (i ValidationIssue) Reason() string {
	switch i.Kind {
	case IssueMissingColumn:
		return fmt.Sprintf("Missing column: %s", i.Column)
	case IssueTypeMismatch:
		return fmt.Sprintf("Column %s: %s", i.Column, i.Detail)
	case IssueNullViolation:
		return fmt.Sprintf("Column %s contains NULL values, expected NOT NULL", i.Column)
	case IssueMissingPrimaryKey:
		return fmt.Sprintf("Missing PRIMARY KEY on %s column", i.Column)
	case IssueMissingForeignKey:
		return fmt.Sprintf("Missing or incorrect foreign key on %s", i.Column)
	default:
		return i.Detail
	}
}

// ValidationResult pairs a table with the full list of issues found by the
// validator. Checks are not short-circuited, so a table can carry several
// issue kinds at once.
type ValidationResult struct {
	Table  SourceTable
	Issues []ValidationIssue
}

// Valid reports whether the table passed every check.
func (r ValidationResult) Valid() bool {
	return len(r.Issues) == 0
}
