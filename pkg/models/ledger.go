package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessedTable is one entry of the processed-tables ledger.
type ProcessedTable struct {
	TableName     string
	RowsWritten   int64
	ProcessedDate time.Time
}

// ExcludedTable is one entry of the excluded-tables ledger.
type ExcludedTable struct {
	TableName     string
	Issues        []ValidationIssue
	ExclusionDate time.Time
}

// RunLedger is the run-scoped record of per-table outcomes. Both ledgers
// start empty, are append-only during the run, and are persisted inside the
// run's unit of work so an abort leaves no trace of them.
type RunLedger struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Processed []ProcessedTable
	Excluded  []ExcludedTable
}

// NewRunLedger returns an empty ledger for a fresh run.
func NewRunLedger() *RunLedger {
	return &RunLedger{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
	}
}

// IsProcessed reports whether table was already consolidated in this run.
// Used for within-run idempotence; a fresh run always starts empty.
func (l *RunLedger) IsProcessed(table string) bool {
	for _, p := range l.Processed {
		if p.TableName == table {
			return true
		}
	}
	return false
}

// AppendProcessed records a successfully consolidated table.
func (l *RunLedger) AppendProcessed(table string, rows int64) {
	l.Processed = append(l.Processed, ProcessedTable{
		TableName:     table,
		RowsWritten:   rows,
		ProcessedDate: time.Now().UTC(),
	})
}

// AppendExcluded records a rejected table with its full issue list.
func (l *RunLedger) AppendExcluded(table string, issues []ValidationIssue) {
	l.Excluded = append(l.Excluded, ExcludedTable{
		TableName:     table,
		Issues:        issues,
		ExclusionDate: time.Now().UTC(),
	})
}
