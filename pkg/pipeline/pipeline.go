// Package pipeline orchestrates the reconciliation run: validation,
// normalization, transactional consolidation, nearest-neighbor enrichment,
// and the spatial index rebuild.
package pipeline

import (
	"context"

	"github.com/layereddb/poiforge/pkg/models"
)

// SourceReader streams rows of one source table. Reads are independent per
// table and safe to run in parallel.
type SourceReader interface {
	ReadRows(ctx context.Context, table models.SourceTable, columns []models.ColumnMetadata) ([]models.SourceRow, error)
}

// TargetStore is the unit of work over the unified target table and the run
// ledgers. Every write between Begin and Commit either commits as a whole or
// leaves no observable effect.
type TargetStore interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context)

	EnsureFresh(ctx context.Context) error
	InsertPOIs(ctx context.Context, pois []models.UnifiedPOI) error
	RecordProcessed(ctx context.Context, tableName string, rowsWritten int64) error
	RecordExcluded(ctx context.Context, tableName string, issues []models.ValidationIssue) error

	LoadForEnrichment(ctx context.Context) ([]models.POIPoint, error)
	UpdateNearest(ctx context.Context, poiID string, nearest map[string]models.NearestNeighborResult) error
	BuildSpatialIndex(ctx context.Context) error
}
