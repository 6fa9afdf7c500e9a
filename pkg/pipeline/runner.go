package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/layereddb/poiforge/pkg/apperrors"
	"github.com/layereddb/poiforge/pkg/config"
	"github.com/layereddb/poiforge/pkg/models"
	"github.com/layereddb/poiforge/pkg/normalize"
	"github.com/layereddb/poiforge/pkg/schema"
)

// Runner executes one full reconciliation run as a single unit of work:
// fresh target and ledgers, validate and normalize every candidate table,
// consolidate the valid ones, enrich the designated layer, rebuild the
// spatial index, then commit. Any failure past validation rolls the whole
// run back.
type Runner struct {
	cfg          config.PipelineConfig
	canonical    models.CanonicalSchema
	introspector schema.Introspector
	sources      SourceReader
	target       TargetStore
	normalizer   *normalize.Normalizer
	enricher     *Enricher
	logger       *zap.Logger
}

// NewRunner creates a Runner. If logger is nil, a no-op logger is used.
func NewRunner(cfg config.PipelineConfig, introspector schema.Introspector, sources SourceReader, target TargetStore, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	canonical := models.DefaultCanonicalSchema()
	return &Runner{
		cfg:          cfg,
		canonical:    canonical,
		introspector: introspector,
		sources:      sources,
		target:       target,
		normalizer:   normalize.New(canonical, cfg.PrefixLength, cfg.CanonicalSRID),
		enricher:     NewEnricher(cfg.DesignatedLayer, cfg.TieTolerance, logger),
		logger:       logger,
	}
}

// RunSummary reports the outcome of one committed run.
type RunSummary struct {
	Ledger       *models.RunLedger
	RowsWritten  int64
	RowsEnriched int
	Duration     time.Duration
}

// tableOutcome carries one table's validation result and, when valid, its
// normalized rows from the parallel phase into the serialized write phase.
type tableOutcome struct {
	result models.ValidationResult
	pois   []models.UnifiedPOI
}

// Run executes the pipeline. On error the unit of work is rolled back and
// the store shows no effect from the run.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	ledger := models.NewRunLedger()

	r.logger.Info("Starting reconciliation run",
		zap.String("run_id", ledger.RunID.String()),
		zap.String("source_schema", r.cfg.SourceSchema),
		zap.String("designated_layer", r.cfg.DesignatedLayer))

	if err := r.target.Begin(ctx); err != nil {
		return nil, err
	}
	defer r.target.Rollback(ctx)

	if err := r.target.EnsureFresh(ctx); err != nil {
		return nil, err
	}

	tables, err := r.introspector.DiscoverSourceTables(ctx)
	if err != nil {
		return nil, err
	}

	outcomes, err := r.prepareTables(ctx, tables)
	if err != nil {
		return nil, err
	}

	rowsWritten, err := r.consolidate(ctx, ledger, outcomes)
	if err != nil {
		return nil, err
	}

	enriched, err := r.enricher.Enrich(ctx, r.target)
	if err != nil {
		return nil, err
	}

	if err := r.target.BuildSpatialIndex(ctx); err != nil {
		return nil, err
	}

	if err := r.target.Commit(ctx); err != nil {
		return nil, err
	}

	summary := &RunSummary{
		Ledger:       ledger,
		RowsWritten:  rowsWritten,
		RowsEnriched: enriched,
		Duration:     time.Since(start),
	}

	r.logger.Info("Reconciliation run committed",
		zap.String("run_id", ledger.RunID.String()),
		zap.Int("tables_processed", len(ledger.Processed)),
		zap.Int("tables_excluded", len(ledger.Excluded)),
		zap.Int64("rows_written", rowsWritten),
		zap.Int("rows_enriched", enriched),
		zap.Duration("duration", summary.Duration))

	return summary, nil
}

// prepareTables validates and normalizes every candidate table. Tables are
// independent, so the work fans out; outcomes keep discovery order so the
// write phase stays deterministic.
func (r *Runner) prepareTables(ctx context.Context, tables []models.SourceTable) ([]tableOutcome, error) {
	outcomes := make([]tableOutcome, len(tables))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxParallel)

	for i, table := range tables {
		i, table := i, table
		g.Go(func() error {
			profile, err := r.introspector.Profile(gctx, table, r.canonical)
			if err != nil {
				return fmt.Errorf("profile %s: %w", table.TableName, err)
			}

			result := schema.Validate(profile, r.canonical)
			if !result.Valid() {
				outcomes[i] = tableOutcome{result: result}
				return nil
			}

			rows, err := r.sources.ReadRows(gctx, table, profile.Columns)
			if err != nil {
				return err
			}
			pois, err := r.normalizer.Normalize(table, rows)
			if err != nil {
				return err
			}
			outcomes[i] = tableOutcome{result: result, pois: pois}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// consolidate serializes the per-table writes: excluded tables go to the
// exclusion ledger, valid tables append to the unified target and the
// processed ledger. Identifier uniqueness is enforced across the whole run.
func (r *Runner) consolidate(ctx context.Context, ledger *models.RunLedger, outcomes []tableOutcome) (int64, error) {
	seen := make(map[string]string)
	var rowsWritten int64

	for _, outcome := range outcomes {
		tableName := outcome.result.Table.TableName

		if !outcome.result.Valid() {
			r.logger.Warn("Excluding table",
				zap.String("table", tableName),
				zap.Int("issues", len(outcome.result.Issues)))
			if err := r.target.RecordExcluded(ctx, tableName, outcome.result.Issues); err != nil {
				return 0, err
			}
			ledger.AppendExcluded(tableName, outcome.result.Issues)
			continue
		}

		if ledger.IsProcessed(tableName) {
			continue
		}

		for _, poi := range outcome.pois {
			if other, dup := seen[poi.POIID]; dup {
				return 0, fmt.Errorf("table %s: id %s already emitted by %s: %w",
					tableName, poi.POIID, other, apperrors.ErrIdentifierCollision)
			}
			seen[poi.POIID] = tableName
		}

		if err := r.target.InsertPOIs(ctx, outcome.pois); err != nil {
			return 0, err
		}
		if err := r.target.RecordProcessed(ctx, tableName, int64(len(outcome.pois))); err != nil {
			return 0, err
		}
		ledger.AppendProcessed(tableName, int64(len(outcome.pois)))
		rowsWritten += int64(len(outcome.pois))

		r.logger.Info("Consolidated table",
			zap.String("table", tableName),
			zap.Int("rows", len(outcome.pois)))
	}

	return rowsWritten, nil
}
