package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/layereddb/poiforge/pkg/apperrors"
	"github.com/layereddb/poiforge/pkg/config"
	"github.com/layereddb/poiforge/pkg/models"
	"github.com/layereddb/poiforge/pkg/spatial"
)

// TargetRepository owns the unified target table and both run ledgers. All
// writes run inside one transaction spanning the whole run, so a failure at
// any point leaves no observable effect.
type TargetRepository struct {
	pool   *pgxpool.Pool
	cfg    config.PipelineConfig
	logger *zap.Logger
	tx     pgx.Tx
}

// NewTargetRepository creates a TargetRepository. If logger is nil, a no-op
// logger is used.
func NewTargetRepository(pool *pgxpool.Pool, cfg config.PipelineConfig, logger *zap.Logger) *TargetRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TargetRepository{pool: pool, cfg: cfg, logger: logger}
}

// Begin opens the run's unit of work.
func (r *TargetRepository) Begin(ctx context.Context) error {
	if r.tx != nil {
		return fmt.Errorf("unit of work already active")
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	r.tx = tx
	return nil
}

// Commit commits the run's unit of work.
func (r *TargetRepository) Commit(ctx context.Context) error {
	if r.tx == nil {
		return fmt.Errorf("no active unit of work")
	}
	err := r.tx.Commit(ctx)
	r.tx = nil
	if err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

// Rollback aborts the run's unit of work. Safe to call after Commit.
func (r *TargetRepository) Rollback(ctx context.Context) {
	if r.tx == nil {
		return
	}
	if err := r.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.Warn("Failed to roll back unit of work", zap.Error(err))
	}
	r.tx = nil
}

func (r *TargetRepository) conn() (pgx.Tx, error) {
	if r.tx == nil {
		return nil, fmt.Errorf("no active unit of work")
	}
	return r.tx, nil
}

func (r *TargetRepository) targetRef() string {
	return qualifiedTableName("public", r.cfg.TargetTable)
}

// EnsureFresh drops and re-creates the target table and both ledgers. The
// pipeline is not incremental across runs; durability is per-run.
func (r *TargetRepository) EnsureFresh(ctx context.Context) error {
	tx, err := r.conn()
	if err != nil {
		return err
	}

	target := r.targetRef()
	processed := qualifiedTableName("public", r.cfg.ProcessedLog)
	excluded := qualifiedTableName("public", r.cfg.ExcludedLog)

	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", target),
		fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", processed),
		fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", excluded),
		fmt.Sprintf(`CREATE TABLE %s (
			poi_id VARCHAR(50) PRIMARY KEY,
			name VARCHAR(200),
			layer VARCHAR(100),
			district_id VARCHAR(20),
			district VARCHAR(100),
			neighborhood_id VARCHAR(20),
			neighborhood VARCHAR(100),
			latitude DECIMAL(9,6),
			longitude DECIMAL(9,6),
			geometry GEOMETRY,
			attributes JSONB,
			nearest_pois JSONB
		)`, target),
		fmt.Sprintf(`CREATE TABLE %s (
			table_name VARCHAR(255) PRIMARY KEY,
			rows_written BIGINT NOT NULL DEFAULT 0,
			processed_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, processed),
		fmt.Sprintf(`CREATE TABLE %s (
			table_name VARCHAR(255),
			reason VARCHAR(500),
			exclusion_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, excluded),
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("prepare fresh target tables: %w", err)
		}
	}
	return nil
}

// InsertPOIs appends one table's normalized rows to the unified target.
// Geometry is normalized to the canonical SRID at write time.
func (r *TargetRepository) InsertPOIs(ctx context.Context, pois []models.UnifiedPOI) error {
	tx, err := r.conn()
	if err != nil {
		return err
	}
	if len(pois) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		INSERT INTO %s
			(poi_id, name, layer, district_id, district, neighborhood_id, neighborhood,
			 latitude, longitude, geometry, attributes, nearest_pois)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
			CASE WHEN $10::text IS NULL THEN NULL
			     ELSE ST_Transform(ST_GeomFromEWKT($10::text), $11::int) END,
			$12::jsonb, NULL)
	`, r.targetRef())

	batch := &pgx.Batch{}
	for _, poi := range pois {
		attrs, err := json.Marshal(poi.Attributes)
		if err != nil {
			return fmt.Errorf("poi %s: serialize attributes: %w", poi.POIID, apperrors.ErrMalformedAttributes)
		}
		batch.Queue(query,
			poi.POIID, poi.Name, poi.Layer, poi.DistrictID, poi.District,
			poi.NeighborhoodID, poi.Neighborhood, poi.Latitude, poi.Longitude,
			poi.Geometry, r.cfg.CanonicalSRID, string(attrs))
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()
	for range pois {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert unified rows: %w", err)
		}
	}
	return nil
}

// RecordProcessed appends a successfully consolidated table to the
// processed-tables ledger.
func (r *TargetRepository) RecordProcessed(ctx context.Context, tableName string, rowsWritten int64) error {
	tx, err := r.conn()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (table_name, rows_written) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		qualifiedTableName("public", r.cfg.ProcessedLog))
	if _, err := tx.Exec(ctx, query, tableName, rowsWritten); err != nil {
		return fmt.Errorf("record processed table %s: %w", tableName, err)
	}
	return nil
}

// RecordExcluded appends one ledger row per validation issue, mirroring the
// audit shape readers expect: table name plus a human-readable reason.
func (r *TargetRepository) RecordExcluded(ctx context.Context, tableName string, issues []models.ValidationIssue) error {
	tx, err := r.conn()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (table_name, reason) VALUES ($1, $2)",
		qualifiedTableName("public", r.cfg.ExcludedLog))
	for _, issue := range issues {
		if _, err := tx.Exec(ctx, query, tableName, issue.Reason()); err != nil {
			return fmt.Errorf("record excluded table %s: %w", tableName, err)
		}
	}
	return nil
}

// LoadForEnrichment returns the enrichment projection of every unified row:
// a representative coordinate (geometry centroid) plus the address
// attributes. Ordered by poi_id for deterministic processing.
func (r *TargetRepository) LoadForEnrichment(ctx context.Context) ([]models.POIPoint, error) {
	tx, err := r.conn()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT
			poi_id,
			layer,
			name,
			geometry IS NOT NULL as has_geometry,
			COALESCE(ST_X(ST_Centroid(geometry)), 0) as x,
			COALESCE(ST_Y(ST_Centroid(geometry)), 0) as y,
			attributes->>'street' as street,
			attributes->>'housenumber' as housenumber
		FROM %s
		ORDER BY poi_id
	`, r.targetRef())

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load rows for enrichment: %w", err)
	}
	defer rows.Close()

	var points []models.POIPoint
	for rows.Next() {
		var p models.POIPoint
		if err := rows.Scan(&p.POIID, &p.Layer, &p.Name, &p.HasGeometry, &p.X, &p.Y, &p.Street, &p.Housenumber); err != nil {
			return nil, fmt.Errorf("scan enrichment row: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrichment rows: %w", err)
	}

	return points, nil
}

// UpdateNearest writes the nearest_pois document for one designated row. No
// other field of the row is touched.
func (r *TargetRepository) UpdateNearest(ctx context.Context, poiID string, nearest map[string]models.NearestNeighborResult) error {
	tx, err := r.conn()
	if err != nil {
		return err
	}

	doc, err := json.Marshal(nearest)
	if err != nil {
		return fmt.Errorf("poi %s: serialize nearest_pois: %w", poiID, err)
	}

	query := fmt.Sprintf("UPDATE %s SET nearest_pois = $2::jsonb WHERE poi_id = $1", r.targetRef())
	if _, err := tx.Exec(ctx, query, poiID, string(doc)); err != nil {
		return fmt.Errorf("update nearest_pois for %s: %w", poiID, err)
	}
	return nil
}

// BuildSpatialIndex (re)builds the GIST index over the target's geometry
// column. CREATE INDEX IF NOT EXISTS makes rebuilds idempotent.
func (r *TargetRepository) BuildSpatialIndex(ctx context.Context) error {
	tx, err := r.conn()
	if err != nil {
		return err
	}
	query := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_poi_geom ON %s USING GIST (geometry)", r.targetRef())
	if _, err := tx.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrIndexBuild, err)
	}
	return nil
}

// WithinRadius returns the poi_ids of all unified rows within distance of
// center, in canonical-SRID units. Served by the GIST index once it exists.
func (r *TargetRepository) WithinRadius(ctx context.Context, center spatial.Point, distance float64) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT poi_id
		FROM %s
		WHERE geometry IS NOT NULL
		  AND ST_DWithin(geometry, ST_SetSRID(ST_MakePoint($1, $2), $3), $4)
		ORDER BY poi_id
	`, r.targetRef())

	rows, err := r.pool.Query(ctx, query, center.X, center.Y, r.cfg.CanonicalSRID, distance)
	if err != nil {
		return nil, fmt.Errorf("radius query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan radius row: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate radius rows: %w", err)
	}

	return ids, nil
}
