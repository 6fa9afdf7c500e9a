//go:build integration

package repositories_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layereddb/poiforge/pkg/apperrors"
	"github.com/layereddb/poiforge/pkg/config"
	"github.com/layereddb/poiforge/pkg/models"
	"github.com/layereddb/poiforge/pkg/pipeline"
	"github.com/layereddb/poiforge/pkg/repositories"
	"github.com/layereddb/poiforge/pkg/schema"
	"github.com/layereddb/poiforge/pkg/spatial"
	"github.com/layereddb/poiforge/pkg/testhelpers"
)

// createSourceTable provisions a fixture table with the canonical column set
// plus any extra columns, referencing the districts relation.
func createSourceTable(t *testing.T, db *testhelpers.TestDB, name string, extraCols string) {
	t.Helper()
	ctx := context.Background()

	_, err := db.Pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS berlin_source_data.%s", name))
	require.NoError(t, err)

	ddl := fmt.Sprintf(`CREATE TABLE berlin_source_data.%s (
		id VARCHAR(20) PRIMARY KEY,
		district_id VARCHAR(20) NOT NULL REFERENCES berlin_source_data.districts (id),
		name VARCHAR(200),
		latitude NUMERIC,
		longitude NUMERIC,
		neighborhood VARCHAR(100),
		district VARCHAR(100),
		neighborhood_id VARCHAR(20),
		geometry VARCHAR(200)%s
	)`, name, extraCols)
	_, err = db.Pool.Exec(ctx, ddl)
	require.NoError(t, err)
}

func pipelineConfig(include []string, target string) config.PipelineConfig {
	return config.PipelineConfig{
		SourceSchema:    "berlin_source_data",
		TargetTable:     target,
		ProcessedLog:    target + "_processed_log",
		ExcludedLog:     target + "_excluded_log",
		CanonicalSRID:   4326,
		PrefixLength:    4,
		DesignatedLayer: "long_term_listings",
		TieTolerance:    1e-9,
		ReferenceTables: []string{"districts", "neighborhoods"},
		Tables:          include,
		MaxParallel:     2,
	}
}

func newRunner(db *testhelpers.TestDB, cfg config.PipelineConfig) (*pipeline.Runner, *repositories.TargetRepository) {
	intro := schema.NewPgIntrospector(db.Pool, cfg.SourceSchema, cfg.ReferenceTables, cfg.Tables, nil)
	sources := repositories.NewSourceRepository(db.Pool)
	target := repositories.NewTargetRepository(db.Pool, cfg, nil)
	return pipeline.NewRunner(cfg, intro, sources, target, nil), target
}

func TestFullReconciliationRun(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	ctx := context.Background()

	createSourceTable(t, db, "galleries", `,
		street VARCHAR(100),
		housenumber VARCHAR(10)`)
	createSourceTable(t, db, "long_term_listings", `,
		rent NUMERIC`)

	// raw_blobs fails validation: no primary key, no district foreign key.
	_, err := db.Pool.Exec(ctx, "DROP TABLE IF EXISTS berlin_source_data.raw_blobs")
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx, `CREATE TABLE berlin_source_data.raw_blobs (
		id VARCHAR(20),
		district_id VARCHAR(20),
		payload BYTEA
	)`)
	require.NoError(t, err)

	_, err = db.Pool.Exec(ctx, `INSERT INTO berlin_source_data.galleries
		(id, district_id, name, latitude, longitude, geometry, street, housenumber) VALUES
		('1', 'd-01', 'Galerie Nord', 52.501, 13.400, 'SRID=4326;POINT(13.400 52.501)', 'Torstrasse', '12'),
		('2', 'd-01', 'Galerie Ost', 52.500, 13.410, 'SRID=4326;POINT(13.410 52.500)', NULL, NULL)`)
	require.NoError(t, err)

	_, err = db.Pool.Exec(ctx, `INSERT INTO berlin_source_data.long_term_listings
		(id, district_id, name, latitude, longitude, geometry, rent) VALUES
		('9', 'd-02', 'Altbau flat', 52.500, 13.400, 'SRID=4326;POINT(13.400 52.500)', 1450)`)
	require.NoError(t, err)

	cfg := pipelineConfig([]string{"galleries", "long_term_listings", "raw_blobs"}, "unified_pois")
	runner, target := newRunner(db, cfg)

	summary, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.RowsWritten)
	assert.Equal(t, 1, summary.RowsEnriched)
	assert.Len(t, summary.Ledger.Excluded, 1)

	// Identifier synthesis and layer assignment.
	var layer string
	err = db.Pool.QueryRow(ctx,
		"SELECT layer FROM public.unified_pois WHERE poi_id = 'gall-1'").Scan(&layer)
	require.NoError(t, err)
	assert.Equal(t, "galleries", layer)

	// Attributes keep non-canonical columns with explicit nulls; canonical
	// columns never leak into the document.
	var attrs string
	err = db.Pool.QueryRow(ctx,
		"SELECT attributes::text FROM public.unified_pois WHERE poi_id = 'gall-2'").Scan(&attrs)
	require.NoError(t, err)
	assert.Contains(t, attrs, `"street": null`)
	assert.NotContains(t, attrs, `"latitude"`)

	// nearest_pois only on the designated layer, pointing at the closest
	// gallery with its address carried over.
	var nearestCount int
	err = db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM public.unified_pois WHERE nearest_pois IS NOT NULL").Scan(&nearestCount)
	require.NoError(t, err)
	assert.Equal(t, 1, nearestCount)

	var nearestID, nearestStreet string
	err = db.Pool.QueryRow(ctx, `
		SELECT nearest_pois->'galleries'->>'id',
		       nearest_pois->'galleries'->'address'->>'street'
		FROM public.unified_pois WHERE poi_id = 'long-9'`).Scan(&nearestID, &nearestStreet)
	require.NoError(t, err)
	assert.Equal(t, "gall-1", nearestID)
	assert.Equal(t, "Torstrasse", nearestStreet)

	// Run ledgers.
	var processedRows int64
	err = db.Pool.QueryRow(ctx,
		"SELECT rows_written FROM public.unified_pois_processed_log WHERE table_name = 'galleries'").Scan(&processedRows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), processedRows)

	var reason string
	err = db.Pool.QueryRow(ctx,
		"SELECT reason FROM public.unified_pois_excluded_log WHERE table_name = 'raw_blobs' AND reason LIKE 'Missing PRIMARY KEY%'").Scan(&reason)
	require.NoError(t, err)
	assert.Equal(t, "Missing PRIMARY KEY on id column", reason)

	var excludedRows int
	err = db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM public.unified_pois WHERE layer = 'raw_blobs'").Scan(&excludedRows)
	require.NoError(t, err)
	assert.Zero(t, excludedRows)

	// The spatial index survives the commit.
	var indexExists bool
	err = db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE tablename = 'unified_pois' AND indexname = 'idx_poi_geom'
		)`).Scan(&indexExists)
	require.NoError(t, err)
	assert.True(t, indexExists)

	// Geometry is stored in the canonical reference and answers radius
	// queries: 0.005 degrees around the listing reaches the near gallery but
	// not the far one.
	ids, err := target.WithinRadius(ctx, spatial.Point{X: 13.400, Y: 52.500}, 0.005)
	require.NoError(t, err)
	assert.Equal(t, []string{"gall-1", "long-9"}, ids)
}

func TestRunLeavesPreviousStateOnFailure(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	ctx := context.Background()

	createSourceTable(t, db, "museums", "")
	_, err := db.Pool.Exec(ctx, `INSERT INTO berlin_source_data.museums
		(id, district_id, name) VALUES ('1', 'd-01', 'Bode')`)
	require.NoError(t, err)

	cfg := pipelineConfig([]string{"museums"}, "unified_pois_atomic")
	runner, _ := newRunner(db, cfg)
	_, err = runner.Run(ctx)
	require.NoError(t, err)

	// A second run over colliding tables must fail and leave the committed
	// state of the first run untouched.
	createSourceTable(t, db, "parks", "")
	createSourceTable(t, db, "parking", "")
	_, err = db.Pool.Exec(ctx,
		"INSERT INTO berlin_source_data.parks (id, district_id) VALUES ('7', 'd-01')")
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx,
		"INSERT INTO berlin_source_data.parking (id, district_id) VALUES ('7', 'd-01')")
	require.NoError(t, err)

	cfg2 := pipelineConfig([]string{"museums", "parks", "parking"}, "unified_pois_atomic")
	runner2, _ := newRunner(db, cfg2)
	_, err = runner2.Run(ctx)
	require.ErrorIs(t, err, apperrors.ErrIdentifierCollision)

	var count int
	err = db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM public.unified_pois_atomic").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	var poiID string
	err = db.Pool.QueryRow(ctx,
		"SELECT poi_id FROM public.unified_pois_atomic").Scan(&poiID)
	require.NoError(t, err)
	assert.Equal(t, "muse-1", poiID)
}

func TestSourceRepositoryFoldsDriverTypes(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	ctx := context.Background()

	_, err := db.Pool.Exec(ctx, "DROP TABLE IF EXISTS berlin_source_data.type_probe")
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx, `CREATE TABLE berlin_source_data.type_probe (
		id VARCHAR(20) PRIMARY KEY,
		count_val INTEGER,
		price NUMERIC,
		active BOOLEAN,
		note TEXT
	)`)
	require.NoError(t, err)
	_, err = db.Pool.Exec(ctx, `INSERT INTO berlin_source_data.type_probe VALUES
		('a', 3, 12.50, true, NULL)`)
	require.NoError(t, err)

	intro := schema.NewPgIntrospector(db.Pool, "berlin_source_data", nil, []string{"type_probe"}, nil)
	tables, err := intro.DiscoverSourceTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)

	profile, err := intro.Profile(ctx, tables[0], models.DefaultCanonicalSchema())
	require.NoError(t, err)

	rows, err := repositories.NewSourceRepository(db.Pool).ReadRows(ctx, tables[0], profile.Columns)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	count, ok := rows[0].Value("count_val")
	require.True(t, ok)
	f, err := count.AsNumber()
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)

	price, _ := rows[0].Value("price")
	f, err = price.AsNumber()
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)

	active, _ := rows[0].Value("active")
	assert.Equal(t, "true", active.AsText())

	note, _ := rows[0].Value("note")
	assert.True(t, note.IsNull())
}
