// Package schema discovers source table structure from the store's catalog
// and validates it against the canonical schema.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/layereddb/poiforge/pkg/apperrors"
	"github.com/layereddb/poiforge/pkg/models"
)

// Introspector reads source table structure and live null counts. Reads are
// independent per table and safe to run in parallel.
type Introspector interface {
	// DiscoverSourceTables returns candidate tables in the source schema,
	// excluding the reference relations.
	DiscoverSourceTables(ctx context.Context) ([]models.SourceTable, error)

	// Profile gathers everything the validator needs for one table.
	Profile(ctx context.Context, table models.SourceTable, canonical models.CanonicalSchema) (TableProfile, error)
}

// TableProfile is the validator's view of one source table.
type TableProfile struct {
	Table       models.SourceTable
	Columns     []models.ColumnMetadata
	ForeignKeys []models.ForeignKeyMetadata

	// NullCounts holds live null counts for the non-nullable canonical
	// columns that exist in the table.
	NullCounts map[string]int64
}

// Column returns the metadata for name, if present.
func (p TableProfile) Column(name string) (models.ColumnMetadata, bool) {
	for _, c := range p.Columns {
		if c.ColumnName == name {
			return c, true
		}
	}
	return models.ColumnMetadata{}, false
}

// PgIntrospector discovers schema structure from PostgreSQL catalogs.
type PgIntrospector struct {
	pool            *pgxpool.Pool
	sourceSchema    string
	referenceTables []string
	includeTables   []string
	logger          *zap.Logger
}

// NewPgIntrospector creates a catalog-backed introspector. referenceTables
// are name fragments excluded from discovery; includeTables, when non-empty,
// restricts discovery to the named tables. If logger is nil, a no-op logger
// is used.
func NewPgIntrospector(pool *pgxpool.Pool, sourceSchema string, referenceTables, includeTables []string, logger *zap.Logger) *PgIntrospector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgIntrospector{
		pool:            pool,
		sourceSchema:    sourceSchema,
		referenceTables: referenceTables,
		includeTables:   includeTables,
		logger:          logger,
	}
}

var _ Introspector = (*PgIntrospector)(nil)

// DiscoverSourceTables returns all base tables of the source schema that are
// not reference relations, honoring the optional include list.
func (d *PgIntrospector) DiscoverSourceTables(ctx context.Context) ([]models.SourceTable, error) {
	const query = `
		SELECT
			t.table_schema,
			t.table_name,
			COALESCE(c.reltuples::bigint, 0) as row_count
		FROM information_schema.tables t
		LEFT JOIN pg_class c ON c.relname = t.table_name
		LEFT JOIN pg_namespace n ON n.oid = c.relnamespace AND n.nspname = t.table_schema
		WHERE t.table_type = 'BASE TABLE'
		  AND t.table_schema = $1
		ORDER BY t.table_name
	`

	rows, err := d.pool.Query(ctx, query, d.sourceSchema)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []models.SourceTable
	for rows.Next() {
		var t models.SourceTable
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		if d.isReference(t.TableName) || !d.isIncluded(t.TableName) {
			continue
		}
		tables = append(tables, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	// An include-list entry that names no existing table is a caller mistake,
	// not an empty run.
	for _, name := range d.includeTables {
		found := false
		for _, t := range tables {
			if t.TableName == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("table %s in schema %s: %w", name, d.sourceSchema, apperrors.ErrTableNotFound)
		}
	}

	d.logger.Debug("Discovered candidate tables",
		zap.String("schema", d.sourceSchema),
		zap.Int("count", len(tables)))
	return tables, nil
}

func (d *PgIntrospector) isReference(tableName string) bool {
	lower := strings.ToLower(tableName)
	for _, fragment := range d.referenceTables {
		if strings.Contains(lower, strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}

func (d *PgIntrospector) isIncluded(tableName string) bool {
	if len(d.includeTables) == 0 {
		return true
	}
	for _, t := range d.includeTables {
		if t == tableName {
			return true
		}
	}
	return false
}

// Profile gathers columns, declared foreign keys, and live null counts for
// the non-nullable canonical columns present in the table.
func (d *PgIntrospector) Profile(ctx context.Context, table models.SourceTable, canonical models.CanonicalSchema) (TableProfile, error) {
	columns, err := d.discoverColumns(ctx, table)
	if err != nil {
		return TableProfile{}, err
	}

	fks, err := d.discoverForeignKeys(ctx, table)
	if err != nil {
		return TableProfile{}, err
	}

	var required []string
	for _, spec := range canonical.Columns {
		if spec.Nullable {
			continue
		}
		for _, c := range columns {
			if c.ColumnName == spec.Name {
				required = append(required, spec.Name)
				break
			}
		}
	}

	nullCounts, err := d.countNulls(ctx, table, required)
	if err != nil {
		return TableProfile{}, err
	}

	return TableProfile{
		Table:       table,
		Columns:     columns,
		ForeignKeys: fks,
		NullCounts:  nullCounts,
	}, nil
}

// discoverColumns returns columns for the table. Uses pg_index for primary
// key detection, which identifies PKs even when created as unique indexes.
func (d *PgIntrospector) discoverColumns(ctx context.Context, table models.SourceTable) ([]models.ColumnMetadata, error) {
	const query = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES' as is_nullable,
			COALESCE(pk.is_pk, false) as is_primary_key,
			c.ordinal_position
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT a.attname as column_name, true as is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary = true
			  AND n.nspname = $1
			  AND t.relname = $2
		) pk ON c.column_name = pk.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position
	`

	rows, err := d.pool.Query(ctx, query, table.SchemaName, table.TableName)
	if err != nil {
		return nil, fmt.Errorf("query columns for %s: %w", table.TableName, err)
	}
	defer rows.Close()

	var columns []models.ColumnMetadata
	for rows.Next() {
		var c models.ColumnMetadata
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &c.IsPrimaryKey, &c.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	return columns, nil
}

// discoverForeignKeys returns the table's declared foreign key constraints.
func (d *PgIntrospector) discoverForeignKeys(ctx context.Context, table models.SourceTable) ([]models.ForeignKeyMetadata, error) {
	const query = `
		SELECT
			tc.constraint_name,
			kcu.column_name as source_column,
			ccu.table_name as target_table,
			ccu.column_name as target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = $1
		  AND tc.table_name = $2
	`

	rows, err := d.pool.Query(ctx, query, table.SchemaName, table.TableName)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys for %s: %w", table.TableName, err)
	}
	defer rows.Close()

	var fks []models.ForeignKeyMetadata
	for rows.Next() {
		var fk models.ForeignKeyMetadata
		if err := rows.Scan(&fk.ConstraintName, &fk.SourceColumn, &fk.TargetTable, &fk.TargetColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}

	return fks, nil
}

// countNulls returns live null counts for the given columns in one scan.
func (d *PgIntrospector) countNulls(ctx context.Context, table models.SourceTable, columns []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(columns))
	if len(columns) == 0 {
		return counts, nil
	}

	tableRef := qualifiedTableName(table.SchemaName, table.TableName)

	exprs := make([]string, len(columns))
	for i, col := range columns {
		quoted := pgx.Identifier{col}.Sanitize()
		exprs[i] = fmt.Sprintf("COUNT(*) FILTER (WHERE %s IS NULL)", quoted)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), tableRef)

	dests := make([]any, len(columns))
	values := make([]int64, len(columns))
	for i := range values {
		dests[i] = &values[i]
	}

	if err := d.pool.QueryRow(ctx, query).Scan(dests...); err != nil {
		return nil, fmt.Errorf("count nulls in %s: %w", table.TableName, err)
	}

	for i, col := range columns {
		counts[col] = values[i]
	}
	return counts, nil
}

// qualifiedTableName returns a properly quoted table reference.
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}
