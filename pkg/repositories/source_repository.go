// Package repositories provides data access for the reconciliation pipeline:
// read-only access to source tables and transactional access to the unified
// target table and run ledgers.
package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/layereddb/poiforge/pkg/models"
)

// SourceRepository reads rows of candidate source tables. Reads go through
// the pool, never the run transaction, so tables can be read in parallel.
type SourceRepository struct {
	pool *pgxpool.Pool
}

// NewSourceRepository creates a SourceRepository.
func NewSourceRepository(pool *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{pool: pool}
}

// ReadRows returns every row of table with values folded into the tagged
// attribute variant. Rows are ordered by the key column so downstream
// processing is deterministic for identical inputs.
func (r *SourceRepository) ReadRows(ctx context.Context, table models.SourceTable, columns []models.ColumnMetadata) ([]models.SourceRow, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", table.TableName)
	}

	names := make([]string, len(columns))
	quoted := make([]string, len(columns))
	orderBy := pgx.Identifier{columns[0].ColumnName}.Sanitize()
	for i, c := range columns {
		names[i] = c.ColumnName
		quoted[i] = pgx.Identifier{c.ColumnName}.Sanitize()
		if c.ColumnName == "id" {
			orderBy = quoted[i]
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(quoted, ", "),
		qualifiedTableName(table.SchemaName, table.TableName),
		orderBy)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read rows from %s: %w", table.TableName, err)
	}
	defer rows.Close()

	var out []models.SourceRow
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scan row from %s: %w", table.TableName, err)
		}
		values := make([]models.AttrValue, len(raw))
		for i, v := range raw {
			av, err := attrValueFromDB(v)
			if err != nil {
				return nil, fmt.Errorf("column %s in %s: %w", names[i], table.TableName, err)
			}
			values[i] = av
		}
		out = append(out, models.SourceRow{Columns: names, Values: values})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows from %s: %w", table.TableName, err)
	}

	return out, nil
}

// attrValueFromDB folds a driver value into the tagged attribute variant so
// nothing downstream depends on driver-specific types.
func attrValueFromDB(v any) (models.AttrValue, error) {
	switch t := v.(type) {
	case nil:
		return models.NullValue(), nil
	case bool:
		return models.BoolValue(t), nil
	case string:
		return models.TextValue(t), nil
	case []byte:
		return models.TextValue(string(t)), nil
	case int16:
		return models.NumberValue(float64(t)), nil
	case int32:
		return models.NumberValue(float64(t)), nil
	case int64:
		return models.NumberValue(float64(t)), nil
	case float32:
		return models.NumberValue(float64(t)), nil
	case float64:
		return models.NumberValue(t), nil
	case pgtype.Numeric:
		if !t.Valid {
			return models.NullValue(), nil
		}
		f, err := t.Float64Value()
		if err != nil {
			return models.AttrValue{}, fmt.Errorf("convert numeric: %w", err)
		}
		return models.NumberValue(f.Float64), nil
	case time.Time:
		return models.TextValue(t.UTC().Format(time.RFC3339)), nil
	default:
		return models.TextValue(fmt.Sprintf("%v", t)), nil
	}
}

// qualifiedTableName returns a properly quoted table reference.
func qualifiedTableName(schemaName, tableName string) string {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	if schemaName == "" {
		return quotedTable
	}
	return pgx.Identifier{schemaName}.Sanitize() + "." + quotedTable
}
