// Package normalize maps validated source rows into the canonical UnifiedPOI
// shape: identifier synthesis, geometry reference checks, and folding of
// non-canonical columns into the attributes document.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/layereddb/poiforge/pkg/apperrors"
	"github.com/layereddb/poiforge/pkg/models"
)

// ewktSRIDPattern matches the EWKT spatial reference prefix, e.g. "SRID=4326;".
var ewktSRIDPattern = regexp.MustCompile(`(?i)^\s*SRID=(\d+)\s*;`)

// supportedSRIDs are the spatial references the store can reproject from.
// WGS84, web mercator, ETRS89 and the UTM zones covering Berlin.
var supportedSRIDs = map[int]bool{
	4326:  true,
	3857:  true,
	4258:  true,
	25832: true,
	25833: true,
}

// Normalizer produces UnifiedPOI rows from one validated source table. The
// mapping is configuration-driven: the canonical schema decides which columns
// become fields and which fold into attributes, so every table shape goes
// through the same code path.
type Normalizer struct {
	canonical     models.CanonicalSchema
	prefixLength  int
	canonicalSRID int
}

// New creates a Normalizer.
func New(canonical models.CanonicalSchema, prefixLength, canonicalSRID int) *Normalizer {
	return &Normalizer{
		canonical:     canonical,
		prefixLength:  prefixLength,
		canonicalSRID: canonicalSRID,
	}
}

// Prefix derives the poi_id prefix from a table name: its first
// prefixLength characters (the whole name when shorter).
func (n *Normalizer) Prefix(tableName string) string {
	runes := []rune(tableName)
	if len(runes) <= n.prefixLength {
		return tableName
	}
	return string(runes[:n.prefixLength])
}

// Normalize maps every row of table into the canonical shape. Identifier
// collisions within the table and unusable geometry references are transform
// failures: the table already passed validation, so they abort the run.
func (n *Normalizer) Normalize(table models.SourceTable, rows []models.SourceRow) ([]models.UnifiedPOI, error) {
	prefix := n.Prefix(table.TableName)
	seen := make(map[string]bool, len(rows))
	pois := make([]models.UnifiedPOI, 0, len(rows))

	for _, row := range rows {
		poi, err := n.normalizeRow(table, prefix, row)
		if err != nil {
			return nil, err
		}
		if seen[poi.POIID] {
			return nil, fmt.Errorf("table %s: id %s: %w", table.TableName, poi.POIID, apperrors.ErrIdentifierCollision)
		}
		seen[poi.POIID] = true
		pois = append(pois, poi)
	}

	return pois, nil
}

func (n *Normalizer) normalizeRow(table models.SourceTable, prefix string, row models.SourceRow) (models.UnifiedPOI, error) {
	id, err := requiredText(row, "id")
	if err != nil {
		return models.UnifiedPOI{}, fmt.Errorf("table %s: %w", table.TableName, err)
	}
	districtID, err := requiredText(row, "district_id")
	if err != nil {
		return models.UnifiedPOI{}, fmt.Errorf("table %s: id %s: %w", table.TableName, id, err)
	}

	lat, err := optionalNumber(row, "latitude")
	if err != nil {
		return models.UnifiedPOI{}, fmt.Errorf("table %s: id %s: %w", table.TableName, id, err)
	}
	lon, err := optionalNumber(row, "longitude")
	if err != nil {
		return models.UnifiedPOI{}, fmt.Errorf("table %s: id %s: %w", table.TableName, id, err)
	}

	geometry, err := n.normalizeGeometry(row)
	if err != nil {
		return models.UnifiedPOI{}, fmt.Errorf("table %s: id %s: %w", table.TableName, id, err)
	}

	poi := models.UnifiedPOI{
		POIID:          prefix + "-" + id,
		Name:           optionalText(row, "name"),
		Layer:          table.TableName,
		DistrictID:     districtID,
		District:       optionalText(row, "district"),
		NeighborhoodID: optionalText(row, "neighborhood_id"),
		Neighborhood:   optionalText(row, "neighborhood"),
		Latitude:       lat,
		Longitude:      lon,
		Geometry:       geometry,
		Attributes:     n.collectAttributes(row),
	}
	return poi, nil
}

// normalizeGeometry checks the EWKT spatial reference. A null or absent
// geometry passes through as nil; a present geometry without reference
// metadata, or with an unsupported reference, is a projection failure.
func (n *Normalizer) normalizeGeometry(row models.SourceRow) (*string, error) {
	v, ok := row.Value("geometry")
	if !ok || v.IsNull() {
		return nil, nil
	}
	ewkt := strings.TrimSpace(v.AsText())
	if ewkt == "" {
		return nil, nil
	}

	m := ewktSRIDPattern.FindStringSubmatch(ewkt)
	if m == nil {
		return nil, fmt.Errorf("geometry %q has no SRID prefix: %w", truncate(ewkt, 40), apperrors.ErrGeometryProjection)
	}
	srid, err := strconv.Atoi(m[1])
	if err != nil || !supportedSRIDs[srid] {
		return nil, fmt.Errorf("unsupported SRID %s: %w", m[1], apperrors.ErrGeometryProjection)
	}

	// Reprojection to the canonical SRID happens in the store at write time;
	// here we only guarantee the reference is present and supported.
	return &ewkt, nil
}

// collectAttributes folds every non-canonical column into the attributes
// document in column order, keeping explicit nulls so "present but null"
// stays distinguishable from "absent".
func (n *Normalizer) collectAttributes(row models.SourceRow) *models.Attributes {
	attrs := models.NewAttributes()
	for i, col := range row.Columns {
		if n.canonical.IsCanonical(col) {
			continue
		}
		attrs.Set(col, row.Values[i])
	}
	return attrs
}

func requiredText(row models.SourceRow, column string) (string, error) {
	v, ok := row.Value(column)
	if !ok || v.IsNull() {
		return "", fmt.Errorf("column %s is null: %w", column, apperrors.ErrMalformedAttributes)
	}
	return v.AsText(), nil
}

func optionalText(row models.SourceRow, column string) *string {
	v, ok := row.Value(column)
	if !ok || v.IsNull() {
		return nil
	}
	s := v.AsText()
	return &s
}

func optionalNumber(row models.SourceRow, column string) (*float64, error) {
	v, ok := row.Value(column)
	if !ok || v.IsNull() {
		return nil, nil
	}
	f, err := v.AsNumber()
	if err != nil {
		return nil, fmt.Errorf("column %s: %v: %w", column, err, apperrors.ErrMalformedAttributes)
	}
	return &f, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
