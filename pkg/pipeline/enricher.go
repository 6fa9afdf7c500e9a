package pipeline

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/layereddb/poiforge/pkg/models"
	"github.com/layereddb/poiforge/pkg/spatial"
)

// Enricher computes, for every row of the designated layer, the nearest
// record in every other layer and writes the result to nearest_pois. Rows it
// cannot enrich (missing geometry) are skipped individually; enrichment never
// aborts the run.
type Enricher struct {
	designatedLayer string
	tolerance       float64
	logger          *zap.Logger
}

// NewEnricher creates an Enricher. If logger is nil, a no-op logger is used.
func NewEnricher(designatedLayer string, tolerance float64, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		designatedLayer: designatedLayer,
		tolerance:       tolerance,
		logger:          logger,
	}
}

// Enrich loads the consolidated rows, builds one proximity index per
// candidate layer, and writes nearest_pois for each designated row. Returns
// the number of rows enriched.
func (e *Enricher) Enrich(ctx context.Context, store TargetStore) (int, error) {
	points, err := store.LoadForEnrichment(ctx)
	if err != nil {
		return 0, fmt.Errorf("enrichment load: %w", err)
	}

	byID := make(map[string]models.POIPoint, len(points))
	candidates := make(map[string][]spatial.Entry)
	var designated []models.POIPoint

	for _, p := range points {
		byID[p.POIID] = p
		if p.Layer == e.designatedLayer {
			designated = append(designated, p)
			continue
		}
		if !p.HasGeometry {
			continue
		}
		candidates[p.Layer] = append(candidates[p.Layer], spatial.Entry{
			ID: p.POIID,
			Pt: spatial.Point{X: p.X, Y: p.Y},
		})
	}

	if len(designated) == 0 {
		e.logger.Info("No rows in designated layer, skipping enrichment",
			zap.String("layer", e.designatedLayer))
		return 0, nil
	}

	layerNames := make([]string, 0, len(candidates))
	indexes := make(map[string]*spatial.GridIndex, len(candidates))
	for layer, entries := range candidates {
		layerNames = append(layerNames, layer)
		indexes[layer] = spatial.NewGridIndex(entries, e.tolerance)
	}
	sort.Strings(layerNames)

	enriched := 0
	for _, row := range designated {
		if !row.HasGeometry {
			e.logger.Warn("Designated row has no geometry, skipping enrichment",
				zap.String("poi_id", row.POIID))
			continue
		}

		origin := spatial.Point{X: row.X, Y: row.Y}
		nearest := make(map[string]models.NearestNeighborResult, len(layerNames))
		for _, layer := range layerNames {
			entry, dist, ok := indexes[layer].Nearest(origin)
			if !ok {
				// Layer without candidates is omitted, not an error.
				continue
			}
			candidate := byID[entry.ID]
			nearest[layer] = models.NearestNeighborResult{
				ID:       entry.ID,
				Name:     candidate.Name,
				Distance: dist,
				Address: models.Address{
					Street:      candidate.Street,
					Housenumber: candidate.Housenumber,
				},
			}
		}

		if len(nearest) == 0 {
			continue
		}
		if err := store.UpdateNearest(ctx, row.POIID, nearest); err != nil {
			return enriched, fmt.Errorf("enrich %s: %w", row.POIID, err)
		}
		enriched++
	}

	return enriched, nil
}
