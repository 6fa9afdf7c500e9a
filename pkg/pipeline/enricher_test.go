package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layereddb/poiforge/pkg/models"
)

// pointStore feeds Enrich a fixed projection and records updates.
type pointStore struct {
	fakeStore
	points []models.POIPoint
}

func (s *pointStore) LoadForEnrichment(context.Context) ([]models.POIPoint, error) {
	return s.points, nil
}

func newPointStore(points ...models.POIPoint) *pointStore {
	return &pointStore{fakeStore: *newFakeStore(), points: points}
}

func pt(id, layer string, x, y float64) models.POIPoint {
	return models.POIPoint{POIID: id, Layer: layer, X: x, Y: y, HasGeometry: true}
}

func TestEnrichPicksNearestPerLayer(t *testing.T) {
	store := newPointStore(
		pt("long-1", "long_term_listings", 0, 0),
		pt("gall-1", "galleries", 0, 5),
		pt("gall-2", "galleries", 10, 0),
		pt("bank-1", "banks", 3, 4),
	)

	e := NewEnricher("long_term_listings", 1e-9, nil)
	enriched, err := e.Enrich(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 1, enriched)

	nearest := store.nearest["long-1"]
	require.Len(t, nearest, 2)
	assert.Equal(t, "gall-1", nearest["galleries"].ID)
	assert.InDelta(t, 5.0, nearest["galleries"].Distance, 1e-9)
	assert.Equal(t, "bank-1", nearest["banks"].ID)
	assert.InDelta(t, 5.0, nearest["banks"].Distance, 1e-9)
}

func TestEnrichSkipsDesignatedRowWithoutGeometry(t *testing.T) {
	noGeom := models.POIPoint{POIID: "long-2", Layer: "long_term_listings"}
	store := newPointStore(
		pt("long-1", "long_term_listings", 0, 0),
		noGeom,
		pt("gall-1", "galleries", 1, 0),
	)

	e := NewEnricher("long_term_listings", 1e-9, nil)
	enriched, err := e.Enrich(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 1, enriched)
	assert.Contains(t, store.nearest, "long-1")
	assert.NotContains(t, store.nearest, "long-2")
}

func TestEnrichExcludesGeometrylessCandidates(t *testing.T) {
	ghost := models.POIPoint{POIID: "gall-0", Layer: "galleries"}
	store := newPointStore(
		pt("long-1", "long_term_listings", 0, 0),
		ghost,
		pt("gall-9", "galleries", 2, 0),
	)

	e := NewEnricher("long_term_listings", 1e-9, nil)
	_, err := e.Enrich(context.Background(), store)
	require.NoError(t, err)

	// gall-0 has no geometry, so the farther gall-9 must win.
	assert.Equal(t, "gall-9", store.nearest["long-1"]["galleries"].ID)
}

func TestEnrichDesignatedLayerNeverEnrichesItself(t *testing.T) {
	store := newPointStore(
		pt("long-1", "long_term_listings", 0, 0),
		pt("long-2", "long_term_listings", 0.5, 0),
		pt("gall-1", "galleries", 3, 0),
	)

	e := NewEnricher("long_term_listings", 1e-9, nil)
	_, err := e.Enrich(context.Background(), store)
	require.NoError(t, err)

	for poiID, nearest := range store.nearest {
		assert.NotContains(t, nearest, "long_term_listings", "row %s", poiID)
	}
}

func TestEnrichOmitsRowWithNoCandidatesAnywhere(t *testing.T) {
	store := newPointStore(
		pt("long-1", "long_term_listings", 0, 0),
	)

	e := NewEnricher("long_term_listings", 1e-9, nil)
	enriched, err := e.Enrich(context.Background(), store)
	require.NoError(t, err)

	assert.Zero(t, enriched)
	assert.Empty(t, store.nearest)
}

func TestEnrichNoDesignatedRows(t *testing.T) {
	store := newPointStore(
		pt("gall-1", "galleries", 0, 0),
	)

	e := NewEnricher("long_term_listings", 1e-9, nil)
	enriched, err := e.Enrich(context.Background(), store)
	require.NoError(t, err)

	assert.Zero(t, enriched)
	assert.Empty(t, store.nearest)
}

func TestEnrichTieBreaksToSmallerID(t *testing.T) {
	store := newPointStore(
		pt("long-1", "long_term_listings", 0, 0),
		pt("gall-b", "galleries", 5, 0),
		pt("gall-a", "galleries", 0, 5),
	)

	e := NewEnricher("long_term_listings", 1e-9, nil)
	_, err := e.Enrich(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, "gall-a", store.nearest["long-1"]["galleries"].ID)
}

func TestEnrichCarriesCandidateAddress(t *testing.T) {
	street := "Oranienstrasse"
	hn := "34"
	candidate := pt("gall-1", "galleries", 1, 0)
	candidate.Street = &street
	candidate.Housenumber = &hn
	name := "Galerie am Ufer"
	candidate.Name = &name

	store := newPointStore(
		pt("long-1", "long_term_listings", 0, 0),
		candidate,
	)

	e := NewEnricher("long_term_listings", 1e-9, nil)
	_, err := e.Enrich(context.Background(), store)
	require.NoError(t, err)

	got := store.nearest["long-1"]["galleries"]
	require.NotNil(t, got.Name)
	assert.Equal(t, "Galerie am Ufer", *got.Name)
	require.NotNil(t, got.Address.Street)
	assert.Equal(t, "Oranienstrasse", *got.Address.Street)
	require.NotNil(t, got.Address.Housenumber)
	assert.Equal(t, "34", *got.Address.Housenumber)
}
