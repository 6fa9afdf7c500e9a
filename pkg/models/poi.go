package models

// UnifiedPOI is one canonical output record. Identity is POIID, synthesized
// as "<layer prefix>-<original id>". Created by the consolidation step; only
// the NearestPOIs field is touched afterwards, by enrichment.
type UnifiedPOI struct {
	POIID          string
	Name           *string
	Layer          string
	DistrictID     string
	District       *string
	NeighborhoodID *string
	Neighborhood   *string
	Latitude       *float64
	Longitude      *float64

	// Geometry is the source EWKT text, SRID prefix included. The store
	// normalizes it to the canonical SRID at write time. Nil when the source
	// row has no geometry.
	Geometry *string

	// Attributes holds every non-canonical source column keyed by its
	// original name, explicit nulls included.
	Attributes *Attributes

	// NearestPOIs maps layer name to the closest record in that layer.
	// Populated only for rows of the designated layer.
	NearestPOIs map[string]NearestNeighborResult
}

// Address is the optional street/house-number pair extracted from a
// candidate's attributes.
type Address struct {
	Street      *string `json:"street"`
	Housenumber *string `json:"housenumber"`
}

// NearestNeighborResult describes the closest POI of one layer.
type NearestNeighborResult struct {
	ID       string  `json:"id"`
	Name     *string `json:"name"`
	Distance float64 `json:"distance"`
	Address  Address `json:"address"`
}

// POIPoint is the projection of a unified row used for nearest-neighbor
// enrichment: a representative coordinate plus the address attributes that
// feed NearestNeighborResult. Rows without geometry have HasGeometry false
// and are skipped per-row.
type POIPoint struct {
	POIID       string
	Layer       string
	Name        *string
	X           float64
	Y           float64
	HasGeometry bool
	Street      *string
	Housenumber *string
}
