package apperrors

import "errors"

var (
	ErrTableNotFound = errors.New("source table not found")

	// ErrIdentifierCollision means two rows synthesized the same poi_id in one
	// run. Validation guarantees per-table id uniqueness, so a collision is a
	// contract violation and aborts the run.
	ErrIdentifierCollision = errors.New("poi identifier collision")

	// ErrGeometryProjection means a geometry value carried a missing or
	// unsupported spatial reference and cannot be normalized to the canonical
	// SRID.
	ErrGeometryProjection = errors.New("geometry projection failed")

	// ErrMalformedAttributes means a source value could not be carried into
	// the canonical record (bad numeric text, unserializable attribute).
	ErrMalformedAttributes = errors.New("malformed attribute value")

	// ErrIndexBuild means the spatial index could not be (re)built. A unified
	// table without a working index is an incomplete run.
	ErrIndexBuild = errors.New("spatial index build failed")
)
