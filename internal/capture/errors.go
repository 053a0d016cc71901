package capture

import "errors"

var (
	// ErrMarkerNotFound indicates the requested ordinal is outside the
	// currently rendered catalog.
	ErrMarkerNotFound = errors.New("marker not found")
	// ErrCatalogTimeout indicates no marker rendered within the wait bound.
	ErrCatalogTimeout = errors.New("marker catalog did not render")
)
