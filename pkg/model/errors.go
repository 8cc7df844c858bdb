package model

import "errors"

var (
	// ErrMetadataNotLoaded is returned by zoom and geometry queries on a
	// source whose provider metadata has not been fetched yet. Callers are
	// expected to retry once the fetch completes.
	ErrMetadataNotLoaded = errors.New("layer metadata not loaded")
	// ErrMissingAPIKey is returned when a url template requires an
	// {apikey} placeholder and no key is available for the layer.
	ErrMissingAPIKey = errors.New("no api key for layer")
	// ErrInvalidZoomRange is returned for zoom bounds with min > max.
	ErrInvalidZoomRange = errors.New("invalid zoom range")
)
