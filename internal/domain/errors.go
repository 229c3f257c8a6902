package domain

import "errors"

var (
	ErrInvalidCatalog    = errors.New("invalid unit catalog")
	ErrMalformedResult   = errors.New("malformed unit result")
	ErrFetchFailure      = errors.New("unit fetch failed")
	ErrNotFound          = errors.New("not found")
	ErrProjectionSkipped = errors.New("projection skipped")
)
