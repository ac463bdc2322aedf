package domain

import "errors"

var (
	// ErrNotFound is returned when an account id is absent from the canonical table.
	ErrNotFound = errors.New("account not found")

	// ErrEmptyInput is returned when aggregation or sampling sees zero rows.
	ErrEmptyInput = errors.New("empty input")

	// ErrInsufficientData is returned when there are fewer accounts than clusters.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrMalformedRecord marks a raw transaction without an account id.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrMissingValue is returned when a NaN or infinite value reaches the feature matrix.
	ErrMissingValue = errors.New("missing value in feature matrix")

	// ErrInvalidConfig is returned for configuration that cannot produce a valid run.
	ErrInvalidConfig = errors.New("invalid configuration")
)
