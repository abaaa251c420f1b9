package domain

import "errors"

var (
	// ErrNotFound is returned when an entity does not exist
	ErrNotFound = errors.New("not found")

	// ErrInvalidPayload is returned when an inbound order payload is missing
	// required fields. Retrying reproduces the same failure, so jobs hitting
	// this are expected to exhaust their retry budget and land terminal.
	ErrInvalidPayload = errors.New("invalid payload")
)
