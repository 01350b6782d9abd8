package repository

import "errors"

var (
	// ErrNotFound is returned by mutations that matched no row.
	ErrNotFound = errors.New("not found")
	// ErrClaimLost means a webhook row is no longer held by the caller's claim token.
	ErrClaimLost = errors.New("webhook claim lost")
	// ErrUnknownKind is returned for entity kinds outside the supported set.
	ErrUnknownKind = errors.New("unknown entity kind")
)
