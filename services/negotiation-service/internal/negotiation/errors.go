package negotiation

import "errors"

var (
	// ErrUnauthenticated means the bearer credential was missing or unverifiable.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrNotFound covers both a genuinely absent appointment and one owned by a
	// different customer, so existence is never leaked across callers.
	ErrNotFound = errors.New("appointment not found")

	// ErrConflict means the transition lost to a concurrent writer or started
	// from the terminal state.
	ErrConflict = errors.New("appointment state conflict")

	// ErrWriteFailed means the store accepted the request but the write could
	// not be confirmed as applied.
	ErrWriteFailed = errors.New("appointment write not applied")
)
