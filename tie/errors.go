package tie

import "errors"

var (
	// ErrNotReady means a required entry is still missing. Callers treat it as
	// "no result yet" and wait for more input.
	ErrNotReady = errors.New("tie: not ready")

	// ErrInsufficientCoverage means the gravity series does not span the
	// averaging window; more meter data has to be loaded.
	ErrInsufficientCoverage = errors.New("tie: gravity series does not cover the averaging window")
)
