// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrInvalidInput indicates malformed or missing fields. Nothing is persisted.
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden indicates an authenticated caller lacking the required role or ownership.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthenticated indicates a missing, unknown or expired session.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound indicates the requested entity does not exist or is hidden by its lifecycle state.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness or state-machine violation.
	ErrConflict = errors.New("conflict")

	// ErrRateLimited indicates the caller exceeded a throttle window.
	ErrRateLimited = errors.New("rate limited")
)

// Refinements. errors.Is matches both the refinement and its parent.
var (
	// ErrInvalidSubmission indicates a module draft failing validation.
	ErrInvalidSubmission = fmt.Errorf("%w: submission", ErrInvalidInput)

	// ErrInvalidRating indicates a review rating outside 1..5.
	ErrInvalidRating = fmt.Errorf("%w: rating", ErrInvalidInput)

	// ErrInvalidState indicates a transition from a terminal submission state.
	ErrInvalidState = fmt.Errorf("%w: invalid state", ErrConflict)
)
