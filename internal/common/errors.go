// Package common defines shared sentinel errors used across the service and
// repository layers of docflow. Callers should use errors.Is to match these
// values; layers wrap them with fmt.Errorf("...: %w", err) to add context.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal = errors.New("internal error")

	// ErrValidation covers malformed input, e.g. a rejection without a
	// reason. Rejected before any state change.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized covers the wrong actor for a task or action.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStaleState covers a decision or action that arrives after the
	// underlying fact changed: a task already decided, a phase already
	// advanced. The caller should refresh rather than retry blindly.
	ErrStaleState = errors.New("stale state")

	// ErrConfiguration covers a roster gap: no eligible standing signer
	// for a role. The document stays on its current phase until an
	// administrator corrects the roster.
	ErrConfiguration = errors.New("configuration error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)
