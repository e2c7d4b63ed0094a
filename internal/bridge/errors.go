package bridge

import "errors"

// Sentinel errors for host-side registration and lookup. Failures that cross
// the host/document boundary are never surfaced as Go errors; they travel as
// status envelopes built by Object.Invoke and friends.
var (
	// ErrDuplicateOperation is returned when registering an operation name
	// that already exists on an object.
	ErrDuplicateOperation = errors.New("bridge: duplicate operation")

	// ErrUnknownOperation is returned by host-side lookups for an operation
	// that was never registered.
	ErrUnknownOperation = errors.New("bridge: unknown operation")

	// ErrUnknownObject is returned by host-side lookups for an object name
	// absent from the registry.
	ErrUnknownObject = errors.New("bridge: unknown object")
)
