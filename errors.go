package radio

import "errors"

var (
	// ErrInvalidState is returned if a graph method cannot be executed
	// at this moment.
	ErrInvalidState = errors.New("invalid state")

	// ErrSignatureMismatch is returned when an edge has no pair of
	// candidate signatures whose types agree.
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrAmbiguousSignature is returned when multiple candidate
	// signatures survive both resolution passes for an unconstrained
	// block.
	ErrAmbiguousSignature = errors.New("ambiguous signature")

	// ErrFanInConflict is returned when more than one producer is
	// connected to an input port.
	ErrFanInConflict = errors.New("fan-in conflict")

	// ErrCycle is returned when a connection would close a cycle.
	ErrCycle = errors.New("cycle")

	// ErrRateMismatch is returned when a block sees inputs at
	// inconsistent sample rates.
	ErrRateMismatch = errors.New("rate mismatch")

	// ErrBlockInit is returned when a block rejects its resolved
	// signature or rate.
	ErrBlockInit = errors.New("block init failed")

	// ErrBlockRuntime wraps a fatal error from a Process call.
	ErrBlockRuntime = errors.New("block runtime error")
)
