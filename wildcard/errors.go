package wildcard

import "errors"

// Sentinel errors for wildcard loading and resolution.
// Callers match them with errors.Is; the returned errors carry the
// offending name or offset as context.
var (
	// Store errors
	ErrWildcardNotFound  = errors.New("wildcard: wildcard not found")
	ErrEmptyWildcardList = errors.New("wildcard: wildcard list is empty")
	ErrDuplicateWildcard = errors.New("wildcard: duplicate wildcard name")

	// Template errors
	ErrMalformedVariant    = errors.New("wildcard: malformed variant syntax")
	ErrInsufficientOptions = errors.New("wildcard: not enough options for requested count")

	// Expansion limits
	ErrMaxRecursion       = errors.New("wildcard: maximum recursion depth exceeded")
	ErrCombinatorialLimit = errors.New("wildcard: combinatorial limit exceeded")
)

// ErrWildcardCycle is returned when a wildcard expands back into itself.
// It wraps ErrMaxRecursion so callers that only care about runaway
// expansion can match either.
var ErrWildcardCycle = &cycleError{}

type cycleError struct{}

func (e *cycleError) Error() string { return "wildcard: reference cycle detected" }

func (e *cycleError) Unwrap() error { return ErrMaxRecursion }
