// Package simerr defines the error kinds shared by every simulation component.
// Package-specific errors wrap one of these kinds so callers can branch on
// either the precise error or its kind with errors.Is.
package simerr

import "errors"

var (
	// ErrValidation marks bad input shape: negative amounts, unknown sides.
	ErrValidation = errors.New("validation error")
	// ErrCapacity marks a recoverable limit: active-question cap, balance, shares.
	ErrCapacity = errors.New("capacity error")
	// ErrCollaborator marks a failure in an external collaborator.
	ErrCollaborator = errors.New("collaborator error")
	// ErrInvariant marks a trade rejected because it would break a pool invariant.
	ErrInvariant = errors.New("invariant violation")
)

// KindOf returns a short name for the kind err wraps, or "unknown".
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrCapacity):
		return "capacity"
	case errors.Is(err, ErrCollaborator):
		return "collaborator"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	default:
		return "unknown"
	}
}

// Recoverable reports whether the orchestrator may skip the failing action
// and carry on with the rest of the day.
func Recoverable(err error) bool {
	return errors.Is(err, ErrCapacity) || errors.Is(err, ErrCollaborator) || errors.Is(err, ErrInvariant)
}
