package cases

import "errors"

// Workflow error taxonomy. Every rejected transition returns one of these so
// callers can tell "wrong role or stage" from "unknown case" from "race lost".
var (
	// ErrValidation marks malformed or missing input; the message is safe to
	// surface verbatim.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means no case exists with the given id.
	ErrNotFound = errors.New("case not found")
	// ErrForbidden means the actor's role does not match the case's current
	// review stage (including cases already closed).
	ErrForbidden = errors.New("role does not match case review stage")
	// ErrConflict means a compare-and-set race was lost. Retryable, but only
	// after re-reading current state.
	ErrConflict = errors.New("case status changed concurrently")
)
