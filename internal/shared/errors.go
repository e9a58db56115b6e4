package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a request without a resolvable principal.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the principal lacks the capability for the action.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict indicates the resource already reached a terminal lifecycle state.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates malformed input rejected before any side effect.
	ErrValidation = errors.New("validation failed")
)
