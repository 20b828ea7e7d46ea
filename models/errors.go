package models

import "errors"

// Error kinds. Specific errors across the module wrap one of these so callers
// can classify failures with errors.Is.
var (
	ErrValidation    = errors.New("validation failed")
	ErrStateConflict = errors.New("state conflict")
	ErrCapacity      = errors.New("capacity exceeded")
	ErrNotFound      = errors.New("requested resource not found")
	ErrPermission    = errors.New("operation not allowed for the current actor")
	ErrPersistence   = errors.New("persistence failure")
	ErrFault         = errors.New("invariant violation")
)
