package dataforge

import "github.com/kailas-cloud/dataforge/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound            = domain.ErrNotFound
	ErrModelNotFound       = domain.ErrModelNotFound
	ErrDocumentNotFound    = domain.ErrDocumentNotFound
	ErrAlreadyExists       = domain.ErrAlreadyExists
	ErrValidation          = domain.ErrValidation
	ErrPermissionDenied    = domain.ErrPermissionDenied
	ErrCapacityExceeded    = domain.ErrCapacityExceeded
	ErrConstraintViolation = domain.ErrConstraintViolation
	ErrDuplicate           = domain.ErrDuplicate
	ErrTimeout             = domain.ErrTimeout
	ErrReconstruction      = domain.ErrReconstruction
	ErrConflictingGeo      = domain.ErrConflictingGeo
)

// Typed errors carrying details. Use errors.As() to inspect them.
type (
	CapacityError            = domain.CapacityError
	ConstraintViolationError = domain.ConstraintViolationError
	DuplicateError           = domain.DuplicateError
)
