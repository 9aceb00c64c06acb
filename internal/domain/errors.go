package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrModelNotFound signals a missing model definition.
	ErrModelNotFound = errors.New("model not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation signals a malformed model, field, filter or payload.
	ErrValidation = errors.New("validation failed")
	// ErrPermissionDenied signals a missing capability.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrCapacityExceeded signals an exhausted storage quota or document cap.
	ErrCapacityExceeded = errors.New("capacity exceeded")
	// ErrConstraintViolation signals a unique or composite constraint collision.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrDuplicate signals a document whose content hash already exists.
	ErrDuplicate = errors.New("duplicate document")
	// ErrTimeout signals a query that exceeded its time budget. Retryable.
	ErrTimeout = errors.New("query timeout")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrReconstruction signals an expression that cannot be mapped back to a filter node.
	ErrReconstruction = errors.New("filter reconstruction failed")
	// ErrConflictingGeo signals mutually exclusive geo/text operators in one filter.
	ErrConflictingGeo = errors.New("conflicting geo operators")
)

// Capacity kinds reported by CapacityError.
const (
	CapacityStorage   = "storage"
	CapacityDocuments = "documents"
	CapacityPayload   = "payload"
)

// CapacityError wraps ErrCapacityExceeded with the exhausted limit.
type CapacityError struct {
	Kind  string
	Limit int64
	Used  int64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: %s limit %d reached (used %d)", ErrCapacityExceeded.Error(), e.Kind, e.Limit, e.Used)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// Violation is a single unique or composite constraint collision.
type Violation struct {
	Keys   []string       `json:"keys"`
	Values map[string]any `json:"values"`
	Index  int            `json:"index"`
}

// ConstraintViolationError aggregates every violation found for a model.
type ConstraintViolationError struct {
	Model      string
	Violations []Violation
}

func (e *ConstraintViolationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, strings.Join(v.Keys, "+"))
	}
	return fmt.Sprintf("%s on %s: %s", ErrConstraintViolation.Error(), e.Model, strings.Join(parts, ", "))
}

func (e *ConstraintViolationError) Unwrap() error { return ErrConstraintViolation }

// NewUniqueViolation creates a single-field constraint violation.
func NewUniqueViolation(model, fieldName string, value any) error {
	return &ConstraintViolationError{
		Model: model,
		Violations: []Violation{{
			Keys:   []string{fieldName},
			Values: map[string]any{fieldName: value},
		}},
	}
}

// DuplicateError wraps ErrDuplicate with the id of the document that already holds the hash.
type DuplicateError struct {
	ExistingID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: content identical to %s", ErrDuplicate.Error(), e.ExistingID)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// Validationf builds an ErrValidation-wrapped error.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
