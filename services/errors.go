package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInstitutionNotFound covers both a missing node and a node outside the
// caller's scope, so that unauthorized callers cannot probe for existence.
var ErrInstitutionNotFound = errors.New("institution not found")

// ErrOperationNotFound is returned when no snapshot or persisted record
// exists for an operation id (it may have been purged after retention).
var ErrOperationNotFound = errors.New("operation not found")

// ValidationError carries the complete list of violations. Checks never
// short-circuit, so the caller sees every problem at once.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// AuthorizationError means the caller's role cannot act on the deletion
// surface at all, before any impact is computed.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return "not authorized for this operation"
	}
	return e.Reason
}

// ConflictError means a delete operation is already in flight for the
// institution. It carries the existing operation id so the caller can poll
// it instead of racing a second cascade.
type ConflictError struct {
	OperationID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("a delete operation is already running for this institution (operation_id=%s)", e.OperationID)
}
