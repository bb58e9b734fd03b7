// Package errors defines the domain error types shared by every core
// component. Transport code maps these to RFC 7807 problem responses;
// everything below the transport layer works with the typed errors directly
// via errors.As / errors.Is.
package errors

import (
	"errors"
	"fmt"
)

// TransitionError is returned when a claim status change is not in the
// allowed-transition table. The claim is left unchanged.
type TransitionError struct {
	ClaimID   string
	Current   string
	Requested string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("claim %s: transition %s -> %s not allowed", e.ClaimID, e.Current, e.Requested)
}

// ConflictError is returned after optimistic-concurrency retries on a single
// record are exhausted.
type ConflictError struct {
	Resource string
	ID       string
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: concurrent update conflict after %d attempts", e.Resource, e.ID, e.Attempts)
}

// ReferenceError is returned when a write references a registry record that
// does not exist. Registries are populated first; nothing is auto-created.
type ReferenceError struct {
	Kind string // "entity" or "source"
	ID   string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %s does not exist", e.Kind, e.ID)
}

// ValidationError is returned when input is rejected before persistence.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError is returned when a lookup by ID finds no record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NewValidation creates a ValidationError for a specific field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewNotFound creates a NotFoundError.
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// NewReference creates a ReferenceError.
func NewReference(kind, id string) *ReferenceError {
	return &ReferenceError{Kind: kind, ID: id}
}

// IsTransition reports whether err is (or wraps) a TransitionError.
func IsTransition(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsReference reports whether err is (or wraps) a ReferenceError.
func IsReference(err error) bool {
	var re *ReferenceError
	return errors.As(err, &re)
}
