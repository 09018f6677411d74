// Package domain contains business logic types and errors.
// Domain errors represent business-level failures, NOT HTTP errors.
// They carry a status code so adapters can render them without re-deciding
// the failure kind, but they are infrastructure-agnostic otherwise.
package domain

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// StatusNoResponse is the status carried by a RequestError when no HTTP
// response was received (network failure, timeout, open circuit).
const StatusNoResponse = 0

// unclassifiedMessage is used when an unclassified failure has no message of its own.
const unclassifiedMessage = "An unexpected error occurred"

// Sentinel errors for use with errors.Is().
var (
	// ErrValidation indicates the input payload failed validation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRequest indicates an upstream, transport or commit-conflict failure.
	ErrRequest = errors.New("request failed")

	// ErrUnclassified indicates a failure outside the taxonomy.
	ErrUnclassified = errors.New("unclassified failure")
)

// Failure is implemented by every taxonomy error.
type Failure interface {
	error

	// StatusCode returns the status associated with the failure.
	StatusCode() int
}

// FieldErrors maps a field name to its error messages.
type FieldErrors map[string][]string

// Add appends a message for field.
func (f FieldErrors) Add(field, message string) {
	f[field] = append(f[field], message)
}

// Fields returns the field names in sorted order.
func (f FieldErrors) Fields() []string {
	fields := make([]string, 0, len(f))
	for field := range f {
		fields = append(fields, field)
	}

	sort.Strings(fields)

	return fields
}

// ValidationError is returned when an input payload is malformed.
type ValidationError struct {
	FieldErrors FieldErrors
}

// Error implements the error interface.
// Messages read "Provider is required, Email must be a valid email address".
func (e *ValidationError) Error() string {
	if len(e.FieldErrors) == 0 {
		return "Validation failed"
	}

	parts := make([]string, 0, len(e.FieldErrors))
	for _, field := range e.FieldErrors.Fields() {
		messages := e.FieldErrors[field]
		if len(messages) == 0 {
			continue
		}

		name := fieldLabel(field)
		formatted := make([]string, len(messages))
		for i, msg := range messages {
			formatted[i] = name + " " + msg
		}

		parts = append(parts, strings.Join(formatted, " and "))
	}

	return strings.Join(parts, ", ")
}

// StatusCode implements Failure.
func (e *ValidationError) StatusCode() int {
	return http.StatusBadRequest
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a validation error for a single field.
func NewValidationError(field, message string) error {
	return &ValidationError{FieldErrors: FieldErrors{field: {message}}}
}

// NewValidationErrors creates a validation error from a field error mapping.
func NewValidationErrors(fieldErrors FieldErrors) error {
	return &ValidationError{FieldErrors: fieldErrors}
}

// NotFoundError is returned when a referenced resource does not exist.
type NotFoundError struct {
	Resource string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// StatusCode implements Failure.
func (e *NotFoundError) StatusCode() int {
	return http.StatusNotFound
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not found error for the named resource kind.
func NewNotFoundError(resource string) error {
	return &NotFoundError{Resource: resource}
}

// RequestError is a generic upstream or transport failure.
//
// Status is propagated from the failing call; StatusNoResponse means the call
// never produced an HTTP response. Timeout marks a cancelled in-flight call
// whose remote outcome is unknown.
type RequestError struct {
	Status      int
	Message     string
	FieldErrors FieldErrors
	Timeout     bool
	Retryable   bool
	Cause       error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// StatusCode implements Failure.
func (e *RequestError) StatusCode() int {
	return e.Status
}

// Unwrap returns the sentinel error and the cause for errors.Is() support.
func (e *RequestError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrRequest, e.Cause}
	}

	return []error{ErrRequest}
}

// OutcomeUnknown reports whether the remote side may have applied the request.
func (e *RequestError) OutcomeUnknown() bool {
	return e.Timeout
}

// NewRequestError creates a request error with the given status and message.
func NewRequestError(status int, message string) error {
	return &RequestError{Status: status, Message: message}
}

// NewConflictError creates a retryable request error for a storage-level
// uniqueness or write conflict.
func NewConflictError(resource string, cause error) error {
	return &RequestError{
		Status:    http.StatusConflict,
		Message:   fmt.Sprintf("%s was modified concurrently, retry the request", resource),
		Retryable: true,
		Cause:     cause,
	}
}

// UnclassifiedError wraps any failure outside the taxonomy.
type UnclassifiedError struct {
	Cause error
}

// Error implements the error interface.
func (e *UnclassifiedError) Error() string {
	if e.Cause == nil || e.Cause.Error() == "" {
		return unclassifiedMessage
	}

	return e.Cause.Error()
}

// StatusCode implements Failure.
func (e *UnclassifiedError) StatusCode() int {
	return http.StatusInternalServerError
}

// Unwrap returns the sentinel error and the cause.
func (e *UnclassifiedError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrUnclassified, e.Cause}
	}

	return []error{ErrUnclassified}
}

// Classify returns err as a taxonomy Failure, wrapping anything unrecognised
// in an UnclassifiedError. Classify(nil) returns nil.
func Classify(err error) Failure {
	if err == nil {
		return nil
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr
	}

	var notFoundErr *NotFoundError
	if errors.As(err, &notFoundErr) {
		return notFoundErr
	}

	var requestErr *RequestError
	if errors.As(err, &requestErr) {
		return requestErr
	}

	var unclassifiedErr *UnclassifiedError
	if errors.As(err, &unclassifiedErr) {
		return unclassifiedErr
	}

	return &UnclassifiedError{Cause: err}
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRequest checks if an error is a request error.
func IsRequest(err error) bool {
	return errors.Is(err, ErrRequest)
}

// IsUnclassified checks if an error was coerced to an unclassified failure.
func IsUnclassified(err error) bool {
	return errors.Is(err, ErrUnclassified)
}

// IsTimeout checks if an error is a request error caused by a client-side timeout.
func IsTimeout(err error) bool {
	var requestErr *RequestError
	return errors.As(err, &requestErr) && requestErr.Timeout
}

// IsRetryable checks if an error is a request error that callers may retry.
func IsRetryable(err error) bool {
	var requestErr *RequestError
	return errors.As(err, &requestErr) && (requestErr.Retryable || requestErr.Timeout)
}

// fieldLabel turns "user.email" into "Email" and "providerAccountId" into
// "ProviderAccountId".
func fieldLabel(field string) string {
	if idx := strings.LastIndex(field, "."); idx >= 0 {
		field = field[idx+1:]
	}

	if field == "" {
		return field
	}

	return strings.ToUpper(field[:1]) + field[1:]
}
