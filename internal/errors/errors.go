// Package errors provides the unified error type used across all engine
// layers, classifying failures by the recovery action they demand rather
// than by their origin.
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// ERROR KINDS AND CLASSIFICATION
// ============================================================================

// Kind categorizes an error by how callers should react to it.
type Kind string

const (
	// KindTransient marks network, timeout and rate-limit failures that are
	// worth retrying with backoff before being degraded.
	KindTransient Kind = "TRANSIENT"

	// KindDegraded marks a missing retrieval signal. The pipeline continues
	// with the remaining signals and annotates the trace.
	KindDegraded Kind = "DEGRADED"

	// KindValidation marks bad tool or request input. Validation errors are
	// surfaced as diagnostic observations and counted toward abort limits.
	KindValidation Kind = "VALIDATION"

	// KindExhaustion marks spent budgets: max retries, max agent steps.
	// The best partial result is returned with a clear status.
	KindExhaustion Kind = "EXHAUSTION"

	// KindNotFound marks a missing resource (knowledge base, run, document).
	KindNotFound Kind = "NOT_FOUND"

	// KindFatal marks unrecoverable conditions such as index corruption or
	// unauthorized access. The query aborts.
	KindFatal Kind = "FATAL"
)

// ============================================================================
// ERROR STRUCTURE
// ============================================================================

// AppError is the single error type shared by all layers.
type AppError struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`    // stable identifier for programmatic handling
	Message string `json:"message"` // human-readable message
	Details string `json:"details,omitempty"`
	Op      string `json:"operation,omitempty"` // operation that failed

	Retryable bool  `json:"retryable"`
	Cause     error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if e.Details != "" {
		msg = fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	if e.Op != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Kind, e.Code, e.Op, msg)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Code, msg)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithOp attaches the failing operation name.
func (e *AppError) WithOp(op string) *AppError {
	e.Op = op
	return e
}

// WithDetails attaches additional context.
func (e *AppError) WithDetails(format string, args ...any) *AppError {
	e.Details = fmt.Sprintf(format, args...)
	return e
}

// ============================================================================
// CONSTRUCTORS
// ============================================================================

// Transient creates a retryable transient error.
func Transient(code, message string, cause error) *AppError {
	return &AppError{Kind: KindTransient, Code: code, Message: message, Cause: cause, Retryable: true}
}

// Degraded creates an error for a dropped retrieval signal.
func Degraded(code, message string, cause error) *AppError {
	return &AppError{Kind: KindDegraded, Code: code, Message: message, Cause: cause}
}

// Validation creates an invalid-input error.
func Validation(code, message string) *AppError {
	return &AppError{Kind: KindValidation, Code: code, Message: message}
}

// Exhaustion creates a spent-budget error.
func Exhaustion(code, message string) *AppError {
	return &AppError{Kind: KindExhaustion, Code: code, Message: message}
}

// NotFound creates a missing-resource error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Kind:    KindNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found", resource),
		Details: id,
	}
}

// Fatal creates an unrecoverable error.
func Fatal(code, message string, cause error) *AppError {
	return &AppError{Kind: KindFatal, Code: code, Message: message, Cause: cause}
}

// Wrap adds an operation to err, preserving its kind when it is already an
// AppError and classifying it fatal otherwise. Returns nil for nil.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Kind:      appErr.Kind,
			Code:      appErr.Code,
			Message:   appErr.Message,
			Details:   appErr.Details,
			Op:        op,
			Retryable: appErr.Retryable,
			Cause:     err,
		}
	}
	return &AppError{Kind: KindFatal, Code: "INTERNAL", Message: op, Retryable: false, Cause: err}
}

// ============================================================================
// CLASSIFICATION HELPERS
// ============================================================================

func kindOf(err error) (Kind, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return "", false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransient
}

// IsDegraded reports whether err represents a dropped signal.
func IsDegraded(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindDegraded
}

// IsValidation reports whether err represents invalid input.
func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}

// IsExhaustion reports whether err represents a spent budget.
func IsExhaustion(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindExhaustion
}

// IsNotFound reports whether err represents a missing resource.
func IsNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsFatal reports whether err aborts the query. Missing resources abort too.
func IsFatal(err error) bool {
	k, ok := kindOf(err)
	return ok && (k == KindFatal || k == KindNotFound)
}

// CodeOf extracts the stable error code, or "INTERNAL" for foreign errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL"
}
