// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a toolkit error for callers and for the bridge layer.
type ErrorKind string

const (
	// KindValidation marks bad input shape or value.
	KindValidation ErrorKind = "validation_error"
	// KindConversion marks a converter failure; details carry the source and
	// target formats and the input file.
	KindConversion ErrorKind = "conversion_error"
	// KindPlugin marks a registry or dispatch failure: no matching plugin,
	// unusable plugin, or a plugin that panicked.
	KindPlugin ErrorKind = "plugin_error"
	// KindLicense marks an activation, feature-access, or file-size gating
	// failure.
	KindLicense ErrorKind = "license_error"
	// KindTrialExpired marks an exhausted free-tier conversion quota. It is a
	// specialization of KindLicense; IsKind(err, KindLicense) also matches.
	KindTrialExpired ErrorKind = "trial_expired"
	// KindDependency marks a missing external tool or library.
	KindDependency ErrorKind = "dependency_error"
	// KindProgress marks operation-tracking misuse: unknown id, out-of-range
	// step, or mutation of a terminal operation.
	KindProgress ErrorKind = "progress_error"
	// KindConfiguration marks malformed persisted settings.
	KindConfiguration ErrorKind = "configuration_error"
)

// Error is the structured error carried across component boundaries. Every
// business failure (missing plugin, trial exhaustion, bad preset) is an
// *Error; panics are reserved for internal invariant violations.
type Error struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
	cause   error
}

// NewError constructs an Error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithDetail attaches a key/value pair to the error's details, returning the
// error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause records the underlying error, reachable through errors.Unwrap.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Dict returns the serializable representation consumed by the bridge layer:
// kind, message, and details (omitted when empty).
func (e *Error) Dict() map[string]any {
	d := map[string]any{
		"kind":    string(e.Kind),
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		d["details"] = details
	}
	return d
}

// AsError returns the *Error in err's chain, or nil.
func AsError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return nil
}

// IsKind reports whether err is an *Error of the given kind. A trial-expired
// error also matches KindLicense, since it is a license-gating failure.
func IsKind(err error, kind ErrorKind) bool {
	te := AsError(err)
	if te == nil {
		return false
	}
	if te.Kind == kind {
		return true
	}
	return kind == KindLicense && te.Kind == KindTrialExpired
}
