// Package errors provides consolidated error definitions for the project.
//
// This file provides:
// - Sentinel errors for all error conditions
// - Typed errors carrying per-message context
// - Error category checking functions
// - Error wrapping utilities
package errors

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sentinel errors for common conditions
// ============================================================================

var (
	// Decode errors
	ErrMalformedMessage = errors.New("malformed message")
	ErrMissingField     = errors.New("missing required field")
	ErrNotNumeric       = errors.New("value is not numeric")

	// Configuration errors (fatal at startup)
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrRegistryMissing   = errors.New("signal registry descriptor missing")
	ErrRegistryMalformed = errors.New("signal registry descriptor malformed")

	// Store errors
	ErrStoreQuery  = errors.New("store query failed")
	ErrStoreWrite  = errors.New("store write failed")
	ErrStoreClosed = errors.New("store is closed")
)

// ============================================================================
// Typed errors
// ============================================================================

// DecodeError describes a CCM message that could not be decoded.
// It wraps one of the decode sentinels above.
type DecodeError struct {
	Field string // Offending field, if known
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decode: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecodeError creates a DecodeError for a specific field.
func NewDecodeError(field string, err error) *DecodeError {
	return &DecodeError{Field: field, Err: err}
}

// ============================================================================
// Category checks
// ============================================================================

// IsDecodeError returns true if err is any decode failure.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IsStoreQueryError returns true for transient read failures.
// These degrade to a documented fallback and are never fatal.
func IsStoreQueryError(err error) bool {
	return errors.Is(err, ErrStoreQuery)
}

// IsStoreWriteError returns true for write failures (retried with backoff).
func IsStoreWriteError(err error) bool {
	return errors.Is(err, ErrStoreWrite)
}

// IsConfigError returns true for startup configuration failures.
// These are fatal before the receive loop starts.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrRegistryMissing) ||
		errors.Is(err, ErrRegistryMalformed)
}

// ============================================================================
// Wrapping utilities
// ============================================================================

// QueryError wraps err as a store query failure.
func QueryError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreQuery, err)
}

// WriteError wraps err as a store write failure.
func WriteError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreWrite, err)
}

// ConfigError wraps err as a fatal configuration failure.
func ConfigError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrInvalidConfig, err)
}

// Re-export commonly used stdlib functions so callers only import one
// errors package.

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error that formats as the given text.
func New(text string) error { return errors.New(text) }
