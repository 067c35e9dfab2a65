// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("input validation failed")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrNotConfigured    = errors.New("not configured")
	ErrUpstream         = errors.New("upstream provider error")
	ErrGuardrailBlocked = errors.New("blocked by guardrail")
	ErrRefreshBusy      = errors.New("refresh already in progress")
)

// ProviderError represents an error from a third-party data provider.
type ProviderError struct {
	Provider string
	Op       string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider error [%s] %s: status %d: %v", e.Provider, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("provider error [%s] %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, op string, status int, err error) *ProviderError {
	if err == nil {
		err = errors.New("unexpected response")
	}
	return &ProviderError{
		Provider: provider,
		Op:       op,
		Status:   status,
		Err:      err,
	}
}

// StoreError represents a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error [%s]: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists returns true if the error is a duplicate key error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsUpstream returns true if the error originated at a third-party provider.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
