package domain

import (
	"errors"
	"fmt"
)

// Error codes surfaced to operators
const (
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeInput         = "INVALID_INPUT"
	ErrCodeAssessment    = "ASSESSMENT_ERROR"
	ErrCodeStorage       = "STORAGE_ERROR"
	ErrCodeAuth          = "AUTHENTICATION_ERROR"
)

// ConfigurationError reports a missing or corrupt model/scaler artifact or an
// unusable setting. It is fatal: the affected component cannot be built.
type ConfigurationError struct {
	Component string `json:"component"`
	Path      string `json:"path,omitempty"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%s: %s", ErrCodeConfiguration, e.Component)
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(component, path string, err error) *ConfigurationError {
	return &ConfigurationError{Component: component, Path: path, Err: err}
}

// InputError reports a malformed or non-coercible observation or identity
// field. Recoverable; nothing is persisted.
type InputError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *InputError) Error() string {
	return fmt.Sprintf("%s: field '%s': %s", ErrCodeInput, e.Field, e.Message)
}

// NewInputError creates a new InputError
func NewInputError(field string, value any, message string) *InputError {
	return &InputError{Field: field, Value: value, Message: message}
}

// AssessmentError wraps any failure surfaced during an orchestrated run.
// A run that returns it has persisted nothing.
type AssessmentError struct {
	Patient string `json:"patient"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AssessmentError) Error() string {
	return fmt.Sprintf("%s: assessment for %q failed: %v", ErrCodeAssessment, e.Patient, e.Err)
}

func (e *AssessmentError) Unwrap() error { return e.Err }

// NewAssessmentError creates a new AssessmentError
func NewAssessmentError(patient string, err error) *AssessmentError {
	return &AssessmentError{Patient: patient, Err: err}
}

// StorageError reports a durable read or write failure in the history store.
type StorageError struct {
	Op  string `json:"op"`
	Err error  `json:"-"`
}

// Error implements the error interface
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCodeStorage, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError creates a new StorageError
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// AuthError reports a failed operator verification.
type AuthError struct {
	Reason string `json:"reason"`
}

// Error implements the error interface
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCodeAuth, e.Reason)
}

// ErrorCode maps an error chain to the operator-facing code.
func ErrorCode(err error) string {
	var (
		cfgErr   *ConfigurationError
		inErr    *InputError
		storeErr *StorageError
		authErr  *AuthError
		runErr   *AssessmentError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return ErrCodeAuth
	case errors.As(err, &runErr):
		return ErrCodeAssessment
	case errors.As(err, &cfgErr):
		return ErrCodeConfiguration
	case errors.As(err, &inErr):
		return ErrCodeInput
	case errors.As(err, &storeErr):
		return ErrCodeStorage
	default:
		return "INTERNAL_ERROR"
	}
}
