package backup

import (
	"errors"
	"fmt"
)

// BackupError represents errors that occur during a hot backup run
type BackupError struct {
	Type    BackupErrorType        `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *BackupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *BackupError) Unwrap() error {
	return e.Cause
}

// BackupErrorType represents different types of backup errors
type BackupErrorType string

const (
	BackupErrorTypeConfiguration BackupErrorType = "CONFIG_ERROR"
	BackupErrorTypeTopology      BackupErrorType = "TOPOLOGY_ERROR"
	BackupErrorTypeDestination   BackupErrorType = "DESTINATION_ERROR"
	BackupErrorTypeEngine        BackupErrorType = "ENGINE_ERROR"
	BackupErrorTypeCancelled     BackupErrorType = "CANCELLED"
	BackupErrorTypeLock          BackupErrorType = "LOCK_ERROR"
	BackupErrorTypeValidation    BackupErrorType = "VALIDATION_ERROR"
)

// NewBackupError creates a new BackupError
func NewBackupError(errorType BackupErrorType, message string, cause error) *BackupError {
	return &BackupError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *BackupError) WithContext(key string, value interface{}) *BackupError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors
func NewConfigurationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeConfiguration, message, cause)
}

// NewTopologyError reports two source directories that overlap in an
// unsupported way. Both paths end up in the message.
func NewTopologyError(child, parent CandidateEntry) *BackupError {
	var message string
	if child.Path == parent.Path {
		message = fmt.Sprintf("%s directory %s is the same as %s directory %s",
			child.Role, child.Path, parent.Role, parent.Path)
	} else {
		message = fmt.Sprintf("%s directory %s is located inside %s directory %s",
			child.Role, child.Path, parent.Role, parent.Path)
	}
	return NewBackupError(BackupErrorTypeTopology, message, nil).
		WithContext("child_role", child.Role.String()).
		WithContext("child_path", child.Path).
		WithContext("parent_role", parent.Role.String()).
		WithContext("parent_path", parent.Path)
}

func NewDestinationError(path string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeDestination,
		fmt.Sprintf("failed to create destination directory %s", path), cause).
		WithContext("path", path)
}

func NewLockError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeLock, message, cause)
}

func NewValidationError(message string, cause error) *BackupError {
	return NewBackupError(BackupErrorTypeValidation, message, cause)
}

// NewCancelledError reports a run stopped by ctx before the engine started
func NewCancelledError(cause error) *BackupError {
	return NewBackupError(BackupErrorTypeCancelled, "backup cancelled", cause)
}

// EngineFailure is the code and message an engine reported for a failed run
type EngineFailure struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (f *EngineFailure) Error() string {
	return fmt.Sprintf("Backup failed (errno=%d): %s", f.Code, f.Message)
}

// NewEngineError wraps an engine failure verbatim. The abort code becomes a
// CANCELLED error so callers can tell a requested stop from a real failure.
func NewEngineError(code int, message string) *BackupError {
	failure := &EngineFailure{Code: code, Message: message}
	if code == AbortCode {
		return NewBackupError(BackupErrorTypeCancelled, "backup aborted on request", failure).
			WithContext("engine_code", code)
	}
	return NewBackupError(BackupErrorTypeEngine, "backup engine reported a failure", failure).
		WithContext("engine_code", code)
}

// ValidationError represents a single invalid configuration field
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

func errorType(err error) (BackupErrorType, bool) {
	var backupErr *BackupError
	if errors.As(err, &backupErr) {
		return backupErr.Type, true
	}
	return "", false
}

// IsConfigError reports whether err is a missing or unreadable primary directory
func IsConfigError(err error) bool {
	t, ok := errorType(err)
	return ok && t == BackupErrorTypeConfiguration
}

// IsTopologyError reports whether err is an unsupported directory overlap
func IsTopologyError(err error) bool {
	t, ok := errorType(err)
	return ok && t == BackupErrorTypeTopology
}

// IsDestinationError reports whether err is a destination creation failure
func IsDestinationError(err error) bool {
	t, ok := errorType(err)
	return ok && t == BackupErrorTypeDestination
}

// IsEngineError reports whether err is a non-cancellation engine failure
func IsEngineError(err error) bool {
	t, ok := errorType(err)
	return ok && t == BackupErrorTypeEngine
}

// IsCancelled reports whether the run stopped because its context was
// cancelled, before or while the engine ran
func IsCancelled(err error) bool {
	t, ok := errorType(err)
	return ok && t == BackupErrorTypeCancelled
}

// IsPermanent determines if an error comes from configuration the operator
// has to fix before the command is reissued
func IsPermanent(err error) bool {
	t, ok := errorType(err)
	if !ok {
		return false
	}
	switch t {
	case BackupErrorTypeConfiguration, BackupErrorTypeTopology, BackupErrorTypeValidation:
		return true
	default:
		return false
	}
}
