package archive

import (
	"errors"
	"fmt"
)

// ErrorType classifies archive failures
type ErrorType string

const (
	ErrorTypeCompression ErrorType = "COMPRESSION_ERROR"
	ErrorTypeEncryption  ErrorType = "ENCRYPTION_ERROR"
	ErrorTypeFormat      ErrorType = "FORMAT_ERROR"
	ErrorTypeIO          ErrorType = "IO_ERROR"
)

// ErrTruncated is returned when an encrypted stream ends before its final
// chunk
var ErrTruncated = errors.New("encrypted stream is truncated")

// ArchiveError is the error returned by every archive operation
type ArchiveError struct {
	Type    ErrorType
	Message string
	Cause   error
	Path    string
}

func (e *ArchiveError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *ArchiveError) Unwrap() error {
	return e.Cause
}

// NewCompressionError creates a compression error
func NewCompressionError(message string, cause error) *ArchiveError {
	return &ArchiveError{Type: ErrorTypeCompression, Message: message, Cause: cause}
}

// NewEncryptionError creates an encryption error
func NewEncryptionError(message string, cause error) *ArchiveError {
	return &ArchiveError{Type: ErrorTypeEncryption, Message: message, Cause: cause}
}

// NewFormatError creates an error for malformed archive content
func NewFormatError(message string, path string) *ArchiveError {
	return &ArchiveError{Type: ErrorTypeFormat, Message: message, Path: path}
}

// NewIOError creates an error for a failed file operation
func NewIOError(message, path string, cause error) *ArchiveError {
	return &ArchiveError{Type: ErrorTypeIO, Message: message, Path: path, Cause: cause}
}

// IsEncryptionError reports whether err is an encryption failure
func IsEncryptionError(err error) bool {
	var archiveErr *ArchiveError
	return errors.As(err, &archiveErr) && archiveErr.Type == ErrorTypeEncryption
}

// IsFormatError reports whether err is a malformed archive
func IsFormatError(err error) bool {
	var archiveErr *ArchiveError
	return errors.As(err, &archiveErr) && archiveErr.Type == ErrorTypeFormat
}
