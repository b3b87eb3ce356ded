// Package errors provides structured errors with stable codes for the
// installer. Every terminal failure the driver can surface maps to one
// of these codes, which keeps exit-code mapping and tests independent
// of message wording.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

const (
	// General errors
	ErrUnknown      ErrorCode = "UNKNOWN"
	ErrInternal     ErrorCode = "INTERNAL"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrNotFound     ErrorCode = "NOT_FOUND"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigParse ErrorCode = "CONFIG_PARSE"

	// Filesystem errors
	ErrFileAccess ErrorCode = "FILE_ACCESS"
	ErrDirCreate  ErrorCode = "DIR_CREATE"

	// Install-target errors
	ErrDirectoryUnavailable ErrorCode = "DIRECTORY_UNAVAILABLE"

	// Authentication and credential errors
	ErrAuthUnavailable      ErrorCode = "AUTH_UNAVAILABLE"
	ErrCredentialGeneration ErrorCode = "CREDENTIAL_GENERATION_FAILED"

	// Fetch errors
	ErrFetchFailed          ErrorCode = "FETCH_FAILED"
	ErrSourceSubtreeMissing ErrorCode = "SOURCE_SUBTREE_MISSING"

	// Manifest errors
	ErrManifestFileMissing ErrorCode = "MANIFEST_FILE_MISSING"

	// Handoff errors
	ErrElevationRequired ErrorCode = "ELEVATION_REQUIRED"
)

// InstallError represents a structured error with code and details
type InstallError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *InstallError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *InstallError) Unwrap() error {
	return e.Wrapped
}

// Is matches errors by code so that tests and the driver can use
// errors.Is against sentinel codes regardless of message text.
func (e *InstallError) Is(target error) bool {
	var targetErr *InstallError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new InstallError with the given code and message
func New(code ErrorCode, message string) *InstallError {
	return &InstallError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new InstallError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *InstallError {
	return &InstallError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with an InstallError
func Wrap(err error, code ErrorCode, message string) *InstallError {
	if err == nil {
		return nil
	}
	return &InstallError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *InstallError {
	if err == nil {
		return nil
	}
	return &InstallError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *InstallError) WithDetail(key string, value interface{}) *InstallError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// CodeOf returns the code carried by err, or ErrUnknown when err is not
// an InstallError.
func CodeOf(err error) ErrorCode {
	var ie *InstallError
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ErrUnknown
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var ie *InstallError
	if errors.As(err, &ie) {
		return ie.Code == code
	}
	return false
}
