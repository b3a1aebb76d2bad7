// Package cerr defines the structured error values shared across the
// CodeChat server. Render-level failures never travel as errors; they are
// folded into the errors event string before leaving the renderer. The
// types here cover everything else: caller mistakes, transport faults, and
// fatal startup conditions.
package cerr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	// ErrorTypeInput covers caller-addressed failures: unknown client id,
	// duplicate id, invalid location enum.
	ErrorTypeInput ErrorType = "input"
	// ErrorTypeDocument covers failures inside a convertible document.
	ErrorTypeDocument ErrorType = "document"
	// ErrorTypeTool covers external tool failures (missing executable,
	// non-zero exit, undecodable output).
	ErrorTypeTool ErrorType = "tool"
	// ErrorTypeProject covers project configuration failures.
	ErrorTypeProject ErrorType = "project"
	// ErrorTypeTransport covers connection-level failures.
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeFatal covers failures that bring the service down.
	ErrorTypeFatal ErrorType = "fatal"
)

// Error codes used across components.
const (
	CodeUnknownClient   = "unknown_client"
	CodeDuplicateClient = "duplicate_client"
	CodeInvalidLocation = "invalid_location"
	CodeShuttingDown    = "shutting_down"
	CodePortsInUse      = "ports_in_use"
	CodeBadFrame        = "bad_frame"
	CodeConfigInvalid   = "config_invalid"
	CodeSaveRejected    = "save_rejected"
)

// Sentinel errors returned by the RenderManager registry operations.
var (
	ErrUnknownClient = &ServiceError{Type: ErrorTypeInput, Code: CodeUnknownClient, Message: "unknown client"}
	ErrDuplicateID   = &ServiceError{Type: ErrorTypeInput, Code: CodeDuplicateClient, Message: "duplicate client id"}
	ErrShuttingDown  = &ServiceError{Type: ErrorTypeFatal, Code: CodeShuttingDown, Message: "service is shutting down"}
)

// ServiceError is a structured error with category, code, and context.
type ServiceError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	ClientID int
	HasID    bool
	FilePath string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.HasID {
		parts = append(parts, fmt.Sprintf("client:%d", e.ClientID))
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// Is matches on category and code so sentinel comparisons work through
// wrapping.
func (e *ServiceError) Is(target error) bool {
	var t *ServiceError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithClient attaches the client id the error refers to.
func (e *ServiceError) WithClient(id int) *ServiceError {
	clone := *e
	clone.ClientID = id
	clone.HasID = true

	return &clone
}

// WithPath attaches the file path the error refers to.
func (e *ServiceError) WithPath(path string) *ServiceError {
	clone := *e
	clone.FilePath = path

	return &clone
}

// NewInputError creates a caller-addressed error.
func NewInputError(code, message string) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeInput,
		Code:    code,
		Message: message,
	}
}

// NewTransportError creates a connection-level error.
func NewTransportError(code, message string, cause error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeTransport,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewProjectError creates a project configuration error.
func NewProjectError(code, message string, cause error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeProject,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewFatalError creates an error that must take the service down.
func NewFatalError(code, message string, cause error) *ServiceError {
	return &ServiceError{
		Type:    ErrorTypeFatal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsFatal reports whether err carries the fatal category.
func IsFatal(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeFatal
	}

	return false
}
