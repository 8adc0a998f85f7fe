// Package exception provides the custom error type used across the weatherlake
// pipeline. It standardizes errors raised during ingestion and transformation,
// carrying the originating module and recovery hints (retryable / skippable).
package exception

import (
	"fmt"
	"runtime"
	"strings"
)

// PipelineError is the error type raised by pipeline components.
// It holds the module where the error occurred, a message, the wrapped
// original error, and flags indicating whether it is retryable or skippable.
type PipelineError struct {
	// Module indicates the module where the error occurred (e.g., "planner", "ingest", "transform", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// isRetryable indicates whether this error is retryable.
	isRetryable bool
	// isSkippable indicates whether this error is skippable.
	isSkippable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewPipelineError creates a new PipelineError instance.
// module: The module where the error occurred.
// message: The error message.
// originalErr: The original error to wrap (may be nil).
// isSkippable: Whether this error is skippable.
// isRetryable: Whether this error is retryable.
func NewPipelineError(module, message string, originalErr error, isSkippable, isRetryable bool) *PipelineError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &PipelineError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  string(buf[:n]),
	}
}

// NewPipelineErrorf creates a new PipelineError using a format string.
// The error is neither retryable nor skippable; use NewPipelineError when the
// recovery flags matter.
func NewPipelineErrorf(module, format string, a ...interface{}) *PipelineError {
	return NewPipelineError(module, fmt.Sprintf(format, a...), nil, false, false)
}

// Error implements the error interface.
// It returns the error's module, message, and the string representation of the original error.
func (e *PipelineError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *PipelineError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *PipelineError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *PipelineError) IsSkippable() bool {
	return e.isSkippable
}

// IsPipelineError determines if the given error is of type PipelineError.
func IsPipelineError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*PipelineError)
	return ok
}

// IsTemporary determines if an error is temporary (e.g., network error,
// provider throttling). If it's a PipelineError, its IsRetryable flag takes
// precedence.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if pe, ok := err.(*PipelineError); ok {
		return pe.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF")
}

// ExtractErrorMessage extracts the error message string from an error.
// For PipelineError, it returns the cleaner Message field.
// Otherwise, it returns the standard Error() string.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if pe, ok := err.(*PipelineError); ok {
		return pe.Message
	}
	return err.Error()
}
