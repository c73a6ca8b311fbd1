// Package errors provides structured error handling for tabula.
//
// Every failure produced by the codec, the case streams and the pipeline is
// an *Error carrying a category (ErrorType), a human-readable message, an
// optional underlying cause, and, for file-format problems, the location
// (file name and byte offset) at which the inconsistency was detected.
// Exactly one message is rendered per failure; causes are appended rather
// than stacked as separate messages.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents invalid arguments
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents lookups of unknown variables or vectors
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConfig represents configuration errors such as duplicate
	// variable names, widths out of range, or rename collisions
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeCorrupt represents malformed or inconsistent file contents
	ErrorTypeCorrupt ErrorType = "corrupt"
	// ErrorTypeIO represents read, write and seek failures
	ErrorTypeIO ErrorType = "io"
	// ErrorTypeResource represents exhausted workspace. It is recovered
	// from by paging to disk and is only ever reported as a warning.
	ErrorTypeResource ErrorType = "resource"
)

// Error represents a structured error with context
type Error struct {
	Type     ErrorType
	Message  string
	Cause    error
	Location string
	Details  map[string]interface{}
	Stack    []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Location != "" {
		msg = e.Location + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// At records where in a file the error was detected. A negative offset
// records the file only.
func (e *Error) At(file string, offset int64) *Error {
	switch {
	case file != "" && offset >= 0:
		e.Location = fmt.Sprintf("%s at offset %d", file, offset)
	case file != "":
		e.Location = file
	case offset >= 0:
		e.Location = fmt.Sprintf("offset %d", offset)
	}
	if file != "" {
		e.WithDetail("file", file)
	}
	if offset >= 0 {
		e.WithDetail("offset", offset)
	}
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	e := Wrap(err, errType, fmt.Sprintf(format, args...))
	return e
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
