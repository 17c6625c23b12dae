package common

import (
	"fmt"
)

// ConfigurationError is returned when the cache can't be initialized with the given parameters.
// This includes invalid capacities, invalid FBR partition fractions and block size probe failures.
type ConfigurationError struct {
	Message string
	cause   error
}

func (ce ConfigurationError) Error() string {
	if ce.cause != nil {
		return fmt.Sprintf("%s: %v", ce.Message, ce.cause)
	}
	return ce.Message
}

// Unwrap returns the underlying cause, if any.
func (ce ConfigurationError) Unwrap() error { return ce.cause }

// NewConfigurationError creates a new instance of ConfigurationError with the given message.
func NewConfigurationError(message string, cause error) ConfigurationError {
	return ConfigurationError{
		Message: message,
		cause:   cause,
	}
}

// PathError is returned when a path can't be opened.
// Either it lies outside the scratch root or the underlying open failed.
type PathError struct {
	Message string
	Path    string
	cause   error
}

func (pe PathError) Error() string {
	if pe.cause != nil {
		return fmt.Sprintf("%s (%s): %v", pe.Message, pe.Path, pe.cause)
	}
	return fmt.Sprintf("%s (%s)", pe.Message, pe.Path)
}

// Unwrap returns the underlying cause, if any.
func (pe PathError) Unwrap() error { return pe.cause }

// NewPathError creates a new instance of PathError with the given message.
func NewPathError(message, path string, cause error) PathError {
	return PathError{
		Message: message,
		Path:    path,
		cause:   cause,
	}
}

// HandleError is returned when an operation is called with an unknown or already closed handle.
type HandleError struct {
	Message string
	Handle  int
}

func (he HandleError) Error() string {
	return fmt.Sprintf("%s (handle %d)", he.Message, he.Handle)
}

// NewHandleError creates a new instance of HandleError with the given message.
func NewHandleError(message string, handle int) HandleError {
	return HandleError{
		Message: message,
		Handle:  handle,
	}
}

// IOError is returned when reading from the underlying file or writing a log file fails.
type IOError struct {
	Message string
	cause   error
}

func (ie IOError) Error() string {
	if ie.cause != nil {
		return fmt.Sprintf("%s: %v", ie.Message, ie.cause)
	}
	return ie.Message
}

// Unwrap returns the underlying cause, if any.
func (ie IOError) Unwrap() error { return ie.cause }

// NewIOError creates a new instance of IOError with the given message.
func NewIOError(message string, cause error) IOError {
	return IOError{
		Message: message,
		cause:   cause,
	}
}

// AllocationError is returned when a resource required by an operation couldn't be obtained.
type AllocationError struct {
	Message string
}

func (ae AllocationError) Error() string {
	return ae.Message
}

// NewAllocationError creates a new instance of AllocationError with the given message.
func NewAllocationError(message string) AllocationError {
	return AllocationError{
		Message: message,
	}
}

// UninitializedError is returned when an operation is called on a destroyed cache.
type UninitializedError struct {
	Message string
}

func (ue UninitializedError) Error() string {
	return ue.Message
}

// NewUninitializedError creates a new instance of UninitializedError with the given message.
func NewUninitializedError(message string) UninitializedError {
	return UninitializedError{
		Message: message,
	}
}
