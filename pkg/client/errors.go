package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRequestBlocked is returned while the catalog's Retry-After window is open.
	ErrRequestBlocked = errors.New("request blocked: catalog throttling in effect")
)

// ErrorKind is the user-facing failure taxonomy of catalog operations.
// An ErrorKind is itself an error so it can be used as an errors.Is target.
type ErrorKind string

const (
	// UnavailableImage means the item has no image to load.
	UnavailableImage ErrorKind = "unavailable_image"

	// UnableToComplete means the request could not be carried out (transport
	// failure, cancellation, throttling).
	UnableToComplete ErrorKind = "unable_to_complete"

	// InvalidResponse means the server answered with a non-success status.
	InvalidResponse ErrorKind = "invalid_response"

	// InvalidData means the response carried no usable payload.
	InvalidData ErrorKind = "invalid_data"

	// InvalidParse means the payload could not be decoded.
	InvalidParse ErrorKind = "invalid_parse"
)

// Kind sentinels for errors.Is.
var (
	ErrUnavailableImage error = UnavailableImage
	ErrUnableToComplete error = UnableToComplete
	ErrInvalidResponse  error = InvalidResponse
	ErrInvalidData      error = InvalidData
	ErrInvalidParse     error = InvalidParse
)

// Message returns the text shown to the user for this kind.
func (k ErrorKind) Message() string {
	switch k {
	case UnavailableImage:
		return "There is no image."
	case UnableToComplete:
		return "Unable to complete your request. Please try again."
	case InvalidResponse:
		return "Invalid response from the server. Please try again."
	case InvalidData:
		return "The data received from the server was invalid. Please try again."
	case InvalidParse:
		return "Parsing error occured. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// Error implements the error interface.
func (k ErrorKind) Error() string {
	return string(k)
}

// CatalogError is the error returned by every catalog fetch.
type CatalogError struct {
	Kind       ErrorKind
	StatusCode int
	Op         string
	Err        error
}

// Error implements the error interface.
func (e *CatalogError) Error() string {
	msg := fmt.Sprintf("catalog %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CatalogError) Unwrap() error {
	return e.Err
}

// Is matches the ErrorKind sentinels.
func (e *CatalogError) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// KindOf returns the ErrorKind carried by err, or "" if there is none.
func KindOf(err error) ErrorKind {
	var catalogErr *CatalogError
	if errors.As(err, &catalogErr) {
		return catalogErr.Kind
	}
	var kind ErrorKind
	if errors.As(err, &kind) {
		return kind
	}
	return ""
}

// UserMessage returns the user-facing message for any error.
// Errors without a kind are reported as UnableToComplete.
func UserMessage(err error) string {
	if kind := KindOf(err); kind != "" {
		return kind.Message()
	}
	return UnableToComplete.Message()
}

// StatusError represents a non-success HTTP status seen by Do.
type StatusError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("catalog %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
