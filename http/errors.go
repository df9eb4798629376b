package http

import (
	"errors"
	"fmt"
	"time"
)

// ErrCancelled matches every cancellation error through errors.Is
var ErrCancelled = errors.New("request cancelled")

// ClientError is implemented by every error produced by this package
type ClientError interface {
	error
	Type() ErrorType
}

// ErrorType defines the category of a client error
type ErrorType string

const (
	// NetworkError means the exchange could not be completed (DNS, refused connection, reset)
	NetworkError ErrorType = "network"
	// TimeoutError means the last attempt exceeded its deadline
	TimeoutError ErrorType = "timeout"
	// CancelledError means the request was cancelled by the caller
	CancelledError ErrorType = "cancelled"
	// UnexpectedError covers failures that are neither transport nor status related
	UnexpectedError ErrorType = "unexpected"
	// HTTPError is a failed status converted into an error by Response.AsError
	HTTPError ErrorType = "http"
	// ValidationError means the request description is invalid
	ValidationError ErrorType = "validation"
	// InterceptorError wraps an error returned by a lifecycle listener
	InterceptorError ErrorType = "interceptor"
)

// Error is the structured error returned by the engine and the handler.
// It is never modified after construction.
type Error struct {
	Kind ErrorType
	// URL is the target the request was sent (or about to be sent) to
	URL string
	// Attempt is the zero-based attempt index at which the failure became terminal
	Attempt int
	// StatusCode and Body are set only when a wire response existed
	StatusCode int
	Body       []byte
	// Timeout is the per-attempt deadline for timeout errors
	Timeout time.Duration
	// Stage names the phase of an interceptor error or the field of a validation error
	Stage   string
	Message string
	Err     error
}

var _ ClientError = (*Error)(nil)

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case TimeoutError:
		msg = fmt.Sprintf("timeout error: %s %s (timeout: %v, attempt: %d)", e.Message, e.URL, e.Timeout, e.Attempt+1)
	case NetworkError:
		msg = fmt.Sprintf("network error: %s %s (attempt: %d)", e.Message, e.URL, e.Attempt+1)
	case CancelledError:
		msg = fmt.Sprintf("cancelled: %s %s", e.Message, e.URL)
	case HTTPError:
		msg = fmt.Sprintf("HTTP error: %s %s (status: %d)", e.Message, e.URL, e.StatusCode)
	case ValidationError:
		if e.Stage != "" {
			msg = fmt.Sprintf("validation error: %s (field: %s)", e.Message, e.Stage)
		} else {
			msg = fmt.Sprintf("validation error: %s", e.Message)
		}
	case InterceptorError:
		msg = fmt.Sprintf("interceptor error: %s (stage: %s)", e.Message, e.Stage)
	default:
		msg = fmt.Sprintf("unexpected error: %s %s (attempt: %d)", e.Message, e.URL, e.Attempt+1)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Type returns the error category
func (e *Error) Type() ErrorType {
	return e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes every cancellation error match ErrCancelled
func (e *Error) Is(target error) bool {
	return target == ErrCancelled && e.Kind == CancelledError
}

// HasResponse reports whether the network answered before the failure
func (e *Error) HasResponse() bool {
	return e.StatusCode != 0
}

// NewNetworkError creates a transport failure error
func NewNetworkError(url string, attempt int, cause error) *Error {
	return &Error{Kind: NetworkError, URL: url, Attempt: attempt, Message: "request to", Err: cause}
}

// NewTimeoutError creates an error for an attempt that exceeded its deadline
func NewTimeoutError(url string, attempt int, timeout time.Duration) *Error {
	return &Error{Kind: TimeoutError, URL: url, Attempt: attempt, Timeout: timeout, Message: "request to"}
}

// NewCancelledError creates a cancellation error; cause may be nil
func NewCancelledError(url string, attempt int, cause error) *Error {
	if errors.Is(cause, ErrCancelled) {
		cause = nil
	}
	return &Error{Kind: CancelledError, URL: url, Attempt: attempt, Message: "request to", Err: cause}
}

// NewUnexpectedError creates an error for failures outside the retry taxonomy
func NewUnexpectedError(url string, attempt int, cause error) *Error {
	return &Error{Kind: UnexpectedError, URL: url, Attempt: attempt, Message: "request to", Err: cause}
}

// NewHTTPError creates an error describing a failed wire response
func NewHTTPError(url string, attempt, statusCode int, body []byte) *Error {
	return &Error{
		Kind:       HTTPError,
		URL:        url,
		Attempt:    attempt,
		StatusCode: statusCode,
		Body:       body,
		Message:    "request failed for",
	}
}

// NewValidationError creates a request validation error
func NewValidationError(message, field string) *Error {
	return &Error{Kind: ValidationError, Message: message, Stage: field}
}

// NewInterceptorError wraps an error returned by a listener of the given phase
func NewInterceptorError(phase string, wrapped error) *Error {
	return &Error{Kind: InterceptorError, Message: "listener failed", Stage: phase, Err: wrapped}
}

// IsErrorType checks if err is a ClientError of the given type
func IsErrorType(err error, errorType ErrorType) bool {
	if err == nil {
		return false
	}
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type() == errorType
	}
	return false
}

// IsCancelled reports whether err is a cancellation error
func IsCancelled(err error) bool {
	return IsErrorType(err, CancelledError)
}

// IsTimeout reports whether err is a timeout error
func IsTimeout(err error) bool {
	return IsErrorType(err, TimeoutError)
}

// IsHTTPStatusError checks if err is an HTTP error with a specific status code
func IsHTTPStatusError(err error, statusCode int) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == HTTPError && e.StatusCode == statusCode
	}
	return false
}
