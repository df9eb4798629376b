package cache

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by response stores. Use errors.Is to match them.
var (
	// ErrNotFound means no entry is stored under the key; callers treat it as a miss.
	ErrNotFound = errors.New("cache: no stored response")

	// ErrCorruptEntry means a stored value could not be decoded into an Entry.
	ErrCorruptEntry = errors.New("cache: stored response is corrupt")

	// ErrClosed is returned by every call made after Close.
	ErrClosed = errors.New("cache: store closed")

	// ErrInvalidTTL rejects a negative entry lifetime.
	ErrInvalidTTL = errors.New("cache: negative entry lifetime")
)

// Backend operations named in BackendError
const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"
	OpPing   = "ping"
	OpStats  = "stats"
)

// ConfigError names the store setting that failed validation.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cache: invalid %s: %s", e.Field, e.Message)
}

// NewConfigError creates a configuration error for field
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// BackendError reports a failed call to the store holding cached responses.
// Target is the entry key, or the backend address for a ping.
type BackendError struct {
	Op     string
	Target string
	Err    error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("cache: %s %s: %v", e.Op, e.Target, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// NewBackendError wraps err from the backend call op on target
func NewBackendError(op, target string, err error) *BackendError {
	return &BackendError{Op: op, Target: target, Err: err}
}

// IsUnreachable reports whether err comes from a store that could not be
// contacted at all, as opposed to a single failed entry operation.
func IsUnreachable(err error) bool {
	var be *BackendError
	return errors.As(err, &be) && be.Op == OpPing
}
