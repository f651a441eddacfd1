package core

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the runtime.
var (
	// ErrDuplicateExtension is returned when a name is already registered.
	ErrDuplicateExtension = errors.New("robota: extension already registered")

	// ErrNotFound is returned when an extension or stored record does not exist.
	ErrNotFound = errors.New("robota: not found")

	// ErrNotInitialized is returned when execution is requested before initialization.
	ErrNotInitialized = errors.New("robota: extension not initialized")

	// ErrDisabled is returned when execution is requested on a disabled extension.
	ErrDisabled = errors.New("robota: extension disabled")

	// ErrRegistryDisposing is returned for registrations attempted during teardown.
	ErrRegistryDisposing = errors.New("robota: registry is disposing")

	// ErrCircuitOpen is returned when the circuit breaker rejects a call without
	// invoking the wrapped operation. Distinguishable from a genuine failure.
	ErrCircuitOpen = errors.New("robota: circuit breaker is open")

	// ErrRateLimited is returned when admission control rejects a request.
	ErrRateLimited = errors.New("robota: rate limit exceeded")
)

// ConfigurationError reports invalid setup: a missing strategy, a malformed
// descriptor, a bad dependency graph. It is fatal, never retried, and surfaced
// synchronously to the caller of register/initialize.
type ConfigurationError struct {
	Component string
	Reason    string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("robota: invalid configuration in %s: %s", e.Component, e.Reason)
}

// NewConfigurationError creates a ConfigurationError for the given component.
func NewConfigurationError(component, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Component: component, Reason: fmt.Sprintf(format, args...)}
}

// ExtensionError wraps an operation-level failure attributed to a specific
// extension and lifecycle phase. These may be retried per the Failure
// Isolator's strategy.
type ExtensionError struct {
	Extension string
	Phase     string
	Err       error
}

// Error implements the error interface.
func (e *ExtensionError) Error() string {
	return fmt.Sprintf("robota: extension %q failed during %s: %v", e.Extension, e.Phase, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExtensionError) Unwrap() error { return e.Err }

// StorageError wraps an adapter-level failure. Recoverable by caller policy.
type StorageError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("robota: storage %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("robota: storage %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error { return e.Err }
