package core

import (
	"context"
	"strings"
)

// State models the lifecycle of a registered extension as a strict state
// machine:
//
//	Registered → Initializing → Initialized ⇄ Executing → Disposing → Disposed
//
// The enabled/disabled flag is orthogonal to the state and is checked before
// execution, not encoded here.
type State int

const (
	// StateRegistered means the extension is known but not yet initialized.
	StateRegistered State = iota
	// StateInitializing means Initialize is in flight.
	StateInitializing
	// StateInitialized means the extension is ready to execute.
	StateInitialized
	// StateExecuting means an execution is currently in flight.
	StateExecuting
	// StateDisposing means Dispose is in flight.
	StateDisposing
	// StateDisposed is terminal.
	StateDisposed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateInitializing:
		return "initializing"
	case StateInitialized:
		return "initialized"
	case StateExecuting:
		return "executing"
	case StateDisposing:
		return "disposing"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Descriptor identifies an extension and its declared relationships.
// It is immutable once registered.
type Descriptor struct {
	// Name is the unique key within a registry instance.
	Name string
	// Version is a semantic version string.
	Version string
	// Category is the dependency type this extension provides. Other
	// extensions declare dependencies on categories, not instance names.
	Category string
	// Priority orders peers; higher priority is visited first.
	Priority int
	// Dependencies lists the categories this extension requires before
	// it can be initialized.
	Dependencies []string
	// Capabilities advertises string capability tags for discovery.
	Capabilities []string
}

// Validate reports a ConfigurationError when the descriptor is malformed.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return NewConfigurationError("descriptor", "extension name must not be empty")
	}
	if strings.TrimSpace(d.Version) == "" {
		return NewConfigurationError("descriptor", "extension %q: version must not be empty", d.Name)
	}
	if strings.TrimSpace(d.Category) == "" {
		return NewConfigurationError("descriptor", "extension %q: category must not be empty", d.Name)
	}
	for _, dep := range d.Dependencies {
		if strings.TrimSpace(dep) == "" {
			return NewConfigurationError("descriptor", "extension %q: dependency type must not be empty", d.Name)
		}
		if dep == d.Category {
			return NewConfigurationError("descriptor", "extension %q: depends on its own category %q", d.Name, dep)
		}
	}
	return nil
}

// Capabilities is an explicit record of the optional lifecycle hooks an
// extension may provide. Hooks are presence-checked (nil means absent);
// the runtime never probes for them dynamically.
type Capabilities struct {
	// Execute performs the extension's operation. Extensions without it
	// are passive capability providers and reject Execute requests.
	Execute func(ctx context.Context, ectx *ExecutionContext) (*ExecutionResult, error)

	// Dispose releases resources. Invoked in reverse initialization order.
	Dispose func(ctx context.Context) error

	// BeforeExecution runs before the extension executes. Returning an
	// error blocks the execution entirely.
	BeforeExecution func(ctx context.Context, ectx *ExecutionContext) error

	// AfterExecution runs after a successful execution with its result.
	AfterExecution func(ctx context.Context, ectx *ExecutionContext, result *ExecutionResult) error

	// OnError observes an execution failure. It cannot suppress the error.
	OnError func(ctx context.Context, ectx *ExecutionContext, execErr error)
}

// Extension is the common contract both modules and plugins implement.
// Implementations should be safe for reuse across executions.
type Extension interface {
	// Descriptor returns the immutable descriptor for this extension.
	Descriptor() Descriptor

	// Initialize prepares the extension and wires it to the event bus.
	Initialize(ctx context.Context, bus *Bus) error

	// Capabilities returns the optional hook record. A zero value is valid.
	Capabilities() Capabilities
}

// BaseExtension is a ready-made Extension assembled from a descriptor and
// optional function fields. It favors composition over inheritance: lifecycle,
// hooks and stats live in separate components attached by the registry.
type BaseExtension struct {
	desc Descriptor
	init func(ctx context.Context, bus *Bus) error
	caps Capabilities
}

// NewExtension builds a BaseExtension from a descriptor.
func NewExtension(desc Descriptor, optFns ...func(*BaseExtension)) *BaseExtension {
	e := &BaseExtension{desc: desc}
	for _, fn := range optFns {
		fn(e)
	}
	return e
}

// WithInitialize sets the initialize function.
func WithInitialize(fn func(ctx context.Context, bus *Bus) error) func(*BaseExtension) {
	return func(e *BaseExtension) { e.init = fn }
}

// WithExecute sets the execute capability.
func WithExecute(fn func(ctx context.Context, ectx *ExecutionContext) (*ExecutionResult, error)) func(*BaseExtension) {
	return func(e *BaseExtension) { e.caps.Execute = fn }
}

// WithDispose sets the dispose capability.
func WithDispose(fn func(ctx context.Context) error) func(*BaseExtension) {
	return func(e *BaseExtension) { e.caps.Dispose = fn }
}

// WithCapabilities sets the optional hook record.
func WithCapabilities(caps Capabilities) func(*BaseExtension) {
	return func(e *BaseExtension) { e.caps = caps }
}

// Descriptor returns the descriptor supplied at construction.
func (e *BaseExtension) Descriptor() Descriptor { return e.desc }

// Initialize invokes the configured initialize function, if any.
func (e *BaseExtension) Initialize(ctx context.Context, bus *Bus) error {
	if e.init == nil {
		return nil
	}
	return e.init(ctx, bus)
}

// Capabilities returns the configured hook record.
func (e *BaseExtension) Capabilities() Capabilities { return e.caps }
