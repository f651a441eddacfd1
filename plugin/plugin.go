package plugin

import (
	"context"

	"github.com/woojubb/robota-go/core"
)

// Plugin is a cross-cutting extension hooked into the execution pipeline.
// All hook methods are required by the interface; embed BasePlugin for
// no-op defaults.
type Plugin interface {
	// Name is the unique plugin key within a coordinator.
	Name() string
	// Version is a semantic version string, compared against MinVersion
	// constraints of dependents.
	Version() string
	// Priority is the primary sort key; higher priority plugins are
	// visited first. Ties break by declaration order.
	Priority() int

	// Initialize prepares the plugin and wires it to the event bus.
	Initialize(ctx context.Context, bus *core.Bus) error
	// Destroy releases resources. Invoked in reverse initialization order.
	Destroy(ctx context.Context) error

	// BeforeExecution runs before an execution; an error blocks it.
	BeforeExecution(ctx context.Context, ectx *core.ExecutionContext) error
	// AfterExecution observes a completed execution and its result.
	AfterExecution(ctx context.Context, ectx *core.ExecutionContext, result *core.ExecutionResult) error
	// OnError observes an execution failure. It cannot suppress the error.
	OnError(ctx context.Context, ectx *core.ExecutionContext, execErr error)
}

// Dependency is an explicit edge declared at registration time, not on the
// plugin itself.
type Dependency struct {
	// Name is the plugin this edge points at.
	Name string
	// Required rejects registration when the dependency is absent.
	Required bool
	// MinVersion, when set, requires the dependency to be at least this
	// semantic version.
	MinVersion string
}

// BasePlugin provides identity plus no-op lifecycle and hook defaults.
// Embed it and override what the plugin needs.
type BasePlugin struct {
	name     string
	version  string
	priority int
}

// NewBasePlugin creates the embeddable identity component.
func NewBasePlugin(name, version string, priority int) BasePlugin {
	return BasePlugin{name: name, version: version, priority: priority}
}

// Name returns the plugin name.
func (p BasePlugin) Name() string { return p.name }

// Version returns the plugin version.
func (p BasePlugin) Version() string { return p.version }

// Priority returns the plugin priority.
func (p BasePlugin) Priority() int { return p.priority }

// Initialize is a no-op default.
func (p BasePlugin) Initialize(ctx context.Context, bus *core.Bus) error { return nil }

// Destroy is a no-op default.
func (p BasePlugin) Destroy(ctx context.Context) error { return nil }

// BeforeExecution is a no-op default.
func (p BasePlugin) BeforeExecution(ctx context.Context, ectx *core.ExecutionContext) error {
	return nil
}

// AfterExecution is a no-op default.
func (p BasePlugin) AfterExecution(ctx context.Context, ectx *core.ExecutionContext, result *core.ExecutionResult) error {
	return nil
}

// OnError is a no-op default.
func (p BasePlugin) OnError(ctx context.Context, ectx *core.ExecutionContext, execErr error) {}
