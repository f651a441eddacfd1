package testutil

import (
	"context"

	"github.com/woojubb/robota-go/core"
)

// ExtensionBuilder provides a fluent helper for constructing extensions in
// tests. Example:
//
//	ext := NewExtensionBuilder("cache").Category("storage").DependsOn("config").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type ExtensionBuilder struct {
	name     string
	version  string
	category string
	priority int
	deps     []string
	init     func(ctx context.Context, bus *core.Bus) error
	execute  func(ctx context.Context, ectx *core.ExecutionContext) (*core.ExecutionResult, error)
	dispose  func(ctx context.Context) error
}

// NewExtensionBuilder creates a builder with version "1.0.0" and the
// extension's own name as its category.
func NewExtensionBuilder(name string) *ExtensionBuilder {
	return &ExtensionBuilder{name: name, version: "1.0.0", category: name}
}

// Version overrides the default version (chainable).
func (b *ExtensionBuilder) Version(v string) *ExtensionBuilder { b.version = v; return b }

// Category sets the dependency type this extension provides (chainable).
func (b *ExtensionBuilder) Category(c string) *ExtensionBuilder { b.category = c; return b }

// Priority sets the extension priority (chainable).
func (b *ExtensionBuilder) Priority(p int) *ExtensionBuilder { b.priority = p; return b }

// DependsOn appends required dependency types (chainable).
func (b *ExtensionBuilder) DependsOn(types ...string) *ExtensionBuilder {
	b.deps = append(b.deps, types...)
	return b
}

// OnInitialize sets the initialization hook (chainable).
func (b *ExtensionBuilder) OnInitialize(fn func(ctx context.Context, bus *core.Bus) error) *ExtensionBuilder {
	b.init = fn
	return b
}

// OnExecute sets the execute capability (chainable).
func (b *ExtensionBuilder) OnExecute(fn func(ctx context.Context, ectx *core.ExecutionContext) (*core.ExecutionResult, error)) *ExtensionBuilder {
	b.execute = fn
	return b
}

// OnDispose sets the dispose capability (chainable).
func (b *ExtensionBuilder) OnDispose(fn func(ctx context.Context) error) *ExtensionBuilder {
	b.dispose = fn
	return b
}

// Build assembles the extension. Unset hooks default to no-ops; the execute
// capability defaults to echoing the input.
func (b *ExtensionBuilder) Build() core.Extension {
	execute := b.execute
	if execute == nil {
		execute = func(ctx context.Context, ectx *core.ExecutionContext) (*core.ExecutionResult, error) {
			return &core.ExecutionResult{Output: ectx.Input}, nil
		}
	}

	desc := core.Descriptor{
		Name:         b.name,
		Version:      b.version,
		Category:     b.category,
		Priority:     b.priority,
		Dependencies: b.deps,
	}

	optFns := []func(*core.BaseExtension){core.WithExecute(execute)}
	if b.init != nil {
		optFns = append(optFns, core.WithInitialize(b.init))
	}
	if b.dispose != nil {
		optFns = append(optFns, core.WithDispose(b.dispose))
	}
	return core.NewExtension(desc, optFns...)
}
