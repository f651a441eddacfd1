package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/woojubb/robota-go/core"
	"github.com/woojubb/robota-go/logging"
)

// Options configures a Coordinator.
type Options struct {
	// Bus receives plugin lifecycle events. Defaults to a fresh bus.
	Bus *core.Bus
	// Logger receives diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

type registration struct {
	plugin   Plugin
	deps     []Dependency
	index    int // declaration order, breaks priority ties
	autoInit bool
}

// RegisterOption customizes one plugin registration.
type RegisterOption func(*registration)

// WithDependencies declares explicit dependency edges for the plugin being
// registered.
func WithDependencies(deps ...Dependency) RegisterOption {
	return func(r *registration) { r.deps = append(r.deps, deps...) }
}

// WithoutAutoInitialize defers initialization to InitializeAll. By default a
// plugin initializes immediately after dependency validation.
func WithoutAutoInitialize() RegisterOption {
	return func(r *registration) { r.autoInit = false }
}

// Coordinator tracks registered plugins and drives their lifecycle in
// priority plus dependency order.
type Coordinator struct {
	mu          sync.Mutex
	bus         *core.Bus
	logger      logging.Logger
	plugins     map[string]*registration
	nextIndex   int
	initialized map[string]bool
	initOrder   []string
}

// NewCoordinator creates a coordinator.
func NewCoordinator(optFns ...func(o *Options)) *Coordinator {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Bus == nil {
		opts.Bus = core.NewBus()
	}
	return &Coordinator{
		bus:         opts.Bus,
		logger:      opts.Logger,
		plugins:     make(map[string]*registration),
		initialized: make(map[string]bool),
	}
}

// Bus returns the event bus plugins are wired to.
func (c *Coordinator) Bus() *core.Bus { return c.bus }

// Register validates dependency edges and records the plugin. Unless
// deferred, the plugin initializes immediately after validation.
func (c *Coordinator) Register(ctx context.Context, p Plugin, optFns ...RegisterOption) error {
	if p.Name() == "" {
		return core.NewConfigurationError("plugin", "plugin name must not be empty")
	}

	reg := &registration{plugin: p, autoInit: true}
	for _, fn := range optFns {
		fn(reg)
	}

	c.mu.Lock()
	if _, exists := c.plugins[p.Name()]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", core.ErrDuplicateExtension, p.Name())
	}

	for _, dep := range reg.deps {
		existing, ok := c.plugins[dep.Name]
		if !ok {
			if dep.Required {
				c.mu.Unlock()
				return core.NewConfigurationError("plugin",
					"plugin %q requires missing plugin %q", p.Name(), dep.Name)
			}
			continue
		}
		if dep.MinVersion != "" && compareVersions(existing.plugin.Version(), dep.MinVersion) < 0 {
			c.mu.Unlock()
			return core.NewConfigurationError("plugin",
				"plugin %q requires %q >= %s, found %s",
				p.Name(), dep.Name, dep.MinVersion, existing.plugin.Version())
		}
	}

	reg.index = c.nextIndex
	c.nextIndex++
	c.plugins[p.Name()] = reg
	autoInit := reg.autoInit
	c.mu.Unlock()

	if autoInit {
		return c.initializeOne(ctx, p.Name())
	}
	return nil
}

// Unregister removes a plugin, destroying it first when still initialized.
func (c *Coordinator) Unregister(ctx context.Context, name string) error {
	c.mu.Lock()
	reg, ok := c.plugins[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: plugin %q", core.ErrNotFound, name)
	}
	wasInitialized := c.initialized[name]
	c.mu.Unlock()

	if wasInitialized {
		if err := reg.plugin.Destroy(ctx); err != nil {
			c.logger.Error("plugin destroy before unregister failed", "plugin", name, "error", err)
		}
	}

	c.mu.Lock()
	delete(c.plugins, name)
	delete(c.initialized, name)
	for i, n := range c.initOrder {
		if n == name {
			c.initOrder = append(c.initOrder[:i], c.initOrder[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	return nil
}

// ResolveOrder returns the plugin order used for initialization and the hook
// pipeline: priority descending (ties by declaration order) refined so every
// plugin follows its dependencies. A dependency cycle is an error naming the
// offending plugin.
func (c *Coordinator) ResolveOrder() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolveOrderLocked()
}

func (c *Coordinator) resolveOrderLocked() ([]string, error) {
	names := make([]string, 0, len(c.plugins))
	for name := range c.plugins {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := c.plugins[names[i]], c.plugins[names[j]]
		if pi.plugin.Priority() != pj.plugin.Priority() {
			return pi.plugin.Priority() > pj.plugin.Priority()
		}
		return pi.index < pj.index
	})

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(names))
	var order []string

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return core.NewConfigurationError("plugin",
				"dependency cycle detected involving plugin %q", name)
		}
		color[name] = gray
		for _, dep := range c.plugins[name].deps {
			if _, ok := c.plugins[dep.Name]; !ok {
				continue
			}
			if err := visit(dep.Name); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// InitializeAll initializes every registered plugin in resolved order.
// Already initialized plugins are skipped.
func (c *Coordinator) InitializeAll(ctx context.Context) error {
	order, err := c.ResolveOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		if err := c.initializeOne(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) initializeOne(ctx context.Context, name string) error {
	c.mu.Lock()
	reg, ok := c.plugins[name]
	if !ok || c.initialized[name] {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := reg.plugin.Initialize(ctx, c.bus); err != nil {
		return &core.ExtensionError{Extension: name, Phase: "initialize", Err: err}
	}

	c.mu.Lock()
	c.initialized[name] = true
	c.initOrder = append(c.initOrder, name)
	c.mu.Unlock()

	c.logger.Debug("plugin initialized", "plugin", name)
	return nil
}

// DestroyAll destroys initialized plugins in the exact reverse of the
// initialization order, continuing past individual failures.
func (c *Coordinator) DestroyAll(ctx context.Context) {
	c.mu.Lock()
	order := append([]string(nil), c.initOrder...)
	c.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		c.mu.Lock()
		reg, ok := c.plugins[name]
		c.mu.Unlock()
		if !ok {
			continue
		}
		if err := reg.plugin.Destroy(ctx); err != nil {
			c.logger.Error("plugin destroy failed", "plugin", name, "error", err)
		}
		c.mu.Lock()
		delete(c.initialized, name)
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.initOrder = nil
	c.mu.Unlock()
}

// RunBefore runs BeforeExecution hooks of initialized plugins in resolved
// order. The first error blocks the execution and is returned synchronously.
func (c *Coordinator) RunBefore(ctx context.Context, ectx *core.ExecutionContext) error {
	order, err := c.ResolveOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		p, ok := c.initializedPlugin(name)
		if !ok {
			continue
		}
		if err := p.BeforeExecution(ctx, ectx); err != nil {
			return err
		}
	}
	return nil
}

// RunAfter runs AfterExecution hooks in resolved order. Hook failures are
// logged and re-emitted as plugin.error events; they never fail the
// execution they observe.
func (c *Coordinator) RunAfter(ctx context.Context, ectx *core.ExecutionContext, result *core.ExecutionResult) {
	order, err := c.ResolveOrder()
	if err != nil {
		c.logger.Error("plugin order resolution failed", "error", err)
		return
	}
	for _, name := range order {
		p, ok := c.initializedPlugin(name)
		if !ok {
			continue
		}
		if err := p.AfterExecution(ctx, ectx, result); err != nil {
			c.logger.Error("after-execution hook failed", "plugin", name, "error", err)
			env := core.NewEnvelope(core.EventPluginError).WithCorrelation(ectx)
			env.Payload = core.ErrorPayload{Source: name, Message: err.Error()}
			env.Error = err.Error()
			if emitErr := c.bus.Emit(ctx, core.EventPluginError, env); emitErr != nil {
				c.logger.Error("plugin error event emission failed", "error", emitErr)
			}
		}
	}
}

// RunOnError notifies every initialized plugin of an execution failure.
func (c *Coordinator) RunOnError(ctx context.Context, ectx *core.ExecutionContext, execErr error) {
	order, err := c.ResolveOrder()
	if err != nil {
		c.logger.Error("plugin order resolution failed", "error", err)
		return
	}
	for _, name := range order {
		p, ok := c.initializedPlugin(name)
		if !ok {
			continue
		}
		p.OnError(ctx, ectx, execErr)
	}
}

// Names returns registered plugin names in declaration order.
func (c *Coordinator) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.plugins))
	for name := range c.plugins {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return c.plugins[names[i]].index < c.plugins[names[j]].index
	})
	return names
}

// InitOrder returns the recorded initialization order.
func (c *Coordinator) InitOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.initOrder...)
}

func (c *Coordinator) initializedPlugin(name string) (Plugin, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, ok := c.plugins[name]
	if !ok || !c.initialized[name] {
		return nil, false
	}
	return reg.plugin, true
}
