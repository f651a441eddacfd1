// Package robota provides a high-level façade over the extension registry,
// plugin coordinator, event bus and notification dispatcher that make up the
// runtime. Most applications interact with this package by:
//  1. Creating a Runtime via New() (optionally overriding defaults)
//  2. Registering extensions and plugins
//  3. Executing extensions through Execute, which runs the plugin pipeline
//
// All defaults are safe for local development and testing; production
// deployments typically supply a durable store, webhook endpoints and a
// structured logger.
package robota

import (
	"context"

	"github.com/woojubb/robota-go/core"
	"github.com/woojubb/robota-go/logging"
	"github.com/woojubb/robota-go/plugin"
	"github.com/woojubb/robota-go/registry"
	"github.com/woojubb/robota-go/storage"
	"github.com/woojubb/robota-go/webhook"
)

// Options configures the Runtime instance.
type Options struct {
	// Bus overrides the event bus. A synchronous bus is created if nil.
	Bus *core.Bus

	// Store receives conversation history and usage records. Defaults to
	// an in-memory implementation.
	Store storage.Store

	// Dispatcher relays runtime events to external HTTP endpoints. Nil
	// disables webhook delivery.
	Dispatcher *webhook.Dispatcher

	// Logger defaults to NoOp if nil.
	Logger logging.Logger
}

// Runtime is the high-level façade aggregating the registry, the plugin
// coordinator and the supporting services.
type Runtime struct {
	opts        Options
	bus         *core.Bus
	registry    *registry.Registry
	coordinator *plugin.Coordinator
	store       storage.Store
	dispatcher  *webhook.Dispatcher
	logger      logging.Logger
}

// New creates a Runtime with optional overrides. Any unset service is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Runtime {
	opts := Options{
		Store:  storage.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	bus := opts.Bus
	if bus == nil {
		bus = core.NewBus(func(o *core.BusOptions) {
			o.Logger = opts.Logger
		})
	}

	reg := registry.New(func(o *registry.Options) {
		o.Bus = bus
		o.Logger = opts.Logger
	})
	coord := plugin.NewCoordinator(func(o *plugin.Options) {
		o.Bus = bus
		o.Logger = opts.Logger
	})

	if opts.Dispatcher != nil {
		opts.Dispatcher.Attach(bus)
	}

	return &Runtime{
		opts:        opts,
		bus:         bus,
		registry:    reg,
		coordinator: coord,
		store:       opts.Store,
		dispatcher:  opts.Dispatcher,
		logger:      opts.Logger,
	}
}

// Bus returns the shared event bus.
func (r *Runtime) Bus() *core.Bus { return r.bus }

// Registry returns the extension registry.
func (r *Runtime) Registry() *registry.Registry { return r.registry }

// Coordinator returns the plugin coordinator.
func (r *Runtime) Coordinator() *plugin.Coordinator { return r.coordinator }

// Store returns the configured storage backend.
func (r *Runtime) Store() storage.Store { return r.store }

// RegisterExtension adds an extension to the registry with dependency
// validation enabled.
func (r *Runtime) RegisterExtension(ext core.Extension) error {
	return r.registry.Register(ext, registry.RegisterOptions{ValidateDependencies: true})
}

// RegisterPlugin adds a plugin to the coordinator.
func (r *Runtime) RegisterPlugin(ctx context.Context, p plugin.Plugin, optFns ...plugin.RegisterOption) error {
	return r.coordinator.Register(ctx, p, optFns...)
}

// Initialize brings up every registered extension in dependency order.
func (r *Runtime) Initialize(ctx context.Context) error {
	return r.registry.InitializeAll(ctx)
}

// Execute runs the named extension under the full plugin pipeline: plugin
// BeforeExecution hooks may veto the call, AfterExecution hooks observe the
// result and OnError hooks observe failures.
func (r *Runtime) Execute(ctx context.Context, name string, ectx *core.ExecutionContext) (*core.ExecutionResult, error) {
	if err := r.coordinator.RunBefore(ctx, ectx); err != nil {
		return nil, err
	}

	result, err := r.registry.Execute(ctx, name, ectx)
	if err != nil {
		r.coordinator.RunOnError(ctx, ectx, err)
		return nil, err
	}

	r.coordinator.RunAfter(ctx, ectx, result)
	return result, nil
}

// Shutdown tears the runtime down: plugins are destroyed in reverse
// initialization order, extensions are disposed in reverse order, the
// dispatcher drains and the bus stops. Errors during teardown are logged,
// not returned.
func (r *Runtime) Shutdown(ctx context.Context) {
	r.coordinator.DestroyAll(ctx)
	r.registry.DisposeAll(ctx)
	if r.dispatcher != nil {
		r.dispatcher.Close()
	}
	if err := r.bus.Close(); err != nil {
		r.logger.Warn("bus close failed", "error", err)
	}
}
