package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/woojubb/robota-go/core"
	"github.com/woojubb/robota-go/logging"
)

// Options configures a Registry.
type Options struct {
	// Bus receives lifecycle events. Defaults to a fresh unbuffered bus.
	Bus *core.Bus
	// Types is the explicit registry of known dependency types. Defaults
	// to a fresh instance.
	Types *TypeRegistry
	// Logger receives diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// RegisterOptions control one registration.
type RegisterOptions struct {
	// ValidateDependencies fails registration when a declared dependency
	// type is unknown to the type registry. A missing dependency instance
	// only warns, since registration order is not assumed.
	ValidateDependencies bool
	// Disabled registers the extension with execution disabled.
	Disabled bool
}

// Registry is the dependency registry for modules.
type Registry struct {
	mu         sync.Mutex
	bus        *core.Bus
	types      *TypeRegistry
	logger     logging.Logger
	extensions map[string]core.Extension
	records    map[string]*core.Record
	declared   []string // registration order
	initOrder  []string // recorded initialization order
	disposing  bool
}

// New creates a registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Bus == nil {
		opts.Bus = core.NewBus()
	}
	if opts.Types == nil {
		opts.Types = NewTypeRegistry()
	}
	return &Registry{
		bus:        opts.Bus,
		types:      opts.Types,
		logger:     opts.Logger,
		extensions: make(map[string]core.Extension),
		records:    make(map[string]*core.Record),
	}
}

// Bus returns the event bus lifecycle events are emitted on.
func (r *Registry) Bus() *core.Bus { return r.bus }

// Types returns the injected type registry.
func (r *Registry) Types() *TypeRegistry { return r.types }

// Register validates and records an extension. Duplicate names are rejected;
// callers wanting replace semantics must unregister first.
func (r *Registry) Register(ext core.Extension, opts RegisterOptions) error {
	desc := ext.Descriptor()
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.disposing {
		r.mu.Unlock()
		return core.ErrRegistryDisposing
	}
	if _, exists := r.extensions[desc.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", core.ErrDuplicateExtension, desc.Name)
	}

	if opts.ValidateDependencies {
		for _, dep := range desc.Dependencies {
			if !r.types.HasType(dep) {
				r.mu.Unlock()
				return core.NewConfigurationError("registry",
					"extension %q depends on unknown type %q", desc.Name, dep)
			}
			if !r.hasProviderLocked(dep) {
				r.logger.Warn("dependency instance not yet registered",
					"extension", desc.Name, "dependency", dep)
			}
		}
	}

	r.types.RegisterType(desc.Category)
	r.extensions[desc.Name] = ext
	r.records[desc.Name] = core.NewRecord(desc, !opts.Disabled)
	r.declared = append(r.declared, desc.Name)
	// Handlers observing module.registered commonly read the registry back,
	// so the lock must be released before dispatch.
	r.mu.Unlock()

	env := core.NewEnvelope(core.EventModuleRegistered)
	env.Payload = core.LifecyclePayload{Extension: desc.Name, Phase: "register"}
	r.emit(core.EventModuleRegistered, env)

	return nil
}

// Unregister removes an extension. It is rejected while other registered
// extensions declare the target's category as a dependency; the error names
// the dependents. A still-initialized extension is disposed first.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	ext, ok := r.extensions[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: extension %q", core.ErrNotFound, name)
	}
	desc := ext.Descriptor()

	var dependents []string
	for other, rec := range r.records {
		if other == name {
			continue
		}
		for _, dep := range rec.Descriptor.Dependencies {
			if dep == desc.Category {
				dependents = append(dependents, other)
				break
			}
		}
	}
	if len(dependents) > 0 {
		r.mu.Unlock()
		sort.Strings(dependents)
		return core.NewConfigurationError("registry",
			"cannot unregister %q: required by %s", name, strings.Join(dependents, ", "))
	}

	rec := r.records[name]
	initialized := rec.Initialized
	caps := ext.Capabilities()
	r.mu.Unlock()

	if initialized {
		if err := r.disposeOne(ctx, name, caps); err != nil {
			r.logger.Error("dispose before unregister failed", "extension", name, "error", err)
		}
	}

	r.mu.Lock()
	delete(r.extensions, name)
	delete(r.records, name)
	for i, n := range r.declared {
		if n == name {
			r.declared = append(r.declared[:i], r.declared[i+1:]...)
			break
		}
	}
	for i, n := range r.initOrder {
		if n == name {
			r.initOrder = append(r.initOrder[:i], r.initOrder[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	env := core.NewEnvelope(core.EventModuleUnregistered)
	env.Payload = core.LifecyclePayload{Extension: name, Phase: "unregister"}
	r.emit(core.EventModuleUnregistered, env)

	return nil
}

// Initialize brings up a single extension. Idempotent for an already
// initialized extension.
func (r *Registry) Initialize(ctx context.Context, name string) error {
	r.mu.Lock()
	ext, ok := r.extensions[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: extension %q", core.ErrNotFound, name)
	}
	rec := r.records[name]
	if rec.Initialized {
		r.mu.Unlock()
		return nil
	}
	rec.State = core.StateInitializing
	r.mu.Unlock()

	return r.initializeOne(ctx, name, ext)
}

// InitializeAll initializes every registered extension exactly once, in a
// topological order over declared dependency types. A cycle or a missing
// dependency type aborts the entire batch before any extension initializes.
func (r *Registry) InitializeAll(ctx context.Context) error {
	r.mu.Lock()
	if r.disposing {
		r.mu.Unlock()
		return core.ErrRegistryDisposing
	}
	descriptors := make([]core.Descriptor, 0, len(r.declared))
	for _, name := range r.declared {
		descriptors = append(descriptors, r.records[name].Descriptor)
	}
	declared := append([]string(nil), r.declared...)
	r.mu.Unlock()

	categoryOrder, err := resolveOrder(descriptors)
	if err != nil {
		return err
	}

	rank := make(map[string]int, len(categoryOrder))
	for i, cat := range categoryOrder {
		rank[cat] = i
	}

	// Instances follow their category's topological rank; within one
	// category, declaration order is preserved.
	names := append([]string(nil), declared...)
	sort.SliceStable(names, func(i, j int) bool {
		ci := rank[r.descriptorOf(names[i]).Category]
		cj := rank[r.descriptorOf(names[j]).Category]
		return ci < cj
	})

	for _, name := range names {
		r.mu.Lock()
		ext := r.extensions[name]
		rec, ok := r.records[name]
		if !ok || rec.Initialized {
			r.mu.Unlock()
			continue
		}
		rec.State = core.StateInitializing
		r.mu.Unlock()

		if err := r.initializeOne(ctx, name, ext); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) initializeOne(ctx context.Context, name string, ext core.Extension) error {
	start := time.Now()

	env := core.NewEnvelope(core.EventModuleInitializeStart)
	env.Payload = core.LifecyclePayload{Extension: name, Phase: "initialize"}
	r.emit(core.EventModuleInitializeStart, env)

	if err := ext.Initialize(ctx, r.bus); err != nil {
		r.mu.Lock()
		if rec, ok := r.records[name]; ok {
			rec.State = core.StateRegistered
		}
		r.mu.Unlock()

		errEnv := core.NewEnvelope(core.EventModuleInitializeError)
		errEnv.Payload = core.LifecyclePayload{Extension: name, Phase: "initialize", Duration: time.Since(start)}
		errEnv.Error = err.Error()
		r.emit(core.EventModuleInitializeError, errEnv)
		r.logger.Error("extension initialization failed", "extension", name, "error", err)

		return &core.ExtensionError{Extension: name, Phase: "initialize", Err: err}
	}

	r.mu.Lock()
	if rec, ok := r.records[name]; ok {
		rec.State = core.StateInitialized
		rec.Initialized = true
		rec.InitializedAt = time.Now().UTC()
	}
	r.initOrder = append(r.initOrder, name)
	r.mu.Unlock()

	doneEnv := core.NewEnvelope(core.EventModuleInitializeComplete)
	doneEnv.Payload = core.LifecyclePayload{Extension: name, Phase: "initialize", Duration: time.Since(start)}
	r.emit(core.EventModuleInitializeComplete, doneEnv)
	r.logger.Debug("extension initialized", "extension", name, "duration", time.Since(start))

	return nil
}

// Execute runs the named extension's operation. The target must be both
// enabled and initialized. Counters are updated and the underlying error is
// rethrown after bookkeeping, never swallowed.
func (r *Registry) Execute(ctx context.Context, name string, ectx *core.ExecutionContext) (*core.ExecutionResult, error) {
	r.mu.Lock()
	ext, ok := r.extensions[name]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: extension %q", core.ErrNotFound, name)
	}
	rec := r.records[name]
	if !rec.Enabled {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", core.ErrDisabled, name)
	}
	if !rec.Initialized {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", core.ErrNotInitialized, name)
	}
	rec.State = core.StateExecuting
	r.mu.Unlock()

	caps := ext.Capabilities()
	if caps.Execute == nil {
		r.setState(name, core.StateInitialized)
		return nil, core.NewConfigurationError("registry", "extension %q is not executable", name)
	}

	if caps.BeforeExecution != nil {
		if err := caps.BeforeExecution(ctx, ectx); err != nil {
			r.setState(name, core.StateInitialized)
			return nil, err
		}
	}

	startEnv := core.NewEnvelope(core.EventModuleExecutionStart).WithCorrelation(ectx)
	startEnv.Payload = core.ExecutionPayload{Extension: name}
	r.emit(core.EventModuleExecutionStart, startEnv)

	start := time.Now()
	result, execErr := caps.Execute(ctx, ectx)
	dur := time.Since(start)
	if result != nil && result.Duration == 0 {
		result.Duration = dur
	}

	r.mu.Lock()
	rec.Observe(dur, execErr != nil)
	rec.State = core.StateInitialized
	r.mu.Unlock()

	if execErr != nil {
		if caps.OnError != nil {
			caps.OnError(ctx, ectx, execErr)
		}
		errEnv := core.NewEnvelope(core.EventModuleExecutionError).WithCorrelation(ectx)
		errEnv.Payload = core.ExecutionPayload{Extension: name}
		errEnv.Error = execErr.Error()
		r.emit(core.EventModuleExecutionError, errEnv)
		return nil, execErr
	}

	if caps.AfterExecution != nil {
		if err := caps.AfterExecution(ctx, ectx, result); err != nil {
			r.logger.Warn("after-execution hook failed", "extension", name, "error", err)
		}
	}

	doneEnv := core.NewEnvelope(core.EventModuleExecutionComplete).WithCorrelation(ectx)
	doneEnv.Payload = core.ExecutionPayload{Extension: name, Result: result}
	r.emit(core.EventModuleExecutionComplete, doneEnv)

	return result, nil
}

// DisposeAll tears down every initialized extension in the exact reverse of
// the recorded initialization order. Individual failures are logged, not
// rethrown, so one misbehaving extension cannot block shutdown of the rest.
// New registrations are rejected while disposal runs.
func (r *Registry) DisposeAll(ctx context.Context) {
	r.mu.Lock()
	r.disposing = true
	order := append([]string(nil), r.initOrder...)
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		r.mu.Lock()
		ext, ok := r.extensions[name]
		r.mu.Unlock()
		if !ok {
			continue
		}
		if err := r.disposeOne(ctx, name, ext.Capabilities()); err != nil {
			r.logger.Error("extension disposal failed", "extension", name, "error", err)
		}
	}

	r.mu.Lock()
	r.initOrder = nil
	r.disposing = false
	r.mu.Unlock()
}

func (r *Registry) disposeOne(ctx context.Context, name string, caps core.Capabilities) error {
	r.setState(name, core.StateDisposing)
	start := time.Now()

	env := core.NewEnvelope(core.EventModuleDisposeStart)
	env.Payload = core.LifecyclePayload{Extension: name, Phase: "dispose"}
	r.emit(core.EventModuleDisposeStart, env)

	var err error
	if caps.Dispose != nil {
		err = caps.Dispose(ctx)
	}

	r.mu.Lock()
	if rec, ok := r.records[name]; ok {
		rec.State = core.StateDisposed
		rec.Initialized = false
	}
	r.mu.Unlock()

	if err != nil {
		errEnv := core.NewEnvelope(core.EventModuleDisposeError)
		errEnv.Payload = core.LifecyclePayload{Extension: name, Phase: "dispose", Duration: time.Since(start)}
		errEnv.Error = err.Error()
		r.emit(core.EventModuleDisposeError, errEnv)
		return err
	}

	doneEnv := core.NewEnvelope(core.EventModuleDisposeComplete)
	doneEnv.Payload = core.LifecyclePayload{Extension: name, Phase: "dispose", Duration: time.Since(start)}
	r.emit(core.EventModuleDisposeComplete, doneEnv)
	return nil
}

// Enable allows execution for the named extension.
func (r *Registry) Enable(name string) error { return r.setEnabled(name, true) }

// Disable blocks execution for the named extension without unregistering it.
func (r *Registry) Disable(name string) error { return r.setEnabled(name, false) }

func (r *Registry) setEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	if !ok {
		return fmt.Errorf("%w: extension %q", core.ErrNotFound, name)
	}
	rec.Enabled = enabled
	return nil
}

// Record returns a snapshot of the registration record for the named
// extension.
func (r *Registry) Record(name string) (core.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	if !ok {
		return core.Record{}, fmt.Errorf("%w: extension %q", core.ErrNotFound, name)
	}
	return rec.Snapshot(), nil
}

// Names returns all registered extension names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.declared...)
}

// InitOrder returns the recorded initialization order.
func (r *Registry) InitOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.initOrder...)
}

func (r *Registry) descriptorOf(name string) core.Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[name]; ok {
		return rec.Descriptor
	}
	return core.Descriptor{}
}

func (r *Registry) hasProviderLocked(category string) bool {
	for _, rec := range r.records {
		if rec.Descriptor.Category == category {
			return true
		}
	}
	return false
}

func (r *Registry) setState(name string, s core.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[name]; ok {
		rec.State = s
	}
}

func (r *Registry) emit(t core.EventType, env core.Envelope) {
	if err := r.bus.Emit(context.Background(), t, env); err != nil {
		r.logger.Error("lifecycle event handler failed", "type", string(t), "error", err)
	}
}
