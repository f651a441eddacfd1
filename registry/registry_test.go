package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/woojubb/robota-go/core"
	"github.com/woojubb/robota-go/internal/testutil"
)

func TestRegistry_RegisterRejectsDuplicates(t *testing.T) {
	r := New()
	ext := testutil.NewExtensionBuilder("cache").Build()

	if err := r.Register(ext, RegisterOptions{}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	err := r.Register(testutil.NewExtensionBuilder("cache").Build(), RegisterOptions{})
	if !errors.Is(err, core.ErrDuplicateExtension) {
		t.Fatalf("expected ErrDuplicateExtension, got %v", err)
	}
}

func TestRegistry_RegisterValidatesDescriptor(t *testing.T) {
	r := New()
	bad := core.NewExtension(core.Descriptor{Name: "", Version: "1.0.0", Category: "c"})
	var cfgErr *core.ConfigurationError
	if err := r.Register(bad, RegisterOptions{}); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestRegistry_ValidateDependenciesRejectsUnknownType(t *testing.T) {
	r := New()
	ext := testutil.NewExtensionBuilder("api").DependsOn("vault").Build()

	var cfgErr *core.ConfigurationError
	err := r.Register(ext, RegisterOptions{ValidateDependencies: true})
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for unknown type, got %v", err)
	}

	// Once the type is known (via another registration), validation passes
	// even if the provider instance is registered out of order.
	if err := r.Register(testutil.NewExtensionBuilder("vault").Build(), RegisterOptions{}); err != nil {
		t.Fatalf("provider registration failed: %v", err)
	}
	if err := r.Register(ext, RegisterOptions{ValidateDependencies: true}); err != nil {
		t.Fatalf("expected registration to pass once type is known: %v", err)
	}
}

func TestRegistry_InitializeAllFollowsDependencyOrder(t *testing.T) {
	r := New()
	var order []string
	mk := func(name, category string, deps ...string) core.Extension {
		return testutil.NewExtensionBuilder(name).
			Category(category).
			DependsOn(deps...).
			OnInitialize(func(ctx context.Context, bus *core.Bus) error {
				order = append(order, name)
				return nil
			}).
			Build()
	}

	// Declared deliberately out of dependency order.
	for _, ext := range []core.Extension{
		mk("api", "api", "service"),
		mk("service", "service", "db"),
		mk("db", "db"),
	} {
		if err := r.Register(ext, RegisterOptions{}); err != nil {
			t.Fatalf("register failed: %v", err)
		}
	}

	if err := r.InitializeAll(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if len(order) != 3 || order[0] != "db" || order[1] != "service" || order[2] != "api" {
		t.Fatalf("expected db,service,api; got %v", order)
	}
	if got := r.InitOrder(); len(got) != 3 || got[0] != "db" {
		t.Fatalf("recorded init order wrong: %v", got)
	}
}

func TestRegistry_InitializeAllAbortsOnCycle(t *testing.T) {
	r := New()
	initialized := false
	a := testutil.NewExtensionBuilder("a").DependsOn("b").
		OnInitialize(func(ctx context.Context, bus *core.Bus) error {
			initialized = true
			return nil
		}).Build()
	b := testutil.NewExtensionBuilder("b").DependsOn("a").Build()

	_ = r.Register(a, RegisterOptions{})
	_ = r.Register(b, RegisterOptions{})

	err := r.InitializeAll(context.Background())
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle in error: %v", err)
	}
	if initialized {
		t.Fatal("no extension may initialize when the batch aborts")
	}
}

func TestRegistry_InitializeIsIdempotent(t *testing.T) {
	r := New()
	initCount := 0
	ext := testutil.NewExtensionBuilder("once").
		OnInitialize(func(ctx context.Context, bus *core.Bus) error {
			initCount++
			return nil
		}).Build()
	_ = r.Register(ext, RegisterOptions{})

	for i := 0; i < 3; i++ {
		if err := r.Initialize(context.Background(), "once"); err != nil {
			t.Fatalf("initialize failed: %v", err)
		}
	}
	if initCount != 1 {
		t.Fatalf("initialize ran %d times", initCount)
	}
}

func TestRegistry_InitializeFailureWrapsExtensionError(t *testing.T) {
	r := New()
	boom := errors.New("boom")
	ext := testutil.NewExtensionBuilder("bad").
		OnInitialize(func(ctx context.Context, bus *core.Bus) error { return boom }).
		Build()
	_ = r.Register(ext, RegisterOptions{})

	err := r.Initialize(context.Background(), "bad")
	var extErr *core.ExtensionError
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ExtensionError, got %v", err)
	}
	if extErr.Extension != "bad" || extErr.Phase != "initialize" || !errors.Is(err, boom) {
		t.Fatalf("wrapping lost detail: %+v", extErr)
	}

	rec, _ := r.Record("bad")
	if rec.Initialized || rec.State != core.StateRegistered {
		t.Fatalf("failed init should roll back to registered: %+v", rec)
	}
}

func TestRegistry_ExecuteGuards(t *testing.T) {
	r := New()
	ext := testutil.NewExtensionBuilder("worker").Build()
	_ = r.Register(ext, RegisterOptions{})
	ectx := core.NewExecutionContext("", "")

	if _, err := r.Execute(context.Background(), "missing", ectx); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.Execute(context.Background(), "worker", ectx); !errors.Is(err, core.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}

	_ = r.Initialize(context.Background(), "worker")
	if err := r.Disable("worker"); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	if _, err := r.Execute(context.Background(), "worker", ectx); !errors.Is(err, core.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}

	_ = r.Enable("worker")
	result, err := r.Execute(context.Background(), "worker", ectx.WithInput("ping"))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Output != "ping" {
		t.Fatalf("unexpected output: %+v", result)
	}
}

func TestRegistry_ExecuteRejectsPassiveExtensions(t *testing.T) {
	r := New()
	passive := core.NewExtension(core.Descriptor{Name: "passive", Version: "1.0.0", Category: "passive"})
	_ = r.Register(passive, RegisterOptions{})
	_ = r.Initialize(context.Background(), "passive")

	var cfgErr *core.ConfigurationError
	if _, err := r.Execute(context.Background(), "passive", core.NewExecutionContext("", "")); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for passive extension, got %v", err)
	}
}

func TestRegistry_ExecuteBookkeepingAndRethrow(t *testing.T) {
	r := New()
	boom := errors.New("exec failed")
	fail := true
	ext := testutil.NewExtensionBuilder("flaky").
		OnExecute(func(ctx context.Context, ectx *core.ExecutionContext) (*core.ExecutionResult, error) {
			if fail {
				return nil, boom
			}
			return &core.ExecutionResult{Output: "ok"}, nil
		}).Build()
	_ = r.Register(ext, RegisterOptions{})
	_ = r.Initialize(context.Background(), "flaky")

	if _, err := r.Execute(context.Background(), "flaky", core.NewExecutionContext("", "")); !errors.Is(err, boom) {
		t.Fatalf("underlying error must be rethrown unwrapped, got %v", err)
	}
	fail = false
	if _, err := r.Execute(context.Background(), "flaky", core.NewExecutionContext("", "")); err != nil {
		t.Fatalf("second execute failed: %v", err)
	}

	rec, _ := r.Record("flaky")
	if rec.ExecutionCount != 2 || rec.ErrorCount != 1 {
		t.Fatalf("counters wrong after mixed outcomes: %+v", rec)
	}
	if rec.State != core.StateInitialized {
		t.Fatalf("state should return to initialized, got %v", rec.State)
	}
}

func TestRegistry_BeforeExecutionHookBlocks(t *testing.T) {
	r := New()
	veto := errors.New("not today")
	executed := false
	ext := core.NewExtension(
		core.Descriptor{Name: "guarded", Version: "1.0.0", Category: "guarded"},
		core.WithCapabilities(core.Capabilities{
			Execute: func(ctx context.Context, ectx *core.ExecutionContext) (*core.ExecutionResult, error) {
				executed = true
				return &core.ExecutionResult{}, nil
			},
			BeforeExecution: func(ctx context.Context, ectx *core.ExecutionContext) error {
				return veto
			},
		}),
	)
	_ = r.Register(ext, RegisterOptions{})
	_ = r.Initialize(context.Background(), "guarded")

	if _, err := r.Execute(context.Background(), "guarded", core.NewExecutionContext("", "")); !errors.Is(err, veto) {
		t.Fatalf("expected veto error, got %v", err)
	}
	if executed {
		t.Fatal("execute ran despite veto")
	}
}

func TestRegistry_UnregisterRejectedWhileDependentsExist(t *testing.T) {
	r := New()
	_ = r.Register(testutil.NewExtensionBuilder("db").Build(), RegisterOptions{})
	_ = r.Register(testutil.NewExtensionBuilder("orders").DependsOn("db").Build(), RegisterOptions{})
	_ = r.Register(testutil.NewExtensionBuilder("billing").DependsOn("db").Build(), RegisterOptions{})

	err := r.Unregister(context.Background(), "db")
	if err == nil {
		t.Fatal("expected rejection while dependents exist")
	}
	msg := err.Error()
	if !strings.Contains(msg, "billing, orders") {
		t.Fatalf("error should name dependents in order: %v", err)
	}

	// Removing the dependents first unblocks the target.
	if err := r.Unregister(context.Background(), "orders"); err != nil {
		t.Fatalf("unregister orders failed: %v", err)
	}
	if err := r.Unregister(context.Background(), "billing"); err != nil {
		t.Fatalf("unregister billing failed: %v", err)
	}
	if err := r.Unregister(context.Background(), "db"); err != nil {
		t.Fatalf("unregister db failed: %v", err)
	}
	if names := r.Names(); len(names) != 0 {
		t.Fatalf("registry should be empty, got %v", names)
	}
}

func TestRegistry_UnregisterDisposesInitializedExtension(t *testing.T) {
	r := New()
	disposed := false
	ext := testutil.NewExtensionBuilder("solo").
		OnDispose(func(ctx context.Context) error {
			disposed = true
			return nil
		}).Build()
	_ = r.Register(ext, RegisterOptions{})
	_ = r.Initialize(context.Background(), "solo")

	if err := r.Unregister(context.Background(), "solo"); err != nil {
		t.Fatalf("unregister failed: %v", err)
	}
	if !disposed {
		t.Fatal("initialized extension must be disposed on unregister")
	}
}

func TestRegistry_DisposeAllReverseOrderAndContinuesPastFailures(t *testing.T) {
	r := New()
	var disposed []string
	mk := func(name, category string, failDispose bool, deps ...string) core.Extension {
		return testutil.NewExtensionBuilder(name).
			Category(category).
			DependsOn(deps...).
			OnDispose(func(ctx context.Context) error {
				disposed = append(disposed, name)
				if failDispose {
					return fmt.Errorf("%s refused to dispose", name)
				}
				return nil
			}).Build()
	}
	_ = r.Register(mk("db", "db", false), RegisterOptions{})
	_ = r.Register(mk("service", "service", true, "db"), RegisterOptions{})
	_ = r.Register(mk("api", "api", false, "service"), RegisterOptions{})
	if err := r.InitializeAll(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	r.DisposeAll(context.Background())

	if len(disposed) != 3 || disposed[0] != "api" || disposed[1] != "service" || disposed[2] != "db" {
		t.Fatalf("expected reverse order api,service,db; got %v", disposed)
	}
	if got := r.InitOrder(); len(got) != 0 {
		t.Fatalf("init order should reset after disposal: %v", got)
	}
}

func TestRegistry_RegisterRejectedWhileDisposing(t *testing.T) {
	r := New()
	blocked := make(chan struct{})
	release := make(chan struct{})
	ext := testutil.NewExtensionBuilder("slow").
		OnDispose(func(ctx context.Context) error {
			close(blocked)
			<-release
			return nil
		}).Build()
	_ = r.Register(ext, RegisterOptions{})
	_ = r.Initialize(context.Background(), "slow")

	done := make(chan struct{})
	go func() {
		r.DisposeAll(context.Background())
		close(done)
	}()
	<-blocked

	err := r.Register(testutil.NewExtensionBuilder("late").Build(), RegisterOptions{})
	if !errors.Is(err, core.ErrRegistryDisposing) {
		t.Fatalf("expected ErrRegistryDisposing, got %v", err)
	}

	close(release)
	<-done
}

func TestRegistry_LifecycleEventsEmitted(t *testing.T) {
	bus := core.NewBus()
	rec := &testutil.Recorder{}
	bus.On(core.EventModuleRegistered, rec.Handler())
	bus.On(core.EventModuleInitializeStart, rec.Handler())
	bus.On(core.EventModuleInitializeComplete, rec.Handler())
	bus.On(core.EventModuleExecutionStart, rec.Handler())
	bus.On(core.EventModuleExecutionComplete, rec.Handler())

	r := New(func(o *Options) { o.Bus = bus })
	_ = r.Register(testutil.NewExtensionBuilder("obs").Build(), RegisterOptions{})
	_ = r.Initialize(context.Background(), "obs")
	if _, err := r.Execute(context.Background(), "obs", core.NewExecutionContext("s", "u")); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	want := []core.EventType{
		core.EventModuleRegistered,
		core.EventModuleInitializeStart,
		core.EventModuleInitializeComplete,
		core.EventModuleExecutionStart,
		core.EventModuleExecutionComplete,
	}
	got := rec.Types()
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRegistry_RegisteredHandlerMayReadBack(t *testing.T) {
	bus := core.NewBus()
	r := New(func(o *Options) { o.Bus = bus })

	var seen []string
	bus.On(core.EventModuleRegistered, func(ctx context.Context, env core.Envelope) error {
		seen = r.Names()
		if _, err := r.Record("reader"); err != nil {
			return err
		}
		return nil
	})

	done := make(chan error, 1)
	go func() {
		done <- r.Register(testutil.NewExtensionBuilder("reader").Build(), RegisterOptions{})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("register failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("register blocked while dispatching module.registered to a handler reading the registry")
	}

	if len(seen) != 1 || seen[0] != "reader" {
		t.Fatalf("handler observed names %v, want [reader]", seen)
	}
}

func TestTypeRegistry(t *testing.T) {
	tr := NewTypeRegistry()
	if tr.HasType("storage") {
		t.Fatal("fresh registry should know no types")
	}
	tr.RegisterType("storage")
	tr.RegisterType("ai-provider")
	tr.RegisterType("storage") // idempotent

	if !tr.HasType("storage") || !tr.HasType("ai-provider") {
		t.Fatal("registered types not found")
	}
	types := tr.Types()
	if len(types) != 2 || types[0] != "ai-provider" || types[1] != "storage" {
		t.Fatalf("expected sorted unique types, got %v", types)
	}
}
