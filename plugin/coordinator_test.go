package plugin

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/woojubb/robota-go/core"
)

// testPlugin wraps BasePlugin with recordable hooks.
type testPlugin struct {
	BasePlugin
	onInit    func(ctx context.Context, bus *core.Bus) error
	onDestroy func(ctx context.Context) error
	onBefore  func(ctx context.Context, ectx *core.ExecutionContext) error
}

func (p *testPlugin) Initialize(ctx context.Context, bus *core.Bus) error {
	if p.onInit != nil {
		return p.onInit(ctx, bus)
	}
	return nil
}

func (p *testPlugin) Destroy(ctx context.Context) error {
	if p.onDestroy != nil {
		return p.onDestroy(ctx)
	}
	return nil
}

func (p *testPlugin) BeforeExecution(ctx context.Context, ectx *core.ExecutionContext) error {
	if p.onBefore != nil {
		return p.onBefore(ctx, ectx)
	}
	return nil
}

func newTestPlugin(name string, priority int) *testPlugin {
	return &testPlugin{BasePlugin: NewBasePlugin(name, "1.0.0", priority)}
}

func TestCoordinator_RegisterRejectsDuplicatesAndEmptyNames(t *testing.T) {
	c := NewCoordinator()
	ctx := context.Background()

	if err := c.Register(ctx, newTestPlugin("", 0)); err == nil {
		t.Fatal("expected empty name rejection")
	}
	if err := c.Register(ctx, newTestPlugin("metrics", 0)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := c.Register(ctx, newTestPlugin("metrics", 0)); !errors.Is(err, core.ErrDuplicateExtension) {
		t.Fatalf("expected ErrDuplicateExtension, got %v", err)
	}
}

func TestCoordinator_RequiredDependencyMustExist(t *testing.T) {
	c := NewCoordinator()
	ctx := context.Background()

	err := c.Register(ctx, newTestPlugin("dependent", 0),
		WithDependencies(Dependency{Name: "base", Required: true}))
	var cfgErr *core.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	// An optional missing dependency is tolerated.
	if err := c.Register(ctx, newTestPlugin("tolerant", 0),
		WithDependencies(Dependency{Name: "base"})); err != nil {
		t.Fatalf("optional dependency should not block: %v", err)
	}
}

func TestCoordinator_MinVersionEnforced(t *testing.T) {
	c := NewCoordinator()
	ctx := context.Background()

	base := &testPlugin{BasePlugin: NewBasePlugin("base", "1.2.0", 0)}
	if err := c.Register(ctx, base); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	err := c.Register(ctx, newTestPlugin("strict", 0),
		WithDependencies(Dependency{Name: "base", Required: true, MinVersion: "2.0.0"}))
	if err == nil || !strings.Contains(err.Error(), ">= 2.0.0") {
		t.Fatalf("expected version rejection, got %v", err)
	}

	if err := c.Register(ctx, newTestPlugin("relaxed", 0),
		WithDependencies(Dependency{Name: "base", Required: true, MinVersion: "1.1.0"})); err != nil {
		t.Fatalf("satisfied min version rejected: %v", err)
	}
}

func TestCoordinator_ResolveOrderPriorityAndDependencies(t *testing.T) {
	c := NewCoordinator()
	ctx := context.Background()

	// All deferred so registration order is just declaration order.
	mustRegister := func(p Plugin, opts ...RegisterOption) {
		t.Helper()
		opts = append(opts, WithoutAutoInitialize())
		if err := c.Register(ctx, p, opts...); err != nil {
			t.Fatalf("register %s failed: %v", p.Name(), err)
		}
	}

	mustRegister(newTestPlugin("low", 10))
	mustRegister(newTestPlugin("high", 100))
	mustRegister(newTestPlugin("mid-a", 50))
	mustRegister(newTestPlugin("mid-b", 50))
	// "first" has top priority but depends on "low", so "low" must precede it.
	mustRegister(newTestPlugin("first", 200), WithDependencies(Dependency{Name: "low", Required: true}))

	order, err := c.ResolveOrder()
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	if pos["low"] >= pos["first"] {
		t.Fatalf("dependency must precede dependent: %v", order)
	}
	if pos["high"] >= pos["mid-a"] || pos["mid-a"] >= pos["mid-b"] {
		t.Fatalf("priority desc with declaration tie-break violated: %v", order)
	}
}

func TestCoordinator_ResolveOrderDetectsCycle(t *testing.T) {
	c := NewCoordinator()
	ctx := context.Background()

	_ = c.Register(ctx, newTestPlugin("a", 0), WithoutAutoInitialize(),
		WithDependencies(Dependency{Name: "b"}))
	_ = c.Register(ctx, newTestPlugin("b", 0), WithoutAutoInitialize(),
		WithDependencies(Dependency{Name: "a"}))

	_, err := c.ResolveOrder()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestCoordinator_AutoInitializeAndInitializeAll(t *testing.T) {
	c := NewCoordinator()
	ctx := context.Background()
	var inits []string
	mk := func(name string, priority int) *testPlugin {
		p := newTestPlugin(name, priority)
		p.onInit = func(ctx context.Context, bus *core.Bus) error {
			inits = append(inits, name)
			return nil
		}
		return p
	}

	// Auto-init runs at registration time.
	if err := c.Register(ctx, mk("eager", 0)); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if len(inits) != 1 || inits[0] != "eager" {
		t.Fatalf("expected eager auto-init, got %v", inits)
	}

	// Deferred plugins wait for InitializeAll, which skips the initialized.
	if err := c.Register(ctx, mk("deferred", 10), WithoutAutoInitialize()); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := c.InitializeAll(ctx); err != nil {
		t.Fatalf("initialize all failed: %v", err)
	}
	if len(inits) != 2 || inits[1] != "deferred" {
		t.Fatalf("expected deferred init exactly once, got %v", inits)
	}
}

func TestCoordinator_RunBeforeFirstErrorBlocks(t *testing.T) {
	c := NewCoordinator()
	ctx := context.Background()
	veto := errors.New("admission denied")

	gate := newTestPlugin("gate", 100)
	gate.onBefore = func(ctx context.Context, ectx *core.ExecutionContext) error { return veto }
	laterRan := false
	later := newTestPlugin("later", 10)
	later.onBefore = func(ctx context.Context, ectx *core.ExecutionContext) error {
		laterRan = true
		return nil
	}

	_ = c.Register(ctx, gate)
	_ = c.Register(ctx, later)

	if err := c.RunBefore(ctx, core.NewExecutionContext("", "")); !errors.Is(err, veto) {
		t.Fatalf("expected veto, got %v", err)
	}
	if laterRan {
		t.Fatal("hooks after the failing one must not run")
	}
}

func TestCoordinator_DestroyAllReverseOrder(t *testing.T) {
	c := NewCoordinator()
	ctx := context.Background()
	var destroyed []string
	mk := func(name string, priority int, failDestroy bool) *testPlugin {
		p := newTestPlugin(name, priority)
		p.onDestroy = func(ctx context.Context) error {
			destroyed = append(destroyed, name)
			if failDestroy {
				return errors.New("refusing")
			}
			return nil
		}
		return p
	}

	_ = c.Register(ctx, mk("first", 100, false))
	_ = c.Register(ctx, mk("second", 50, true))
	_ = c.Register(ctx, mk("third", 10, false))

	c.DestroyAll(ctx)

	if len(destroyed) != 3 || destroyed[0] != "third" || destroyed[1] != "second" || destroyed[2] != "first" {
		t.Fatalf("expected reverse init order despite failure, got %v", destroyed)
	}
	if got := c.InitOrder(); len(got) != 0 {
		t.Fatalf("init order should reset, got %v", got)
	}
}

func TestCoordinator_UnregisterDestroysInitialized(t *testing.T) {
	c := NewCoordinator()
	ctx := context.Background()
	destroyed := false
	p := newTestPlugin("transient", 0)
	p.onDestroy = func(ctx context.Context) error {
		destroyed = true
		return nil
	}

	_ = c.Register(ctx, p)
	if err := c.Unregister(ctx, "transient"); err != nil {
		t.Fatalf("unregister failed: %v", err)
	}
	if !destroyed {
		t.Fatal("initialized plugin must be destroyed on unregister")
	}
	if err := c.Unregister(ctx, "transient"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.2.0", "1.10.0", -1},
		{"2.0.0", "1.9.9", 1},
		{"v1.3.0", "1.3", 0},
		{"1.0.0-beta", "1.0.0", 0},
		{"0.9", "1.0.0", -1},
	}
	for _, tc := range cases {
		if got := compareVersions(tc.a, tc.b); got != tc.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
