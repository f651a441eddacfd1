package robota

import (
	"context"
	"errors"
	"testing"

	"github.com/woojubb/robota-go/core"
	"github.com/woojubb/robota-go/internal/testutil"
	"github.com/woojubb/robota-go/ratelimit"
	"github.com/woojubb/robota-go/registry"
)

func TestRuntime_DefaultsAndAccessors(t *testing.T) {
	rt := New()
	defer rt.Shutdown(context.Background())

	if rt.Bus() == nil || rt.Registry() == nil || rt.Coordinator() == nil || rt.Store() == nil {
		t.Fatal("runtime defaults not wired")
	}
	if rt.Registry().Bus() != rt.Bus() || rt.Coordinator().Bus() != rt.Bus() {
		t.Fatal("registry and coordinator must share the runtime bus")
	}
}

func TestRuntime_ExecutePipeline(t *testing.T) {
	rt := New()
	defer rt.Shutdown(context.Background())
	ctx := context.Background()

	ext := testutil.NewExtensionBuilder("echo").
		OnExecute(func(ctx context.Context, ectx *core.ExecutionContext) (*core.ExecutionResult, error) {
			return &core.ExecutionResult{Output: ectx.Input, TokensUsed: 10}, nil
		}).Build()
	if err := rt.RegisterExtension(ext); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := rt.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	result, err := rt.Execute(ctx, "echo", core.NewExecutionContext("sess", "user").WithInput("hello"))
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Output != "hello" {
		t.Fatalf("unexpected output: %+v", result)
	}
}

func TestRuntime_RateGovernorVetoesExecution(t *testing.T) {
	rt := New()
	defer rt.Shutdown(context.Background())
	ctx := context.Background()

	executions := 0
	ext := testutil.NewExtensionBuilder("guarded").
		OnExecute(func(ctx context.Context, ectx *core.ExecutionContext) (*core.ExecutionResult, error) {
			executions++
			return &core.ExecutionResult{}, nil
		}).Build()
	if err := rt.RegisterExtension(ext); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := rt.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	// Bucket of 100 with a 50-token estimate per empty-input request admits
	// exactly two executions.
	gov, err := ratelimit.New(ratelimit.Config{
		Strategy:   ratelimit.StrategyTokenBucket,
		BucketSize: 100,
		RefillRate: 0.001,
	})
	if err != nil {
		t.Fatalf("governor construction failed: %v", err)
	}
	if err := rt.RegisterPlugin(ctx, gov); err != nil {
		t.Fatalf("register plugin failed: %v", err)
	}

	ectx := core.NewExecutionContext("sess", "user")
	for i := 0; i < 2; i++ {
		if _, err := rt.Execute(ctx, "guarded", ectx); err != nil {
			t.Fatalf("execution %d should be admitted: %v", i, err)
		}
	}
	_, err = rt.Execute(ctx, "guarded", ectx)
	if !errors.Is(err, core.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if executions != 2 {
		t.Fatalf("vetoed request must not execute, saw %d executions", executions)
	}
}

func TestRuntime_RegisterExtensionValidatesDependencies(t *testing.T) {
	rt := New()
	defer rt.Shutdown(context.Background())

	ext := testutil.NewExtensionBuilder("api").DependsOn("vault").Build()
	var cfgErr *core.ConfigurationError
	if err := rt.RegisterExtension(ext); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError for unknown dependency type, got %v", err)
	}
}

func TestRuntime_ShutdownDisposesEverything(t *testing.T) {
	rt := New()
	ctx := context.Background()

	disposed := false
	ext := testutil.NewExtensionBuilder("closable").
		OnDispose(func(ctx context.Context) error {
			disposed = true
			return nil
		}).Build()
	if err := rt.RegisterExtension(ext); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := rt.Initialize(ctx); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	rt.Shutdown(ctx)
	if !disposed {
		t.Fatal("shutdown must dispose initialized extensions")
	}
	if got := rt.Registry().InitOrder(); len(got) != 0 {
		t.Fatalf("init order should be cleared, got %v", got)
	}

	// The registry accepts registrations again after disposal completes.
	if err := rt.Registry().Register(testutil.NewExtensionBuilder("late").Build(), registry.RegisterOptions{}); err != nil {
		t.Fatalf("post-shutdown registration failed: %v", err)
	}
}
