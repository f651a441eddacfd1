package resilience

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/woojubb/robota-go/core"
	"github.com/woojubb/robota-go/logging"
	"github.com/woojubb/robota-go/plugin"
)

// Strategy selects how an Isolator reacts to operation failures.
type Strategy string

const (
	// StrategySilent records nothing; failures only drive the retry loop.
	StrategySilent Strategy = "silent"
	// StrategySimple logs each failure and nothing else.
	StrategySimple Strategy = "simple"
	// StrategyExponentialBackoff doubles the retry delay each attempt.
	StrategyExponentialBackoff Strategy = "exponential-backoff"
	// StrategyCircuitBreaker counts consecutive failures and short-circuits
	// calls while the breaker is open.
	StrategyCircuitBreaker Strategy = "circuit-breaker"
)

// Config configures an Isolator.
type Config struct {
	Strategy Strategy

	// MaxRetries is the total number of attempts, including the first.
	// Default: 3.
	MaxRetries int

	// RetryDelay is the base delay between attempts. Exponential backoff
	// grows it as RetryDelay × 2^(attempt-1); other strategies keep it
	// constant. Default: 1s.
	RetryDelay time.Duration

	// FailureThreshold opens the breaker after this many consecutive
	// recorded failures. Default: 5.
	FailureThreshold int

	// CircuitBreakerTimeout is how long the breaker stays open before the
	// next call is allowed to probe. Default: 30s.
	CircuitBreakerTimeout time.Duration

	// Logger receives failure diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// BreakerState is a snapshot of the breaker for observers and tests.
type BreakerState struct {
	FailureCount  int
	Open          bool
	LastFailureAt time.Time
}

// Isolator wraps operations with retry and circuit breaking. The breaker is
// global to the instance, not keyed per caller.
type Isolator struct {
	plugin.BasePlugin

	cfg    Config
	logger logging.Logger

	mu            sync.Mutex
	failureCount  int
	open          bool
	lastFailureAt time.Time
	now           func() time.Time
}

// New creates an Isolator. A missing or unknown strategy is a
// ConfigurationError.
func New(cfg Config) (*Isolator, error) {
	switch cfg.Strategy {
	case StrategySilent, StrategySimple, StrategyExponentialBackoff, StrategyCircuitBreaker:
	case "":
		return nil, core.NewConfigurationError("resilience", "strategy must be set")
	default:
		return nil, core.NewConfigurationError("resilience", "unknown strategy %q", cfg.Strategy)
	}

	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CircuitBreakerTimeout <= 0 {
		cfg.CircuitBreakerTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}

	return &Isolator{
		BasePlugin: plugin.NewBasePlugin("failure-isolator", "1.0.0", 90),
		cfg:        cfg,
		logger:     cfg.Logger,
		now:        time.Now,
	}, nil
}

// Operation is the unit of work an Isolator wraps.
type Operation func(ctx context.Context) (*core.ExecutionResult, error)

// ExecuteWithRetry runs the operation under the configured strategy. While
// the breaker is open, calls fail immediately with ErrCircuitOpen without
// invoking the operation. After exhausting retries the wrapped error carries
// the last underlying failure.
func (i *Isolator) ExecuteWithRetry(ctx context.Context, op Operation) (*core.ExecutionResult, error) {
	var lastErr error

	for attempt := 1; attempt <= i.cfg.MaxRetries; attempt++ {
		if i.cfg.Strategy == StrategyCircuitBreaker {
			if err := i.allowRequest(); err != nil {
				return nil, err
			}
		}

		result, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				i.resetFailures()
			}
			return result, nil
		}

		lastErr = err
		i.recordFailure(err)

		if attempt >= i.cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(i.delayFor(attempt)):
		}
	}

	return nil, fmt.Errorf("robota: operation failed after %d attempts: %w", i.cfg.MaxRetries, lastErr)
}

// allowRequest admits a call through the breaker. A call arriving after the
// timeout has elapsed since the last failure closes the breaker and resets
// the failure count before probing.
func (i *Isolator) allowRequest() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.open {
		return nil
	}
	if i.now().Sub(i.lastFailureAt) >= i.cfg.CircuitBreakerTimeout {
		i.open = false
		i.failureCount = 0
		i.logger.Info("circuit breaker closed for probe")
		return nil
	}
	return core.ErrCircuitOpen
}

// recordFailure applies strategy-specific bookkeeping for one failure.
func (i *Isolator) recordFailure(err error) {
	switch i.cfg.Strategy {
	case StrategySilent:
	case StrategySimple:
		i.logger.Warn("operation failed", "error", err)
	case StrategyExponentialBackoff:
		i.mu.Lock()
		i.failureCount++
		i.lastFailureAt = i.now()
		i.mu.Unlock()
	case StrategyCircuitBreaker:
		i.mu.Lock()
		i.failureCount++
		i.lastFailureAt = i.now()
		if !i.open && i.failureCount >= i.cfg.FailureThreshold {
			i.open = true
			i.logger.Warn("circuit breaker opened", "failures", i.failureCount)
		}
		i.mu.Unlock()
	}
}

func (i *Isolator) resetFailures() {
	i.mu.Lock()
	i.failureCount = 0
	i.mu.Unlock()
}

// delayFor returns the sleep before the next attempt.
func (i *Isolator) delayFor(attempt int) time.Duration {
	if i.cfg.Strategy == StrategyExponentialBackoff {
		return time.Duration(float64(i.cfg.RetryDelay) * math.Pow(2, float64(attempt-1)))
	}
	return i.cfg.RetryDelay
}

// State returns a snapshot of the breaker.
func (i *Isolator) State() BreakerState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return BreakerState{FailureCount: i.failureCount, Open: i.open, LastFailureAt: i.lastFailureAt}
}

// Reset closes the breaker and clears the failure count.
func (i *Isolator) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.open = false
	i.failureCount = 0
}

// OnError implements the plugin hook: execution failures feed the breaker's
// bookkeeping even when the failing call did not go through ExecuteWithRetry.
func (i *Isolator) OnError(ctx context.Context, ectx *core.ExecutionContext, execErr error) {
	i.recordFailure(execErr)
}
