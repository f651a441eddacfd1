package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/woojubb/robota-go/core"
	"github.com/woojubb/robota-go/logging"
	"github.com/woojubb/robota-go/plugin"
)

// Strategy selects the admission-control algorithm for a Governor instance.
type Strategy string

const (
	// StrategyNone admits everything.
	StrategyNone Strategy = "none"
	// StrategyTokenBucket refills tokens continuously and additionally
	// caps requests and cost per time window.
	StrategyTokenBucket Strategy = "token-bucket"
	// StrategySlidingWindow behaves identically to StrategyFixedWindow:
	// the whole window resets once TimeWindow elapses, with no gradual
	// decay. Kept as a distinct name for configuration compatibility.
	StrategySlidingWindow Strategy = "sliding-window"
	// StrategyFixedWindow resets count, tokens and cost wholesale once
	// TimeWindow has elapsed since the window start.
	StrategyFixedWindow Strategy = "fixed-window"
)

// Config configures a Governor.
type Config struct {
	Strategy Strategy

	// BucketSize caps the token bucket; RefillRate adds tokens per second.
	BucketSize float64
	RefillRate float64

	// MaxRequests, MaxTokens and MaxCost bound the per-window budget.
	// Zero disables the respective bound. MaxTokens applies to the window
	// strategies only.
	MaxRequests int
	MaxTokens   float64
	MaxCost     float64

	// TimeWindow is the request/cost window length. The token bucket's
	// window resets independently of token refill.
	TimeWindow time.Duration

	// ModelRates maps model names to cost per 1000 tokens; FallbackRate
	// applies to unknown models.
	ModelRates   map[string]float64
	FallbackRate float64

	// TokenBuffer is the fixed overhead added to every token estimate.
	TokenBuffer int

	// Logger receives admission diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// bucketState is the per-key token bucket plus its independent request/cost
// window.
type bucketState struct {
	tokens           float64
	lastRefillAt     time.Time
	windowStart      time.Time
	requestsInWindow int
	costInWindow     float64
}

// windowState is the per-key fixed/sliding window.
type windowState struct {
	count       int
	tokens      float64
	cost        float64
	windowStart time.Time
}

// Governor is the admission-control plugin. One state object exists per
// caller key, created lazily and removed only by ResetLimits.
type Governor struct {
	plugin.BasePlugin

	cfg    Config
	logger logging.Logger

	mu      sync.Mutex
	buckets map[string]*bucketState
	windows map[string]*windowState
	now     func() time.Time
}

// New creates a Governor. A missing or unknown strategy is a
// ConfigurationError.
func New(cfg Config) (*Governor, error) {
	switch cfg.Strategy {
	case StrategyNone, StrategyTokenBucket, StrategySlidingWindow, StrategyFixedWindow:
	case "":
		return nil, core.NewConfigurationError("ratelimit", "strategy must be set")
	default:
		return nil, core.NewConfigurationError("ratelimit", "unknown strategy %q", cfg.Strategy)
	}

	if cfg.BucketSize <= 0 {
		cfg.BucketSize = 100
	}
	if cfg.RefillRate <= 0 {
		cfg.RefillRate = 10
	}
	if cfg.TimeWindow <= 0 {
		cfg.TimeWindow = time.Minute
	}
	if cfg.FallbackRate <= 0 {
		cfg.FallbackRate = 0.002
	}
	if cfg.TokenBuffer <= 0 {
		cfg.TokenBuffer = 50
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}

	return &Governor{
		BasePlugin: plugin.NewBasePlugin("rate-governor", "1.0.0", 100),
		cfg:        cfg,
		logger:     cfg.Logger,
		buckets:    make(map[string]*bucketState),
		windows:    make(map[string]*windowState),
		now:        time.Now,
	}, nil
}

// LimitKey derives the admission key from caller identity: user, else
// session, else execution, else a shared default key.
func LimitKey(ectx *core.ExecutionContext) string {
	if ectx == nil {
		return "default"
	}
	switch {
	case ectx.UserID != "":
		return ectx.UserID
	case ectx.SessionID != "":
		return ectx.SessionID
	case ectx.ExecutionID != "":
		return ectx.ExecutionID
	default:
		return "default"
	}
}

// BeforeExecution implements the plugin hook: it estimates the request's
// token need and admits or rejects it synchronously, blocking the execution
// on rejection.
func (g *Governor) BeforeExecution(ctx context.Context, ectx *core.ExecutionContext) error {
	var input string
	if ectx != nil {
		input = ectx.Input
	}
	return g.Admit(ectx, g.EstimateTokens(input))
}

// AfterExecution adds the actual post-hoc cost to the caller's running
// window cost when the result reports token usage.
func (g *Governor) AfterExecution(ctx context.Context, ectx *core.ExecutionContext, result *core.ExecutionResult) error {
	if result == nil || result.TokensUsed <= 0 {
		return nil
	}
	model := result.Model
	if model == "" {
		model = modelOf(ectx)
	}
	g.RecordCost(LimitKey(ectx), g.EstimateCost(float64(result.TokensUsed), model))
	return nil
}

// Admit checks whether a request needing the given tokens may proceed under
// the configured strategy. On success the budget is reserved immediately,
// before the operation runs; the check-and-reserve is atomic.
func (g *Governor) Admit(ectx *core.ExecutionContext, tokens float64) error {
	key := LimitKey(ectx)
	cost := g.EstimateCost(tokens, modelOf(ectx))

	switch g.cfg.Strategy {
	case StrategyNone:
		return nil
	case StrategyTokenBucket:
		return g.admitBucket(key, tokens, cost)
	case StrategySlidingWindow, StrategyFixedWindow:
		return g.admitWindow(key, tokens, cost)
	default:
		return core.NewConfigurationError("ratelimit", "unknown strategy %q", g.cfg.Strategy)
	}
}

func (g *Governor) admitBucket(key string, tokens, cost float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	b, ok := g.buckets[key]
	if !ok {
		b = &bucketState{tokens: g.cfg.BucketSize, lastRefillAt: now, windowStart: now}
		g.buckets[key] = b
	}

	// Continuous refill, capped at bucket size.
	elapsed := now.Sub(b.lastRefillAt).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * g.cfg.RefillRate
		if b.tokens > g.cfg.BucketSize {
			b.tokens = g.cfg.BucketSize
		}
		b.lastRefillAt = now
	}

	// The request/cost window resets independently of token refill.
	if now.Sub(b.windowStart) >= g.cfg.TimeWindow {
		b.windowStart = now
		b.requestsInWindow = 0
		b.costInWindow = 0
	}

	if b.tokens < tokens {
		g.logAdmission(key, false, b.tokens, "token bucket depleted")
		return fmt.Errorf("%w: token bucket depleted for %q (need %.0f, have %.1f)",
			core.ErrRateLimited, key, tokens, b.tokens)
	}
	if g.cfg.MaxRequests > 0 && b.requestsInWindow >= g.cfg.MaxRequests {
		g.logAdmission(key, false, b.tokens, "request limit reached")
		return fmt.Errorf("%w: request limit reached for %q (%d per window)",
			core.ErrRateLimited, key, g.cfg.MaxRequests)
	}
	if g.cfg.MaxCost > 0 && b.costInWindow+cost > g.cfg.MaxCost {
		g.logAdmission(key, false, b.tokens, "cost limit reached")
		return fmt.Errorf("%w: cost limit reached for %q (%.4f per window)",
			core.ErrRateLimited, key, g.cfg.MaxCost)
	}

	// Reserve immediately, before the operation runs.
	b.tokens -= tokens
	b.requestsInWindow++
	g.logAdmission(key, true, b.tokens, "")
	return nil
}

func (g *Governor) admitWindow(key string, tokens, cost float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	w, ok := g.windows[key]
	if !ok {
		w = &windowState{windowStart: now}
		g.windows[key] = w
	}

	// Whole-window reset once the window has elapsed; no gradual decay.
	if now.Sub(w.windowStart) >= g.cfg.TimeWindow {
		*w = windowState{windowStart: now}
	}

	if g.cfg.MaxRequests > 0 && w.count+1 > g.cfg.MaxRequests {
		g.logAdmission(key, false, w.tokens, "request limit reached")
		return fmt.Errorf("%w: request limit reached for %q (%d per window)",
			core.ErrRateLimited, key, g.cfg.MaxRequests)
	}
	if g.cfg.MaxTokens > 0 && w.tokens+tokens > g.cfg.MaxTokens {
		g.logAdmission(key, false, w.tokens, "token limit reached")
		return fmt.Errorf("%w: token limit reached for %q (%.0f per window)",
			core.ErrRateLimited, key, g.cfg.MaxTokens)
	}
	if g.cfg.MaxCost > 0 && w.cost+cost > g.cfg.MaxCost {
		g.logAdmission(key, false, w.tokens, "cost limit reached")
		return fmt.Errorf("%w: cost limit reached for %q (%.4f per window)",
			core.ErrRateLimited, key, g.cfg.MaxCost)
	}

	w.count++
	w.tokens += tokens
	w.cost += cost
	g.logAdmission(key, true, w.tokens, "")
	return nil
}

// RecordCost adds actual post-execution cost to the caller's running window
// cost.
func (g *Governor) RecordCost(key string, cost float64) {
	if cost <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.cfg.Strategy {
	case StrategyTokenBucket:
		if b, ok := g.buckets[key]; ok {
			b.costInWindow += cost
		}
	case StrategySlidingWindow, StrategyFixedWindow:
		if w, ok := g.windows[key]; ok {
			w.cost += cost
		}
	}
}

// Tokens reports the tokens currently available to a key (after refill).
// Keys without state report a full bucket.
func (g *Governor) Tokens(key string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.buckets[key]
	if !ok {
		return g.cfg.BucketSize
	}
	tokens := b.tokens + g.now().Sub(b.lastRefillAt).Seconds()*g.cfg.RefillRate
	if tokens > g.cfg.BucketSize {
		tokens = g.cfg.BucketSize
	}
	return tokens
}

// ResetLimits clears the state for one key, or for every key when key is
// empty. This is the only way state is ever removed.
func (g *Governor) ResetLimits(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if key == "" {
		g.buckets = make(map[string]*bucketState)
		g.windows = make(map[string]*windowState)
		return
	}
	delete(g.buckets, key)
	delete(g.windows, key)
}

func (g *Governor) logAdmission(key string, allowed bool, tokens float64, reason string) {
	if allowed {
		g.logger.Debug("admission granted", "key", key, "strategy", string(g.cfg.Strategy), "tokens", tokens)
		return
	}
	g.logger.Warn("admission rejected", "key", key, "strategy", string(g.cfg.Strategy), "tokens", tokens, "reason", reason)
}

func modelOf(ectx *core.ExecutionContext) string {
	if ectx == nil {
		return ""
	}
	return ectx.Model
}
