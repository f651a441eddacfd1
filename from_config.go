package robota

import (
	"context"

	"github.com/woojubb/robota-go/config"
	"github.com/woojubb/robota-go/core"
	"github.com/woojubb/robota-go/logging"
	"github.com/woojubb/robota-go/ratelimit"
	"github.com/woojubb/robota-go/resilience"
	"github.com/woojubb/robota-go/storage"
	"github.com/woojubb/robota-go/storage/sqlite"
	"github.com/woojubb/robota-go/webhook"
)

// NewFromConfig builds a fully wired Runtime from a validated configuration:
// bus, storage backend, webhook dispatcher, plus the rate governor and
// failure isolator registered as plugins.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false)

	bus := core.NewBus(func(o *core.BusOptions) {
		o.Async = cfg.Bus.Async
		o.Buffered = cfg.Bus.Buffered
		if cfg.Bus.BufferMaxSize > 0 {
			o.BufferMaxSize = cfg.Bus.BufferMaxSize
		}
		o.FlushInterval = cfg.Bus.FlushInterval
		o.Logger = logger.WithComponent("bus")
	})

	var store storage.Store
	switch cfg.Storage.Backend {
	case "sqlite":
		s, err := sqlite.New(ctx, cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		store = storage.NewInMemoryStore()
	}

	var dispatcher *webhook.Dispatcher
	if len(cfg.Webhook.Endpoints) > 0 {
		dispatcher = webhook.NewDispatcher(func(o *webhook.Options) {
			for _, ep := range cfg.Webhook.Endpoints {
				o.Endpoints = append(o.Endpoints, webhook.Endpoint{
					URL:     ep.URL,
					Secret:  ep.Secret,
					Events:  ep.Events,
					Retries: ep.Retries,
					Headers: ep.Headers,
				})
			}
			o.AllowedEvents = cfg.Webhook.AllowedEvents
			o.MaxConcurrency = cfg.Webhook.MaxConcurrency
			o.MaxRetries = cfg.Webhook.MaxRetries
			o.BackoffBase = cfg.Webhook.BackoffBase
			o.BackoffCap = cfg.Webhook.BackoffCap
			o.Timeout = cfg.Webhook.Timeout
			o.Logger = logger.WithComponent("webhook")
		})
	}

	rt := New(func(o *Options) {
		o.Bus = bus
		o.Store = store
		o.Dispatcher = dispatcher
		o.Logger = logger
	})

	if cfg.RateLimit.Strategy != "" && cfg.RateLimit.Strategy != "none" {
		gov, err := ratelimit.New(ratelimit.Config{
			Strategy:    ratelimit.Strategy(cfg.RateLimit.Strategy),
			BucketSize:  float64(cfg.RateLimit.BucketSize),
			RefillRate:  cfg.RateLimit.RefillRate,
			MaxRequests: cfg.RateLimit.MaxRequests,
			MaxTokens:   float64(cfg.RateLimit.MaxTokens),
			MaxCost:     cfg.RateLimit.MaxCost,
			TimeWindow:  cfg.RateLimit.TimeWindow,
			Logger:      logger.WithComponent("ratelimit"),
		})
		if err != nil {
			return nil, err
		}
		if err := rt.RegisterPlugin(ctx, gov); err != nil {
			return nil, err
		}
	}

	if cfg.Resilience.Strategy != "" && cfg.Resilience.Strategy != "silent" {
		iso, err := resilience.New(resilience.Config{
			Strategy:              resilience.Strategy(cfg.Resilience.Strategy),
			MaxRetries:            cfg.Resilience.MaxRetries,
			RetryDelay:            cfg.Resilience.RetryDelay,
			FailureThreshold:      cfg.Resilience.FailureThreshold,
			CircuitBreakerTimeout: cfg.Resilience.CircuitBreakerTimeout,
			Logger:                logger.WithComponent("resilience"),
		})
		if err != nil {
			return nil, err
		}
		if err := rt.RegisterPlugin(ctx, iso); err != nil {
			return nil, err
		}
	}

	return rt, nil
}
