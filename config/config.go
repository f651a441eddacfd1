// Package config loads the YAML runtime configuration. It mirrors the option
// structs of the runtime packages so a single file can drive bus buffering,
// rate limits, failure isolation, webhook endpoints and storage selection.
package config

import (
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/woojubb/robota-go/core"
)

// BusConfig drives event bus construction.
type BusConfig struct {
	Async         bool          `yaml:"async"`
	Buffered      bool          `yaml:"buffered"`
	BufferMaxSize int           `yaml:"buffer_max_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// RateLimitConfig drives the rate governor.
type RateLimitConfig struct {
	Strategy    string        `yaml:"strategy"`
	BucketSize  int           `yaml:"bucket_size"`
	RefillRate  float64       `yaml:"refill_rate"`
	MaxRequests int           `yaml:"max_requests"`
	MaxTokens   int           `yaml:"max_tokens"`
	MaxCost     float64       `yaml:"max_cost"`
	TimeWindow  time.Duration `yaml:"time_window"`
}

// ResilienceConfig drives the failure isolator.
type ResilienceConfig struct {
	Strategy              string        `yaml:"strategy"`
	MaxRetries            int           `yaml:"max_retries"`
	RetryDelay            time.Duration `yaml:"retry_delay"`
	FailureThreshold      int           `yaml:"failure_threshold"`
	CircuitBreakerTimeout time.Duration `yaml:"circuit_breaker_timeout"`
}

// EndpointConfig is one webhook delivery target.
type EndpointConfig struct {
	URL     string            `yaml:"url"`
	Secret  string            `yaml:"secret,omitempty"`
	Events  []string          `yaml:"events,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// WebhookConfig drives the notification dispatcher.
type WebhookConfig struct {
	Endpoints      []EndpointConfig `yaml:"endpoints"`
	AllowedEvents  []string         `yaml:"allowed_events,omitempty"`
	MaxConcurrency int64            `yaml:"max_concurrency"`
	MaxRetries     int              `yaml:"max_retries"`
	BackoffBase    time.Duration    `yaml:"backoff_base"`
	BackoffCap     time.Duration    `yaml:"backoff_cap"`
	Timeout        time.Duration    `yaml:"timeout"`
}

// StorageConfig selects a persistence backend.
type StorageConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `yaml:"backend"`
	// Path is the database file for the sqlite backend.
	Path string `yaml:"path,omitempty"`
}

// LoggingConfig selects log verbosity and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Config is the full runtime configuration.
type Config struct {
	Bus        BusConfig        `yaml:"bus"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Default returns a configuration safe for local development.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			BufferMaxSize: 100,
		},
		RateLimit: RateLimitConfig{
			Strategy:   "token-bucket",
			BucketSize: 100,
			RefillRate: 10,
			TimeWindow: time.Minute,
		},
		Resilience: ResilienceConfig{
			Strategy:              "circuit-breaker",
			MaxRetries:            3,
			RetryDelay:            time.Second,
			FailureThreshold:      5,
			CircuitBreakerTimeout: 30 * time.Second,
		},
		Webhook: WebhookConfig{
			MaxConcurrency: 5,
			MaxRetries:     3,
			BackoffBase:    time.Second,
			BackoffCap:     30 * time.Second,
			Timeout:        10 * time.Second,
		},
		Storage: StorageConfig{Backend: "memory"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates a YAML configuration file. Missing sections keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewConfigurationError("config", "read %s: %v", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, core.NewConfigurationError("config", "parse %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks strategy names, endpoint URLs and numeric bounds.
func (c *Config) Validate() error {
	switch c.RateLimit.Strategy {
	case "", "none", "token-bucket", "sliding-window", "fixed-window":
	default:
		return core.NewConfigurationError("config", "unknown rate limit strategy %q", c.RateLimit.Strategy)
	}
	switch c.Resilience.Strategy {
	case "", "silent", "simple", "exponential-backoff", "circuit-breaker":
	default:
		return core.NewConfigurationError("config", "unknown resilience strategy %q", c.Resilience.Strategy)
	}
	switch c.Storage.Backend {
	case "", "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return core.NewConfigurationError("config", "sqlite backend requires a path")
		}
	default:
		return core.NewConfigurationError("config", "unknown storage backend %q", c.Storage.Backend)
	}

	if c.Bus.BufferMaxSize < 0 {
		return core.NewConfigurationError("config", "bus buffer_max_size must not be negative")
	}
	if c.RateLimit.BucketSize < 0 || c.RateLimit.RefillRate < 0 {
		return core.NewConfigurationError("config", "rate limit bounds must not be negative")
	}
	if c.Resilience.MaxRetries < 0 {
		return core.NewConfigurationError("config", "resilience max_retries must not be negative")
	}
	if c.Webhook.MaxConcurrency < 0 || c.Webhook.MaxRetries < 0 {
		return core.NewConfigurationError("config", "webhook bounds must not be negative")
	}

	for i, ep := range c.Webhook.Endpoints {
		if ep.URL == "" {
			return core.NewConfigurationError("config", "webhook endpoint %d has no url", i)
		}
		u, err := url.Parse(ep.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return core.NewConfigurationError("config", "webhook endpoint %d has invalid url %q", i, ep.URL)
		}
		if ep.Retries != nil && *ep.Retries < 0 {
			return core.NewConfigurationError("config", "webhook endpoint %d retries must not be negative", i)
		}
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return core.NewConfigurationError("config", "unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return core.NewConfigurationError("config", "unknown log format %q", c.Logging.Format)
	}

	return nil
}
