package dispatch

import "time"

// Config holds the scheduler's timing and retry parameters. Zero fields fall
// back to the defaults below, so a zero Config is usable as-is.
type Config struct {
	// MaxRetries bounds total attempts per call (not retries after the
	// first attempt; a call is tried at most MaxRetries times).
	MaxRetries int `mapstructure:"max_retries"`

	// BaseDelay seeds the exponential backoff; the wait after failed
	// attempt n is BaseDelay * 2^(n-1) plus jitter.
	BaseDelay time.Duration `mapstructure:"base_delay"`

	// MaxDelay caps the computed backoff before the rate-limit floor is
	// applied.
	MaxDelay time.Duration `mapstructure:"max_delay"`

	// JitterMax is the upper bound of the uniform random addition to every
	// backoff delay.
	JitterMax time.Duration `mapstructure:"jitter_max"`

	// RateLimitFloor is the minimum wait before retrying a rate-limited
	// failure, regardless of what the exponential formula computes.
	RateLimitFloor time.Duration `mapstructure:"rate_limit_floor"`

	// MinInterval is the minimum spacing between consecutive dispatch
	// starts.
	MinInterval time.Duration `mapstructure:"min_interval"`

	// QuotaLimit caps dispatches per quota window.
	QuotaLimit int `mapstructure:"quota_limit"`

	// QuotaWindow is the fixed window over which QuotaLimit applies.
	QuotaWindow time.Duration `mapstructure:"quota_window"`

	// AttemptTimeout, when positive, cuts off a single attempt and retries
	// it as transient. Zero disables per-attempt timeouts, in which case a
	// call that never settles stalls the queue.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`

	// Classifier keyword overrides. Empty lists use the package defaults.
	RateLimitKeywords []string `mapstructure:"rate_limit_keywords"`
	TransientKeywords []string `mapstructure:"transient_keywords"`
}

// Defaults tuned for one OpenAI-compatible provider under a
// 15-requests-per-minute plan.
const (
	DefaultMaxRetries     = 5
	DefaultBaseDelay      = 1000 * time.Millisecond
	DefaultMaxDelay       = 30000 * time.Millisecond
	DefaultJitterMax      = 1000 * time.Millisecond
	DefaultRateLimitFloor = 10000 * time.Millisecond
	DefaultMinInterval    = 2000 * time.Millisecond
	DefaultQuotaLimit     = 15
	DefaultQuotaWindow    = time.Minute
)

// DefaultConfig returns the fully-populated default configuration.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.JitterMax <= 0 {
		c.JitterMax = DefaultJitterMax
	}
	if c.RateLimitFloor <= 0 {
		c.RateLimitFloor = DefaultRateLimitFloor
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.QuotaLimit <= 0 {
		c.QuotaLimit = DefaultQuotaLimit
	}
	if c.QuotaWindow <= 0 {
		c.QuotaWindow = DefaultQuotaWindow
	}
	return c
}
