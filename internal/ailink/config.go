package ailink

import (
	"time"

	"github.com/brdforge/brdforge/internal/core/dispatch"
)

// Config defines provider configuration for AILink.
//
// This is intentionally self-contained so it can later be extracted as a
// standalone library configuration subtree.
type Config struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	DefaultTimeout  time.Duration `mapstructure:"default_timeout"`

	// PromptsDir allows applications to override the built-in prompt set.
	// Prompts are owned by the application, but must follow AILink prompt rules.
	PromptsDir string `mapstructure:"prompts_dir"`

	// Debug controls optional diagnostics like raw payload capture.
	Debug DebugConfig `mapstructure:"debug"`

	// Dispatch is the baseline scheduler configuration applied to every
	// provider instance. Instances may override individual fields.
	Dispatch dispatch.Config `mapstructure:"dispatch"`

	// Providers is a set of provider instances keyed by a user-defined id (slug).
	// Each instance declares its underlying provider type via AIProvider.
	Providers map[string]ProviderInstanceConfig `mapstructure:"providers"`

	// Routing maps a role (e.g. "brd-section") to a provider instance id.
	Routing map[string]string `mapstructure:"routing"`
}

type DebugConfig struct {
	CaptureRawEnabled  bool `mapstructure:"capture_raw_enabled"`
	CaptureRawMaxBytes int  `mapstructure:"capture_raw_max_bytes"`
}

// ProviderInstanceConfig defines a configured provider instance (e.g. "brdforge-openai").
type ProviderInstanceConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// AIProvider is the provider type/driver identifier (e.g. "openai").
	AIProvider string `mapstructure:"ai_provider"`

	// SelectionPolicy controls which credential is chosen.
	// Supported values: "priority" (default), "round_robin".
	SelectionPolicy string `mapstructure:"selection_policy"`

	// DefaultCredential, if set, forces selecting the matching credential label.
	// If missing/invalid, selection falls back to SelectionPolicy.
	DefaultCredential string `mapstructure:"default_credential"`

	BaseURL string            `mapstructure:"base_url"`
	Models  map[string]string `mapstructure:"models"`
	Roles   []string          `mapstructure:"roles"`

	// Dispatch overrides individual scheduler fields for this instance.
	// Unset fields inherit from the top-level dispatch config.
	Dispatch *dispatch.Config `mapstructure:"dispatch"`

	Credentials []CredentialConfig `mapstructure:"credentials"`
}

// CredentialConfig is a single credential for a provider instance.
//
// Multiple credentials enable key rotation, future load balancing, and per-key rate limit handling.
type CredentialConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Label    string `mapstructure:"label"`
	APIKey   string `mapstructure:"api_key"`
	Priority int    `mapstructure:"priority"`
}

// dispatchConfigFor layers the instance override onto the baseline scheduler
// config. Zero-valued override fields inherit the baseline.
func dispatchConfigFor(base dispatch.Config, override *dispatch.Config) dispatch.Config {
	if override == nil {
		return base
	}

	merged := base
	if override.MaxRetries > 0 {
		merged.MaxRetries = override.MaxRetries
	}
	if override.BaseDelay > 0 {
		merged.BaseDelay = override.BaseDelay
	}
	if override.MaxDelay > 0 {
		merged.MaxDelay = override.MaxDelay
	}
	if override.JitterMax > 0 {
		merged.JitterMax = override.JitterMax
	}
	if override.RateLimitFloor > 0 {
		merged.RateLimitFloor = override.RateLimitFloor
	}
	if override.MinInterval > 0 {
		merged.MinInterval = override.MinInterval
	}
	if override.QuotaLimit > 0 {
		merged.QuotaLimit = override.QuotaLimit
	}
	if override.QuotaWindow > 0 {
		merged.QuotaWindow = override.QuotaWindow
	}
	if override.AttemptTimeout > 0 {
		merged.AttemptTimeout = override.AttemptTimeout
	}
	if len(override.RateLimitKeywords) > 0 {
		merged.RateLimitKeywords = override.RateLimitKeywords
	}
	if len(override.TransientKeywords) > 0 {
		merged.TransientKeywords = override.TransientKeywords
	}
	return merged
}
