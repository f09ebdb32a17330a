package config

import "time"

// LLMConfig selects and configures the LLMProvider implementations an
// orchestration server may route completions to, grounded on the teacher's
// multi-provider LLMConfig plus its routing rules.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`

	// FallbackChain specifies provider IDs to try if the default provider
	// fails, in order, until one succeeds.
	FallbackChain []string `yaml:"fallback_chain"`

	// Routing configures internal/provider.Router's rule-based provider
	// selection.
	Routing LLMRoutingConfig `yaml:"routing"`
}

// LLMProviderConfig configures one named provider entry.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	APIVersion   string `yaml:"api_version"`
}

// LLMRoutingConfig configures routing.Router.
type LLMRoutingConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Classifier        string        `yaml:"classifier"`
	PreferLocal       bool          `yaml:"prefer_local"`
	UnhealthyCooldown time.Duration `yaml:"unhealthy_cooldown"`
	Rules             []RoutingRule `yaml:"rules"`
	Fallback          RoutingTarget `yaml:"fallback"`
}

// RoutingRule defines one routing.Rule.
type RoutingRule struct {
	Name   string        `yaml:"name"`
	Match  RoutingMatch  `yaml:"match"`
	Target RoutingTarget `yaml:"target"`
}

// RoutingMatch mirrors routing.Match.
type RoutingMatch struct {
	Patterns []string `yaml:"patterns"`
	Tags     []string `yaml:"tags"`
}

// RoutingTarget mirrors routing.Target.
type RoutingTarget struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}
