package models

// ProviderConfig holds per-provider connection settings. API keys usually
// arrive through environment substitution in the YAML config.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key" json:"api_key,omitzero"`
	BaseURL      string `yaml:"base_url" json:"base_url,omitzero"` // Optional custom base URL
	DefaultModel string `yaml:"default_model" json:"default_model,omitzero"`
	TimeoutMs    int    `yaml:"timeout_ms" json:"timeout_ms,omitzero"` // Optional timeout in milliseconds
}

// RouteRule maps a model-name prefix to a provider. Rules are evaluated in
// order; the first matching prefix wins.
type RouteRule struct {
	Prefix   string `yaml:"prefix" json:"prefix"`
	Provider string `yaml:"provider" json:"provider"`
}

// RoutingConfig controls model-to-provider dispatch. An empty Rules list
// falls back to the built-in prefix table.
type RoutingConfig struct {
	Rules           []RouteRule `yaml:"rules,omitempty" json:"rules,omitzero"`
	DefaultProvider string      `yaml:"default_provider,omitempty" json:"default_provider,omitzero"`
}
