package providers

import (
	"sort"
	"strings"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/modelrelay/modelrelay/internal/config"
	"github.com/modelrelay/modelrelay/internal/models"
)

// defaultRoutes is the built-in model prefix table, consulted in order.
var defaultRoutes = []models.RouteRule{
	{Prefix: "deepseek", Provider: "deepseek"},
	{Prefix: "gpt", Provider: "openai"},
	{Prefix: "openai", Provider: "openai"},
	{Prefix: "o1", Provider: "openai"},
	{Prefix: "claude", Provider: "anthropic"},
	{Prefix: "anthropic", Provider: "anthropic"},
	{Prefix: "gemini", Provider: "gemini"},
}

const defaultProviderName = "deepseek"

// Registry owns one adapter per configured provider and dispatches models
// to them by prefix. Providers without an API key get no adapter; resolving
// to them reports a configuration error rather than an auth failure.
type Registry struct {
	adapters        map[string]Adapter
	routes          []models.RouteRule
	defaultProvider string
}

func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		adapters:        make(map[string]Adapter),
		routes:          defaultRoutes,
		defaultProvider: defaultProviderName,
	}
	if len(cfg.Routing.Rules) > 0 {
		r.routes = cfg.Routing.Rules
	}
	if cfg.Routing.DefaultProvider != "" {
		r.defaultProvider = strings.ToLower(cfg.Routing.DefaultProvider)
	}

	for name, pcfg := range cfg.Providers {
		if pcfg.APIKey == "" {
			fiberlog.Warnf("provider %s has no API key configured, skipping", name)
			continue
		}
		r.adapters[name] = buildAdapter(name, pcfg)
		fiberlog.Infof("provider %s registered", name)
	}

	return r
}

// buildAdapter picks the SDK for a provider name. Unknown names are treated
// as OpenAI-compatible endpoints reached through their base URL, which is
// how DeepSeek is served.
func buildAdapter(name string, pcfg models.ProviderConfig) Adapter {
	switch name {
	case "anthropic":
		return NewAnthropicAdapter(pcfg)
	case "gemini":
		return NewGeminiAdapter(pcfg)
	default:
		return NewOpenAIAdapter(name, pcfg)
	}
}

// Resolve returns the adapter responsible for model. An empty model name
// goes to the default provider, as does any name no prefix rule covers.
func (r *Registry) Resolve(model string) (Adapter, error) {
	provider := r.defaultProvider
	if model != "" {
		lowered := strings.ToLower(model)
		for _, rule := range r.routes {
			if strings.HasPrefix(lowered, strings.ToLower(rule.Prefix)) {
				provider = strings.ToLower(rule.Provider)
				break
			}
		}
	}

	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, models.NewAdapterConfigError(provider, "API key not configured")
	}
	return adapter, nil
}

// Adapters returns every registered adapter, ordered by provider name.
func (r *Registry) Adapters() []Adapter {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Adapter, 0, len(names))
	for _, name := range names {
		out = append(out, r.adapters[name])
	}
	return out
}

// register is a test seam for injecting fake adapters.
func (r *Registry) register(name string, a Adapter) {
	r.adapters[strings.ToLower(name)] = a
}
