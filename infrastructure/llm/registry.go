package llm

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"
)

// ProviderConfig describes how to reach one provider type.
type ProviderConfig struct {
	// Type selects the registered factory (openai, anthropic, google).
	Type string
	// EnvVar names the environment variable holding the API key.
	EnvVar string
	// DefaultModel is used when a spec names only the provider.
	DefaultModel string
	// BaseURL overrides the default API endpoint for the provider.
	BaseURL string
}

// RegistryConfig holds configuration for the provider registry.
type RegistryConfig struct {
	// Providers overrides or extends DefaultProviders by name.
	Providers map[string]ProviderConfig
	// DefaultTimeout bounds the HTTP client of every provider.
	DefaultTimeout time.Duration
}

// DefaultProviders lists the providers available without configuration.
var DefaultProviders = map[string]ProviderConfig{
	"openai": {
		Type:         "openai",
		EnvVar:       "OPENAI_API_KEY",
		DefaultModel: OpenAIDefaultModel,
	},
	"anthropic": {
		Type:         "anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: AnthropicDefaultModel,
	},
	"google": {
		Type:         "google",
		EnvVar:       "GOOGLE_API_KEY",
		DefaultModel: GoogleDefaultModel,
	},
}

// Registry resolves "provider" or "provider/model" specs into clients.
//
// Unlike a client cache, every call to NewClient builds a fresh chain. The
// primary and secondary scoring paths must never share a circuit breaker even
// when they point at the same provider.
type Registry struct {
	providers      map[string]ProviderConfig
	defaultTimeout time.Duration
	lookupEnv      func(string) (string, bool)
}

// NewRegistry creates a registry seeded with DefaultProviders.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	providers := maps.Clone(DefaultProviders)
	for name, pc := range config.Providers {
		if pc.Type == "" {
			pc.Type = name
		}
		if !HasProvider(pc.Type) {
			return nil, fmt.Errorf("provider %q has unknown type %q", name, pc.Type)
		}
		if base, ok := providers[name]; ok {
			pc = mergeProviderConfig(base, pc)
		}
		providers[name] = pc
	}

	return &Registry{
		providers:      providers,
		defaultTimeout: config.DefaultTimeout,
		lookupEnv:      os.LookupEnv,
	}, nil
}

func mergeProviderConfig(base, override ProviderConfig) ProviderConfig {
	if override.EnvVar == "" {
		override.EnvVar = base.EnvVar
	}
	if override.DefaultModel == "" {
		override.DefaultModel = base.DefaultModel
	}
	if override.BaseURL == "" {
		override.BaseURL = base.BaseURL
	}
	return override
}

// NewClient builds a client for spec wrapped in middleware. An empty apiKey
// is read from the provider's environment variable.
func (r *Registry) NewClient(spec, apiKey string, middleware ...Middleware) (*Client, error) {
	if spec == "" {
		return nil, fmt.Errorf("provider specification cannot be empty")
	}

	name, model := r.parseSpec(spec)
	pc, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (known: %s)", name, strings.Join(r.Providers(), ", "))
	}

	if apiKey == "" {
		key, found := r.lookupEnv(pc.EnvVar)
		if !found || key == "" {
			return nil, fmt.Errorf("%s environment variable not set for provider %q", pc.EnvVar, name)
		}
		apiKey = key
	}

	return NewClient(pc.Type, ClientConfig{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    pc.BaseURL,
		Timeout:    r.defaultTimeout,
		Middleware: middleware,
	})
}

// parseSpec splits "provider/model". A bare provider name resolves to its
// default model.
func (r *Registry) parseSpec(spec string) (provider, model string) {
	provider, model, _ = strings.Cut(spec, "/")
	if model == "" {
		if pc, ok := r.providers[provider]; ok {
			model = pc.DefaultModel
		}
	}
	return provider, model
}

// Providers returns the known provider names in sorted order.
func (r *Registry) Providers() []string {
	return slices.Sorted(maps.Keys(r.providers))
}
