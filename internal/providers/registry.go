package providers

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"chainarena/config"
	"chainarena/internal/core"
)

// Registry holds the configured provider instances keyed by provider type.
// Catalog entries name a provider type, so at most one instance per type is used;
// when several config entries share a type the first by name wins.
type Registry struct {
	providers map[string]core.Provider
}

// NewRegistry builds one provider per configured type.
func NewRegistry(configs map[string]config.ProviderConfig, factory *Factory, httpClient *http.Client) (*Registry, error) {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	r := &Registry{providers: make(map[string]core.Provider)}
	for _, name := range names {
		cfg := configs[name]
		if _, exists := r.providers[cfg.Type]; exists {
			slog.Warn("duplicate provider type, keeping the first entry", "name", name, "type", cfg.Type)
			continue
		}
		p, err := factory.Create(cfg, httpClient)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		r.providers[cfg.Type] = p
		slog.Info("provider configured", "name", name, "type", cfg.Type)
	}
	return r, nil
}

// Add registers a provider instance directly.
func (r *Registry) Add(providerType string, p core.Provider) {
	r.providers[providerType] = p
}

// Get returns the provider for a type.
func (r *Registry) Get(providerType string) (core.Provider, bool) {
	p, ok := r.providers[providerType]
	return p, ok
}

// Len returns the number of configured providers.
func (r *Registry) Len() int {
	return len(r.providers)
}
