// Package providers builds hosted LLM provider instances from configuration.
package providers

import (
	"fmt"
	"net/http"
	"sort"
	"sync"

	"chainarena/config"
	"chainarena/internal/core"
)

// ProviderOptions carries per-instance settings passed to every constructor.
type ProviderOptions struct {
	// BaseURL overrides the provider's default endpoint when non-empty
	BaseURL string
	// HTTPClient is the shared pooled client; nil means a fresh default client
	HTTPClient *http.Client
}

// Registration ties a provider type name to its constructor.
type Registration struct {
	Type string
	New  func(apiKey string, opts ProviderOptions) core.Provider
}

// Factory creates providers by type.
type Factory struct {
	mu            sync.RWMutex
	registrations map[string]Registration
}

// NewFactory returns a factory with the given registrations.
func NewFactory(regs ...Registration) *Factory {
	f := &Factory{registrations: make(map[string]Registration, len(regs))}
	for _, r := range regs {
		f.Add(r)
	}
	return f
}

// Add registers (or replaces) a provider type.
func (f *Factory) Add(reg Registration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations[reg.Type] = reg
}

// Create instantiates the provider described by cfg.
func (f *Factory) Create(cfg config.ProviderConfig, httpClient *http.Client) (core.Provider, error) {
	f.mu.RLock()
	reg, ok := f.registrations[cfg.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
	return reg.New(cfg.APIKey, ProviderOptions{
		BaseURL:    cfg.BaseURL,
		HTTPClient: httpClient,
	}), nil
}

// RegisteredTypes returns the sorted list of known provider types.
func (f *Factory) RegisteredTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.registrations))
	for t := range f.registrations {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
