package ranking

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"chainarena/internal/chain"
	"chainarena/internal/core"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Model is a hosted-provider catalog entry.
type Model struct {
	Name string `yaml:"name"`
	// Provider is the provider type that serves the model, e.g. "openai"
	Provider string `yaml:"provider"`
	// Upstream is the provider's model id; it defaults to Name
	Upstream string  `yaml:"upstream"`
	Price    float64 `yaml:"price"`
}

// Catalog is the static participant list used for seeding and hosted-model routing.
type Catalog struct {
	Models []Model            `yaml:"models"`
	Agents []core.Participant `yaml:"agents"`

	byName map[string]Model
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
		}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c.byName = make(map[string]Model, len(c.Models))
	for i := range c.Models {
		m := &c.Models[i]
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" || m.Provider == "" {
			return nil, fmt.Errorf("catalog model %d: name and provider are required", i)
		}
		if _, dup := c.byName[m.Name]; dup {
			return nil, fmt.Errorf("catalog model %q listed twice", m.Name)
		}
		if m.Upstream == "" {
			m.Upstream = m.Name
		}
		c.byName[m.Name] = *m
	}

	seen := make(map[string]struct{}, len(c.Agents))
	for i := range c.Agents {
		a := &c.Agents[i]
		a.Name = strings.TrimSpace(a.Name)
		if a.Name == "" {
			return nil, fmt.Errorf("catalog agent %d: name is required", i)
		}
		if _, dup := seen[a.Name]; dup {
			return nil, fmt.Errorf("catalog agent %q listed twice", a.Name)
		}
		if !chain.IsAddress(a.ContractAddress) {
			return nil, fmt.Errorf("catalog agent %q: invalid contract address %q", a.Name, a.ContractAddress)
		}
		seen[a.Name] = struct{}{}
	}

	return &c, nil
}

// Model looks up a hosted model by name.
func (c *Catalog) Model(name string) (Model, bool) {
	m, ok := c.byName[name]
	return m, ok
}

// Participants returns the seed records for kind with the default rating applied.
func (c *Catalog) Participants(kind core.Kind) []core.Participant {
	var out []core.Participant
	switch kind {
	case core.KindModel:
		for _, m := range c.Models {
			out = append(out, core.Participant{Kind: core.KindModel, Name: m.Name, Price: m.Price})
		}
	case core.KindAgent:
		for _, a := range c.Agents {
			a.Kind = core.KindAgent
			out = append(out, a)
		}
	}
	for i := range out {
		if out[i].Rating == 0 {
			out[i].Rating = core.DefaultRating
		}
	}
	return out
}
