package ranking

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainarena/internal/core"
)

func TestLoadCatalog_Embedded(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)

	gpt4, ok := c.Model("gpt-4")
	require.True(t, ok)
	assert.Equal(t, "openai", gpt4.Provider)
	assert.Equal(t, "gpt-4", gpt4.Upstream)

	claude, ok := c.Model("claude-3")
	require.True(t, ok)
	assert.Equal(t, "anthropic", claude.Provider)
	assert.NotEqual(t, "claude-3", claude.Upstream)

	_, ok = c.Model("galadriel-simple-llm")
	assert.False(t, ok)

	agents := c.Participants(core.KindAgent)
	require.GreaterOrEqual(t, len(agents), 2)
	for _, a := range agents {
		assert.Equal(t, core.KindAgent, a.Kind)
		assert.Equal(t, core.DefaultRating, a.Rating)
		assert.NotEmpty(t, a.ContractAddress)
	}

	for _, m := range c.Participants(core.KindModel) {
		assert.Equal(t, core.KindModel, m.Kind)
		assert.Equal(t, core.DefaultRating, m.Rating)
	}
}

func TestLoadCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  - name: local-llama
    provider: groq
    price: 1
agents: []
`), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	m, ok := c.Model("local-llama")
	require.True(t, ok)
	assert.Equal(t, "local-llama", m.Upstream)
	assert.Empty(t, c.Participants(core.KindAgent))
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"bad yaml", "models: [", "failed to parse catalog"},
		{"missing provider", "models:\n  - name: x\n", "name and provider are required"},
		{"duplicate model", "models:\n  - {name: x, provider: openai}\n  - {name: x, provider: groq}\n", "listed twice"},
		{"bad agent address", "agents:\n  - {name: a, contract_address: nope}\n", "invalid contract address"},
		{"duplicate agent", "agents:\n  - {name: a, contract_address: \"0x4168668812C94a3167FCd41D12014c5498D74d7e\"}\n  - {name: a, contract_address: \"0x4168668812C94a3167FCd41D12014c5498D74d7e\"}\n", "listed twice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
