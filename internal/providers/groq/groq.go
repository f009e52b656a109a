// Package groq provides Groq integration through its OpenAI-compatible endpoint.
package groq

import (
	"chainarena/internal/core"
	"chainarena/internal/providers"
	"chainarena/internal/providers/openai"
)

// Registration provides factory registration for the Groq provider.
var Registration = providers.Registration{
	Type: "groq",
	New:  New,
}

const defaultBaseURL = "https://api.groq.com/openai/v1"

// New creates a Groq provider.
func New(apiKey string, opts providers.ProviderOptions) core.Provider {
	return openai.NewCompatible("groq", defaultBaseURL, apiKey, opts)
}
