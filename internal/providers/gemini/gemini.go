// Package gemini provides Google Gemini integration through its OpenAI-compatible endpoint.
package gemini

import (
	"chainarena/internal/core"
	"chainarena/internal/providers"
	"chainarena/internal/providers/openai"
)

// Registration provides factory registration for the Gemini provider.
var Registration = providers.Registration{
	Type: "gemini",
	New:  New,
}

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

// New creates a Gemini provider. Gemini streams chat.completion.chunk frames,
// so the OpenAI extractor applies unchanged.
func New(apiKey string, opts providers.ProviderOptions) core.Provider {
	return openai.NewCompatible("gemini", defaultBaseURL, apiKey, opts)
}
