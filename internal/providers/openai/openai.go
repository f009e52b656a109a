// Package openai provides OpenAI API integration, and the OpenAI-compatible
// chat client reused by other providers that expose the same wire format.
package openai

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"chainarena/internal/core"
	"chainarena/internal/llmclient"
	"chainarena/internal/providers"
	"chainarena/internal/streaming"
)

// Registration provides factory registration for the OpenAI provider.
var Registration = providers.Registration{
	Type: "openai",
	New:  New,
}

const (
	defaultBaseURL = "https://api.openai.com/v1"
)

// Provider implements core.Provider for any OpenAI-compatible chat endpoint.
type Provider struct {
	client *llmclient.Client
	name   string
	apiKey string
}

// New creates a new OpenAI provider.
func New(apiKey string, opts providers.ProviderOptions) core.Provider {
	return NewCompatible("openai", defaultBaseURL, apiKey, opts)
}

// NewCompatible creates a provider for an OpenAI-compatible API reachable at baseURL.
// opts.BaseURL, when set, takes precedence.
func NewCompatible(name, baseURL, apiKey string, opts providers.ProviderOptions) *Provider {
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	p := &Provider{name: name, apiKey: apiKey}
	p.client = llmclient.NewWithHTTPClient(opts.HTTPClient, llmclient.DefaultConfig(name, baseURL), p.setHeaders)
	return p
}

// setHeaders sets the required headers for OpenAI API requests
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	// OpenAI rejects X-Client-Request-Id values that are not ASCII or longer than 512 bytes.
	if requestID := core.GetRequestID(req.Context()); requestID != "" && isValidClientRequestID(requestID) {
		req.Header.Set("X-Client-Request-Id", requestID)
	}
}

func isValidClientRequestID(id string) bool {
	if len(id) > 512 {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] > 127 {
			return false
		}
	}
	return true
}

// isOSeriesModel reports whether the model is an o-series reasoning model
// (o1, o3, o4) that requires max_completion_tokens and rejects temperature.
func isOSeriesModel(model string) bool {
	m := strings.ToLower(model)
	return len(m) >= 2 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9'
}

type oSeriesChatRequest struct {
	Model               string         `json:"model"`
	Messages            []core.Message `json:"messages"`
	Stream              bool           `json:"stream,omitempty"`
	MaxCompletionTokens *int           `json:"max_completion_tokens,omitempty"`
}

// chatRequestBody returns the request body appropriate for the model.
func chatRequestBody(req *core.ChatRequest) any {
	if isOSeriesModel(req.Model) {
		return &oSeriesChatRequest{
			Model:               req.Model,
			Messages:            req.Messages,
			Stream:              req.Stream,
			MaxCompletionTokens: req.MaxTokens,
		}
	}
	return req
}

// ChatCompletion sends a chat completion request
func (p *Provider) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	var resp core.ChatResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     chatRequestBody(req),
	}, &resp)
	if err != nil {
		return nil, err
	}
	resp.Provider = p.name
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return &resp, nil
}

// StreamChatCompletion returns a normalized chunk stream (caller must close)
func (p *Provider) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (core.ChunkStream, error) {
	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/chat/completions",
		Body:     chatRequestBody(req.WithStreaming()),
	})
	if err != nil {
		return nil, err
	}
	return streaming.NewSSEStream(body, p.name, ExtractChunk), nil
}

// ExtractChunk classifies one chat.completion.chunk SSE frame. Only
// choices[0].delta.content produces content; role-only and finish frames are skipped.
func ExtractChunk(_ string, data []byte) streaming.Frame {
	if string(data) == "[DONE]" {
		return streaming.Frame{Kind: streaming.FrameDone}
	}
	if msg := gjson.GetBytes(data, "error.message"); msg.Exists() {
		return streaming.Frame{Kind: streaming.FrameError, Text: msg.String()}
	}
	content := gjson.GetBytes(data, "choices.0.delta.content")
	if content.Type != gjson.String || content.Str == "" {
		return streaming.Frame{Kind: streaming.FrameSkip}
	}
	return streaming.Frame{Kind: streaming.FrameContent, Text: content.Str}
}
