// Package anthropic provides Anthropic Messages API integration.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"chainarena/internal/core"
	"chainarena/internal/llmclient"
	"chainarena/internal/providers"
	"chainarena/internal/streaming"
)

// Registration provides factory registration for the Anthropic provider.
var Registration = providers.Registration{
	Type: "anthropic",
	New:  New,
}

const (
	defaultBaseURL      = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
	defaultMaxTokens    = 4096
)

// Provider implements the core.Provider interface for Anthropic
type Provider struct {
	client *llmclient.Client
	apiKey string
}

// New creates a new Anthropic provider.
func New(apiKey string, opts providers.ProviderOptions) core.Provider {
	baseURL := defaultBaseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	p := &Provider{apiKey: apiKey}
	p.client = llmclient.NewWithHTTPClient(opts.HTTPClient, llmclient.DefaultConfig("anthropic", baseURL), p.setHeaders)
	return p
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// convertToAnthropicRequest moves system messages into the top-level system
// field, which is where the Messages API expects them.
func convertToAnthropicRequest(req *core.ChatRequest) *anthropicRequest {
	out := &anthropicRequest{
		Model:       req.Model,
		Messages:    make([]anthropicMessage, 0, len(req.Messages)),
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	var system []string
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	out.System = strings.Join(system, "\n\n")
	return out
}

// convertFromAnthropicResponse joins every text block into one assistant message.
func convertFromAnthropicResponse(resp *anthropicResponse) *core.ChatResponse {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" || block.Type == "" {
			text.WriteString(block.Text)
		}
	}

	finishReason := resp.StopReason
	if finishReason == "" {
		finishReason = "stop"
	}

	return &core.ChatResponse{
		ID:       resp.ID,
		Object:   "chat.completion",
		Model:    resp.Model,
		Provider: "anthropic",
		Created:  time.Now().Unix(),
		Choices: []core.Choice{{
			Message:      core.Message{Role: "assistant", Content: text.String()},
			FinishReason: finishReason,
		}},
		Usage: core.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}

// ChatCompletion sends a chat completion request to Anthropic
func (p *Provider) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	var resp anthropicResponse
	err := p.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     convertToAnthropicRequest(req),
	}, &resp)
	if err != nil {
		return nil, err
	}
	out := convertFromAnthropicResponse(&resp)
	if out.Model == "" {
		out.Model = req.Model
	}
	return out, nil
}

// StreamChatCompletion returns a normalized chunk stream (caller must close)
func (p *Provider) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (core.ChunkStream, error) {
	body, err := p.client.DoStream(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: "/messages",
		Body:     convertToAnthropicRequest(req.WithStreaming()),
	})
	if err != nil {
		return nil, err
	}
	return streaming.NewSSEStream(body, "anthropic", ExtractEvent), nil
}

// ExtractEvent classifies one Messages API stream event. Only text_delta
// content_block_delta events carry text; message_start, ping, tool and
// thinking deltas and the rest are skipped.
func ExtractEvent(event string, data []byte) streaming.Frame {
	typ := gjson.GetBytes(data, "type").String()
	if typ == "" {
		typ = event
	}

	switch typ {
	case "content_block_delta":
		if gjson.GetBytes(data, "delta.type").String() != "text_delta" {
			return streaming.Frame{Kind: streaming.FrameSkip}
		}
		return streaming.Frame{Kind: streaming.FrameContent, Text: gjson.GetBytes(data, "delta.text").String()}
	case "message_stop":
		return streaming.Frame{Kind: streaming.FrameDone}
	case "error":
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = "anthropic stream error"
		}
		return streaming.Frame{Kind: streaming.FrameError, Text: msg}
	}
	return streaming.Frame{Kind: streaming.FrameSkip}
}
