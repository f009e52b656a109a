// Package llmclient provides the base JSON-over-HTTP client used for hosted LLM
// providers and the payment API:
//   - request marshaling/unmarshaling
//   - retries with exponential backoff
//   - standardized error parsing (429, 5xx)
//   - circuit breaking
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"chainarena/internal/core"
	"chainarena/internal/httpclient"
)

// Config holds configuration for the client
type Config struct {
	// ProviderName identifies the upstream for error messages and the breaker name
	ProviderName string

	// BaseURL is the API base URL
	BaseURL string

	// Retry configuration
	MaxRetries     int           // Maximum number of retry attempts (default: 3)
	InitialBackoff time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff     time.Duration // Maximum backoff duration (default: 30s)
	BackoffFactor  float64       // Backoff multiplier (default: 2.0)

	// Circuit breaker configuration; nil disables it
	CircuitBreaker *CircuitBreakerConfig
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// SuccessThreshold is the number of half-open successes that closes it again
	SuccessThreshold int
	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration
}

// DefaultConfig returns default client configuration
func DefaultConfig(providerName, baseURL string) Config {
	return Config{
		ProviderName:   providerName,
		BaseURL:        baseURL,
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		CircuitBreaker: &CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
	}
}

// HeaderSetter is a function that sets headers on an HTTP request
type HeaderSetter func(req *http.Request)

// Client is a base HTTP client for JSON upstreams
type Client struct {
	httpClient   *http.Client
	config       Config
	headerSetter HeaderSetter
	breaker      *gobreaker.TwoStepCircuitBreaker
}

// NewWithHTTPClient creates a client with a caller-supplied HTTP client; nil
// selects the shared default transport.
func NewWithHTTPClient(httpClient *http.Client, config Config, headerSetter HeaderSetter) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewDefaultHTTPClient()
	}
	c := &Client{
		httpClient:   httpClient,
		config:       config,
		headerSetter: headerSetter,
	}
	if cb := config.CircuitBreaker; cb != nil {
		threshold := uint32(max(cb.FailureThreshold, 1))
		c.breaker = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
			Name:        config.ProviderName,
			MaxRequests: uint32(max(cb.SuccessThreshold, 1)),
			Timeout:     cb.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		})
	}
	return c
}

// BreakerState reports the circuit state ("closed", "open", "half-open"), or
// "disabled" when no breaker is configured.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// Request represents an HTTP request to be made
type Request struct {
	Method   string
	Endpoint string
	Body     any // JSON marshaled when not nil
	Headers  map[string]string
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       []byte
}

// Do executes a request with retries and circuit breaking, then unmarshals the response
func (c *Client) Do(ctx context.Context, req Request, result any) error {
	resp, err := c.DoRaw(ctx, req)
	if err != nil {
		return err
	}

	if result != nil {
		if err := json.Unmarshal(resp.Body, result); err != nil {
			return core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to unmarshal response: "+err.Error(), err)
		}
	}

	return nil
}

// DoRaw executes a request with retries and circuit breaking, returning the raw response.
// Any 2xx status is a success.
func (c *Client) DoRaw(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	maxAttempts := max(c.config.MaxRetries+1, 1)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		done, err := c.allow()
		if err != nil {
			return nil, err
		}

		resp, err := c.doRequest(ctx, req)
		if err != nil {
			done(false)
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}

		if isRetryable(resp.StatusCode) {
			done(false)
			lastErr = core.ParseProviderError(c.config.ProviderName, resp.StatusCode, resp.Body, nil)
			continue
		}

		if !isSuccess(resp.StatusCode) {
			done(resp.StatusCode < 500)
			return nil, core.ParseProviderError(c.config.ProviderName, resp.StatusCode, resp.Body, nil)
		}

		done(true)
		return resp, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "request failed after retries", nil)
}

// DoStream executes a streaming request, returning the open response body.
// Streaming requests are never retried since part of the answer may already be consumed.
func (c *Client) DoStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	done, err := c.allow()
	if err != nil {
		return nil, err
	}

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		done(true)
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		done(false)
		return nil, core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to send request: "+err.Error(), err)
	}

	if !isSuccess(resp.StatusCode) {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			respBody = []byte("failed to read error response")
		}
		_ = resp.Body.Close()

		done(resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests)
		return nil, core.ParseProviderError(c.config.ProviderName, resp.StatusCode, respBody, nil)
	}

	done(true)
	return resp.Body, nil
}

// allow asks the breaker for permission. The returned callback must be called
// exactly once with the outcome.
func (c *Client) allow() (func(success bool), error) {
	if c.breaker == nil {
		return func(bool) {}, nil
	}
	done, err := c.breaker.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, core.NewProviderError(c.config.ProviderName, http.StatusServiceUnavailable,
				"circuit breaker is open - provider temporarily unavailable", err)
		}
		return nil, core.NewProviderError(c.config.ProviderName, http.StatusServiceUnavailable, err.Error(), err)
	}
	return done, nil
}

// doRequest executes a single HTTP request without retries
func (c *Client) doRequest(ctx context.Context, req Request) (*Response, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to send request: "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewProviderError(c.config.ProviderName, http.StatusBadGateway, "failed to read response: "+err.Error(), err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// buildRequest creates an HTTP request from a Request
func (c *Client) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	url := c.config.BaseURL + req.Endpoint

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, core.NewValidationError("failed to marshal request", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return nil, core.NewValidationError("failed to create request", err)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	if c.headerSetter != nil {
		c.headerSetter(httpReq)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

// calculateBackoff calculates the backoff duration for a given attempt
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.config.InitialBackoff) * math.Pow(c.config.BackoffFactor, float64(attempt-1))
	if backoff > float64(c.config.MaxBackoff) {
		backoff = float64(c.config.MaxBackoff)
	}
	return time.Duration(backoff)
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// isRetryable returns true for rate limits and transient gateway errors
func isRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusGatewayTimeout
}
