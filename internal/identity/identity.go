// Package identity relays proof-of-personhood proofs to the verification service.
package identity

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"chainarena/config"
	"chainarena/internal/httpclient"
)

// maxResponseBytes caps how much of the upstream reply is relayed.
const maxResponseBytes = 1 << 20

// Result is the upstream reply, relayed verbatim.
type Result struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Verifier forwards proofs to {VerifyURL}/{AppID}.
type Verifier struct {
	endpoint string
	client   *http.Client
}

// NewVerifier returns nil when no app id is configured.
func NewVerifier(cfg config.IdentityConfig, client *http.Client) *Verifier {
	if cfg.AppID == "" {
		return nil
	}
	if client == nil {
		client = httpclient.NewDefaultHTTPClient()
	}
	return &Verifier{
		endpoint: strings.TrimRight(cfg.VerifyURL, "/") + "/" + cfg.AppID,
		client:   client,
	}
}

// Verify posts body unchanged. Any HTTP status from upstream is a valid
// Result; only transport failures return an error.
func (v *Verifier) Verify(ctx context.Context, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read verify response: %w", err)
	}

	slog.InfoContext(ctx, "identity proof relayed", "status", resp.StatusCode)
	return &Result{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
