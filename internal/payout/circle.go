package payout

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chainarena/config"
	"chainarena/internal/llmclient"
)

const (
	publicKeyEndpoint = "/v1/w3s/config/entity/publicKey"
	transferEndpoint  = "/v1/w3s/developer/transactions/transfer"
	feeLevel          = "HIGH"
)

// CircleClient sends developer-controlled wallet transfers through the Circle API.
type CircleClient struct {
	client       *llmclient.Client
	entitySecret []byte
	walletID     string
	tokenID      string
	newKey       func() string

	mu        sync.Mutex
	publicKey *rsa.PublicKey
}

// NewCircleClient builds a client from cfg. Transfers are never retried; the
// circuit breaker stops calls to a failing API for a while instead.
func NewCircleClient(cfg config.PayoutConfig, httpClient *http.Client) (*CircleClient, error) {
	secret, err := hex.DecodeString(strings.TrimSpace(cfg.EntitySecret))
	if err != nil || len(secret) != 32 {
		return nil, errors.New("CIRCLE_ENTITY_SECRET must be 32 hex-encoded bytes")
	}

	clientCfg := llmclient.DefaultConfig("circle", strings.TrimRight(cfg.BaseURL, "/"))
	clientCfg.MaxRetries = 0
	clientCfg.CircuitBreaker = &llmclient.CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	}

	apiKey := cfg.APIKey
	return &CircleClient{
		client: llmclient.NewWithHTTPClient(httpClient, clientCfg, func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}),
		entitySecret: secret,
		walletID:     cfg.WalletID,
		tokenID:      cfg.TokenID,
		newKey:       uuid.NewString,
	}, nil
}

type transferRequest struct {
	IdempotencyKey         string   `json:"idempotencyKey"`
	EntitySecretCipherText string   `json:"entitySecretCipherText"`
	Amounts                []string `json:"amounts"`
	DestinationAddress     string   `json:"destinationAddress"`
	FeeLevel               string   `json:"feeLevel"`
	TokenID                string   `json:"tokenId"`
	WalletID               string   `json:"walletId"`
}

type transferResponse struct {
	Data struct {
		ID    string `json:"id"`
		State string `json:"state"`
	} `json:"data"`
}

// Transfer implements Transferrer. Every call uses a fresh idempotency key and
// a fresh entity secret ciphertext, as the API rejects reused ciphertexts.
func (c *CircleClient) Transfer(ctx context.Context, destination, amount string) (string, error) {
	ciphertext, err := c.cipherText(ctx)
	if err != nil {
		return "", err
	}

	var resp transferResponse
	err = c.client.Do(ctx, llmclient.Request{
		Method:   http.MethodPost,
		Endpoint: transferEndpoint,
		Body: transferRequest{
			IdempotencyKey:         c.newKey(),
			EntitySecretCipherText: ciphertext,
			Amounts:                []string{amount},
			DestinationAddress:     destination,
			FeeLevel:               feeLevel,
			TokenID:                c.tokenID,
			WalletID:               c.walletID,
		},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("circle transfer: %w", err)
	}
	if resp.Data.ID == "" {
		return "", errors.New("circle transfer: response has no transfer id")
	}
	return resp.Data.ID, nil
}

// cipherText encrypts the entity secret with RSA-OAEP/SHA-256 under the
// account's entity public key, fetched once and cached.
func (c *CircleClient) cipherText(ctx context.Context) (string, error) {
	pub, err := c.entityPublicKey(ctx)
	if err != nil {
		return "", err
	}
	out, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, c.entitySecret, nil)
	if err != nil {
		return "", fmt.Errorf("encrypt entity secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *CircleClient) entityPublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publicKey != nil {
		return c.publicKey, nil
	}

	var resp struct {
		Data struct {
			PublicKey string `json:"publicKey"`
		} `json:"data"`
	}
	if err := c.client.Do(ctx, llmclient.Request{Method: http.MethodGet, Endpoint: publicKeyEndpoint}, &resp); err != nil {
		return nil, fmt.Errorf("fetch entity public key: %w", err)
	}

	pub, err := parseRSAPublicKey(resp.Data.PublicKey)
	if err != nil {
		return nil, err
	}
	c.publicKey = pub
	return pub, nil
}

func parseRSAPublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("entity public key is not PEM encoded")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse entity public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("entity public key is %T, want RSA", key)
	}
	return pub, nil
}
