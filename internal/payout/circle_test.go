package payout

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainarena/config"
)

const testEntitySecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type circleServer struct {
	*httptest.Server
	key          *rsa.PrivateKey
	keyFetches   atomic.Int32
	failTransfer atomic.Bool

	mu        sync.Mutex
	transfers []transferRequest
	auth      []string
}

func newCircleServer(t *testing.T) *circleServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemKey := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	s := &circleServer{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+publicKeyEndpoint, func(w http.ResponseWriter, r *http.Request) {
		s.keyFetches.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"publicKey": pemKey}})
	})
	mux.HandleFunc("POST "+transferEndpoint, func(w http.ResponseWriter, r *http.Request) {
		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.transfers = append(s.transfers, req)
		s.auth = append(s.auth, r.Header.Get("Authorization"))
		s.mu.Unlock()

		if s.failTransfer.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code": 5, "message": "internal error"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data": {"id": "tx-123", "state": "INITIATED"}}`))
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newTestCircleClient(t *testing.T, baseURL string) *CircleClient {
	t.Helper()
	c, err := NewCircleClient(config.PayoutConfig{
		APIKey:       "TEST_API_KEY:abc:def",
		BaseURL:      baseURL + "/",
		EntitySecret: testEntitySecret,
		WalletID:     "wallet-1",
		TokenID:      "token-1",
	}, nil)
	require.NoError(t, err)
	return c
}

func TestCircleClient_Transfer(t *testing.T) {
	srv := newCircleServer(t)
	c := newTestCircleClient(t, srv.URL)

	id, err := c.Transfer(t.Context(), "0xdest", "0.1")
	require.NoError(t, err)
	assert.Equal(t, "tx-123", id)

	_, err = c.Transfer(t.Context(), "0xdest", "0.1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), srv.keyFetches.Load(), "public key is cached")

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.transfers, 2)
	first := srv.transfers[0]
	assert.Equal(t, []string{"0.1"}, first.Amounts)
	assert.Equal(t, "0xdest", first.DestinationAddress)
	assert.Equal(t, "HIGH", first.FeeLevel)
	assert.Equal(t, "token-1", first.TokenID)
	assert.Equal(t, "wallet-1", first.WalletID)
	assert.Equal(t, "Bearer TEST_API_KEY:abc:def", srv.auth[0])
	assert.NotEqual(t, first.IdempotencyKey, srv.transfers[1].IdempotencyKey)
	assert.NotEqual(t, first.EntitySecretCipherText, srv.transfers[1].EntitySecretCipherText)

	ciphertext, err := base64.StdEncoding.DecodeString(first.EntitySecretCipherText)
	require.NoError(t, err)
	plain, err := rsa.DecryptOAEP(sha256.New(), nil, srv.key, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, testEntitySecret, hex.EncodeToString(plain))
}

func TestCircleClient_NoRetryAndBreaker(t *testing.T) {
	srv := newCircleServer(t)
	srv.failTransfer.Store(true)
	c := newTestCircleClient(t, srv.URL)

	for i := 0; i < 3; i++ {
		_, err := c.Transfer(t.Context(), "0xdest", "0.1")
		require.Error(t, err)
	}

	srv.mu.Lock()
	assert.Len(t, srv.transfers, 3, "each failed transfer is attempted exactly once")
	srv.mu.Unlock()

	_, err := c.Transfer(t.Context(), "0xdest", "0.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")

	srv.mu.Lock()
	assert.Len(t, srv.transfers, 3)
	srv.mu.Unlock()
}

func TestNewCircleClient_InvalidSecret(t *testing.T) {
	for _, secret := range []string{"", "nothex", "abcd"} {
		_, err := NewCircleClient(config.PayoutConfig{EntitySecret: secret}, nil)
		assert.Error(t, err, secret)
	}
}

func TestParseRSAPublicKey(t *testing.T) {
	_, err := parseRSAPublicKey("not pem")
	assert.Error(t, err)

	_, err = parseRSAPublicKey(string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte("junk")})))
	assert.Error(t, err)
}
