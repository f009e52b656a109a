package identity

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainarena/config"
)

func TestNewVerifier_DisabledWithoutAppID(t *testing.T) {
	assert.Nil(t, NewVerifier(config.IdentityConfig{VerifyURL: "http://x"}, nil))
}

func TestVerify_RelaysUpstream(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"success", http.StatusOK, `{"success": true, "nullifier_hash": "0xabc"}`},
		{"rejected", http.StatusBadRequest, `{"code": "invalid_proof", "detail": "bad"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath, gotBody string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				b, _ := io.ReadAll(r.Body)
				gotBody = string(b)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			v := NewVerifier(config.IdentityConfig{AppID: "app_123", VerifyURL: srv.URL + "/api/v2/verify/"}, srv.Client())
			res, err := v.Verify(t.Context(), []byte(`{"proof":"p"}`))
			require.NoError(t, err)

			assert.Equal(t, "/api/v2/verify/app_123", gotPath)
			assert.Equal(t, `{"proof":"p"}`, gotBody)
			assert.Equal(t, tt.status, res.StatusCode)
			assert.JSONEq(t, tt.body, string(res.Body))
			assert.Equal(t, "application/json", res.ContentType)
		})
	}
}

func TestVerify_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	v := NewVerifier(config.IdentityConfig{AppID: "app", VerifyURL: url}, nil)
	_, err := v.Verify(t.Context(), []byte(`{}`))
	require.Error(t, err)
}
