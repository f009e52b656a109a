package groq

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainarena/internal/core"
	"chainarena/internal/providers"
)

func TestChatCompletion_UsesOpenAICompatibleEndpoint(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"fast"}}]}`)
	}))
	t.Cleanup(server.Close)

	p := New("gsk-test", providers.ProviderOptions{BaseURL: server.URL})
	resp, err := p.ChatCompletion(context.Background(), core.UserPrompt("llama-3.1-70b-versatile", "hi"))

	require.NoError(t, err)
	assert.Equal(t, "fast", resp.Text())
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer gsk-test", gotAuth)
}

func TestRegistration(t *testing.T) {
	assert.Equal(t, "groq", Registration.Type)
	require.NotNil(t, Registration.New)
}
