package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		path     string
	}{
		{name: "default path", endpoint: "", path: "/metrics"},
		{name: "custom path", endpoint: "/monitoring/metrics", path: "/monitoring/metrics"},
		{name: "traversal is cleaned", endpoint: "/internal/../metrics", path: "/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(Deps{}, &Config{
				MasterKey:       "secret-key",
				MetricsEnabled:  true,
				MetricsEndpoint: tt.endpoint,
			})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), "go_goroutines")
		})
	}
}

func TestMetricsDisabled(t *testing.T) {
	srv := New(Deps{}, &Config{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	t.Run("generated when absent", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/health", "")

		_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
		assert.NoError(t, err)
	})

	t.Run("propagated when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "req-42")
		rec := httptest.NewRecorder()
		f.srv.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	})

	t.Run("oversized id is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", maxRequestIDLength+1))
		rec := httptest.NewRecorder()
		f.srv.ServeHTTP(rec, req)

		_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
		assert.NoError(t, err)
	})
}

func TestBodySizeLimit(t *testing.T) {
	f := newFixture(t)
	f.srv = New(Deps{Dispatcher: f.dispatcher, Ranking: f.engine}, &Config{BodySizeLimit: 64})

	body := `{"message":"` + strings.Repeat("a", 128) + `","model":"gpt-4"}`
	rec := f.do(http.MethodPost, "/llm_request", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, f.dispatcher.calls)
}

func TestCORS(t *testing.T) {
	srv := New(Deps{}, &Config{CORSAllowOrigins: []string{"https://arena.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/llm_request", nil)
	req.Header.Set("Origin", "https://arena.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://arena.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverFromPanic(t *testing.T) {
	srv := New(Deps{Dispatcher: &fakeDispatcher{}, Ranking: nil}, nil)

	req := httptest.NewRequest(http.MethodGet, "/leaderboard", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
