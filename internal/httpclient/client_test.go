package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTimeouts(t *testing.T) {
	cfg := WithTimeouts(30, 5)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 5*time.Second, cfg.ResponseHeaderTimeout)

	defaults := WithTimeouts(0, -1)
	assert.Equal(t, DefaultConfig(), defaults)
}

func TestNewHTTPClient(t *testing.T) {
	cfg := WithTimeouts(12, 3)
	client := NewHTTPClient(&cfg)

	assert.Equal(t, 12*time.Second, client.Timeout)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, transport.ResponseHeaderTimeout)
	assert.Equal(t, 100, transport.MaxIdleConnsPerHost)

	assert.Equal(t, 600*time.Second, NewDefaultHTTPClient().Timeout)
}
