package streaming

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"chainarena/internal/core"
)

// testExtractor understands {"text": "..."} frames, "error" events and a [DONE] sentinel.
func testExtractor(event string, data []byte) Frame {
	switch {
	case string(data) == "[DONE]":
		return Frame{Kind: FrameDone}
	case event == "error":
		return Frame{Kind: FrameError, Text: gjson.GetBytes(data, "message").String()}
	case event == "ping":
		return Frame{Kind: FrameSkip}
	}
	if text := gjson.GetBytes(data, "text"); text.Exists() {
		return Frame{Kind: FrameContent, Text: text.String()}
	}
	return Frame{Kind: FrameSkip}
}

type trackingBody struct {
	io.Reader
	closed int
}

func (b *trackingBody) Close() error {
	b.closed++
	return nil
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func drain(t *testing.T, stream core.ChunkStream) []core.StreamChunk {
	t.Helper()
	var chunks []core.StreamChunk
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, chunk)
		require.Less(t, len(chunks), 100, "stream did not terminate")
	}
}

func TestSSEStream_ContentInOrder(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(
		": keep-alive\n\n" +
			"data: {\"text\":\"Hel\"}\n\n" +
			"event: ping\ndata: {}\n\n" +
			"data: {\"text\":\"lo\"}\n\n" +
			"data: {\"other\":true}\n\n" +
			"data: {\"text\":\"!\"}\n\n" +
			"data: [DONE]\n\n" +
			"data: {\"text\":\"after done\"}\n\n",
	)}

	stream := NewSSEStream(body, "test", testExtractor)
	chunks := drain(t, stream)

	assert.Equal(t, []core.StreamChunk{
		core.ContentChunk("Hel"),
		core.ContentChunk("lo"),
		core.ContentChunk("!"),
	}, chunks)
	assert.Equal(t, 1, body.closed)

	_, err := stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, stream.Close())
	assert.Equal(t, 1, body.closed)
}

func TestSSEStream_CleanCloseWithoutDone(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: {\"text\":\"a\"}\n\ndata: {\"text\":\"b\"}")}

	chunks := drain(t, NewSSEStream(body, "test", testExtractor))

	assert.Equal(t, []core.StreamChunk{core.ContentChunk("a"), core.ContentChunk("b")}, chunks)
	assert.Equal(t, 1, body.closed)
}

func TestSSEStream_TransportErrorBecomesTerminalChunk(t *testing.T) {
	body := &trackingBody{Reader: io.MultiReader(
		strings.NewReader("data: {\"text\":\"partial\"}\n\n"),
		failingReader{err: errors.New("connection reset by peer")},
	)}

	chunks := drain(t, NewSSEStream(body, "openai", testExtractor))

	require.Len(t, chunks, 2)
	assert.Equal(t, core.ContentChunk("partial"), chunks[0])
	assert.Equal(t, core.ChunkError, chunks[1].Type)
	assert.Contains(t, chunks[1].Message, "connection reset by peer")
	assert.Contains(t, chunks[1].Message, "openai")
	assert.Equal(t, 1, body.closed)
}

func TestSSEStream_ProviderErrorEvent(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(
		"data: {\"text\":\"x\"}\n\n" +
			"event: error\ndata: {\"message\":\"overloaded\"}\n\n" +
			"data: {\"text\":\"never\"}\n\n",
	)}

	chunks := drain(t, NewSSEStream(body, "test", testExtractor))

	assert.Equal(t, []core.StreamChunk{core.ContentChunk("x"), core.ErrorChunk("overloaded")}, chunks)
}

func TestSSEStream_MultiLineData(t *testing.T) {
	var got []byte
	extract := func(_ string, data []byte) Frame {
		got = append([]byte(nil), data...)
		return Frame{Kind: FrameDone}
	}

	drain(t, NewSSEStream(io.NopCloser(strings.NewReader("data: line1\ndata: line2\n\n")), "test", extract))
	assert.Equal(t, "line1\nline2", string(got))
}
