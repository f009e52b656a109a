// Package streaming normalizes provider-native server-sent events into
// core.StreamChunk values and writes them back out in the gateway's protocol.
package streaming

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"

	"chainarena/internal/core"
)

// FrameKind classifies one upstream SSE frame.
type FrameKind int

const (
	// FrameSkip ignores the frame (pings, metadata, unrecognized event types).
	FrameSkip FrameKind = iota
	// FrameContent carries an incremental text fragment.
	FrameContent
	// FrameError ends the stream with an error chunk.
	FrameError
	// FrameDone ends the stream cleanly.
	FrameDone
)

// Frame is an Extractor's verdict on one SSE frame.
type Frame struct {
	Kind FrameKind
	Text string
}

// Extractor interprets a single SSE frame. event is the value of the "event:"
// field (empty when the provider does not send one) and data is the joined
// "data:" payload.
type Extractor func(event string, data []byte) Frame

const maxLineSize = 1024 * 1024

// sseStream implements core.ChunkStream over an SSE response body.
type sseStream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	provider string
	extract  Extractor

	done      bool
	closeOnce sync.Once
	closeErr  error
}

// NewSSEStream wraps body. The stream owns body and closes it when the
// upstream finishes, fails, or Close is called.
func NewSSEStream(body io.ReadCloser, provider string, extract Extractor) core.ChunkStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &sseStream{
		body:     body,
		scanner:  scanner,
		provider: provider,
		extract:  extract,
	}
}

// Recv returns the next content or error chunk, or io.EOF once the stream is over.
func (s *sseStream) Recv() (core.StreamChunk, error) {
	if s.done {
		return core.StreamChunk{}, io.EOF
	}

	for {
		event, data, err := s.nextFrame()
		if err != nil {
			s.finish()
			if errors.Is(err, io.EOF) {
				return core.StreamChunk{}, io.EOF
			}
			return core.ErrorChunk(s.provider + " stream interrupted: " + err.Error()), nil
		}

		frame := s.extract(event, data)
		switch frame.Kind {
		case FrameContent:
			if frame.Text == "" {
				continue
			}
			return core.ContentChunk(frame.Text), nil
		case FrameError:
			s.finish()
			return core.ErrorChunk(frame.Text), nil
		case FrameDone:
			s.finish()
			return core.StreamChunk{}, io.EOF
		}
	}
}

// nextFrame reads lines until a blank line terminates a frame with data.
func (s *sseStream) nextFrame() (string, []byte, error) {
	var event string
	var data []byte
	hasData := false

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			if hasData {
				return event, data, nil
			}
			event = ""
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			event = string(value)
		case "data":
			if hasData {
				data = append(data, '\n')
			}
			data = append(data, value...)
			hasData = true
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", nil, err
	}
	// A final frame without its trailing blank line still counts.
	if hasData {
		return event, data, nil
	}
	return "", nil, io.EOF
}

func splitField(line []byte) (string, []byte) {
	i := bytes.IndexByte(line, ':')
	if i < 0 {
		return string(line), nil
	}
	value := line[i+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return string(line[:i]), value
}

func (s *sseStream) finish() {
	s.done = true
	_ = s.Close()
}

// Close releases the upstream body. Safe to call more than once.
func (s *sseStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
