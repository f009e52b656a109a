package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"chainarena/internal/core"
	"chainarena/internal/observability"
)

// WriteSSE drains stream into w as "data: <chunk json>\n\n" frames, flushing
// after each one. A clean finish is marked with an end chunk. The stream is
// closed before returning, including when ctx is cancelled, so the upstream
// connection is released as soon as the caller goes away.
func WriteSSE(ctx context.Context, w io.Writer, stream core.ChunkStream) error {
	defer func() {
		_ = stream.Close()
	}()

	// Close the upstream on cancellation so a blocked Recv returns promptly.
	stop := context.AfterFunc(ctx, func() {
		_ = stream.Close()
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return writeChunk(w, core.StreamChunk{Type: core.ChunkEnd})
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			chunk = core.ErrorChunk(err.Error())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := writeChunk(w, chunk); err != nil {
			return err
		}
		if chunk.Type == core.ChunkError {
			return nil
		}
	}
}

func writeChunk(w io.Writer, chunk core.StreamChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to encode chunk: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	observability.StreamChunks.WithLabelValues(string(chunk.Type)).Inc()
	return nil
}
