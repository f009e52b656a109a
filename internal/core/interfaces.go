// Package core defines the core interfaces and types for the arena gateway.
package core

import "context"

// Provider defines the interface for hosted LLM providers
type Provider interface {
	// ChatCompletion executes a chat completion request
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// StreamChatCompletion returns a normalized chunk stream (caller must close)
	StreamChatCompletion(ctx context.Context, req *ChatRequest) (ChunkStream, error)
}

// ChunkStream yields normalized chunks for one streamed response.
// It is finite and cannot be restarted.
type ChunkStream interface {
	// Recv returns the next chunk. It returns io.EOF once the stream is over;
	// an error chunk is always the last chunk before io.EOF.
	Recv() (StreamChunk, error)

	// Close releases the upstream connection. Safe to call more than once.
	Close() error
}

// OracleAsker posts a prompt to an oracle contract and waits for its reply.
type OracleAsker interface {
	Ask(ctx context.Context, contractAddress, prompt string) (string, error)
}

// ParticipantLookup resolves persisted participant records.
type ParticipantLookup interface {
	// Get returns the participant or a GatewayError with CodeParticipantNotFound.
	Get(ctx context.Context, kind Kind, name string) (*Participant, error)
}
