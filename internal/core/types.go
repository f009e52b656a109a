package core

// Kind distinguishes the two participant catalogs.
type Kind string

const (
	KindModel Kind = "model"
	KindAgent Kind = "agent"
)

// DefaultRating is the ELO rating every participant starts with.
const DefaultRating = 1200.0

// Participant is a ranked model or agent.
type Participant struct {
	Kind   Kind    `json:"kind" bson:"kind" yaml:"-"`
	Name   string  `json:"name" bson:"name" yaml:"name"`
	Rating float64 `json:"rating" bson:"rating" yaml:"rating,omitempty"`
	Price  float64 `json:"price" bson:"price" yaml:"price"`

	// Agent only
	ContractAddress string `json:"contract_address,omitempty" bson:"contract_address,omitempty" yaml:"contract_address,omitempty"`
	PayoutWallet    string `json:"payout_wallet,omitempty" bson:"payout_wallet,omitempty" yaml:"payout_wallet,omitempty"`
}

// Outcome is the result of a pairwise vote, read from the left participant's side.
type Outcome int

const (
	OutcomeLeftWins Outcome = iota
	OutcomeRightWins
	OutcomeDraw
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLeftWins:
		return "left"
	case OutcomeRightWins:
		return "right"
	case OutcomeDraw:
		return "draw"
	}
	return "unknown"
}

// LeaderboardEntry is one row of a ranked leaderboard.
type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	Name          string  `json:"name"`
	Score         float64 `json:"score"`
	Price         float64 `json:"price"`
	PricePerScore float64 `json:"price_per_score"`
}

// ChunkType tags a StreamChunk.
type ChunkType string

const (
	ChunkContent ChunkType = "content"
	ChunkError   ChunkType = "error"
	ChunkEnd     ChunkType = "end"
)

// StreamChunk is the canonical streaming event sent to callers regardless of provider.
type StreamChunk struct {
	Type    ChunkType `json:"type"`
	Content string    `json:"content,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ContentChunk builds a content-delta chunk.
func ContentChunk(text string) StreamChunk {
	return StreamChunk{Type: ChunkContent, Content: text}
}

// ErrorChunk builds a terminal error chunk.
func ErrorChunk(message string) StreamChunk {
	return StreamChunk{Type: ChunkError, Message: message}
}

// Critique is the structured verdict returned by the critic.
type Critique struct {
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

// ChatRequest represents a chat completion request sent to a hosted provider
type ChatRequest struct {
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
}

// WithStreaming returns a shallow copy of the request with Stream set to true.
// This avoids mutating the caller's request object.
func (r *ChatRequest) WithStreaming() *ChatRequest {
	return &ChatRequest{
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
		Model:       r.Model,
		Messages:    r.Messages,
		Stream:      true,
	}
}

// UserPrompt builds a single-turn request for model.
func UserPrompt(model, prompt string) *ChatRequest {
	return &ChatRequest{
		Model:    model,
		Messages: []Message{{Role: "user", Content: prompt}},
	}
}

// Message represents a single message in the chat
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse represents the chat completion response
type ChatResponse struct {
	ID       string   `json:"id"`
	Object   string   `json:"object"`
	Model    string   `json:"model"`
	Provider string   `json:"provider"`
	Choices  []Choice `json:"choices"`
	Usage    Usage    `json:"usage"`
	Created  int64    `json:"created"`
}

// Text returns the content of the first choice, or "" when there is none.
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Choice represents a single completion choice
type Choice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
	Index        int     `json:"index"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
