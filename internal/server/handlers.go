// Package server provides HTTP handlers and server setup for the arena gateway.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"chainarena/internal/core"
	"chainarena/internal/identity"
	"chainarena/internal/payout"
	"chainarena/internal/streaming"
)

// Dispatcher routes prompts to hosted models or oracle agents.
type Dispatcher interface {
	Complete(ctx context.Context, participantID, prompt string) (string, error)
	AskAgent(ctx context.Context, agentName, prompt string) (string, error)
	CompleteStream(ctx context.Context, participantID, prompt string) (core.ChunkStream, error)
	Critique(ctx context.Context, userPrompt string) (*core.Critique, error)
}

// Ranking is the arena's rating engine.
type Ranking interface {
	Get(ctx context.Context, kind core.Kind, name string) (*core.Participant, error)
	ApplyOutcome(ctx context.Context, kind core.Kind, left, right string, outcome core.Outcome) error
	Leaderboard(ctx context.Context, kind core.Kind) ([]core.LeaderboardEntry, error)
	RandomPair(ctx context.Context, kind core.Kind) (string, string, error)
}

// Verifier relays identity proofs to the external verification service.
type Verifier interface {
	Verify(ctx context.Context, body []byte) (*identity.Result, error)
}

// Handler holds the HTTP handlers
type Handler struct {
	dispatcher         Dispatcher
	ranking            Ranking
	rewarder           payout.Rewarder
	verifier           Verifier
	defaultStreamModel string
}

// NewHandler creates a new handler over deps. A nil Rewarder disables payouts.
func NewHandler(deps Deps, defaultStreamModel string) *Handler {
	rewarder := deps.Rewarder
	if rewarder == nil {
		rewarder = payout.NoopRewarder{}
	}
	return &Handler{
		dispatcher:         deps.Dispatcher,
		ranking:            deps.Ranking,
		rewarder:           rewarder,
		verifier:           deps.Verifier,
		defaultStreamModel: defaultStreamModel,
	}
}

type completionRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
	Agent   string `json:"agent"`
}

type completionResponse struct {
	Message  string `json:"message"`
	Response string `json:"response"`
}

type critiqueRequest struct {
	Prompt string `json:"prompt"`
	// Message is accepted as an alias of Prompt
	Message string `json:"message"`
	Wallet  string `json:"wallet"`
}

type voteRequest struct {
	ModelA string `json:"modelA"`
	ModelB string `json:"modelB"`
	AgentA string `json:"agentA"`
	AgentB string `json:"agentB"`
	Result string `json:"result"`
}

type voteResponse struct {
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// LLMRequest handles POST /llm_request
func (h *Handler) LLMRequest(c echo.Context) error {
	req, err := bindCompletion(c)
	if err != nil {
		return handleError(c, err)
	}
	return h.complete(c, req.Message, func(ctx context.Context) (string, error) {
		return h.dispatcher.Complete(ctx, req.Model, req.Message)
	})
}

// AgentRequest handles POST /agent_request
func (h *Handler) AgentRequest(c echo.Context) error {
	req, err := bindCompletion(c)
	if err != nil {
		return handleError(c, err)
	}
	// Only on-chain agents are reachable here; model names are unknown participants.
	return h.complete(c, req.Message, func(ctx context.Context) (string, error) {
		return h.dispatcher.AskAgent(ctx, req.Agent, req.Message)
	})
}

func (h *Handler) complete(c echo.Context, message string, call func(ctx context.Context) (string, error)) error {
	response, err := call(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, completionResponse{Message: message, Response: response})
}

// LLMRequestStreaming handles POST /llm_request_streaming.
// Errors found before the first byte are returned as JSON; after that they
// travel in-band as an error chunk.
func (h *Handler) LLMRequestStreaming(c echo.Context) error {
	req, err := bindCompletion(c)
	if err != nil {
		return handleError(c, err)
	}
	model := req.Model
	if model == "" {
		model = h.defaultStreamModel
	}

	ctx := c.Request().Context()
	stream, err := h.dispatcher.CompleteStream(ctx, model, req.Message)
	if err != nil {
		return handleError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	if err := streaming.WriteSSE(ctx, res, stream); err != nil {
		// Headers are already sent; the client has gone away or the write failed
		slog.DebugContext(ctx, "stream ended early", "model", model, "error", err)
	}
	return nil
}

// CriticizeUserRequest handles POST /criticize_user_request
func (h *Handler) CriticizeUserRequest(c echo.Context) error {
	var req critiqueRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewValidationError("invalid request body: "+err.Error(), err))
	}
	prompt := req.Prompt
	if prompt == "" {
		prompt = req.Message
	}
	if strings.TrimSpace(prompt) == "" {
		return handleError(c, core.NewValidationError("prompt is required", nil))
	}

	ctx := c.Request().Context()
	critique, err := h.dispatcher.Critique(ctx, prompt)
	if err != nil {
		return handleError(c, err)
	}

	h.rewarder.RewardCritique(ctx, critique, req.Wallet)
	return c.JSON(http.StatusOK, critique)
}

// RandomModels handles GET /random_models
func (h *Handler) RandomModels(c echo.Context) error {
	a, b, err := h.ranking.RandomPair(c.Request().Context(), core.KindModel)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"model_a": a, "model_b": b})
}

// RandomAgents handles GET /random_agents
func (h *Handler) RandomAgents(c echo.Context) error {
	a, b, err := h.ranking.RandomPair(c.Request().Context(), core.KindAgent)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"agent_a": a, "agent_b": b})
}

// Vote handles POST /vote
func (h *Handler) Vote(c echo.Context) error {
	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewValidationError("invalid request body: "+err.Error(), err))
	}
	if req.ModelA == "" || req.ModelB == "" {
		return handleError(c, core.NewValidationError("modelA and modelB are required", nil))
	}

	outcome, err := h.vote(c.Request().Context(), core.KindModel, req.ModelA, req.ModelB, req.Result)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, voteResponse{Status: "ok", Outcome: outcome.String()})
}

// VoteAgents handles POST /vote_agents. A decisive result pays the winner.
func (h *Handler) VoteAgents(c echo.Context) error {
	var req voteRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewValidationError("invalid request body: "+err.Error(), err))
	}
	if req.AgentA == "" || req.AgentB == "" {
		return handleError(c, core.NewValidationError("agentA and agentB are required", nil))
	}

	ctx := c.Request().Context()
	outcome, err := h.vote(ctx, core.KindAgent, req.AgentA, req.AgentB, req.Result)
	if err != nil {
		return handleError(c, err)
	}

	if outcome != core.OutcomeDraw {
		winner := req.AgentA
		if outcome == core.OutcomeRightWins {
			winner = req.AgentB
		}
		agent, err := h.ranking.Get(ctx, core.KindAgent, winner)
		if err != nil {
			slog.WarnContext(ctx, "failed to load winning agent for payout", "agent", winner, "error", err)
		} else {
			h.rewarder.RewardAgentWin(ctx, agent)
		}
	}

	return c.JSON(http.StatusOK, voteResponse{Status: "ok", Outcome: outcome.String()})
}

func (h *Handler) vote(ctx context.Context, kind core.Kind, a, b, result string) (core.Outcome, error) {
	outcome, err := parseResult(a, b, result)
	if err != nil {
		return 0, err
	}
	if err := h.ranking.ApplyOutcome(ctx, kind, a, b, outcome); err != nil {
		return 0, err
	}
	return outcome, nil
}

// parseResult reads result as the winner's name or "draw".
func parseResult(a, b, result string) (core.Outcome, error) {
	switch result {
	case "draw":
		return core.OutcomeDraw, nil
	case a:
		return core.OutcomeLeftWins, nil
	case b:
		return core.OutcomeRightWins, nil
	}
	return 0, core.NewValidationError(`result must be one of the two participant names or "draw"`, nil)
}

// Leaderboard handles GET /leaderboard
func (h *Handler) Leaderboard(c echo.Context) error {
	return h.leaderboard(c, core.KindModel)
}

// LeaderboardAgents handles GET /leaderboard_agents
func (h *Handler) LeaderboardAgents(c echo.Context) error {
	return h.leaderboard(c, core.KindAgent)
}

func (h *Handler) leaderboard(c echo.Context, kind core.Kind) error {
	entries, err := h.ranking.Leaderboard(c.Request().Context(), kind)
	if err != nil {
		return handleError(c, err)
	}
	if entries == nil {
		entries = []core.LeaderboardEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// Verify handles POST /verify, relaying the upstream status and body verbatim.
func (h *Handler) Verify(c echo.Context) error {
	if h.verifier == nil {
		return handleError(c, core.NewProviderUnavailableError("identity", errors.New("identity verification is not configured")))
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return handleError(c, core.NewValidationError("failed to read request body", err))
	}

	ctx := c.Request().Context()
	result, err := h.verifier.Verify(ctx, body)
	if err != nil {
		return handleError(c, core.NewProviderUnavailableError("identity", err))
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Blob(result.StatusCode, contentType, result.Body)
}

func bindCompletion(c echo.Context) (*completionRequest, error) {
	var req completionRequest
	if err := c.Bind(&req); err != nil {
		return nil, core.NewValidationError("invalid request body: "+err.Error(), err)
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, core.NewValidationError("message is required", nil)
	}
	return &req, nil
}

// handleError converts gateway errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var gatewayErr *core.GatewayError
	if errors.As(err, &gatewayErr) {
		return c.JSON(gatewayErr.HTTPStatusCode(), gatewayErr.ToJSON())
	}

	slog.ErrorContext(c.Request().Context(), "unhandled error", "error", err)

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
