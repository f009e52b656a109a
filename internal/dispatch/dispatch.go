// Package dispatch routes a prompt to the hosted provider or on-chain agent
// that serves a participant name.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"chainarena/internal/core"
	"chainarena/internal/observability"
	"chainarena/internal/ranking"
)

// ProviderLookup returns the configured provider for a provider type.
type ProviderLookup interface {
	Get(providerType string) (core.Provider, bool)
}

// Dispatcher resolves participant names and forwards prompts.
type Dispatcher struct {
	catalog   *ranking.Catalog
	providers ProviderLookup
	agents    core.ParticipantLookup
	oracle    core.OracleAsker
	critic    Critic
}

// Critic selects the evaluator used by Critique. ContractAddress wins over Model.
type Critic struct {
	ContractAddress string
	Model           string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCritic sets the critique evaluator.
func WithCritic(c Critic) Option {
	return func(d *Dispatcher) { d.critic = c }
}

// New creates a dispatcher. oracle may be nil when no chain is configured, in
// which case agent requests fail with a chain error.
func New(catalog *ranking.Catalog, providers ProviderLookup, agents core.ParticipantLookup, oracle core.OracleAsker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		catalog:   catalog,
		providers: providers,
		agents:    agents,
		oracle:    oracle,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Complete returns the full answer of participantID to prompt. Hosted models
// take precedence over agents with the same name.
func (d *Dispatcher) Complete(ctx context.Context, participantID, prompt string) (string, error) {
	participantID = strings.TrimSpace(participantID)
	if err := validate(participantID, prompt); err != nil {
		return "", err
	}

	if model, ok := d.catalog.Model(participantID); ok {
		return d.completeHosted(ctx, model, prompt)
	}

	return d.completeAgent(ctx, participantID, prompt)
}

// AskAgent sends prompt to the on-chain agent named agentName. Hosted model
// names are not agents and are rejected as unknown participants.
func (d *Dispatcher) AskAgent(ctx context.Context, agentName, prompt string) (string, error) {
	agentName = strings.TrimSpace(agentName)
	if err := validate(agentName, prompt); err != nil {
		return "", err
	}
	return d.completeAgent(ctx, agentName, prompt)
}

func (d *Dispatcher) completeAgent(ctx context.Context, name, prompt string) (string, error) {
	agent, err := d.agents.Get(ctx, core.KindAgent, name)
	if core.HasCode(err, core.CodeParticipantNotFound) {
		return "", core.NewUnknownParticipantError(name)
	}
	if err != nil {
		return "", err
	}
	return d.ask(ctx, agent.ContractAddress, prompt)
}

// CompleteStream starts a streamed answer from a hosted model. The returned
// stream is bound to ctx and must be closed by the caller.
func (d *Dispatcher) CompleteStream(ctx context.Context, participantID, prompt string) (core.ChunkStream, error) {
	participantID = strings.TrimSpace(participantID)
	if err := validate(participantID, prompt); err != nil {
		return nil, err
	}

	model, ok := d.catalog.Model(participantID)
	if !ok {
		_, err := d.agents.Get(ctx, core.KindAgent, participantID)
		switch {
		case err == nil:
			return nil, core.NewValidationError("streaming is not supported for on-chain agents: "+participantID, nil)
		case !core.HasCode(err, core.CodeParticipantNotFound):
			return nil, err
		}
		return nil, core.NewUnknownParticipantError(participantID)
	}

	provider, err := d.provider(model)
	if err != nil {
		return nil, err
	}

	stream, err := provider.StreamChatCompletion(ctx, core.UserPrompt(model.Upstream, prompt).WithStreaming())
	observability.ProviderRequests.WithLabelValues(model.Provider, "stream", observability.Result(err)).Inc()
	if err != nil {
		slog.WarnContext(ctx, "provider stream failed", "model", model.Name, "provider", model.Provider, "error", err)
		return nil, core.NewProviderUnavailableError(model.Provider, err)
	}
	return stream, nil
}

func (d *Dispatcher) completeHosted(ctx context.Context, model ranking.Model, prompt string) (string, error) {
	provider, err := d.provider(model)
	if err != nil {
		return "", err
	}

	resp, err := provider.ChatCompletion(ctx, core.UserPrompt(model.Upstream, prompt))
	observability.ProviderRequests.WithLabelValues(model.Provider, "complete", observability.Result(err)).Inc()
	if err != nil {
		slog.WarnContext(ctx, "provider call failed", "model", model.Name, "provider", model.Provider, "error", err)
		return "", core.NewProviderUnavailableError(model.Provider, err)
	}
	return resp.Text(), nil
}

func (d *Dispatcher) provider(model ranking.Model) (core.Provider, error) {
	p, ok := d.providers.Get(model.Provider)
	if !ok {
		return nil, core.NewProviderUnavailableError(model.Provider,
			fmt.Errorf("provider %s is not configured for model %s", model.Provider, model.Name))
	}
	return p, nil
}

func (d *Dispatcher) ask(ctx context.Context, contract, prompt string) (string, error) {
	if d.oracle == nil {
		return "", core.NewChainError(core.CodeChainSubmitFailed, "no chain is configured for on-chain agents", errNoChain)
	}
	return d.oracle.Ask(ctx, contract, prompt)
}

var errNoChain = errors.New("chain not configured")

func validate(participantID, prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return core.NewValidationError("message is required", nil)
	}
	if participantID == "" {
		return core.NewValidationError("model or agent is required", nil)
	}
	return nil
}
