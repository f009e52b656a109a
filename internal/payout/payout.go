// Package payout issues best-effort reward transfers after qualifying critiques
// and agent vote wins. Nothing here can fail the request that triggered it.
package payout

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"chainarena/internal/core"
	"chainarena/internal/observability"
)

// ScoreThreshold is the minimum critique score that earns a reward.
const ScoreThreshold = 7.0

// Reason labels why a payout was issued.
type Reason string

const (
	ReasonCritique Reason = "critique"
	ReasonAgentWin Reason = "agent_win"
)

// Transferrer moves a fixed amount to a wallet and returns the transfer id.
type Transferrer interface {
	Transfer(ctx context.Context, destination, amount string) (string, error)
}

// Rewarder is implemented by Orchestrator and NoopRewarder.
type Rewarder interface {
	RewardCritique(ctx context.Context, critique *core.Critique, wallet string)
	RewardAgentWin(ctx context.Context, agent *core.Participant)
	Close() error
}

// Config holds orchestrator settings.
type Config struct {
	// Amount is the decimal token amount sent per payout
	Amount string
	// DefaultWallet receives critique rewards when the caller names no wallet
	DefaultWallet string
	// BufferSize bounds queued payouts; extra payouts are dropped (default: 100)
	BufferSize int
	// TransferTimeout bounds one transfer call (default: 30s)
	TransferTimeout time.Duration
}

type payment struct {
	reason      Reason
	destination string
	requestID   string
}

// Orchestrator queues payouts and runs them on a single background worker.
type Orchestrator struct {
	transfer Transferrer
	config   Config
	queue    chan payment
	done     chan struct{}
	wg       sync.WaitGroup
	sends    sync.WaitGroup
	closed   atomic.Bool
}

// NewOrchestrator starts the worker.
func NewOrchestrator(t Transferrer, cfg Config) *Orchestrator {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = 30 * time.Second
	}

	o := &Orchestrator{
		transfer: t,
		config:   cfg,
		queue:    make(chan payment, cfg.BufferSize),
		done:     make(chan struct{}),
	}

	o.wg.Add(1)
	go o.run()

	return o
}

// RewardCritique pays wallet (or the default wallet) when the score reaches
// ScoreThreshold.
func (o *Orchestrator) RewardCritique(ctx context.Context, critique *core.Critique, wallet string) {
	if critique == nil || critique.Score < ScoreThreshold {
		return
	}
	if wallet == "" {
		wallet = o.config.DefaultWallet
	}
	if wallet == "" {
		slog.DebugContext(ctx, "critique qualifies for a reward but no wallet is known", "score", critique.Score)
		return
	}
	o.enqueue(ctx, ReasonCritique, wallet)
}

// RewardAgentWin pays the winning agent's payout wallet.
func (o *Orchestrator) RewardAgentWin(ctx context.Context, agent *core.Participant) {
	if agent == nil || agent.PayoutWallet == "" {
		return
	}
	o.enqueue(ctx, ReasonAgentWin, agent.PayoutWallet)
}

func (o *Orchestrator) enqueue(ctx context.Context, reason Reason, destination string) {
	if o.closed.Load() {
		return
	}

	// Close must not close the queue while a send is in flight
	o.sends.Add(1)
	defer o.sends.Done()

	if o.closed.Load() {
		return
	}

	p := payment{reason: reason, destination: destination, requestID: core.GetRequestID(ctx)}
	select {
	case o.queue <- p:
	default:
		observability.Payouts.WithLabelValues(string(reason), "dropped").Inc()
		slog.WarnContext(ctx, "payout queue full, dropping payout",
			"reason", reason,
			"destination", destination,
		)
	}
}

// Close stops accepting payouts and waits for queued ones to finish.
// Close is idempotent.
func (o *Orchestrator) Close() error {
	if o.closed.Swap(true) {
		return nil
	}
	o.sends.Wait()
	close(o.done)
	o.wg.Wait()
	return nil
}

func (o *Orchestrator) run() {
	defer o.wg.Done()

	for {
		select {
		case p := <-o.queue:
			o.pay(p)
		case <-o.done:
			close(o.queue)
			for p := range o.queue {
				o.pay(p)
			}
			return
		}
	}
}

func (o *Orchestrator) pay(p payment) {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.TransferTimeout)
	defer cancel()
	if p.requestID != "" {
		ctx = core.WithRequestID(ctx, p.requestID)
	}

	id, err := o.transfer.Transfer(ctx, p.destination, o.config.Amount)
	observability.Payouts.WithLabelValues(string(p.reason), observability.Result(err)).Inc()
	if err != nil {
		slog.ErrorContext(ctx, "payout failed",
			"reason", p.reason,
			"destination", p.destination,
			"amount", o.config.Amount,
			"error", err,
		)
		return
	}
	slog.InfoContext(ctx, "payout issued",
		"reason", p.reason,
		"destination", p.destination,
		"amount", o.config.Amount,
		"transfer_id", id,
	)
}

// NoopRewarder is used when payouts are disabled.
type NoopRewarder struct{}

func (NoopRewarder) RewardCritique(context.Context, *core.Critique, string) {}

func (NoopRewarder) RewardAgentWin(context.Context, *core.Participant) {}

func (NoopRewarder) Close() error { return nil }
