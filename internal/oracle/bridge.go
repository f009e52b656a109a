// Package oracle turns an asynchronous on-chain oracle into a synchronous call:
// submit the prompt, wait for the transaction, then poll the contract's single
// response slot until the off-chain oracle writes an answer.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"chainarena/internal/chain"
	"chainarena/internal/core"
	"chainarena/internal/observability"
	"chainarena/internal/poll"
)

const (
	// DefaultTimeout bounds one Ask from submission to answer.
	DefaultTimeout = 120 * time.Second
	// DefaultPollInterval is the fixed delay between response slot reads.
	DefaultPollInterval = 2 * time.Second
)

// Chain is the contract-facing surface of chain.Client.
type Chain interface {
	Submit(ctx context.Context, contract, prompt string) (string, error)
	AwaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (chain.ReceiptStatus, error)
	ReadResponseSlot(ctx context.Context, contract string) (string, bool, error)
}

// Bridge implements core.OracleAsker.
type Bridge struct {
	chain  Chain
	policy poll.Policy
	clock  clockwork.Clock
	locker Locker
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithPolicy sets the overall timeout and the response slot poll interval.
func WithPolicy(timeout, interval time.Duration) Option {
	return func(b *Bridge) {
		if timeout > 0 {
			b.policy.Timeout = timeout
		}
		if interval > 0 {
			b.policy.Interval = interval
		}
	}
}

// WithClock replaces the real clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(b *Bridge) { b.clock = clock }
}

// WithLocker replaces the default in-process per-contract lock.
func WithLocker(l Locker) Option {
	return func(b *Bridge) { b.locker = l }
}

// New creates a bridge over c.
func New(c Chain, opts ...Option) *Bridge {
	b := &Bridge{
		chain:  c,
		policy: poll.Policy{Interval: DefaultPollInterval, Timeout: DefaultTimeout},
		clock:  clockwork.NewRealClock(),
		locker: NewStripedLocker(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Ask posts prompt to contractAddress and returns the oracle's answer verbatim.
// Calls for the same contract are serialized because the contract has a single
// response slot shared by every caller.
func (b *Bridge) Ask(ctx context.Context, contractAddress, prompt string) (string, error) {
	if !chain.IsAddress(contractAddress) {
		return "", core.NewValidationError(fmt.Sprintf("invalid contract address %q", contractAddress), nil)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", core.NewValidationError("prompt is required", nil)
	}

	start := b.clock.Now()
	answer, err := b.ask(ctx, contractAddress, prompt)

	outcome := "ok"
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) {
		outcome = gwErr.Code
	} else if err != nil {
		outcome = "error"
	}
	observability.OracleAsks.WithLabelValues(outcome).Inc()
	if err == nil {
		observability.OracleAskDuration.Observe(b.clock.Since(start).Seconds())
	}
	return answer, err
}

func (b *Bridge) ask(ctx context.Context, contract, prompt string) (string, error) {
	lockCtx, cancel := context.WithTimeout(ctx, b.policy.Timeout)
	unlock, err := b.locker.Lock(lockCtx, contract)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", core.NewChainError(core.CodeChainTimeout,
			fmt.Sprintf("contract %s is busy with another request", contract), err)
	}
	defer unlock()

	deadline := b.clock.Now().Add(b.policy.Timeout)
	// Every RPC shares the ask deadline so a hung node cannot stall the caller.
	rpcCtx, cancelRPC := context.WithTimeout(ctx, b.policy.Timeout)
	defer cancelRPC()
	expired := func() bool { return ctx.Err() == nil && rpcCtx.Err() != nil }

	txHash, err := b.chain.Submit(rpcCtx, contract, prompt)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return "", ctx.Err()
		case expired():
			return "", core.NewChainError(core.CodeChainTimeout,
				fmt.Sprintf("transaction to %s was not submitted within %s", contract, b.policy.Timeout), err)
		}
		return "", core.NewChainError(core.CodeChainSubmitFailed, "failed to submit transaction: "+err.Error(), err)
	}
	slog.InfoContext(ctx, "oracle prompt submitted", "contract", contract, "tx_hash", txHash)

	notConfirmed := fmt.Sprintf("transaction %s was not confirmed within %s", txHash, b.policy.Timeout)
	status, err := b.chain.AwaitReceipt(rpcCtx, txHash, b.clock.Until(deadline))
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return "", ctx.Err()
		case expired():
			return "", core.NewChainError(core.CodeChainTimeout, notConfirmed, err)
		}
		return "", core.NewChainError(core.CodeChainSubmitFailed, "failed to confirm transaction "+txHash+": "+err.Error(), err)
	}
	switch status {
	case chain.ReceiptReverted:
		return "", core.NewChainError(core.CodeChainReverted, "transaction "+txHash+" reverted", nil)
	case chain.ReceiptTimeout:
		return "", core.NewChainError(core.CodeChainTimeout, notConfirmed, nil)
	}

	remaining := b.clock.Until(deadline)
	answer, err := poll.Until(rpcCtx, b.clock, poll.Policy{Interval: b.policy.Interval, Timeout: remaining},
		func(ctx context.Context) (string, bool, error) {
			return b.chain.ReadResponseSlot(ctx, contract)
		})
	switch {
	case errors.Is(err, poll.ErrTimeout), err != nil && expired():
		return "", core.NewChainError(core.CodeChainTimeout,
			fmt.Sprintf("transaction %s confirmed but contract %s produced no response within %s", txHash, contract, b.policy.Timeout), nil)
	case err != nil && ctx.Err() != nil:
		return "", ctx.Err()
	case err != nil:
		return "", core.NewChainError(core.CodeChainSubmitFailed, "failed to read response slot: "+err.Error(), err)
	}

	slog.InfoContext(ctx, "oracle response received", "contract", contract, "tx_hash", txHash)
	return answer, nil
}
