package payout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainarena/internal/core"
)

type transferCall struct {
	destination string
	amount      string
	requestID   string
}

type fakeTransferrer struct {
	mu      sync.Mutex
	calls   []transferCall
	err     error
	started chan struct{}
	gate    chan struct{}
}

func (f *fakeTransferrer) Transfer(ctx context.Context, destination, amount string) (string, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, transferCall{destination, amount, core.GetRequestID(ctx)})
	return "transfer-1", f.err
}

func (f *fakeTransferrer) snapshot() []transferCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transferCall(nil), f.calls...)
}

func TestRewardCritique(t *testing.T) {
	tests := []struct {
		name     string
		score    float64
		wallet   string
		fallback string
		want     []transferCall
	}{
		{name: "below threshold", score: 6.9, wallet: "0xuser"},
		{name: "at threshold", score: 7, wallet: "0xuser", want: []transferCall{{"0xuser", "0.1", "req-1"}}},
		{name: "default wallet", score: 9, fallback: "0xdefault", want: []transferCall{{"0xdefault", "0.1", "req-1"}}},
		{name: "no wallet at all", score: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &fakeTransferrer{}
			o := NewOrchestrator(ft, Config{Amount: "0.1", DefaultWallet: tt.fallback})
			ctx := core.WithRequestID(context.Background(), "req-1")

			o.RewardCritique(ctx, &core.Critique{Score: tt.score, Description: "x"}, tt.wallet)
			require.NoError(t, o.Close())

			assert.Equal(t, tt.want, ft.snapshot())
		})
	}
}

func TestRewardAgentWin(t *testing.T) {
	ft := &fakeTransferrer{}
	o := NewOrchestrator(ft, Config{Amount: "0.5"})
	ctx := context.Background()

	o.RewardAgentWin(ctx, &core.Participant{Name: "a", PayoutWallet: "0xagent"})
	o.RewardAgentWin(ctx, &core.Participant{Name: "b"})
	o.RewardAgentWin(ctx, nil)
	require.NoError(t, o.Close())

	assert.Equal(t, []transferCall{{"0xagent", "0.5", ""}}, ft.snapshot())
}

func TestOrchestrator_FailureIsSwallowed(t *testing.T) {
	ft := &fakeTransferrer{err: errors.New("insufficient balance")}
	o := NewOrchestrator(ft, Config{Amount: "0.1"})

	o.RewardAgentWin(context.Background(), &core.Participant{PayoutWallet: "0xagent"})
	require.NoError(t, o.Close())
	assert.Len(t, ft.snapshot(), 1)
}

func TestOrchestrator_DropsWhenQueueFull(t *testing.T) {
	ft := &fakeTransferrer{started: make(chan struct{}, 4), gate: make(chan struct{})}
	o := NewOrchestrator(ft, Config{Amount: "0.1", BufferSize: 1})
	ctx := context.Background()
	agent := &core.Participant{PayoutWallet: "0xagent"}

	o.RewardAgentWin(ctx, agent)
	select {
	case <-ft.started:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never picked up the first payout")
	}

	o.RewardAgentWin(ctx, agent) // buffered
	o.RewardAgentWin(ctx, agent) // dropped

	close(ft.gate)
	require.NoError(t, o.Close())
	assert.Len(t, ft.snapshot(), 2)
}

func TestOrchestrator_CloseIsIdempotent(t *testing.T) {
	ft := &fakeTransferrer{}
	o := NewOrchestrator(ft, Config{Amount: "0.1"})

	require.NoError(t, o.Close())
	require.NoError(t, o.Close())

	o.RewardAgentWin(context.Background(), &core.Participant{PayoutWallet: "0xagent"})
	assert.Empty(t, ft.snapshot())
}

func TestNoopRewarder(t *testing.T) {
	var r Rewarder = NoopRewarder{}
	r.RewardCritique(context.Background(), &core.Critique{Score: 10}, "0xuser")
	r.RewardAgentWin(context.Background(), &core.Participant{PayoutWallet: "0xagent"})
	assert.NoError(t, r.Close())
}
