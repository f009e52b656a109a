package oracle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainarena/internal/chain"
	"chainarena/internal/core"
)

const testContract = "0x00000000000000000000000000000000000000aa"

type fakeChain struct {
	mu        sync.Mutex
	submitted []string

	submitErr error
	status    chain.ReceiptStatus
	// answerAfter is the read attempt (1-based) on which the slot fills; 0 never fills.
	answerAfter int32
	answer      string
	readErr     error
	readGate    chan struct{}

	reads atomic.Int32
}

func (f *fakeChain) Submit(_ context.Context, contract, prompt string) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, prompt)
	return "0xtx", nil
}

func (f *fakeChain) AwaitReceipt(context.Context, string, time.Duration) (chain.ReceiptStatus, error) {
	return f.status, nil
}

func (f *fakeChain) ReadResponseSlot(ctx context.Context, _ string) (string, bool, error) {
	if f.readGate != nil {
		select {
		case <-f.readGate:
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
	if f.readErr != nil {
		return "", false, f.readErr
	}
	n := f.reads.Add(1)
	if f.answerAfter > 0 && n >= f.answerAfter {
		return f.answer, true, nil
	}
	return "", false, nil
}

func (f *fakeChain) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

type askResult struct {
	answer string
	err    error
}

func TestAsk_ImmediateAnswer(t *testing.T) {
	fc := &fakeChain{answerAfter: 1, answer: `{"score": 8, "description": "good"}`}
	b := New(fc, WithClock(clockwork.NewFakeClock()))

	answer, err := b.Ask(context.Background(), testContract, "rate this")

	require.NoError(t, err)
	assert.Equal(t, `{"score": 8, "description": "good"}`, answer)
	assert.Equal(t, []string{"rate this"}, fc.submitted)
}

func TestAsk_PollsUntilSlotFills(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx := context.Background()
	fc := &fakeChain{answerAfter: 3, answer: "42"}
	b := New(fc, WithClock(clock), WithPolicy(time.Minute, 2*time.Second))

	done := make(chan askResult, 1)
	go func() {
		answer, err := b.Ask(ctx, testContract, "meaning of life")
		done <- askResult{answer, err}
	}()

	for i := 0; i < 2; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(2 * time.Second)
	}

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "42", r.answer)
	assert.Equal(t, int32(3), fc.reads.Load())
}

func TestAsk_NoResponseTimesOut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx := context.Background()
	fc := &fakeChain{}
	b := New(fc, WithClock(clock), WithPolicy(5*time.Second, 2*time.Second))

	done := make(chan askResult, 1)
	go func() {
		answer, err := b.Ask(ctx, testContract, "hello")
		done <- askResult{answer, err}
	}()

	// 0s, 2s, 4s, then a shortened 1s wait to land on the deadline.
	for _, d := range []time.Duration{2 * time.Second, 2 * time.Second, time.Second} {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(d)
	}

	r := <-done
	require.Error(t, r.err)
	assert.True(t, core.HasCode(r.err, core.CodeChainTimeout))
	assert.Contains(t, r.err.Error(), "produced no response")
	assert.Equal(t, int32(4), fc.reads.Load())
}

func TestAsk_ReceiptOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		status   chain.ReceiptStatus
		wantCode string
		wantMsg  string
	}{
		{name: "reverted", status: chain.ReceiptReverted, wantCode: core.CodeChainReverted, wantMsg: "reverted"},
		{name: "not mined", status: chain.ReceiptTimeout, wantCode: core.CodeChainTimeout, wantMsg: "was not confirmed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeChain{status: tt.status, answerAfter: 1, answer: "unused"}
			b := New(fc, WithClock(clockwork.NewFakeClock()))

			_, err := b.Ask(context.Background(), testContract, "hello")

			require.Error(t, err)
			assert.True(t, core.HasCode(err, tt.wantCode), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Zero(t, fc.reads.Load())
		})
	}
}

func TestAsk_SubmitFailure(t *testing.T) {
	fc := &fakeChain{submitErr: errors.New("insufficient funds for gas")}
	b := New(fc, WithClock(clockwork.NewFakeClock()))

	_, err := b.Ask(context.Background(), testContract, "hello")

	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeChainSubmitFailed))
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestAsk_ReadFailure(t *testing.T) {
	fc := &fakeChain{readErr: errors.New("rpc unavailable")}
	b := New(fc, WithClock(clockwork.NewFakeClock()))

	_, err := b.Ask(context.Background(), testContract, "hello")

	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.CodeChainSubmitFailed))
}

func TestAsk_Validation(t *testing.T) {
	tests := []struct {
		name     string
		contract string
		prompt   string
	}{
		{name: "bad address", contract: "not-an-address", prompt: "hello"},
		{name: "short address", contract: "0x1234", prompt: "hello"},
		{name: "empty prompt", contract: testContract, prompt: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeChain{}
			b := New(fc)

			_, err := b.Ask(context.Background(), tt.contract, tt.prompt)

			require.Error(t, err)
			assert.True(t, core.HasCode(err, core.CodeValidation))
			assert.Zero(t, fc.submissions())
		})
	}
}

func TestAsk_SerializesSameContract(t *testing.T) {
	gate := make(chan struct{})
	fc := &fakeChain{answerAfter: 1, answer: "done", readGate: gate}
	b := New(fc, WithPolicy(10*time.Second, 10*time.Millisecond))
	ctx := context.Background()

	results := make(chan askResult, 2)
	ask := func(contract string) {
		answer, err := b.Ask(ctx, contract, "q")
		results <- askResult{answer, err}
	}

	go ask(testContract)
	require.Eventually(t, func() bool { return fc.submissions() == 1 }, time.Second, time.Millisecond)

	// Same contract in different case must wait for the first ask to finish.
	go ask("0x00000000000000000000000000000000000000AA")
	assert.Never(t, func() bool { return fc.submissions() > 1 }, 50*time.Millisecond, 5*time.Millisecond)

	close(gate)
	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		assert.Equal(t, "done", r.answer)
	}
	assert.Equal(t, 2, fc.submissions())
}

func TestAsk_ContextCanceled(t *testing.T) {
	fc := &fakeChain{readGate: make(chan struct{})}
	b := New(fc, WithPolicy(10*time.Second, 10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan askResult, 1)
	go func() {
		answer, err := b.Ask(ctx, testContract, "q")
		done <- askResult{answer, err}
	}()

	require.Eventually(t, func() bool { return fc.submissions() == 1 }, time.Second, time.Millisecond)
	cancel()

	r := <-done
	assert.ErrorIs(t, r.err, context.Canceled)
}

// stallChain never answers the chosen call until its context ends.
type stallChain struct {
	fakeChain
	stall string
}

func (s *stallChain) Submit(ctx context.Context, contract, prompt string) (string, error) {
	if s.stall == "submit" {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.fakeChain.Submit(ctx, contract, prompt)
}

func (s *stallChain) AwaitReceipt(ctx context.Context, txHash string, timeout time.Duration) (chain.ReceiptStatus, error) {
	if s.stall == "receipt" {
		<-ctx.Done()
		return chain.ReceiptTimeout, ctx.Err()
	}
	return s.fakeChain.AwaitReceipt(ctx, txHash, timeout)
}

func TestAsk_StalledRPCTimesOut(t *testing.T) {
	tests := []struct {
		name    string
		chain   *stallChain
		wantMsg string
	}{
		{name: "submit", chain: &stallChain{stall: "submit"}, wantMsg: "was not submitted"},
		{name: "receipt", chain: &stallChain{stall: "receipt"}, wantMsg: "was not confirmed"},
		{name: "response slot", chain: &stallChain{fakeChain: fakeChain{readGate: make(chan struct{})}}, wantMsg: "produced no response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(tt.chain, WithPolicy(100*time.Millisecond, 20*time.Millisecond))

			done := make(chan error, 1)
			go func() {
				_, err := b.Ask(context.Background(), testContract, "hello")
				done <- err
			}()

			select {
			case err := <-done:
				require.Error(t, err)
				assert.True(t, core.HasCode(err, core.CodeChainTimeout), "got %v", err)
				assert.Contains(t, err.Error(), tt.wantMsg)
			case <-time.After(5 * time.Second):
				t.Fatal("ask outlived its timeout")
			}
		})
	}
}
