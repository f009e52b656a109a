package oracle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripedLocker_BlocksSameKey(t *testing.T) {
	l := NewStripedLocker()

	unlock, err := l.Lock(context.Background(), "0xAbC")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, " 0xabc ")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := l.Lock(context.Background(), "0xabc")
	require.NoError(t, err)
	unlock2()
}

type recordingLocker struct {
	name string
	log  *[]string
	err  error
}

func (r recordingLocker) Lock(context.Context, string) (func(), error) {
	if r.err != nil {
		return nil, r.err
	}
	*r.log = append(*r.log, "lock "+r.name)
	return func() { *r.log = append(*r.log, "unlock "+r.name) }, nil
}

func TestChainLockers_ReleasesInReverseOrder(t *testing.T) {
	var log []string
	l := ChainLockers(recordingLocker{name: "a", log: &log}, nil, recordingLocker{name: "b", log: &log})

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()

	assert.Equal(t, []string{"lock a", "lock b", "unlock b", "unlock a"}, log)
}

func TestChainLockers_FailureReleasesAcquired(t *testing.T) {
	var log []string
	boom := errors.New("redis down")
	l := ChainLockers(recordingLocker{name: "a", log: &log}, recordingLocker{name: "b", log: &log, err: boom})

	_, err := l.Lock(context.Background(), "k")

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"lock a", "unlock a"}, log)
}

// scriptFailHook answers SET NX locally and fails every script call, so the
// locker runs without a Redis server.
type scriptFailHook struct{}

func (scriptFailHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (scriptFailHook) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		if c, ok := cmd.(*redis.BoolCmd); ok && cmd.Name() == "set" {
			c.SetVal(true)
			return nil
		}
		err := errors.New("connection reset by peer")
		cmd.SetErr(err)
		return err
	}
}

func (scriptFailHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestRedisLocker_ReleaseFailureIsLogged(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(scriptFailHook{})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLocker(client, "chainarena:", time.Minute, clockwork.NewFakeClock())
	unlock, err := l.Lock(context.Background(), "0xABC")
	require.NoError(t, err)

	unlock()

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "failed to release contract lock")
	assert.Contains(t, out, "chainarena:0xabc")
	assert.Contains(t, out, "connection reset by peer")
}
