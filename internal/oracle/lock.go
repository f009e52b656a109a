package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// Locker grants exclusive use of one contract's response slot.
type Locker interface {
	// Lock blocks until key is held or ctx ends. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

const stripeCount = 64

// StripedLocker serializes keys in-process. Distinct keys may share a stripe,
// which only costs throughput.
type StripedLocker struct {
	stripes [stripeCount]chan struct{}
}

// NewStripedLocker returns an in-process locker.
func NewStripedLocker() *StripedLocker {
	l := &StripedLocker{}
	for i := range l.stripes {
		l.stripes[i] = make(chan struct{}, 1)
	}
	return l
}

// Lock implements Locker.
func (l *StripedLocker) Lock(ctx context.Context, key string) (func(), error) {
	stripe := l.stripes[xxhash.Sum64String(normalizeKey(key))%stripeCount]
	select {
	case stripe <- struct{}{}:
		return func() { <-stripe }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker serializes keys across gateway instances with SET NX PX.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
	clock  clockwork.Clock
}

// NewRedisLocker returns a distributed locker. ttl bounds how long a crashed
// holder can block a contract.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration, clock clockwork.Clock) *RedisLocker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  250 * time.Millisecond,
		clock:  clock,
	}
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + normalizeKey(key)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", redisKey, err)
		}
		if ok {
			return func() {
				// Release even when the request context is already gone.
				ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
					// The key stays held until its TTL lapses.
					slog.WarnContext(ctx, "failed to release contract lock", "key", redisKey, "ttl", l.ttl, "error", err)
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.clock.After(l.retry):
		}
	}
}

// multiLocker acquires every locker in order and releases in reverse.
type multiLocker []Locker

// ChainLockers combines lockers; nil entries are skipped.
func ChainLockers(lockers ...Locker) Locker {
	var out multiLocker
	for _, l := range lockers {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (m multiLocker) Lock(ctx context.Context, key string) (func(), error) {
	unlocks := make([]func(), 0, len(m))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, l := range m {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
