package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants exclusive ownership of a request. Acquire waits until the
// lease is free or ctx ends, in which case it returns ErrLeaseHeld. The
// returned release function is safe to call once.
type Locker interface {
	Acquire(ctx context.Context, id uuid.UUID) (release func(), err error)
}

// LocalLocker is a keyed mutex for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]chan struct{}
	wait time.Duration
}

// NewLocalLocker creates a LocalLocker. wait bounds how long Acquire blocks;
// zero waits until ctx ends.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		held: make(map[uuid.UUID]chan struct{}),
		wait: wait,
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, id uuid.UUID) (func(), error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	for {
		l.mu.Lock()
		ch, busy := l.held[id]
		if !busy {
			done := make(chan struct{})
			l.held[id] = done
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, id)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrLeaseHeld, id)
		}
	}
}

// releaseScript deletes the lease only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

var errBusy = errors.New("lease busy")

// RedisLocker holds leases as SET NX PX keys so several instances can share
// one store. A lease expires after ttl if its holder dies.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	logger *slog.Logger
}

// NewRedisLocker creates a RedisLocker. Failed or late releases are logged
// at warn level; a nil logger discards them.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl, wait time.Duration, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
		poll:   50 * time.Millisecond,
		logger: logger.With("system", "lease"),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, id uuid.UUID) (func(), error) {
	key := l.prefix + id.String()
	token := uuid.NewString()

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return false, backoff.Permanent(fmt.Errorf("acquire lease: %w", err))
		}
		if !ok {
			return false, errBusy
		}
		return true, nil
	}, backoff.WithBackOff(backoff.NewConstantBackOff(l.poll)))

	if err != nil {
		if errors.Is(err, errBusy) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", ErrLeaseHeld, id)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, token) })
	}, nil
}

// release deletes the lease if token still owns it. A failure leaves the key
// to expire after ttl, blocking other writers until then.
func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
	switch {
	case err != nil:
		l.logger.WarnContext(ctx, "lease release failed",
			"key", key,
			"ttl", l.ttl,
			"error", err,
		)
	case n == 0:
		l.logger.WarnContext(ctx, "lease expired before release", "key", key, "ttl", l.ttl)
	}
}
