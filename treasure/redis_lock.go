package treasure

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	// LockKeyPrefix namespaces transfer locks in Redis.
	LockKeyPrefix = "lock:transfer:"

	// DefaultLockTimeout bounds how long a crashed holder keeps the pair locked.
	DefaultLockTimeout = 10 * time.Second

	defaultLockRetry = 25 * time.Millisecond
)

// releaseScript deletes the lock only while it still carries our token, so a
// holder whose lock expired cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lock only while it still carries our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker serializes transfers across processes with SET NX locks.
// Timeout is the lock TTL; while the lock is held it is renewed every
// Timeout/3, so it only lapses when the holder stops running or loses Redis
// for longer than two thirds of Timeout.
type RedisLocker struct {
	Client        *redis.Client
	Timeout       time.Duration
	RetryInterval time.Duration
	Logger        *slog.Logger
}

func (l RedisLocker) Lock(ctx context.Context, a, b string) (func(), error) {
	lockKey := LockKeyPrefix + PairKey(a, b)
	token := uuid.NewString()

	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	retry := l.RetryInterval
	if retry <= 0 {
		retry = defaultLockRetry
	}

	for {
		acquired, err := l.Client.SetNX(ctx, lockKey, token, timeout).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLockUnavailable, err)
		}
		if acquired {
			break
		}

		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", ErrLockUnavailable, ctx.Err())
		case <-timer.C:
		}
	}

	renewCtx, stopRenew := context.WithCancel(context.Background())
	renewed := make(chan struct{})
	go l.renew(renewCtx, lockKey, token, timeout, renewed)

	var once sync.Once
	return func() {
		once.Do(func() {
			stopRenew()
			<-renewed
			if err := releaseScript.Run(context.Background(), l.Client, []string{lockKey}, token).Err(); err != nil {
				resolveLogger(l.Logger).Error("transfer lock release failed",
					"event", "transfer_lock_release_failed",
					"module", "treasure",
					"layer", "core",
					"lock_key", lockKey,
					"error", err.Error(),
				)
			}
		})
	}, nil
}

func (l RedisLocker) renew(ctx context.Context, lockKey, token string, timeout time.Duration, done chan<- struct{}) {
	defer close(done)
	logger := resolveLogger(l.Logger)

	interval := timeout / 3
	if interval <= 0 {
		interval = timeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		held, err := renewScript.Run(ctx, l.Client, []string{lockKey}, token, timeout.Milliseconds()).Int()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("transfer lock renewal failed",
				"event", "transfer_lock_renew_failed",
				"module", "treasure",
				"layer", "core",
				"lock_key", lockKey,
				"error", err.Error(),
			)
			continue
		}
		if held == 0 {
			logger.Error("transfer lock lost before release",
				"event", "transfer_lock_lost",
				"module", "treasure",
				"layer", "core",
				"lock_key", lockKey,
			)
			return
		}
	}
}
