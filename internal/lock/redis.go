package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Снимаем ключ только если он всё ещё наш.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Продлеваем TTL, только пока ключ наш.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker: блокировки между несколькими инстансами (SET NX PX).
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
	logger *zap.Logger
}

func NewRedisLocker(client redis.UniversalClient, ttl, wait time.Duration, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: "lock:",
		ttl:    ttl,
		wait:   wait,
		retry:  25 * time.Millisecond,
		logger: logger,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, keys ...string) (Unlock, error) {
	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	token := uuid.NewString()
	keys = normalize(keys)
	held := make([]string, 0, len(keys))

	for _, key := range keys {
		if err := l.acquireOne(ctx, l.prefix+key, token); err != nil {
			l.release(held, token)
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		held = append(held, l.prefix+key)
	}

	stop := l.watch(held, token)
	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			l.release(held, token)
		})
	}, nil
}

// watch продлевает TTL взятых ключей каждые ttl/3 до вызова stop.
func (l *RedisLocker) watch(keys []string, token string) (stop func()) {
	if l.ttl <= 0 {
		return func() {}
	}

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()

		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
			}
			if !l.extend(keys, token) {
				return
			}
		}
	}()

	return func() {
		close(quit)
		<-done
	}
}

// extend возвращает false, если хотя бы один ключ уже не наш.
func (l *RedisLocker) extend(keys []string, token string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
	defer cancel()

	for _, key := range keys {
		n, err := extendScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
		if err != nil {
			l.logger.Warn("redis lock extend failed", zap.String("key", key), zap.Error(err))
			continue
		}
		if n == 0 {
			l.logger.Error("redis lock lost before unlock", zap.String("key", key))
			return false
		}
	}
	return true
}

func (l *RedisLocker) acquireOne(ctx context.Context, key, token string) error {
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return l.ctxErr(ctx)
			}
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return l.ctxErr(ctx)
		}
	}
}

func (l *RedisLocker) release(keys []string, token string) {
	// Освобождаем даже если запрос уже отменён.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := len(keys) - 1; i >= 0; i-- {
		if err := unlockScript.Run(ctx, l.client, []string{keys[i]}, token).Err(); err != nil {
			l.logger.Warn("redis unlock failed", zap.String("key", keys[i]), zap.Error(err))
		}
	}
}

func (l *RedisLocker) ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ctx.Err()
}
