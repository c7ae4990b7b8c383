package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRedis держит ключи в памяти и исполняет скрипты блокировки по их хешу.
// Остальные методы клиента не вызываются.
type fakeRedis struct {
	redis.UniversalClient

	mu      sync.Mutex
	keys    map[string]string
	extends map[string]int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{keys: make(map[string]string), extends: make(map[string]int)}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, token := keys[0], args[0].(string)
	if f.keys[key] != token {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch sha1 {
	case unlockScript.Hash():
		delete(f.keys, key)
	case extendScript.Hash():
		f.extends[key]++
	}
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeRedis) steal(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = "someone else"
}

func (f *fakeRedis) extendCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extends[key]
}

func (f *fakeRedis) held(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.keys[key]
	return ok
}

func TestRedisLocker_ExtendsWhileHeld(t *testing.T) {
	client := newFakeRedis()
	l := NewRedisLocker(client, 30*time.Millisecond, time.Second, zap.NewNop())
	key := DateKey(uuid.New(), "2025-07-10")

	unlock, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return client.extendCount("lock:"+key) >= 3
	}, time.Second, 5*time.Millisecond)

	unlock()
	assert.False(t, client.held("lock:"+key))

	after := client.extendCount("lock:" + key)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, client.extendCount("lock:"+key))

	// Повторный unlock ничего не ломает.
	unlock()
}

func TestRedisLocker_StopsExtendingLostKey(t *testing.T) {
	client := newFakeRedis()
	l := NewRedisLocker(client, 30*time.Millisecond, time.Second, zap.NewNop())
	key := DateKey(uuid.New(), "2025-07-10")

	unlock, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)
	defer unlock()

	client.steal("lock:" + key)
	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, client.extendCount("lock:"+key))

	// Чужой ключ unlock не трогает.
	unlock()
	assert.True(t, client.held("lock:"+key))
}

func TestRedisLocker_Timeout(t *testing.T) {
	client := newFakeRedis()
	l := NewRedisLocker(client, time.Second, 50*time.Millisecond, zap.NewNop())
	key := DateKey(uuid.New(), "2025-07-10")

	unlock, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)
	defer unlock()

	_, err = l.Acquire(context.Background(), key)
	assert.ErrorIs(t, err, ErrTimeout)
}
