package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serializes writers per logical key. Acquire blocks until the lock is
// held or the context expires, and returns a release function.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Config tunes lock acquisition behaviour.
type Config struct {
	TTL        time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 50 * time.Millisecond
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 40
	}
	return c
}

// RedisLocker implements Locker on top of Redis SETNX with a TTL.
type RedisLocker struct {
	client *redis.Client
	cfg    Config
}

// NewRedisLocker constructs a RedisLocker.
func NewRedisLocker(client *redis.Client, cfg Config) *RedisLocker {
	return &RedisLocker{client: client, cfg: cfg.withDefaults()}
}

// Acquire polls SETNX until the key is claimed or retries are exhausted.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	const op = "lock.RedisLocker.Acquire"

	lockKey := fmt.Sprintf("lock:%s", key)
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		ok, err := l.client.SetNX(ctx, lockKey, "1", l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			return func() {
				_ = l.client.Del(context.Background(), lockKey).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(l.cfg.RetryDelay):
		}
	}
	return nil, fmt.Errorf("%s: lock %s busy after %d retries", op, key, l.cfg.MaxRetries)
}

// LocalLocker is an in-process Locker used when Redis is unavailable and in
// tests. Cross-key writes proceed in parallel; same-key writers queue.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker constructs a LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the per-key mutex.
func (l *LocalLocker) Acquire(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
