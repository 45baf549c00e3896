package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/aabhi25/chronalive-v0.9-sub003/pkg/errors"
)

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts the resolve cache. A nil receiver or disabled config
// turns every call into a no-op so callers never branch on cache presence.
type CacheService struct {
	store   cacheStore
	ttl     time.Duration
	enabled bool
	logger  *zap.Logger
}

// NewCacheService wires the resolve cache. Pass enabled=false to run without
// Redis; all operations degrade to misses.
func NewCacheService(store cacheStore, ttl time.Duration, enabled bool, logger *zap.Logger) *CacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CacheService{store: store, ttl: ttl, enabled: enabled && store != nil, logger: logger}
}

// Enabled reports whether lookups should be attempted.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled
}

// Get loads a cached value into dest, reporting whether it was a hit.
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	if err := s.store.Get(ctx, key, dest); err != nil {
		if appErrors.Is(err, appErrors.ErrCacheMiss) {
			return false, nil
		}
		s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

// Set stores a value under the configured TTL. Failures are logged, not
// surfaced; the cache is strictly best effort.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.store.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

// InvalidateClass drops every cached resolution for one class.
func (s *CacheService) InvalidateClass(ctx context.Context, classID string) {
	if !s.Enabled() {
		return
	}
	if err := s.store.DeleteByPattern(ctx, "resolve:"+classID+":*"); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("class_id", classID), zap.Error(err))
	}
}

// InvalidateAll drops the whole resolve cache. Used after bulk operations
// that touch many classes at once.
func (s *CacheService) InvalidateAll(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	if err := s.store.DeleteByPattern(ctx, "resolve:*"); err != nil {
		s.logger.Warn("cache invalidation failed", zap.Error(err))
	}
}
