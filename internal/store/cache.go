package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ignite/klaviyo-sync/internal/pkg/logger"
)

// Dashboard reads are cached briefly in Redis so a portal page refresh does
// not re-run the aggregation queries. Cache errors are never fatal: a miss
// or a failed write just means the query runs again.

// CacheGet loads a cached JSON value into dest. Returns false on miss, on
// any Redis error, or when no Redis client is configured.
func (s *Store) CacheGet(ctx context.Context, key string, dest any) bool {
	if s.redis == nil {
		return false
	}
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		logger.Warn("store: cache entry corrupt, ignoring", "key", key, "error", err)
		return false
	}
	return true
}

// CacheSet stores a JSON value with the given TTL. Best effort.
func (s *Store) CacheSet(ctx context.Context, key string, val any, ttl time.Duration) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		logger.Warn("store: cache marshal failed", "key", key, "error", err)
		return
	}
	if err := s.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.Warn("store: cache write failed", "key", key, "error", err)
	}
}

// InvalidateClientCache drops cached dashboard entries after a sync run so
// the portal sees fresh rows immediately.
func (s *Store) InvalidateClientCache(ctx context.Context, clientID string) {
	if s.redis == nil {
		return
	}
	keys := []string{
		"dashboard:" + clientID,
		"flows:" + clientID,
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("store: cache invalidation failed", "client_id", clientID, "error", err)
	}
}
