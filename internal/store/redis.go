package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/secureai/privacy-shield/internal/config"
	"github.com/secureai/privacy-shield/internal/redaction"
	"go.uber.org/zap"
)

// ScopeCache keeps scope memo snapshots in Redis so a scope survives process
// restarts. Snapshots are written after redaction calls and loaded on first
// use of an unknown scope; the TTL acts as the scope eviction policy.
type ScopeCache struct {
	client *redis.Client
	config config.RedisConfig
	logger *zap.Logger
	stats  *cacheStats
}

// cacheStats tracks cache performance metrics
type cacheStats struct {
	hits   int64
	misses int64
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	HitRate   float64 `json:"hit_rate"`
	TotalKeys int64   `json:"total_keys"`
}

// NewScopeCache creates a Redis-backed scope snapshot cache
func NewScopeCache(cfg config.RedisConfig, logger *zap.Logger) (*ScopeCache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = cfg.MaxConnections
	opts.MinIdleConns = cfg.MinIdleConns

	cache := &ScopeCache{
		client: redis.NewClient(opts),
		config: cfg,
		logger: logger,
		stats:  &cacheStats{},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := cache.client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Scope cache initialized",
		zap.String("redis_url", maskRedisURL(cfg.URL)),
		zap.Int("max_connections", cfg.MaxConnections),
		zap.Duration("default_ttl", cfg.DefaultTTL))

	return cache, nil
}

// Save writes a scope snapshot with the configured TTL. Every write refreshes
// the TTL, so actively used scopes stay cached.
func (sc *ScopeCache) Save(ctx context.Context, snap redaction.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal scope snapshot: %w", err)
	}

	key := sc.scopeKey(snap.ScopeID)
	if err := sc.client.Set(ctx, key, data, sc.config.DefaultTTL).Err(); err != nil {
		sc.logger.Error("Failed to cache scope snapshot", zap.Error(err))
		return fmt.Errorf("failed to cache scope snapshot: %w", err)
	}

	sc.logger.Debug("Scope snapshot cached",
		zap.String("key", key),
		zap.Int("entries", len(snap.Entries)))

	return nil
}

// Load returns the cached snapshot for a scope, or found=false on a miss.
// A corrupted entry is deleted and treated as a miss rather than an error.
func (sc *ScopeCache) Load(ctx context.Context, scopeID string) (redaction.Snapshot, bool, error) {
	key := sc.scopeKey(scopeID)

	data, err := sc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		sc.stats.misses++
		return redaction.Snapshot{}, false, nil
	} else if err != nil {
		sc.stats.misses++
		return redaction.Snapshot{}, false, fmt.Errorf("cache lookup failed: %w", err)
	}

	var snap redaction.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		sc.logger.Error("Failed to unmarshal cached snapshot", zap.Error(err))
		sc.client.Del(ctx, key)
		sc.stats.misses++
		return redaction.Snapshot{}, false, nil
	}

	sc.stats.hits++
	sc.logger.Debug("Scope snapshot cache hit",
		zap.String("key", key),
		zap.Int("entries", len(snap.Entries)))

	return snap, true, nil
}

// Delete removes a scope's cached snapshot, used on explicit scope teardown.
func (sc *ScopeCache) Delete(ctx context.Context, scopeID string) error {
	return sc.client.Del(ctx, sc.scopeKey(scopeID)).Err()
}

// Clear removes all cached scope snapshots
func (sc *ScopeCache) Clear(ctx context.Context) error {
	pattern := sc.config.KeyPrefix + ":scope:*"

	iter := sc.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	// Delete keys in batches
	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := sc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			sc.logger.Error("Failed to delete cache keys", zap.Error(err))
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	sc.logger.Info("Scope cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// GetStats returns cache performance statistics
func (sc *ScopeCache) GetStats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{
		Hits:   sc.stats.hits,
		Misses: sc.stats.misses,
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	keys, err := sc.client.DBSize(ctx).Result()
	if err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Close closes the Redis connection
func (sc *ScopeCache) Close() error {
	if sc.client != nil {
		return sc.client.Close()
	}
	return nil
}

func (sc *ScopeCache) scopeKey(scopeID string) string {
	return fmt.Sprintf("%s:scope:%s", sc.config.KeyPrefix, scopeID)
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
