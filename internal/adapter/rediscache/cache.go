// Package rediscache puts a Redis read-through cache in front of a TownRepository.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/town-data-etl/internal/domain"
	"github.com/couchcryptid/town-data-etl/internal/observability"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "town:latest:"

// storeIfNewer writes ARGV[1] unless the cached snapshot has a greater
// last_updated than ARGV[2]. ARGV[3] is the TTL in milliseconds.
// Returns 1 when the value was written.
var storeIfNewer = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local ok, doc = pcall(cjson.decode, cur)
  if ok and type(doc) == 'table' then
    local ts = tonumber(doc['last_updated'])
    if ts and ts > tonumber(ARGV[2]) then
      return 0
    end
  end
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// client is the subset of *redis.Client used by the cache.
type client interface {
	redis.Scripter
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewClient creates a Redis client tuned for short cache lookups.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaxRetries:   3,
	})
}

// Repository wraps a TownRepository. Reads are served from Redis when
// present. Every cache write goes through storeIfNewer, so a slow reader can
// never replace a newer snapshot with the one it loaded earlier.
// Cache failures never fail a call.
type Repository struct {
	inner   domain.TownRepository
	client  client
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a cache decorator around inner.
func New(inner domain.TownRepository, c client, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Repository {
	return &Repository{
		inner:   inner,
		client:  c,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Put writes to the inner repository and then refreshes the cache with the
// inner repository's latest snapshot, which may be newer than town when
// snapshots arrive out of order. If the refresh fails the entry is evicted.
func (r *Repository) Put(ctx context.Context, town domain.Town) error {
	if err := r.inner.Put(ctx, town); err != nil {
		return err
	}

	key := cacheKey(town.NameLower)
	err := r.refresh(ctx, key, town.NameLower)
	if err == nil {
		return nil
	}
	r.logger.Warn("cache refresh failed", "town", town.NameLower, "error", err)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Warn("cache eviction failed", "town", town.NameLower, "error", err)
	}
	return nil
}

func (r *Repository) GetLatest(ctx context.Context, nameLower string) (*domain.Town, error) {
	key := cacheKey(nameLower)

	town, err := r.lookup(ctx, key)
	switch {
	case err == nil && town != nil:
		r.metrics.CacheLookups.WithLabelValues("hit").Inc()
		return town, nil
	case err != nil:
		r.metrics.CacheLookups.WithLabelValues("error").Inc()
		r.logger.Warn("cache lookup failed", "key", key, "error", err)
	default:
		r.metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	town, err = r.inner.GetLatest(ctx, nameLower)
	if err != nil || town == nil {
		return town, err
	}

	if err := r.store(ctx, key, town); err != nil {
		r.logger.Warn("cache store failed", "key", key, "error", err)
	}
	return town, nil
}

func (r *Repository) refresh(ctx context.Context, key, nameLower string) error {
	latest, err := r.inner.GetLatest(ctx, nameLower)
	if err != nil {
		return err
	}
	if latest == nil {
		return fmt.Errorf("no snapshot for %q after put", nameLower)
	}
	return r.store(ctx, key, latest)
}

// store caches town unless a newer snapshot is already cached.
func (r *Repository) store(ctx context.Context, key string, town *domain.Town) error {
	data, err := json.Marshal(town)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return storeIfNewer.Run(ctx, r.client, []string{key}, string(data), town.LastUpdated, r.ttl.Milliseconds()).Err()
}

// lookup returns (nil, nil) on a miss.
func (r *Repository) lookup(ctx context.Context, key string) (*domain.Town, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var town domain.Town
	if err := json.Unmarshal(data, &town); err != nil {
		return nil, err
	}
	return &town, nil
}

func cacheKey(nameLower string) string {
	return keyPrefix + domain.NormalizeKey(nameLower)
}
