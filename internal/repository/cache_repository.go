package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

const (
	defaultCacheNamespace = "gradebook"
	cacheScanCount        = 200
)

// CacheRepository keeps JSON encoded grade and dashboard views in Redis
// under a single key namespace. Without a client every read misses and
// every write is dropped.
type CacheRepository struct {
	client    redis.UniversalClient
	namespace string
	logger    *zap.Logger
}

// CacheOption customises a CacheRepository.
type CacheOption func(*CacheRepository)

// WithCacheNamespace overrides the key prefix, which lets several deployments
// share one Redis database.
func WithCacheNamespace(ns string) CacheOption {
	return func(r *CacheRepository) {
		if ns = strings.Trim(ns, ": "); ns != "" {
			r.namespace = ns
		}
	}
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client redis.UniversalClient, logger *zap.Logger, opts ...CacheOption) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &CacheRepository{client: client, namespace: defaultCacheNamespace, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *CacheRepository) key(k string) string {
	return r.namespace + ":" + k
}

func (r *CacheRepository) disabled() bool {
	return r == nil || r.client == nil
}

// Get decodes the entry stored at k into dest. An entry that no longer
// decodes is dropped and reported as a miss.
func (r *CacheRepository) Get(ctx context.Context, k string, dest interface{}) error {
	if r.disabled() {
		return appErrors.ErrCacheMiss
	}
	full := r.key(k)
	raw, err := r.client.Get(ctx, full).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return appErrors.ErrCacheMiss
	case err != nil:
		return fmt.Errorf("cache get %s: %w", full, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		r.logger.Warn("dropping undecodable cache entry", zap.String("key", full), zap.Error(err))
		if delErr := r.client.Unlink(ctx, full).Err(); delErr != nil {
			r.logger.Warn("failed to drop cache entry", zap.String("key", full), zap.Error(delErr))
		}
		return appErrors.ErrCacheMiss
	}
	return nil
}

// Set stores value at k for ttl. Entries always expire; a non-positive ttl
// is rejected.
func (r *CacheRepository) Set(ctx context.Context, k string, value interface{}, ttl time.Duration) error {
	if r.disabled() {
		return nil
	}
	if ttl <= 0 {
		return fmt.Errorf("cache set %s: ttl must be positive", k)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", k, err)
	}
	full := r.key(k)
	if err := r.client.Set(ctx, full, payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", full, err)
	}
	return nil
}

// DeleteByPattern unlinks every key in the namespace matching the glob
// pattern. Each SCAN page is removed with one pipelined UNLINK.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.disabled() {
		return nil
	}
	full := r.key(pattern)

	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, full, cacheScanCount).Result()
		if err != nil {
			return fmt.Errorf("cache scan %s: %w", full, err)
		}
		if len(keys) > 0 {
			n, err := r.unlink(ctx, keys)
			if err != nil {
				return err
			}
			removed += n
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	r.logger.Debug("cache entries invalidated", zap.String("pattern", full), zap.Int64("removed", removed))
	return nil
}

func (r *CacheRepository) unlink(ctx context.Context, keys []string) (int64, error) {
	pipe := r.client.Pipeline()
	cmds := make([]*redis.IntCmd, 0, len(keys))
	for _, k := range keys {
		cmds = append(cmds, pipe.Unlink(ctx, k))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("cache unlink %d keys: %w", len(keys), err)
	}
	var n int64
	for _, cmd := range cmds {
		n += cmd.Val()
	}
	return n, nil
}
