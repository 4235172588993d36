package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	ctx := context.Background()

	var dest map[string]string
	assert.ErrorIs(t, repo.Get(ctx, "grades:x", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "grades:x", map[string]string{"a": "b"}, time.Minute))
	assert.NoError(t, repo.DeleteByPattern(ctx, "grades:*"))

	var nilRepo *CacheRepository
	assert.ErrorIs(t, nilRepo.Get(ctx, "grades:x", &dest), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryNamespacesKeys(t *testing.T) {
	assert.Equal(t, "gradebook:grades:cs-1", NewCacheRepository(nil, nil).key("grades:cs-1"))
	assert.Equal(t, "staging:dashboard:admin", NewCacheRepository(nil, nil, WithCacheNamespace("staging:")).key("dashboard:admin"))
	assert.Equal(t, "gradebook:x", NewCacheRepository(nil, nil, WithCacheNamespace(" : ")).key("x"))
}

func TestCacheRepositoryRejectsUnboundedEntries(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	repo := NewCacheRepository(client, nil)

	err := repo.Set(context.Background(), "grades:x", 1, 0)
	assert.ErrorContains(t, err, "ttl must be positive")
}
