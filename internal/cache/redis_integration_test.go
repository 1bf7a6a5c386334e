//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civic/internal/cache"
	"civic/internal/platform/logger"
	"civic/pkg/platform/sentinel"
	"civic/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *cache.RedisStore
	cache *cache.ResolutionCache
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = cache.NewRedisStore(s.redis.Client, cache.WithKeyPrefix("civic-test:"))
	s.cache = cache.NewResolutionCache(s.store, cache.WithLogger(logger.Discard()))
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushPrefix(context.Background(), "civic-test:"))
}

func (s *RedisStoreSuite) TestJurisdictionSurvivesNewCacheInstance() {
	ctx := context.Background()
	want := sacramento()
	s.Require().NoError(s.cache.PutJurisdiction(ctx, want))

	restarted := cache.NewResolutionCache(cache.NewRedisStore(s.redis.Client, cache.WithKeyPrefix("civic-test:")),
		cache.WithLogger(logger.Discard()))
	got, ok := restarted.Jurisdiction(ctx, "95814")
	s.Require().True(ok)
	s.Equal(want, got)
}

func (s *RedisStoreSuite) TestKeysArePrefixedAndExpire() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, "zip:95814", []byte("x"), time.Minute))

	ttl, err := s.redis.Client.TTL(ctx, "civic-test:zip:95814").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *RedisStoreSuite) TestMissAndDelete() {
	ctx := context.Background()
	_, err := s.store.Get(ctx, "zip:10001")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(s.store.Set(ctx, "zip:10001", []byte("x"), time.Minute))
	s.Require().NoError(s.store.Delete(ctx, "zip:10001"))
	_, err = s.store.Get(ctx, "zip:10001")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestCorruptEntryIsDeleted() {
	ctx := context.Background()
	s.Require().NoError(s.store.Set(ctx, cache.ZipKey("95814"), []byte("garbage"), time.Minute))

	_, ok := s.cache.Jurisdiction(ctx, "95814")
	s.False(ok)
	_, err := s.store.Get(ctx, cache.ZipKey("95814"))
	s.ErrorIs(err, sentinel.ErrNotFound)
}
