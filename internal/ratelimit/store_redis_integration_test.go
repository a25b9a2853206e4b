//go:build integration

package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"mutuelle/internal/ratelimit"
	"mutuelle/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *ratelimit.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = ratelimit.NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestSlidingWindow() {
	ctx := context.Background()
	start := time.Now().Truncate(time.Second)

	for i := range 2 {
		res, err := s.store.Allow(ctx, "k", 2, time.Minute, start.Add(time.Duration(i)*time.Second))
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(1-i, res.Remaining)
	}

	res, err := s.store.Allow(ctx, "k", 2, time.Minute, start.Add(2*time.Second))
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.WithinDuration(start.Add(time.Minute), res.ResetAt, 0)

	res, err = s.store.Allow(ctx, "k", 2, time.Minute, start.Add(time.Minute+time.Second))
	s.Require().NoError(err)
	s.True(res.Allowed, "the first request left the window")
}

func (s *RedisStoreSuite) TestSharedAcrossLimiters() {
	ctx := context.Background()
	a, err := ratelimit.New(s.store, ratelimit.WithRule(ratelimit.ClassSignIn, 1, time.Minute))
	s.Require().NoError(err)
	b, err := ratelimit.New(ratelimit.NewRedisStore(s.redis.Client), ratelimit.WithRule(ratelimit.ClassSignIn, 1, time.Minute))
	s.Require().NoError(err)

	res, err := a.Check(ctx, ratelimit.ClassSignIn, "ip:10.0.0.1")
	s.Require().NoError(err)
	s.True(res.Allowed)

	res, err = b.Check(ctx, ratelimit.ClassSignIn, "ip:10.0.0.1")
	s.Require().NoError(err)
	s.False(res.Allowed)
}
