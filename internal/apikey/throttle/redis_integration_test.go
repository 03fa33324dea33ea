//go:build integration

package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"likeness/internal/apikey/throttle"
	id "likeness/pkg/domain"
	"likeness/pkg/testutil/containers"
)

type RedisThrottleSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisThrottleSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisThrottleSuite))
}

func (s *RedisThrottleSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisThrottleSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisThrottleSuite) TestReplicasShareTheWindow() {
	ctx := context.Background()
	keyID := id.APIKeyID(uuid.New())
	replicaA := throttle.NewRedis(s.redis.Client, time.Minute)
	replicaB := throttle.NewRedis(s.redis.Client, time.Minute)

	ok, err := replicaA.Acquire(ctx, keyID)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = replicaB.Acquire(ctx, keyID)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisThrottleSuite) TestWindowExpires() {
	ctx := context.Background()
	keyID := id.APIKeyID(uuid.New())
	th := throttle.NewRedis(s.redis.Client, time.Second)

	ok, err := th.Acquire(ctx, keyID)
	s.Require().NoError(err)
	s.True(ok)

	s.Eventually(func() bool {
		ok, err := th.Acquire(ctx, keyID)
		return err == nil && ok
	}, 5*time.Second, 200*time.Millisecond)
}
