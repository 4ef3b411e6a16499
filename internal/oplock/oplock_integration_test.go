//go:build integration

package oplock_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"steward/internal/oplock"
	dErrors "steward/pkg/domain-errors"
	"steward/pkg/testutil/containers"
)

type OpLockSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	lock  *oplock.Lock
	ctx   context.Context
}

func TestOpLockSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OpLockSuite))
}

func (s *OpLockSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.lock = oplock.New(s.redis.Client, time.Minute)
}

func (s *OpLockSuite) TearDownSuite() {
	_ = s.redis.Client.Close()
	_ = s.redis.Container.Terminate(context.Background())
}

func (s *OpLockSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *OpLockSuite) TestSingleFlight() {
	release, err := s.lock.Acquire(s.ctx, "wipe")
	s.Require().NoError(err)

	_, err = s.lock.Acquire(s.ctx, "merge-all")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeLocked))
	s.Contains(err.Error(), "wipe")

	release()

	release2, err := s.lock.Acquire(s.ctx, "merge-all")
	s.Require().NoError(err)
	release2()
}

func (s *OpLockSuite) TestReleaseIsScopedToTheHolder() {
	release, err := s.lock.Acquire(s.ctx, "purge")
	s.Require().NoError(err)

	// A stale release from a previous holder must not free the current lock.
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	release2, err := s.lock.Acquire(s.ctx, "wipe")
	s.Require().NoError(err)

	release() // stale token, no effect

	_, err = s.lock.Acquire(s.ctx, "repair-all")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeLocked))

	release2()
}
