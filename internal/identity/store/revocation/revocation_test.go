package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"taskdesk/pkg/platform/sentinel"
)

type RevocationSuite struct {
	suite.Suite
	ctx context.Context
	now time.Time
}

func TestRevocationSuite(t *testing.T) {
	suite.Run(t, new(RevocationSuite))
}

func (s *RevocationSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
}

func (s *RevocationSuite) TestInMemory() {
	s.Run("revoked until expiry", func() {
		trl := NewInMemoryTRL(WithInMemoryClock(func() time.Time { return s.now }))
		s.Require().NoError(trl.RevokeToken(s.ctx, "jti-1", time.Minute))

		revoked, err := trl.IsRevoked(s.ctx, "jti-1")
		s.Require().NoError(err)
		s.True(revoked)

		s.now = s.now.Add(2 * time.Minute)
		revoked, err = trl.IsRevoked(s.ctx, "jti-1")
		s.Require().NoError(err)
		s.False(revoked)
	})

	s.Run("unknown tokens are not revoked", func() {
		trl := NewInMemoryTRL()
		revoked, err := trl.IsRevoked(s.ctx, "missing")
		s.Require().NoError(err)
		s.False(revoked)
	})

	s.Run("rejects non-positive ttl", func() {
		trl := NewInMemoryTRL()
		err := trl.RevokeToken(s.ctx, "jti-2", 0)
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("purge drops expired entries", func() {
		now := s.now
		trl := NewInMemoryTRL(WithInMemoryClock(func() time.Time { return now }))
		s.Require().NoError(trl.RevokeToken(s.ctx, "short", time.Second))
		s.Require().NoError(trl.RevokeToken(s.ctx, "long", time.Hour))

		now = now.Add(time.Minute)
		s.Equal(1, trl.Purge())

		revoked, err := trl.IsRevoked(s.ctx, "long")
		s.Require().NoError(err)
		s.True(revoked)
	})
}

func (s *RevocationSuite) TestRedis() {
	mr := miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	trl := NewRedisTRL(client)

	s.Run("revoked until the key expires", func() {
		s.Require().NoError(trl.RevokeToken(s.ctx, "jti-r", time.Minute))

		revoked, err := trl.IsRevoked(s.ctx, "jti-r")
		s.Require().NoError(err)
		s.True(revoked)

		mr.FastForward(2 * time.Minute)
		revoked, err = trl.IsRevoked(s.ctx, "jti-r")
		s.Require().NoError(err)
		s.False(revoked)
	})

	s.Run("empty jti is a no-op", func() {
		s.Require().NoError(trl.RevokeToken(s.ctx, "", time.Minute))
		revoked, err := trl.IsRevoked(s.ctx, "")
		s.Require().NoError(err)
		s.False(revoked)
	})

	s.Run("backend errors surface", func() {
		mr.SetError("READONLY")
		defer mr.SetError("")
		_, err := trl.IsRevoked(s.ctx, "jti-r")
		s.Error(err)
	})
}
