package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	taskmodels "taskdesk/internal/task/models"
	id "taskdesk/pkg/domain"
	pstrings "taskdesk/pkg/platform/strings"
)

type ProfileCacheSuite struct {
	suite.Suite
	mr    *miniredis.Miniredis
	cache *RedisProfileCache
	ctx   context.Context
}

func TestProfileCacheSuite(t *testing.T) {
	suite.Run(t, new(ProfileCacheSuite))
}

func (s *ProfileCacheSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	s.cache = NewRedisProfileCache(client, 30*time.Second)
	s.ctx = context.Background()
}

func (s *ProfileCacheSuite) profile() taskmodels.Profile {
	return taskmodels.Profile{
		ID:        id.NewProfileID(),
		Email:     "kim@firm.test",
		FullName:  pstrings.Ptr("Kim Park"),
		Role:      id.RoleStaff,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func (s *ProfileCacheSuite) TestRoundTrip() {
	p := s.profile()
	s.Require().NoError(s.cache.Set(s.ctx, p))

	got, ok, err := s.cache.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(p, got)
}

func (s *ProfileCacheSuite) TestMiss() {
	_, ok, err := s.cache.Get(s.ctx, id.NewProfileID())
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ProfileCacheSuite) TestExpiry() {
	p := s.profile()
	s.Require().NoError(s.cache.Set(s.ctx, p))
	s.mr.FastForward(31 * time.Second)

	_, ok, err := s.cache.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ProfileCacheSuite) TestDelete() {
	p := s.profile()
	s.Require().NoError(s.cache.Set(s.ctx, p))
	s.Require().NoError(s.cache.Delete(s.ctx, p.ID))

	_, ok, err := s.cache.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ProfileCacheSuite) TestCorruptEntry() {
	p := s.profile()
	s.Require().NoError(s.mr.Set(profileKeyPrefix+p.ID.String(), "{not json"))
	_, _, err := s.cache.Get(s.ctx, p.ID)
	s.Error(err)
}
