package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"taskdesk/internal/identity/cache"
	"taskdesk/internal/identity/models"
	"taskdesk/internal/identity/store/credential"
	"taskdesk/internal/identity/store/revocation"
	"taskdesk/internal/identity/token"
	"taskdesk/internal/platform/metrics"
	"taskdesk/internal/task/store/memory"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/audit"
	"taskdesk/pkg/platform/audit/publisher"
	auditmemory "taskdesk/pkg/platform/audit/store/memory"
	pstrings "taskdesk/pkg/platform/strings"
	"taskdesk/pkg/requestcontext"
)

type inlineTx struct{ err error }

func (t inlineTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if t.err != nil {
		return t.err
	}
	return fn(ctx)
}

type IdentityServiceSuite struct {
	suite.Suite
	ctx         context.Context
	now         time.Time
	profiles    *memory.Store
	credentials *credential.InMemoryStore
	revocations *revocation.InMemoryTRL
	jwt         *token.JWTService
	auditStore  *auditmemory.InMemoryStore
	metrics     *metrics.Metrics
	service     *Service
}

func TestIdentityServiceSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceSuite))
}

func (s *IdentityServiceSuite) SetupTest() {
	s.now = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.profiles = memory.New()
	s.credentials = credential.NewInMemoryStore()
	s.revocations = revocation.NewInMemoryTRL(revocation.WithInMemoryClock(func() time.Time { return s.now }))
	s.jwt = token.NewJWTService("secret", "taskdesk", "taskdesk-api")
	s.auditStore = auditmemory.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.service = s.newService(inlineTx{})
}

func (s *IdentityServiceSuite) newService(tx TxRunner, opts ...Option) *Service {
	opts = append([]Option{
		WithAdminSignupCode("letmein"),
		WithBcryptCost(bcrypt.MinCost),
		WithAccessTokenTTL(30 * time.Minute),
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
		WithMetrics(s.metrics),
	}, opts...)
	svc, err := New(s.profiles, s.credentials, tx, s.jwt, s.revocations, opts...)
	s.Require().NoError(err)
	return svc
}

func (s *IdentityServiceSuite) signup(email string, admin bool, code string) models.SignupResult {
	res, err := s.service.Signup(s.ctx, models.SignupRequest{
		Email:        email,
		Password:     "hunter22",
		FullName:     pstrings.Ptr("  Robin Lee "),
		RequestAdmin: admin,
		AdminCode:    code,
	})
	s.Require().NoError(err)
	return res
}

func (s *IdentityServiceSuite) TestNew_RequiresCollaborators() {
	_, err := New(nil, s.credentials, inlineTx{}, s.jwt, s.revocations)
	s.Error(err)
}

func (s *IdentityServiceSuite) TestSignup() {
	s.Run("creates a staff profile and credential", func() {
		res := s.signup("robin@firm.test", false, "")
		s.Equal(id.RoleStaff, res.Profile.Role)
		s.Empty(res.Notice)
		s.Equal("Robin Lee", *res.Profile.FullName)
		s.Equal(s.now, res.Profile.CreatedAt)

		stored, err := s.profiles.GetProfile(s.ctx, res.Profile.ID)
		s.Require().NoError(err)
		s.Equal(res.Profile.Email, stored.Email)

		cred, err := s.credentials.FindByEmail(s.ctx, "ROBIN@firm.test")
		s.Require().NoError(err)
		s.Equal(res.Profile.ID, cred.ProfileID)
		s.NotEqual([]byte("hunter22"), cred.PasswordHash)
		s.InDelta(1, testutil.ToFloat64(s.metrics.UsersCreated.WithLabelValues("staff")), 0)
	})

	s.Run("correct admin code grants admin", func() {
		res := s.signup("ada@firm.test", true, "letmein")
		s.Equal(id.RoleAdmin, res.Profile.Role)
		s.Empty(res.Notice)
	})

	s.Run("wrong admin code falls back to staff with a notice", func() {
		res := s.signup("mo@firm.test", true, "guess")
		s.Equal(id.RoleStaff, res.Profile.Role)
		s.Equal(NoticeAdminCodeRejected, res.Notice)
	})

	s.Run("admin signup is disabled without a configured code", func() {
		svc := s.newService(inlineTx{}, WithAdminSignupCode(""))
		res, err := svc.Signup(s.ctx, models.SignupRequest{Email: "x@firm.test", Password: "hunter22", RequestAdmin: true})
		s.Require().NoError(err)
		s.Equal(id.RoleStaff, res.Profile.Role)
		s.Equal(NoticeAdminCodeRejected, res.Notice)
	})

	s.Run("duplicate email conflicts", func() {
		_, err := s.service.Signup(s.ctx, models.SignupRequest{Email: "Robin@Firm.test", Password: "hunter22"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("signup emits an audit event", func() {
		events, err := s.auditStore.ListAll(s.ctx)
		s.Require().NoError(err)
		s.Require().NotEmpty(events)
		s.Equal(string(audit.EventUserCreated), events[0].Action)
	})
}

func (s *IdentityServiceSuite) TestSignup_Validation() {
	cases := map[string]models.SignupRequest{
		"missing email":  {Password: "hunter22"},
		"invalid email":  {Email: "not-an-email", Password: "hunter22"},
		"short password": {Email: "a@firm.test", Password: "12345"},
	}
	for name, req := range cases {
		s.Run(name, func() {
			_, err := s.service.Signup(s.ctx, req)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func (s *IdentityServiceSuite) TestSignup_TransactionFailure() {
	svc := s.newService(inlineTx{err: errors.New("db down")})
	_, err := svc.Signup(s.ctx, models.SignupRequest{Email: "z@firm.test", Password: "hunter22"})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = s.credentials.FindByEmail(s.ctx, "z@firm.test")
	s.Error(err)
}

func (s *IdentityServiceSuite) TestLogin() {
	created := s.signup("robin@firm.test", false, "")

	s.Run("issues a token for valid credentials", func() {
		res, err := s.service.Login(s.ctx, models.LoginRequest{Email: " robin@FIRM.test ", Password: "hunter22"})
		s.Require().NoError(err)
		s.Equal("Bearer", res.TokenType)
		s.Equal(created.Profile.ID, res.Profile.ID)
		s.Equal(s.now.Add(30*time.Minute), res.ExpiresAt)
		s.InDelta(1, testutil.ToFloat64(s.metrics.Logins.WithLabelValues("success")), 0)
	})

	s.Run("wrong password and unknown email look the same", func() {
		_, errWrong := s.service.Login(s.ctx, models.LoginRequest{Email: "robin@firm.test", Password: "nope-nope"})
		_, errUnknown := s.service.Login(s.ctx, models.LoginRequest{Email: "ghost@firm.test", Password: "hunter22"})
		s.True(dErrors.HasCode(errWrong, dErrors.CodeUnauthorized))
		s.Equal(dErrors.MessageOf(errWrong), dErrors.MessageOf(errUnknown))
		s.InDelta(2, testutil.ToFloat64(s.metrics.Logins.WithLabelValues("failure")), 0)
	})

	s.Run("requires both fields", func() {
		_, err := s.service.Login(s.ctx, models.LoginRequest{Email: "robin@firm.test"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *IdentityServiceSuite) TestLogout() {
	s.Run("revokes the token until it expires", func() {
		s.Require().NoError(s.service.Logout(s.ctx, "jti-1", s.now.Add(10*time.Minute)))
		revoked, err := s.service.IsTokenRevoked(s.ctx, "jti-1")
		s.Require().NoError(err)
		s.True(revoked)
	})

	s.Run("already expired tokens need no revocation", func() {
		s.Require().NoError(s.service.Logout(s.ctx, "jti-2", s.now.Add(-time.Minute)))
		revoked, err := s.service.IsTokenRevoked(s.ctx, "jti-2")
		s.Require().NoError(err)
		s.False(revoked)
	})

	s.Run("tokens without an id are rejected", func() {
		err := s.service.Logout(s.ctx, "", s.now.Add(time.Minute))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *IdentityServiceSuite) TestMe() {
	created := s.signup("robin@firm.test", false, "")

	s.Run("unauthenticated", func() {
		_, err := s.service.Me(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("returns the caller's profile", func() {
		p, err := s.service.Me(requestcontext.WithUserID(s.ctx, created.Profile.ID))
		s.Require().NoError(err)
		s.Equal(created.Profile.Email, p.Email)
	})

	s.Run("unknown profile is not found", func() {
		_, err := s.service.Me(requestcontext.WithUserID(s.ctx, id.NewProfileID()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *IdentityServiceSuite) TestGetProfile_Cache() {
	mr := miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.T().Cleanup(func() { _ = client.Close() })
	profileCache := cache.NewRedisProfileCache(client, time.Minute)
	svc := s.newService(inlineTx{}, WithProfileCache(profileCache))

	created, err := svc.Signup(s.ctx, models.SignupRequest{Email: "kim@firm.test", Password: "hunter22"})
	s.Require().NoError(err)
	profileID := created.Profile.ID

	s.Run("miss populates the cache", func() {
		_, err := svc.GetProfile(s.ctx, profileID)
		s.Require().NoError(err)
		_, ok, err := profileCache.Get(s.ctx, profileID)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("stale cached role is served until invalidated", func() {
		s.Require().NoError(s.profiles.UpdateProfileRole(s.ctx, profileID, id.RoleAdmin))

		p, err := svc.GetProfile(s.ctx, profileID)
		s.Require().NoError(err)
		s.Equal(id.RoleStaff, p.Role)

		svc.InvalidateProfile(s.ctx, profileID)
		p, err = svc.GetProfile(s.ctx, profileID)
		s.Require().NoError(err)
		s.Equal(id.RoleAdmin, p.Role)
	})

	s.Run("cache outage falls back to the store", func() {
		mr.SetError("LOADING")
		defer mr.SetError("")
		p, err := svc.GetProfile(s.ctx, profileID)
		s.Require().NoError(err)
		s.Equal(profileID, p.ID)
	})
}

func (s *IdentityServiceSuite) TestCurrentUser() {
	_, ok := s.service.CurrentUser(s.ctx)
	s.False(ok)

	profileID := id.NewProfileID()
	got, ok := s.service.CurrentUser(requestcontext.WithUserID(s.ctx, profileID))
	s.True(ok)
	s.Equal(profileID, got)
}
