// Package service implements signup, login and logout, and resolves the
// authenticated profile for the task session.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"golang.org/x/crypto/bcrypt"

	"taskdesk/internal/identity/models"
	"taskdesk/internal/identity/token"
	"taskdesk/internal/platform/metrics"
	taskmodels "taskdesk/internal/task/models"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/audit"
	"taskdesk/pkg/platform/sentinel"
	pstrings "taskdesk/pkg/platform/strings"
	"taskdesk/pkg/requestcontext"
)

const (
	minPasswordLength     = 6
	defaultAccessTokenTTL = time.Hour
	tokenTypeBearer       = "Bearer"

	// NoticeAdminCodeRejected is returned when a signup asked for admin with a
	// wrong or missing code.
	NoticeAdminCodeRejected = "Invalid admin code. Registering as Staff instead."
)

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")

type ProfileStore interface {
	CreateProfile(ctx context.Context, profile taskmodels.Profile) error
	GetProfile(ctx context.Context, profileID id.ProfileID) (taskmodels.Profile, error)
}

type CredentialStore interface {
	Create(ctx context.Context, cred models.Credential) error
	FindByEmail(ctx context.Context, email string) (models.Credential, error)
}

// TxRunner runs fn atomically. Stores called with the ctx passed to fn join
// the transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type TokenIssuer interface {
	GenerateAccessToken(profileID id.ProfileID, role id.Role, now time.Time, expiresIn time.Duration) (token.Issued, error)
}

type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// ProfileCache is optional. A miss returns ok=false and no error.
type ProfileCache interface {
	Get(ctx context.Context, profileID id.ProfileID) (taskmodels.Profile, bool, error)
	Set(ctx context.Context, profile taskmodels.Profile) error
	Delete(ctx context.Context, profileID id.ProfileID) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	profiles       ProfileStore
	credentials    CredentialStore
	tx             TxRunner
	tokens         TokenIssuer
	revocations    RevocationList
	cache          ProfileCache
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	adminCode      string
	accessTTL      time.Duration
	bcryptCost     int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithProfileCache(cache ProfileCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithAdminSignupCode enables admin self-registration. Empty disables it.
func WithAdminSignupCode(code string) Option {
	return func(s *Service) {
		s.adminCode = code
	}
}

func WithAccessTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

func New(
	profiles ProfileStore,
	credentials CredentialStore,
	tx TxRunner,
	tokens TokenIssuer,
	revocations RevocationList,
	opts ...Option,
) (*Service, error) {
	if profiles == nil || credentials == nil || tx == nil || tokens == nil || revocations == nil {
		return nil, errors.New("identity service: profiles, credentials, tx, tokens and revocations are required")
	}
	s := &Service{
		profiles:    profiles,
		credentials: credentials,
		tx:          tx,
		tokens:      tokens,
		revocations: revocations,
		logger:      slog.Default(),
		accessTTL:   defaultAccessTokenTTL,
		bcryptCost:  bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Signup creates a profile and its credential. It never signs the user in.
// A request for admin with a wrong code still succeeds, as staff, with a notice.
func (s *Service) Signup(ctx context.Context, req models.SignupRequest) (models.SignupResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || !govalidator.IsEmail(email) {
		return models.SignupResult{}, dErrors.New(dErrors.CodeValidation, "a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return models.SignupResult{}, dErrors.New(dErrors.CodeValidation, "password must be at least 6 characters")
	}

	role := id.RoleStaff
	var notice string
	if req.RequestAdmin {
		if s.adminCodeMatches(req.AdminCode) {
			role = id.RoleAdmin
		} else {
			notice = NoticeAdminCodeRejected
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return models.SignupResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	now := requestcontext.Now(ctx)
	profile := taskmodels.Profile{
		ID:        id.NewProfileID(),
		Email:     email,
		FullName:  pstrings.TrimToNil(req.FullName),
		Role:      role,
		CreatedAt: now,
	}
	cred := models.Credential{
		ProfileID:    profile.ID,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.profiles.CreateProfile(txCtx, profile); err != nil {
			return err
		}
		return s.credentials.Create(txCtx, cred)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return models.SignupResult{}, dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		return models.SignupResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}

	s.metrics.IncrementUsersCreated(role.String())
	s.emit(ctx, audit.Event{
		Action:  string(audit.EventUserCreated),
		ActorID: profile.ID,
		Subject: profile.ID.String(),
		Reason:  role.String(),
	})
	s.logger.InfoContext(ctx, "user signed up",
		"profile_id", profile.ID.String(),
		"role", role.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return models.SignupResult{Profile: profile, Notice: notice}, nil
}

// Login verifies the password and issues an access token. Unknown emails and
// wrong passwords yield the same error.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (models.LoginResult, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return models.LoginResult{}, dErrors.New(dErrors.CodeValidation, "email and password are required")
	}

	cred, err := s.credentials.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.loginFailed(ctx, email, "unknown email")
			return models.LoginResult{}, errInvalidCredentials
		}
		return models.LoginResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up credentials")
	}
	if err := bcrypt.CompareHashAndPassword(cred.PasswordHash, []byte(req.Password)); err != nil {
		s.loginFailed(ctx, email, "password mismatch")
		return models.LoginResult{}, errInvalidCredentials
	}

	profile, err := s.profiles.GetProfile(ctx, cred.ProfileID)
	if err != nil {
		return models.LoginResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}

	issued, err := s.tokens.GenerateAccessToken(profile.ID, profile.Role, requestcontext.Now(ctx), s.accessTTL)
	if err != nil {
		return models.LoginResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	s.metrics.IncrementLogin("success")
	s.emit(ctx, audit.Event{
		Action:  string(audit.EventUserLogin),
		ActorID: profile.ID,
		Subject: profile.ID.String(),
	})
	return models.LoginResult{
		AccessToken: issued.Token,
		TokenType:   tokenTypeBearer,
		ExpiresAt:   issued.ExpiresAt,
		Profile:     profile,
	}, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *Service) Logout(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "token has no id")
	}
	ttl := expiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil
	}
	if err := s.revocations.RevokeToken(ctx, jti, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	return nil
}

// IsTokenRevoked lets the auth middleware reject logged-out tokens.
func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return s.revocations.IsRevoked(ctx, jti)
}

// Me returns the caller's current profile.
func (s *Service) Me(ctx context.Context) (taskmodels.Profile, error) {
	profileID, ok := s.CurrentUser(ctx)
	if !ok {
		return taskmodels.Profile{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return s.GetProfile(ctx, profileID)
}

func (s *Service) adminCodeMatches(code string) bool {
	if s.adminCode == "" || code == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(code), []byte(s.adminCode)) == 1
}

func (s *Service) loginFailed(ctx context.Context, email, reason string) {
	s.metrics.IncrementLogin("failure")
	s.emit(ctx, audit.Event{
		Action:   string(audit.EventAuthFailed),
		Subject:  strings.ToLower(email),
		Decision: audit.DecisionDenied,
		Reason:   reason,
	})
	s.logger.WarnContext(ctx, "login failed",
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err,
			"request_id", event.RequestID,
		)
	}
}
