package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"taskdesk/internal/identity/models"
	taskmodels "taskdesk/internal/task/models"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/httputil"
	authmw "taskdesk/pkg/platform/middleware/auth"
	"taskdesk/pkg/requestcontext"
)

// Service defines the identity operations exposed over HTTP.
type Service interface {
	Signup(ctx context.Context, req models.SignupRequest) (models.SignupResult, error)
	Login(ctx context.Context, req models.LoginRequest) (models.LoginResult, error)
	Logout(ctx context.Context, jti string, expiresAt time.Time) error
	Me(ctx context.Context) (taskmodels.Profile, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts signup and login publicly and the rest behind requireAuth.
func (h *Handler) Register(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Post("/auth/signup", h.HandleSignup)
	r.Post("/auth/login", h.HandleLogin)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/auth/logout", h.HandleLogout)
		r.Get("/auth/me", h.HandleMe)
	})
}

type signupBody struct {
	models.SignupRequest
}

func (b *signupBody) Validate() error {
	b.Email = strings.TrimSpace(b.Email)
	if b.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if b.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	return nil
}

type loginBody struct {
	models.LoginRequest
}

func (b *loginBody) Validate() error {
	b.Email = strings.TrimSpace(b.Email)
	if b.Email == "" || b.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	return nil
}

// HandleSignup handles POST /auth/signup. The user must log in afterwards.
func (h *Handler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[signupBody](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Signup(ctx, req.SignupRequest)
	if err != nil {
		h.logger.WarnContext(ctx, "signup failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[loginBody](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Login(ctx, req.LoginRequest)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "user logged in",
		"profile_id", res.Profile.ID.String(),
		"device", requestcontext.Device(ctx),
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleLogout handles POST /auth/logout by revoking the presented token.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Logout(ctx, authmw.TokenID(ctx), authmw.TokenExpiry(ctx)); err != nil {
		h.logger.ErrorContext(ctx, "logout failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Me(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, meResponse{
		Profile:     profile,
		DisplayName: profile.DisplayName(),
		Initials:    profile.Initials(),
	})
}

type meResponse struct {
	taskmodels.Profile
	DisplayName string `json:"display_name"`
	Initials    string `json:"initials"`
}
