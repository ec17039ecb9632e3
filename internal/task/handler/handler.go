// Package handler exposes the task session over HTTP. It holds no task state
// of its own; every request resolves the caller's session through the
// session provider.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"taskdesk/internal/task/derive"
	"taskdesk/internal/task/models"
	"taskdesk/internal/task/service"
	id "taskdesk/pkg/domain"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/platform/httputil"
	"taskdesk/pkg/requestcontext"
)

const (
	maxTitleLength       = 500
	maxDescriptionLength = 10000
)

// SessionProvider resolves the caller's loaded session.
type SessionProvider interface {
	Current(ctx context.Context) (*service.Session, error)
	Refresh(ctx context.Context) (*service.Session, error)
	Invalidate(profileID id.ProfileID)
}

// ProfileInvalidator drops cached copies of a profile after its role changed.
type ProfileInvalidator interface {
	InvalidateProfile(ctx context.Context, profileID id.ProfileID)
}

type Handler struct {
	sessions SessionProvider
	profiles ProfileInvalidator
	logger   *slog.Logger
}

func New(sessions SessionProvider, profiles ProfileInvalidator, logger *slog.Logger) *Handler {
	return &Handler{sessions: sessions, profiles: profiles, logger: logger}
}

// Register mounts the task and team routes. Callers apply authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/tasks", h.HandleList)
	r.Post("/tasks", h.HandleCreate)
	r.Get("/tasks/assignees", h.HandleAssignees)
	r.Get("/tasks/{id}", h.HandleGet)
	r.Put("/tasks/{id}", h.HandleUpdate)
	r.Patch("/tasks/{id}/status", h.HandleChangeStatus)
	r.Post("/tasks/{id}/delete-request", h.HandleRequestDelete)
	r.Post("/tasks/delete/{token}/confirm", h.HandleConfirmDelete)
	r.Post("/tasks/delete/{token}/cancel", h.HandleCancelDelete)
	r.Get("/team", h.HandleTeam)
	r.Patch("/team/{id}/role", h.HandleSetRole)
}

// HandleList handles GET /tasks?status=&priority=&q=&refresh=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	criteria, err := derive.ParseCriteria(q.Get("status"), q.Get("priority"), q.Get("q"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var session *service.Session
	if refresh, _ := strconv.ParseBool(q.Get("refresh")); refresh {
		session, err = h.sessions.Refresh(ctx)
	} else {
		session, err = h.sessions.Current(ctx)
	}
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	view, err := session.View(ctx, criteria)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	profile, _ := session.Profile()
	now := requestcontext.Now(ctx)

	tasks := make([]taskResponse, 0)
	for t := range view.Tasks {
		tasks = append(tasks, toTaskResponse(session, t, now))
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{
		Profile: profile,
		Stats:   view.Stats,
		Tasks:   tasks,
		Filters: criteria,
	})
}

// HandleGet handles GET /tasks/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, err := id.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	session, err := h.sessions.Current(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	task, err := session.Task(taskID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTaskResponse(session, task, requestcontext.Now(ctx)))
}

// HandleCreate handles POST /tasks.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := httputil.DecodeAndPrepare[taskBody](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	session, err := h.sessions.Current(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	task, err := session.Create(ctx, body.TaskInput)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toTaskResponse(session, task, requestcontext.Now(ctx)))
}

// HandleUpdate handles PUT /tasks/{id}.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, err := id.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	body, ok := httputil.DecodeAndPrepare[taskBody](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	session, err := h.sessions.Current(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	task, err := session.Update(ctx, taskID, body.TaskInput)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTaskResponse(session, task, requestcontext.Now(ctx)))
}

// HandleChangeStatus handles PATCH /tasks/{id}/status.
func (h *Handler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, err := id.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	body, ok := httputil.DecodeAndPrepare[statusBody](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	session, err := h.sessions.Current(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	task, err := session.ChangeStatus(ctx, taskID, id.TaskStatus(body.Status))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTaskResponse(session, task, requestcontext.Now(ctx)))
}

// HandleRequestDelete handles POST /tasks/{id}/delete-request. The task stays
// until the returned token is confirmed.
func (h *Handler) HandleRequestDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskID, err := id.ParseTaskID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	session, err := h.sessions.Current(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	req, err := session.RequestDelete(ctx, taskID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, req)
}

// HandleConfirmDelete handles POST /tasks/delete/{token}/confirm.
func (h *Handler) HandleConfirmDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, err := service.ParseConfirmationToken(chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	session, err := h.sessions.Current(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := session.ConfirmDelete(ctx, token); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCancelDelete handles POST /tasks/delete/{token}/cancel.
func (h *Handler) HandleCancelDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, err := service.ParseConfirmationToken(chi.URLParam(r, "token"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	session, err := h.sessions.Current(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if !session.CancelDelete(token) {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeNotFound, "no pending deletion for token"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAssignees handles GET /tasks/assignees. Staff receive an empty list.
func (h *Handler) HandleAssignees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := h.sessions.Current(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	profiles, err := session.AssignmentOptions()
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	options := make([]assigneeOption, 0, len(profiles))
	for _, p := range profiles {
		options = append(options, assigneeOption{ID: p.ID, Label: p.DisplayName(), Role: p.Role})
	}
	httputil.WriteJSON(w, http.StatusOK, assigneesResponse{
		Options:       options,
		AllowUnassign: len(options) > 0,
	})
}

// HandleTeam handles GET /team?q=. Admin only.
func (h *Handler) HandleTeam(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := h.sessions.Current(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	team, err := session.Team(ctx, r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTeamResponse(team))
}

// HandleSetRole handles PATCH /team/{id}/role. On success the target's cached
// profile and session are dropped so their next request sees the new role.
func (h *Handler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target, err := id.ParseProfileID(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	body, ok := httputil.DecodeAndPrepare[roleBody](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	session, err := h.sessions.Current(ctx)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := session.SetRole(ctx, target, id.Role(body.Role)); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if h.profiles != nil {
		h.profiles.InvalidateProfile(ctx, target)
	}
	h.sessions.Invalidate(target)
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	Notice           string `json:"notice"`
}

// writeError adds the user-facing notice to the standard error body.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := httputil.StatusFor(code)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, "task request failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	resp := errorResponse{Error: string(code), Notice: service.Notice(err)}
	if code != dErrors.CodeInternal {
		resp.ErrorDescription = dErrors.MessageOf(err)
	}
	httputil.WriteJSON(w, status, resp)
}

type taskBody struct {
	models.TaskInput
}

func (b *taskBody) Validate() error {
	if len(b.Title) > maxTitleLength {
		return dErrors.New(dErrors.CodeValidation, "title must be at most 500 characters")
	}
	if b.Description != nil && len(*b.Description) > maxDescriptionLength {
		return dErrors.New(dErrors.CodeValidation, "description must be at most 10000 characters")
	}
	return nil
}

type statusBody struct {
	Status string `json:"status"`
}

func (b *statusBody) Validate() error {
	b.Status = strings.TrimSpace(b.Status)
	if b.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	return nil
}

type roleBody struct {
	Role string `json:"role"`
}

func (b *roleBody) Validate() error {
	b.Role = strings.TrimSpace(b.Role)
	if b.Role == "" {
		return dErrors.New(dErrors.CodeValidation, "role is required")
	}
	return nil
}
