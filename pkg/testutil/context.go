package testutil

import (
	"context"
	"net/http"
	"time"

	id "taskdesk/pkg/domain"
	authmw "taskdesk/pkg/platform/middleware/auth"
	"taskdesk/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// If the userID is not a valid UUID, it will not be added to the context.
func WithUserID(req *http.Request, userID string) *http.Request {
	if parsedUserID, err := id.ParseProfileID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsedUserID))
	}
	return req
}

// WithToken adds the authenticating token's jti and expiry, as RequireAuth does.
func WithToken(req *http.Request, jti string, expiresAt time.Time) *http.Request {
	ctx := context.WithValue(req.Context(), authmw.ContextKeyTokenID, jti)
	ctx = context.WithValue(ctx, authmw.ContextKeyTokenExpiry, expiresAt)
	return req.WithContext(ctx)
}

// WithAuth adds the user ID and a fixed request time.
// This is the typical state for an authenticated request under test.
// An invalid user ID is silently ignored.
func WithAuth(req *http.Request, userID string, now time.Time) *http.Request {
	req = WithUserID(req, userID)
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
