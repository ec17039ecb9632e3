package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"taskdesk/internal/ratelimit/models"
	"taskdesk/internal/ratelimit/store/bucket"
	"taskdesk/pkg/requestcontext"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*models.RateLimitResult, error) {
	return nil, errors.New("redis down")
}

func serve(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req = req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, "", ""))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	limit := Limit{Requests: 2, Window: time.Minute}

	t.Run("throttles per IP", func(t *testing.T) {
		m := New(bucket.NewInMemoryBucketStore(), logger, WithLimit(models.ClassAuth, limit))
		h := m.RateLimit(models.ClassAuth)(ok)

		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1").Code)
		w := serve(h, "10.0.0.1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

		w = serve(h, "10.0.0.1")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
		assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.2").Code)
	})

	t.Run("classes without a limit pass", func(t *testing.T) {
		m := New(bucket.NewInMemoryBucketStore(), logger, WithLimit(models.ClassAuth, limit))
		h := m.RateLimit(models.ClassAPI)(ok)
		for range 5 {
			assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1").Code)
		}
	})

	t.Run("disabled", func(t *testing.T) {
		m := New(bucket.NewInMemoryBucketStore(), logger, WithLimit(models.ClassAuth, limit), WithDisabled(true))
		h := m.RateLimit(models.ClassAuth)(ok)
		for range 5 {
			assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1").Code)
		}
	})

	t.Run("store failure fails open", func(t *testing.T) {
		m := New(failingStore{}, logger, WithLimit(models.ClassAuth, limit))
		h := m.RateLimit(models.ClassAuth)(ok)
		assert.Equal(t, http.StatusOK, serve(h, "10.0.0.1").Code)
	})
}
