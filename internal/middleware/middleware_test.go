package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/combat-engine/internal/services"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestRequestIDAndLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	var seen string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}), RequestID(), Logger(log))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/combat/abc", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get("X-Request-ID"))
	assert.Contains(t, buf.String(), "status=418")
	assert.Contains(t, buf.String(), "request_id="+seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "given")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "given", seen)
}

func TestThrottle(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := Throttle(services.NewRedisService(rdb, slog.Default()), time.Second, slog.Default())(okHandler())
	post := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/combat/s/moves", nil)
		if user != "" {
			req.Header.Set(UserHeader, user)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusTeapot, post("u1"))
	assert.Equal(t, http.StatusTooManyRequests, post("u1"))
	assert.Equal(t, http.StatusTeapot, post("u2"))
	assert.Equal(t, http.StatusTeapot, post(""))

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/combat/s", nil)
	req.Header.Set(UserHeader, "u1")
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)

	mr.FastForward(2 * time.Second)
	assert.Equal(t, http.StatusTeapot, post("u1"))
}

type brokenThrottler struct{}

func (brokenThrottler) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	return false, errors.New("unreachable")
}

func TestThrottleFailsOpen(t *testing.T) {
	h := Throttle(brokenThrottler{}, time.Second, slog.Default())(okHandler())
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(UserHeader, "u1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)
}
