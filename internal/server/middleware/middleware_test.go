package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestAuth(t *testing.T) {
	h := Auth("s3cret", "/api/health")(ok)

	cases := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"missing", "/api/status", nil, http.StatusUnauthorized},
		{"wrong", "/api/status", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"x-api-key", "/api/status", map[string]string{"X-API-Key": "s3cret"}, http.StatusOK},
		{"bearer", "/api/status", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"public path", "/api/health", nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, serve(h, r).Code)
		})
	}
}

func TestAuthWebsocketQueryKey(t *testing.T) {
	h := Auth("s3cret")(ok)

	r := httptest.NewRequest(http.MethodGet, "/ws?api_key=s3cret", nil)
	r.Header.Set("Upgrade", "websocket")
	assert.Equal(t, http.StatusOK, serve(h, r).Code)

	r = httptest.NewRequest(http.MethodGet, "/api/status?api_key=s3cret", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(h, r).Code, "query key only counts on upgrades")
}

func TestAuthDisabled(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, serve(Auth("")(ok), r).Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})(ok)

	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	rec := serve(h, r)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	r.Header.Set("Origin", "http://evil.example")
	assert.Empty(t, serve(h, r).Header().Get("Access-Control-Allow-Origin"))

	r = httptest.NewRequest(http.MethodOptions, "/api/trade/buy", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	assert.Equal(t, http.StatusNoContent, serve(h, r).Code)
}

type countingLimiter struct {
	calls int
	keys  []string
	err   error
}

func (l *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	l.calls++
	l.keys = append(l.keys, key)
	if l.err != nil {
		return false, l.err
	}
	return l.calls <= limit, nil
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{}
	h := RateLimit(limiter, 2, time.Minute, slog.New(slog.DiscardHandler))(ok)

	codes := make([]int, 0, 3)
	for range 3 {
		r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		codes = append(codes, serve(h, r).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "tailbot:ratelimit:203.0.113.7", limiter.keys[0])
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("redis down")}
	h := RateLimit(limiter, 1, time.Minute, slog.New(slog.DiscardHandler))(ok)

	r := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, serve(h, r).Code)
}

func TestLoggingLevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	fail := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream"))
	})
	serve(Logging(logger)(fail), httptest.NewRequest(http.MethodGet, "/api/account/balance", nil))

	line := buf.String()
	require.NotEmpty(t, line)
	assert.Contains(t, line, "level=ERROR")
	assert.Contains(t, line, "status=502")
	assert.Contains(t, line, "bytes=8")
	assert.True(t, strings.Contains(line, "path=/api/account/balance"))
}
