package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedHandler(t *testing.T, rps float64, burst int) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return RateLimit(ctx, rps, burst)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doFrom(h http.Handler, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/ingest", nil)
	req.RemoteAddr = addr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_AllowsBurst(t *testing.T) {
	h := limitedHandler(t, 100, 5)
	for range 5 {
		assert.Equal(t, http.StatusOK, doFrom(h, "10.0.0.1:1000").Code)
	}
}

func TestRateLimit_RejectsOverBurst(t *testing.T) {
	h := limitedHandler(t, 0.5, 2)
	for range 2 {
		require.Equal(t, http.StatusOK, doFrom(h, "10.0.0.1:1000").Code)
	}

	rec := doFrom(h, "10.0.0.1:2000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.InDelta(t, float64(http.StatusTooManyRequests), body["code"], 0.001)
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimit_PerClient(t *testing.T) {
	h := limitedHandler(t, 0.5, 1)

	require.Equal(t, http.StatusOK, doFrom(h, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, doFrom(h, "10.0.0.1:1001").Code)
	assert.Equal(t, http.StatusOK, doFrom(h, "10.0.0.2:1000").Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", clientIP(req))
}
