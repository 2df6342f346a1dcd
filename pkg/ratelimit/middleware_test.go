package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	routes []string
}

func (c *countingRecorder) RateLimited(route string) {
	c.routes = append(c.routes, route)
}

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func send(h http.Handler, remote string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = remote
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_LimitsPerIP(t *testing.T) {
	rec := &countingRecorder{}
	m := NewMiddleware("login", Config{Enabled: true, Capacity: 2, RefillRate: 1.0 / 60.0, BucketTTL: time.Minute}, WithRecorder(rec))
	h := m.Handler(http.HandlerFunc(ok))

	assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:5000", nil).Code)
	assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:5001", nil).Code)

	res := send(h, "10.0.0.1:5002", nil)
	require.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.NotEmpty(t, res.Header().Get("Retry-After"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error"])
	assert.Equal(t, float64(http.StatusTooManyRequests), body["status"])
	assert.Equal(t, "/api/v1/auth/login", body["path"])

	// another client is unaffected
	assert.Equal(t, http.StatusOK, send(h, "10.0.0.2:5000", nil).Code)
	assert.Equal(t, []string{"login"}, rec.routes)

	m.Reset("10.0.0.1")
	assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:5003", nil).Code)
}

func TestMiddleware_ProxyHeaders(t *testing.T) {
	cfg := Config{Enabled: true, Capacity: 1, RefillRate: 0.01, BucketTTL: time.Minute}
	forwarded := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}

	t.Run("Ignored", func(t *testing.T) {
		h := NewMiddleware("login", cfg).Handler(http.HandlerFunc(ok))
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:1", forwarded).Code)
		// spoofed header does not buy a fresh bucket
		res := send(h, "10.0.0.1:2", map[string]string{"X-Forwarded-For": "198.51.100.1"})
		assert.Equal(t, http.StatusTooManyRequests, res.Code)
	})

	t.Run("Trusted", func(t *testing.T) {
		cfg := cfg
		cfg.TrustProxyHeaders = true
		h := NewMiddleware("login", cfg).Handler(http.HandlerFunc(ok))
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:1", forwarded).Code)
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:2", map[string]string{"X-Real-IP": "198.51.100.1"}).Code)
		assert.Equal(t, http.StatusTooManyRequests, send(h, "10.0.0.9:3", forwarded).Code)
	})
}

func TestMiddleware_Disabled(t *testing.T) {
	h := NewMiddleware("login", Config{Capacity: 1}).Handler(http.HandlerFunc(ok))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, send(h, "10.0.0.1:1", nil).Code)
	}
}

func TestMiddleware_CustomReject(t *testing.T) {
	var got error
	m := NewMiddleware("login", Config{Enabled: true, Capacity: 0, RefillRate: 1, BucketTTL: time.Minute},
		WithRejectFunc(func(w http.ResponseWriter, r *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusServiceUnavailable)
		}))

	res := send(m.Handler(http.HandlerFunc(ok)), "10.0.0.1:1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	require.Error(t, got)
	assert.Equal(t, "1", res.Header().Get("Retry-After"))
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", retryAfterSeconds(0))
	assert.Equal(t, "1", retryAfterSeconds(300*time.Millisecond))
	assert.Equal(t, "6", retryAfterSeconds(5100*time.Millisecond))
}
