package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	apperrors "github.com/tendant/attendance-idm/pkg/errors"
)

// Config holds per-client rate limiting configuration
type Config struct {
	Enabled    bool
	Capacity   int           // max burst per client
	RefillRate float64       // requests regained per second
	BucketTTL  time.Duration // how long an idle client's bucket is kept

	// TrustProxyHeaders takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool
}

// DefaultLoginConfig allows a burst of 10 login attempts per client,
// regained at 10 per minute
func DefaultLoginConfig() Config {
	return Config{
		Enabled:    true,
		Capacity:   10,
		RefillRate: 10.0 / 60.0,
		BucketTTL:  time.Hour,
	}
}

// Recorder observes rejected requests
type Recorder interface {
	RateLimited(route string)
}

// RejectFunc writes the response for a limited request
type RejectFunc func(w http.ResponseWriter, r *http.Request, err error)

// Middleware limits requests per client IP
type Middleware struct {
	config   Config
	limiter  *RateLimiter
	route    string
	recorder Recorder
	reject   RejectFunc
}

// Option configures Middleware
type Option func(*Middleware)

// WithRecorder reports rejections to rec
func WithRecorder(rec Recorder) Option {
	return func(m *Middleware) {
		m.recorder = rec
	}
}

// WithRejectFunc replaces the default JSON rejection response
func WithRejectFunc(fn RejectFunc) Option {
	return func(m *Middleware) {
		m.reject = fn
	}
}

// NewMiddleware creates a limiter for route. route only labels logs and metrics.
func NewMiddleware(route string, config Config, opts ...Option) *Middleware {
	m := &Middleware{
		config:  config,
		limiter: NewRateLimiter(config.Capacity, config.RefillRate, config.BucketTTL),
		route:   route,
		reject:  renderRejection,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		ip := m.clientIP(r)
		ok, wait := m.limiter.Take(ip)
		if !ok {
			retryAfter := retryAfterSeconds(wait)
			slog.Warn("Rate limit exceeded", "route", m.route, "ip", ip, "retry_after", retryAfter)
			if m.recorder != nil {
				m.recorder.RateLimited(m.route)
			}
			w.Header().Set("Retry-After", retryAfter)
			m.reject(w, r, apperrors.RateLimitExceeded(retryAfter))
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.config.Capacity))
		next.ServeHTTP(w, r)
	})
}

// Reset clears the limit for a client IP
func (m *Middleware) Reset(ip string) {
	m.limiter.Reset(ip)
}

// GetStats returns statistics about the underlying limiter
func (m *Middleware) GetStats() Stats {
	return m.limiter.GetStats()
}

func (m *Middleware) clientIP(r *http.Request) string {
	if m.config.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterSeconds(wait time.Duration) string {
	secs := int64(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

type rejection struct {
	Timestamp time.Time              `json:"timestamp"`
	Status    int                    `json:"status"`
	Error     string                 `json:"error"`
	Message   string                 `json:"message"`
	Path      string                 `json:"path"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func renderRejection(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusTooManyRequests)
	render.JSON(w, r, rejection{
		Timestamp: time.Now().UTC(),
		Status:    http.StatusTooManyRequests,
		Error:     string(apperrors.ErrCodeRateLimitExceeded),
		Message:   "too many requests, try again later",
		Path:      r.URL.Path,
		Details:   apperrors.GetDetails(err),
	})
}
