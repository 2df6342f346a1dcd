package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/tendant/attendance-idm/pkg/client"
	"github.com/tendant/attendance-idm/pkg/logging"
	"github.com/tendant/attendance-idm/pkg/metrics"
	"github.com/tendant/attendance-idm/pkg/ratelimit"
	"github.com/tendant/attendance-idm/pkg/tokengenerator"
)

// RouterConfig controls how routes are mounted
type RouterConfig struct {
	Prefix         string   // e.g. /api/v1; empty mounts at the root
	AllowedOrigins []string // CORS origins, "*" for any
	LoginLimit     ratelimit.Config
	Logger         *slog.Logger     // request logging, nil disables
	Metrics        *metrics.Metrics // nil disables /metrics and HTTP metrics
}

// Mount registers every route on r. The access token is read on every
// request; routes outside the public group reject anonymous callers.
func Mount(r chi.Router, h *Handler, issuer tokengenerator.Issuer, cfg RouterConfig) {
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	routes := func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   allowedOrigins(cfg.AllowedOrigins),
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: !isWildcard(cfg.AllowedOrigins),
			MaxAge:           300,
		}))
		if cfg.Logger != nil {
			r.Use(logging.RequestLogger(cfg.Logger))
		}
		if cfg.Metrics != nil {
			r.Use(cfg.Metrics.Middleware)
		}
		r.Use(client.AuthMiddleware(issuer))

		r.NotFound(renderNotFound)
		r.MethodNotAllowed(renderMethodNotAllowed)

		SetupPublicRoutes(r, h, newLoginLimiter(cfg))
		SetupAuthenticatedRoutes(r, h)
	}

	if cfg.Prefix == "" || cfg.Prefix == "/" {
		r.Group(routes)
		return
	}
	r.Route(cfg.Prefix, routes)
}

// SetupPublicRoutes mounts the routes that accept anonymous callers, plus
// logout which shares the /auth prefix
func SetupPublicRoutes(r chi.Router, h *Handler, loginLimiter func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.With(loginLimiter).Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)
		r.With(client.RequireAuthWith(renderUnauthorized)).Post("/logout", h.Logout)
	})

	r.Get("/users/exists/email/{email}", h.EmailExists)
	r.Get("/users/exists/code/{code}", h.CodeExists)
}

// SetupAuthenticatedRoutes mounts the routes that need a valid access token
func SetupAuthenticatedRoutes(r chi.Router, h *Handler) {
	r.Group(func(r chi.Router) {
		r.Use(client.RequireAuthWith(renderUnauthorized))

		r.Get("/users", h.ListUsers)
		r.Get("/users/me", h.Me)
		r.Put("/users/me", h.UpdateMe)
		r.Get("/users/stats", h.Stats)
		r.Get("/users/code/{code}", h.GetUserByCode)
		r.Get("/users/email/{email}", h.GetUserByEmail)
		r.Get("/users/role/{role}", h.ListByRole)
		r.Get("/users/status/{status}", h.ListByStatus)
		r.Get("/users/{id}", h.GetUser)
		r.Put("/users/{id}", h.UpdateUser)
		r.Delete("/users/{id}", h.DeactivateUser)
		r.Post("/users/{id}/activate", h.ActivateUser)
		r.Delete("/users/{id}/permanent", h.DeleteUser)
	})
}

// NewRouter returns a standalone router with the routes mounted
func NewRouter(h *Handler, issuer tokengenerator.Issuer, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	Mount(r, h, issuer, cfg)
	return r
}

func newLoginLimiter(cfg RouterConfig) func(http.Handler) http.Handler {
	if !cfg.LoginLimit.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	opts := []ratelimit.Option{ratelimit.WithRejectFunc(RenderError)}
	if cfg.Metrics != nil {
		opts = append(opts, ratelimit.WithRecorder(cfg.Metrics))
	}
	return ratelimit.NewMiddleware("login", cfg.LoginLimit, opts...).Handler
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func isWildcard(origins []string) bool {
	for _, o := range allowedOrigins(origins) {
		if o == "*" {
			return true
		}
	}
	return false
}
