package client

import (
	"log/slog"
	"net/http"

	"github.com/tendant/attendance-idm/pkg/tokengenerator"
)

// AuthMiddleware resolves the bearer token, if any, into an AuthUser on the
// request context. Requests without a valid access token pass through
// anonymous; use RequireAuth to reject them.
func AuthMiddleware(validator tokengenerator.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := TokenFromRequest(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := Authenticate(validator, tokenStr)
			if err != nil {
				slog.Debug("Rejected bearer token", "path", r.URL.Path, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), user)))
		})
	}
}

// RequireAuth is an authorization middleware that requires valid authentication.
// Returns 401 Unauthorized if the request is not authenticated.
// Must be used after AuthMiddleware.
func RequireAuth(next http.Handler) http.Handler {
	return RequireAuthWith(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})(next)
}

// RequireAuthWith is RequireAuth with a custom rejection handler
func RequireAuthWith(reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := AuthUserFrom(r.Context()); !ok {
				slog.Debug("Unauthenticated request to protected resource", "path", r.URL.Path)
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
