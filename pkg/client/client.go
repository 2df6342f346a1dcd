package client

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/tendant/attendance-idm/pkg/access"
	"github.com/tendant/attendance-idm/pkg/identity"
	"github.com/tendant/attendance-idm/pkg/tokengenerator"
)

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "idm context value " + k.name
}

const (
	ACCESS_TOKEN_NAME = "access_token"
)

var (
	CallerKey = &contextKey{"Caller"}
)

// AuthUser is the identity carried by a verified access token
type AuthUser struct {
	UserID uuid.UUID
	Email  string
	Role   identity.Role
}

func (u AuthUser) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user", u.UserID.String()),
		slog.String("role", string(u.Role)),
	)
}

// Caller converts the user to the value the access policy evaluates
func (u AuthUser) Caller() access.Caller {
	return access.Caller{ID: u.UserID, Email: u.Email, Role: u.Role}
}

// WithAuthUser returns a copy of ctx carrying user
func WithAuthUser(ctx context.Context, user AuthUser) context.Context {
	return context.WithValue(ctx, CallerKey, user)
}

// AuthUserFrom returns the authenticated user in ctx, if any
func AuthUserFrom(ctx context.Context) (AuthUser, bool) {
	user, ok := ctx.Value(CallerKey).(AuthUser)
	return user, ok
}

// CallerFrom returns the caller for ctx. Unauthenticated requests yield the
// zero Caller, which the access policy treats as anonymous.
func CallerFrom(ctx context.Context) access.Caller {
	user, ok := AuthUserFrom(ctx)
	if !ok {
		return access.Caller{}
	}
	return user.Caller()
}

// TokenFromCookie reads the access token cookie
func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// TokenFromRequest returns the first token found in the Authorization header
// or the access token cookie
func TokenFromRequest(r *http.Request) string {
	for _, extract := range []func(*http.Request) string{jwtauth.TokenFromHeader, TokenFromCookie} {
		if token := extract(r); token != "" {
			return token
		}
	}
	return ""
}

// Authenticate validates tokenStr as an access token and returns its user
func Authenticate(validator tokengenerator.Issuer, tokenStr string) (AuthUser, error) {
	claims, err := validator.ValidateKind(tokenStr, tokengenerator.AccessToken)
	if err != nil {
		return AuthUser{}, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return AuthUser{}, tokengenerator.ErrInvalidToken
	}
	role, err := identity.ParseRole(claims.Role)
	if err != nil {
		return AuthUser{}, tokengenerator.ErrInvalidToken
	}
	return AuthUser{UserID: id, Email: claims.Email, Role: role}, nil
}
