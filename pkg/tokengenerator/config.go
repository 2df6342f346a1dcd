package tokengenerator

import "time"

const (
	DefaultIssuer   = "attendance-idm"
	DefaultAudience = "attendance-idm"
)

// Option configures a JwtIssuer
type Option func(*JwtIssuer)

// WithIssuer sets the iss claim written and required on validation
func WithIssuer(issuer string) Option {
	return func(i *JwtIssuer) {
		if issuer != "" {
			i.issuer = issuer
		}
	}
}

// WithAudience sets the aud claim written and required on validation
func WithAudience(audience string) Option {
	return func(i *JwtIssuer) {
		if audience != "" {
			i.audience = audience
		}
	}
}

// WithAccessTokenExpiry sets the access token lifetime
func WithAccessTokenExpiry(expiry time.Duration) Option {
	return func(i *JwtIssuer) {
		i.accessTTL = expiry
	}
}

// WithRefreshTokenExpiry sets the refresh token lifetime
func WithRefreshTokenExpiry(expiry time.Duration) Option {
	return func(i *JwtIssuer) {
		i.refreshTTL = expiry
	}
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(i *JwtIssuer) {
		if now != nil {
			i.now = now
		}
	}
}
