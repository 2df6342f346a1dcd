package config

import (
	"time"

	"github.com/sosodev/duration"
)

// JWTConfig holds token signing configuration. When PrivateKeyFile is set
// tokens are signed RS256, otherwise HS256 with Secret.
type JWTConfig struct {
	Secret             string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	PrivateKeyFile     string `env:"JWT_PRIVATE_KEY_FILE"`
	KeyID              string `env:"JWT_KEY_ID"` // RS256 kid; blank derives one from the key fingerprint
	AccessTokenExpiry  string `env:"ACCESS_TOKEN_EXPIRY" env-default:"15m"`
	RefreshTokenExpiry string `env:"REFRESH_TOKEN_EXPIRY" env-default:"24h"`
	Issuer             string `env:"JWT_ISSUER" env-default:"attendance-idm"`
	Audience           string `env:"JWT_AUDIENCE" env-default:"attendance-idm"`
}

// ParseAccessTokenExpiry parses the access token expiry duration
func (j JWTConfig) ParseAccessTokenExpiry() (time.Duration, error) {
	return parseDurationISO8601(j.AccessTokenExpiry)
}

// ParseRefreshTokenExpiry parses the refresh token expiry duration
func (j JWTConfig) ParseRefreshTokenExpiry() (time.Duration, error) {
	return parseDurationISO8601(j.RefreshTokenExpiry)
}

func (j JWTConfig) validate() ValidationErrors {
	errs := CollectErrors(
		RequireNonEmpty("JWT_ISSUER", j.Issuer),
		RequireNonEmpty("JWT_AUDIENCE", j.Audience),
		when(j.PrivateKeyFile == "", func() *ValidationError {
			return RequireNonEmpty("JWT_SECRET", j.Secret)
		}),
	)

	access, err := j.ParseAccessTokenExpiry()
	if err != nil {
		errs = append(errs, ValidationError{Field: "ACCESS_TOKEN_EXPIRY", Message: err.Error()})
	}
	refresh, err := j.ParseRefreshTokenExpiry()
	if err != nil {
		errs = append(errs, ValidationError{Field: "REFRESH_TOKEN_EXPIRY", Message: err.Error()})
	}
	if len(errs) == 0 {
		errs = append(errs, CollectErrors(
			RequirePositiveDuration("ACCESS_TOKEN_EXPIRY", access),
			RequireLongerDuration("REFRESH_TOKEN_EXPIRY", refresh, access),
		)...)
	}
	return errs
}

// parseDurationISO8601 tries to parse duration as ISO8601 first, then Go duration
func parseDurationISO8601(s string) (time.Duration, error) {
	isoDuration, err := duration.Parse(s)
	if err == nil {
		return isoDuration.ToTimeDuration(), nil
	}
	return time.ParseDuration(s)
}
