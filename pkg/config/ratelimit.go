package config

import (
	"time"

	"github.com/tendant/attendance-idm/pkg/ratelimit"
)

// RateLimitConfig contains the login rate limiting settings
type RateLimitConfig struct {
	LoginEnabled      bool          `env:"RATELIMIT_LOGIN_ENABLED" env-default:"true"`
	LoginCapacity     int           `env:"RATELIMIT_LOGIN_CAPACITY" env-default:"10"`
	LoginRefillRate   float64       `env:"RATELIMIT_LOGIN_REFILL_RATE" env-default:"0.167"` // tokens per second
	BucketTTL         time.Duration `env:"RATELIMIT_BUCKET_TTL" env-default:"1h"`
	TrustProxyHeaders bool          `env:"RATELIMIT_TRUST_PROXY_HEADERS" env-default:"false"`
}

// ToLoginConfig converts the settings for the login limiter
func (c RateLimitConfig) ToLoginConfig() ratelimit.Config {
	return ratelimit.Config{
		Enabled:           c.LoginEnabled,
		Capacity:          c.LoginCapacity,
		RefillRate:        c.LoginRefillRate,
		BucketTTL:         c.BucketTTL,
		TrustProxyHeaders: c.TrustProxyHeaders,
	}
}

func (c RateLimitConfig) validate() ValidationErrors {
	if !c.LoginEnabled {
		return nil
	}
	errs := CollectErrors(
		RequirePositive("RATELIMIT_LOGIN_CAPACITY", c.LoginCapacity),
		RequireNonNegativeDuration("RATELIMIT_BUCKET_TTL", c.BucketTTL),
	)
	if c.LoginRefillRate <= 0 {
		errs = append(errs, ValidationError{Field: "RATELIMIT_LOGIN_REFILL_RATE", Message: "must be positive"})
	}
	return errs
}
