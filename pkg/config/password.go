package config

import (
	"log/slog"

	"github.com/tendant/attendance-idm/pkg/password"
)

// PasswordComplexityConfig holds password policy configuration from environment variables
type PasswordComplexityConfig struct {
	Enabled                 bool `env:"PASSWORD_POLICY_ENABLED" env-default:"true"`
	RequiredDigit           bool `env:"PASSWORD_COMPLEXITY_REQUIRE_DIGIT" env-default:"false"`
	RequiredLowercase       bool `env:"PASSWORD_COMPLEXITY_REQUIRE_LOWERCASE" env-default:"false"`
	RequiredNonAlphanumeric bool `env:"PASSWORD_COMPLEXITY_REQUIRE_NON_ALPHANUMERIC" env-default:"true"`
	RequiredUppercase       bool `env:"PASSWORD_COMPLEXITY_REQUIRE_UPPERCASE" env-default:"false"`
	RequiredLength          int  `env:"PASSWORD_COMPLEXITY_REQUIRED_LENGTH" env-default:"8"`
	MaxLength               int  `env:"PASSWORD_COMPLEXITY_MAX_LENGTH" env-default:"128"`
}

// ToPolicyChecker converts the configuration to a password.PolicyChecker.
// A disabled policy yields nil, which skips complexity checks.
func (c *PasswordComplexityConfig) ToPolicyChecker() *password.PolicyChecker {
	if c == nil {
		return password.NewPolicyChecker(nil)
	}
	if !c.Enabled {
		slog.Warn("Password complexity policy disabled")
		return nil
	}

	slog.Info("Password policy configuration",
		"minLength", c.RequiredLength,
		"maxLength", c.MaxLength,
		"digit", c.RequiredDigit,
		"upper", c.RequiredUppercase,
		"lower", c.RequiredLowercase,
		"special", c.RequiredNonAlphanumeric,
	)
	return password.NewPolicyChecker(&password.PasswordPolicy{
		MinLength:          c.RequiredLength,
		MaxLength:          c.MaxLength,
		RequireUppercase:   c.RequiredUppercase,
		RequireLowercase:   c.RequiredLowercase,
		RequireDigit:       c.RequiredDigit,
		RequireSpecialChar: c.RequiredNonAlphanumeric,
	})
}
