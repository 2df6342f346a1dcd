package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
)

// Config is the full service configuration, read from the environment
type Config struct {
	AppConfig   app.AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Persistence PersistenceConfig
	JWT         JWTConfig
	Password    PasswordComplexityConfig
	Login       LoginConfig
	RateLimit   RateLimitConfig
	Logging     LoggingConfig
	Bootstrap   BootstrapConfig
}

// ServerConfig holds HTTP surface settings not covered by chi-demo
type ServerConfig struct {
	APIPrefix      string   `env:"API_PREFIX" env-default:"/api/v1"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
	MetricsEnabled bool     `env:"METRICS_ENABLED" env-default:"true"`
	CookieSecure   bool     `env:"COOKIE_SECURE" env-default:"false"`
}

// LoginConfig controls authentication behavior
type LoginConfig struct {
	AllowInactive bool `env:"LOGIN_ALLOW_INACTIVE" env-default:"false"`
}

// LoggingConfig selects the process log handler
type LoggingConfig struct {
	Format string `env:"LOG_FORMAT" env-default:"text"`
	Level  string `env:"LOG_LEVEL" env-default:"info"`
}

// BootstrapConfig describes the first administrator created on an empty
// directory. A blank password is generated and printed once.
type BootstrapConfig struct {
	Enabled  bool   `env:"BOOTSTRAP_ADMIN" env-default:"true"`
	Email    string `env:"BOOTSTRAP_ADMIN_EMAIL" env-default:"admin@example.edu"`
	Name     string `env:"BOOTSTRAP_ADMIN_NAME" env-default:"Administrator"`
	Password string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load() (Config, error) {
	LoadEnvFile()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnvFile loads .env from the executable's directory, falling back to
// the working directory. A missing file is not an error.
func LoadEnvFile() {
	envFile := ""
	if execPath, err := os.Executable(); err == nil {
		envFile = filepath.Join(filepath.Dir(execPath), ".env")
	}
	if _, err := os.Stat(envFile); envFile == "" || os.IsNotExist(err) {
		cwd, _ := os.Getwd()
		envFile = filepath.Join(cwd, ".env")
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		slog.Debug("No .env file found (using environment variables or defaults)")
		return
	}

	slog.Info("Loading configuration from .env file", "path", envFile)
	if err := godotenv.Load(envFile); err != nil {
		slog.Warn("Failed to load .env file", "error", err)
	}
}

// Validate checks cross-field constraints cleanenv cannot express
func (c Config) Validate() error {
	return Validate(
		c.Persistence.validate,
		c.JWT.validate,
		c.RateLimit.validate,
		func() ValidationErrors {
			return CollectErrors(
				RequireOneOf("LOG_FORMAT", strings.ToLower(c.Logging.Format), []string{"text", "json"}),
				RequirePrefix("API_PREFIX", c.Server.APIPrefix),
				WhenSet(c.Bootstrap.Email, func() *ValidationError {
					return RequireValidEmail("BOOTSTRAP_ADMIN_EMAIL", c.Bootstrap.Email)
				}),
			)
		},
	)
}
