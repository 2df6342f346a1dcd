// Package config loads the attendance-idm service configuration.
//
// Values come from environment variables read by cleanenv, after an
// optional .env file is loaded with godotenv. Durations for tokens accept
// either Go syntax ("15m") or ISO-8601 ("PT15M").
//
//	cfg, err := config.Load()
//	if err != nil {
//		slog.Error("Invalid configuration", "err", err)
//		os.Exit(1)
//	}
//	ttl, _ := cfg.JWT.ParseAccessTokenExpiry()
//
// # Environment Variables
//
//   - IDM_PERSISTENCE: postgres (default), sqlite, file or memory
//   - IDM_PG_HOST, IDM_PG_PORT, IDM_PG_DATABASE, IDM_PG_USER, IDM_PG_PASSWORD, IDM_PG_SCHEMA
//   - IDM_SQLITE_PATH, IDM_DATA_DIR, IDM_MIGRATE_ON_START
//   - JWT_SECRET or JWT_PRIVATE_KEY_FILE (with optional JWT_KEY_ID), JWT_ISSUER, JWT_AUDIENCE
//   - ACCESS_TOKEN_EXPIRY, REFRESH_TOKEN_EXPIRY
//   - PASSWORD_POLICY_ENABLED and PASSWORD_COMPLEXITY_*
//   - LOGIN_ALLOW_INACTIVE
//   - RATELIMIT_LOGIN_ENABLED, RATELIMIT_LOGIN_CAPACITY, RATELIMIT_LOGIN_REFILL_RATE
//   - LOG_FORMAT (text or json), LOG_LEVEL
//   - BOOTSTRAP_ADMIN, BOOTSTRAP_ADMIN_EMAIL, BOOTSTRAP_ADMIN_NAME, BOOTSTRAP_ADMIN_PASSWORD
//   - API_PREFIX, CORS_ALLOWED_ORIGINS, METRICS_ENABLED, COOKIE_SECURE
//
// HTTP host and port are read by chi-demo's app.AppConfig.
package config
