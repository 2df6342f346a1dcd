// Command identity runs the attendance identity service: registration,
// login, token refresh and the user directory over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/tendant/chi-demo/app"
	"github.com/tendant/attendance-idm/pkg/api"
	"github.com/tendant/attendance-idm/pkg/auth"
	"github.com/tendant/attendance-idm/pkg/bootstrap"
	"github.com/tendant/attendance-idm/pkg/config"
	"github.com/tendant/attendance-idm/pkg/database"
	"github.com/tendant/attendance-idm/pkg/directory"
	"github.com/tendant/attendance-idm/pkg/identity"
	"github.com/tendant/attendance-idm/pkg/logging"
	"github.com/tendant/attendance-idm/pkg/metrics"
	"github.com/tendant/attendance-idm/pkg/password"
	"github.com/tendant/attendance-idm/pkg/tokengenerator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(-1)
	}

	logger, err := logging.New(os.Stdout, logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
	if err != nil {
		slog.Error("Failed to create logger", "err", err)
		os.Exit(-1)
	}
	slog.SetDefault(logger)

	ctx := context.Background()

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to open identity store", "backend", cfg.Persistence.Backend(), "err", err)
		os.Exit(-1)
	}
	defer closeRepo()

	issuer, err := newIssuer(cfg.JWT)
	if err != nil {
		slog.Error("Failed to create token issuer", "err", err)
		os.Exit(-1)
	}

	hasher := password.NewMultiHasher(nil)
	passwordPolicy := cfg.Password.ToPolicyChecker()

	var m *metrics.Metrics
	authOpts := []auth.Option{
		auth.WithPasswordPolicy(passwordPolicy),
		auth.WithInactiveLogin(cfg.Login.AllowInactive),
	}
	if cfg.Server.MetricsEnabled {
		m = metrics.New()
		authOpts = append(authOpts, auth.WithRecorder(m))
	}

	authService := auth.NewService(repo, hasher, issuer, authOpts...)
	directoryService := directory.NewService(repo, hasher, directory.WithPasswordPolicy(passwordPolicy))

	if cfg.Bootstrap.Enabled {
		result, err := bootstrap.EnsureAdmin(ctx, repo, hasher, bootstrap.AdminConfig{
			Name:     cfg.Bootstrap.Name,
			Email:    cfg.Bootstrap.Email,
			Password: cfg.Bootstrap.Password,
		})
		if err != nil {
			slog.Error("Admin bootstrap failed", "err", err)
			os.Exit(-1)
		}
		bootstrap.PrintAdminResult(os.Stdout, result)
		bootstrap.LogAdminSummary(result)
	}

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	handler := api.NewHandler(authService, directoryService, api.WithSecureCookie(cfg.Server.CookieSecure))
	api.Mount(server.R, handler, issuer, api.RouterConfig{
		Prefix:         cfg.Server.APIPrefix,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		LoginLimit:     cfg.RateLimit.ToLoginConfig(),
		Logger:         logger,
		Metrics:        m,
	})

	slog.Info("Identity service ready",
		"prefix", cfg.Server.APIPrefix,
		"persistence", cfg.Persistence.Backend(),
		"signing", signingMode(cfg.JWT),
		"metrics", cfg.Server.MetricsEnabled)

	server.Run()
}

func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (identity.Repository, func(), error) {
	noop := func() {}
	backend := cfg.Persistence.Backend()

	switch backend {
	case "postgres":
		dbURL := cfg.Database.ToDatabaseURL()
		if cfg.Persistence.MigrateOnStart {
			if err := database.RunMigrations(dbURL, logger); err != nil {
				return nil, noop, err
			}
		}
		pool, err := database.NewPool(ctx, dbURL, database.PoolConfig{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		if err := database.WaitForDB(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, noop, err
		}
		repo, err := identity.NewRepository(backend, identity.RepositoryConfig{Pool: pool})
		return repo, pool.Close, err

	case "sqlite":
		db, err := database.OpenSQLite(cfg.Persistence.SQLitePath, logger)
		if err != nil {
			return nil, noop, err
		}
		repo, err := identity.NewRepository(backend, identity.RepositoryConfig{SQLite: db})
		return repo, func() { _ = db.Close() }, err

	default:
		if backend == "memory" {
			slog.Warn("Using in-memory identity store, all data is lost on restart")
		}
		repo, err := identity.NewRepository(backend, identity.RepositoryConfig{DataDir: cfg.Persistence.DataDir})
		return repo, noop, err
	}
}

func newIssuer(cfg config.JWTConfig) (*tokengenerator.JwtIssuer, error) {
	accessTTL, err := cfg.ParseAccessTokenExpiry()
	if err != nil {
		return nil, fmt.Errorf("access token expiry: %w", err)
	}
	refreshTTL, err := cfg.ParseRefreshTokenExpiry()
	if err != nil {
		return nil, fmt.Errorf("refresh token expiry: %w", err)
	}
	opts := []tokengenerator.Option{
		tokengenerator.WithIssuer(cfg.Issuer),
		tokengenerator.WithAudience(cfg.Audience),
		tokengenerator.WithAccessTokenExpiry(accessTTL),
		tokengenerator.WithRefreshTokenExpiry(refreshTTL),
	}

	if cfg.PrivateKeyFile == "" {
		if cfg.Secret == "very-secure-jwt-secret" {
			slog.Warn("JWT_SECRET is the built-in default, set it before deploying")
		}
		return tokengenerator.NewHMACIssuer(cfg.Secret, opts...)
	}

	keyResult, err := bootstrap.BootstrapRSAKey(bootstrap.RSAKeyConfig{
		KeyFile:     cfg.PrivateKeyFile,
		KeyIDPrefix: "attendance",
	})
	if err != nil {
		return nil, err
	}
	if keyResult.Generated {
		bootstrap.PrintRSAKeyResult(os.Stdout, keyResult)
	}
	keyID := keyResult.KeyID
	if cfg.KeyID != "" {
		keyID = cfg.KeyID
	}
	return tokengenerator.NewRSAIssuer(keyResult.PrivateKey, keyID, opts...)
}

func signingMode(cfg config.JWTConfig) string {
	if cfg.PrivateKeyFile != "" {
		return "RS256"
	}
	return "HS256"
}
