package config

import (
	"fmt"
	"strings"
	"time"
)

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Host            string        `env:"IDM_PG_HOST" env-default:"localhost"`
	Port            uint16        `env:"IDM_PG_PORT" env-default:"5432"`
	Database        string        `env:"IDM_PG_DATABASE" env-default:"idm_db"`
	User            string        `env:"IDM_PG_USER" env-default:"idm"`
	Password        string        `env:"IDM_PG_PASSWORD" env-default:"pwd"`
	Schema          string        `env:"IDM_PG_SCHEMA" env-default:"public"`
	MaxConns        int32         `env:"IDM_PG_MAX_CONNS" env-default:"10"`
	MinConns        int32         `env:"IDM_PG_MIN_CONNS" env-default:"0"`
	MaxConnLifetime time.Duration `env:"IDM_PG_MAX_CONN_LIFETIME" env-default:"1h"`
}

// ToDatabaseURL converts the config to a PostgreSQL connection URL
func (d DatabaseConfig) ToDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

// PersistenceConfig selects the identity store backend
type PersistenceConfig struct {
	Type           string `env:"IDM_PERSISTENCE" env-default:"postgres"`
	SQLitePath     string `env:"IDM_SQLITE_PATH" env-default:"./data/idm.db"`
	DataDir        string `env:"IDM_DATA_DIR" env-default:"./data"`
	MigrateOnStart bool   `env:"IDM_MIGRATE_ON_START" env-default:"true"`
}

// Backend returns the normalized persistence type
func (p PersistenceConfig) Backend() string {
	switch t := strings.ToLower(strings.TrimSpace(p.Type)); t {
	case "postgresql":
		return "postgres"
	case "inmem":
		return "memory"
	default:
		return t
	}
}

func (p PersistenceConfig) validate() ValidationErrors {
	backend := p.Backend()
	return CollectErrors(
		RequireOneOf("IDM_PERSISTENCE", backend, []string{"postgres", "sqlite", "file", "memory"}),
		when(backend == "sqlite", func() *ValidationError {
			return RequireNonEmpty("IDM_SQLITE_PATH", p.SQLitePath)
		}),
		when(backend == "file", func() *ValidationError {
			return RequireNonEmpty("IDM_DATA_DIR", p.DataDir)
		}),
	)
}
