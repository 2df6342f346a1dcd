package identity

import (
	"database/sql"
	"fmt"
)

// RepositoryConfig contains configuration for creating identity repositories
type RepositoryConfig struct {
	// Pool is required for PostgreSQL repositories
	Pool DBTX
	// SQLite is required for SQLite repositories
	SQLite *sql.DB
	// DataDir is required for file-based repositories
	DataDir string
}

// NewRepository creates an identity repository based on the persistence type
func NewRepository(persistenceType string, config RepositoryConfig) (Repository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.Pool == nil {
			return nil, fmt.Errorf("pool required for postgres repository")
		}
		return NewPostgresRepository(config.Pool), nil
	case "sqlite":
		if config.SQLite == nil {
			return nil, fmt.Errorf("sqlite handle required for sqlite repository")
		}
		return NewSQLiteRepository(config.SQLite), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file repository")
		}
		return NewFileRepository(config.DataDir)
	case "memory", "inmem":
		return NewInMemoryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, sqlite, file, memory)", persistenceType)
	}
}
