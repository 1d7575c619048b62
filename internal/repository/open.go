package repository

import (
	"fmt"

	"shopsy-inventory-api/internal/config"
)

// Open connects to the stock database selected by cfg.Type.
func Open(cfg *config.DatabaseConfig) (*SQLStore, error) {
	switch cfg.Type {
	case "postgres", "postgresql":
		return NewPostgresStore(cfg.PostgresDSN())
	case "mysql":
		return NewMySQLStore(cfg.MySQLDSN())
	case "sqlite", "":
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}
