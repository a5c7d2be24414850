package server

import (
	"context"
	"fmt"
	"wechat-reader/internal/core"
)

// openDatabase opens the configured SQLite database and prepares schema_migrations
func openDatabase(ctx context.Context, config *core.Config, logger *core.Logger) (*core.Database, error) {
	db, err := core.OpenSQLite(config.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	if err := core.EnsureMigrationsTable(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	logger.Info("Database ready", "path", config.Database.Path)
	db.LogStats()
	return db, nil
}
