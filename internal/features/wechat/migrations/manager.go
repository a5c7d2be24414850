package migrations

import (
	"context"
	"wechat-reader/internal/core"
)

// FeatureName scopes the wechat rows in schema_migrations
const FeatureName = "wechat"

// all lists the wechat migrations in version order
var all = []core.Migration{
	Migration001CreateWechatTables,
}

// Manager applies the wechat schema
type Manager struct {
	migrator *core.Migrator
	logger   *core.Logger
}

// NewManager creates a new migration manager
func NewManager(db *core.Database, logger *core.Logger) *Manager {
	return &Manager{
		migrator: core.NewMigrator(db, logger, FeatureName),
		logger:   logger,
	}
}

// Migrations returns all feature migrations in order
func (m *Manager) Migrations() []core.Migration {
	return all
}

// Migrate applies pending migrations
func (m *Manager) Migrate(ctx context.Context) error {
	pending, err := m.migrator.Pending(ctx, all)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		m.logger.Debug("Wechat schema is up to date")
		return nil
	}

	m.logger.Info("Migrating wechat schema", "pending", len(pending))
	return m.migrator.Up(ctx, all)
}

// Rollback reverts the latest applied migration
func (m *Manager) Rollback(ctx context.Context) error {
	return m.migrator.Down(ctx, all)
}

// Status reports applied and pending migrations
func (m *Manager) Status(ctx context.Context) (*core.MigrationStatus, error) {
	return m.migrator.Status(ctx, all)
}
