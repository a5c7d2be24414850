package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Migration is one versioned schema change owned by a feature
type Migration struct {
	Version     int        `json:"version"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	UpSQL       string     `json:"-"`
	DownSQL     string     `json:"-"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
}

// MigrationStatus describes the schema state of one feature
type MigrationStatus struct {
	Feature      string      `json:"feature"`
	AppliedCount int         `json:"applied_count"`
	Applied      []Migration `json:"applied"`
	Pending      []Migration `json:"pending"`
	LastApplied  *Migration  `json:"last_applied,omitempty"`
}

// Migrator records applied versions per feature in schema_migrations.
// Versions are only unique within a feature.
type Migrator struct {
	db      *Database
	logger  *Logger
	feature string
}

// NewMigrator creates a migrator for the migrations of one feature
func NewMigrator(db *Database, logger *Logger, feature string) *Migrator {
	return &Migrator{db: db, logger: logger, feature: feature}
}

// EnsureMigrationsTable creates the schema_migrations table
func EnsureMigrationsTable(ctx context.Context, db *Database) error {
	_, err := db.ExecWithTimeout(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			feature TEXT NOT NULL,
			version INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (feature, version)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// Applied returns the applied migrations of the feature ordered by version
func (m *Migrator) Applied(ctx context.Context) ([]Migration, error) {
	if err := EnsureMigrationsTable(ctx, m.db); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryWithTimeout(ctx,
		`SELECT version, name, description, applied_at FROM schema_migrations WHERE feature = ? ORDER BY version`, m.feature)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []Migration
	for rows.Next() {
		var migration Migration
		var appliedAt time.Time
		if err := rows.Scan(&migration.Version, &migration.Name, &migration.Description, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		migration.AppliedAt = &appliedAt
		applied = append(applied, migration)
	}
	return applied, rows.Err()
}

// Pending returns the migrations of known that are not applied yet
func (m *Migrator) Pending(ctx context.Context, known []Migration) ([]Migration, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(applied))
	for _, migration := range applied {
		done[migration.Version] = true
	}
	return lo.Filter(known, func(mg Migration, _ int) bool { return !done[mg.Version] }), nil
}

// Up applies every pending migration in version order, each in its own transaction
func (m *Migrator) Up(ctx context.Context, known []Migration) error {
	pending, err := m.Pending(ctx, known)
	if err != nil {
		return err
	}

	for _, migration := range pending {
		err := m.db.Transaction(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (feature, version, name, description) VALUES (?, ?, ?, ?)`,
				m.feature, migration.Version, migration.Name, migration.Description)
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply %s migration %d (%s): %w", m.feature, migration.Version, migration.Name, err)
		}
		m.logger.Info("Applied migration", "feature", m.feature, "version", migration.Version, "name", migration.Name)
	}

	return nil
}

// Down rolls back the latest applied migration that is in known
func (m *Migrator) Down(ctx context.Context, known []Migration) error {
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}

	byVersion := make(map[int]Migration, len(known))
	for _, migration := range known {
		byVersion[migration.Version] = migration
	}

	var target *Migration
	for i := len(applied) - 1; i >= 0; i-- {
		if migration, ok := byVersion[applied[i].Version]; ok {
			target = &migration
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no %s migrations have been applied", m.feature)
	}

	err = m.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, target.DownSQL); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE feature = ? AND version = ?`, m.feature, target.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to roll back %s migration %d (%s): %w", m.feature, target.Version, target.Name, err)
	}

	m.logger.Info("Rolled back migration", "feature", m.feature, "version", target.Version, "name", target.Name)
	return nil
}

// Status reports applied and pending migrations of the feature
func (m *Migrator) Status(ctx context.Context, known []Migration) (*MigrationStatus, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := m.Pending(ctx, known)
	if err != nil {
		return nil, err
	}

	status := &MigrationStatus{
		Feature:      m.feature,
		AppliedCount: len(applied),
		Applied:      lo.Ternary(applied == nil, []Migration{}, applied),
		Pending:      lo.Ternary(pending == nil, []Migration{}, pending),
	}
	if len(applied) > 0 {
		status.LastApplied = &applied[len(applied)-1]
	}
	return status, nil
}
