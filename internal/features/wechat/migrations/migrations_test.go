package migrations

import (
	"context"
	"testing"
	"wechat-reader/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wechatTables = []string{"wechat_accounts", "wechat_articles", "wechat_credentials"}

func openTestDB(t *testing.T) *core.Database {
	t.Helper()

	db, err := core.OpenSQLite(":memory:", core.NewLoggerWithLevel("error"))
	require.NoError(t, err, "Failed to open test database")
	t.Cleanup(func() { db.DB.Close() })
	return db
}

func tableExists(t *testing.T, db *core.Database, table string) bool {
	t.Helper()

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	require.NoError(t, err, "Failed to check table %s", table)
	return count == 1
}

func TestWechatMigrations(t *testing.T) {
	db := openTestDB(t)
	manager := NewManager(db, core.NewLoggerWithLevel("error"))
	ctx := context.Background()

	require.NoError(t, manager.Migrate(ctx))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE feature = ?", FeatureName).Scan(&count))
	assert.Equal(t, len(manager.Migrations()), count)

	for _, table := range wechatTables {
		assert.True(t, tableExists(t, db, table), "table %s was not created", table)
	}

	// Migrations are idempotent
	require.NoError(t, manager.Migrate(ctx))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(manager.Migrations()), count)

	status, err := manager.Status(ctx)
	require.NoError(t, err)
	assert.Empty(t, status.Pending)
	require.NotNil(t, status.LastApplied)
	assert.Equal(t, 1, status.LastApplied.Version)
	assert.NotNil(t, status.LastApplied.AppliedAt)
}

func TestVersionsAreScopedByFeature(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	logger := core.NewLoggerWithLevel("error")

	other := core.NewMigrator(db, logger, "other")
	require.NoError(t, other.Up(ctx, []core.Migration{{
		Version: 1,
		Name:    "create_other",
		UpSQL:   "CREATE TABLE other_things (id INTEGER PRIMARY KEY)",
		DownSQL: "DROP TABLE other_things",
	}}))

	manager := NewManager(db, logger)
	status, err := manager.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, status.Pending, 1, "version 1 of another feature does not count")

	require.NoError(t, manager.Migrate(ctx))
	assert.True(t, tableExists(t, db, "wechat_accounts"))
	assert.True(t, tableExists(t, db, "other_things"))
}

func TestArticleURLIsNotUnique(t *testing.T) {
	db := openTestDB(t)
	manager := NewManager(db, core.NewLoggerWithLevel("error"))
	require.NoError(t, manager.Migrate(context.Background()))

	insert := `INSERT INTO wechat_articles (user_id, account_id, title, original_url, publish_time) VALUES (1, NULL, 't', 'https://mp.weixin.qq.com/s/x', CURRENT_TIMESTAMP)`
	_, err := db.Exec(insert)
	require.NoError(t, err)
	_, err = db.Exec(insert)
	assert.NoError(t, err, "storage must not enforce URL uniqueness")
}

func TestMigrationRollback(t *testing.T) {
	db := openTestDB(t)
	manager := NewManager(db, core.NewLoggerWithLevel("error"))
	ctx := context.Background()

	require.NoError(t, manager.Migrate(ctx))
	require.NoError(t, manager.Rollback(ctx))

	for _, table := range wechatTables {
		assert.False(t, tableExists(t, db, table), "table %s was not removed during rollback", table)
	}

	status, err := manager.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.AppliedCount)
	assert.Len(t, status.Pending, 1)

	assert.Error(t, manager.Rollback(ctx))
}
