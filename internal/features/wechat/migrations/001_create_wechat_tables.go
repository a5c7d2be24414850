package migrations

import (
	"wechat-reader/internal/core"
)

// Migration001CreateWechatTables creates the account, article and credential tables.
// (original_url, account_id) is indexed but not unique; duplicates are prevented before insert.
var Migration001CreateWechatTables = core.Migration{
	Version:     1,
	Name:        "create_wechat_tables",
	Description: "Create official account, article and credential tables",
	UpSQL: `
		CREATE TABLE IF NOT EXISTS wechat_accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			alias TEXT NOT NULL DEFAULT '',
			wechat_id TEXT NOT NULL DEFAULT '',
			fakeid TEXT NOT NULL DEFAULT '',
			avatar TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			category_id INTEGER,
			rss_url TEXT NOT NULL DEFAULT '',
			fetch_method TEXT NOT NULL DEFAULT 'crawl',
			fetch_enabled BOOLEAN NOT NULL DEFAULT 1,
			fetch_frequency INTEGER NOT NULL DEFAULT 24,
			last_fetch_time TIMESTAMP,
			article_count INTEGER NOT NULL DEFAULT 0,
			unread_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS wechat_articles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			account_id INTEGER REFERENCES wechat_accounts(id) ON DELETE SET NULL,
			category_id INTEGER,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			cover_image TEXT NOT NULL DEFAULT '',
			original_url TEXT NOT NULL,
			publish_time TIMESTAMP NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			read_status TEXT NOT NULL DEFAULT 'unread',
			is_favorite BOOLEAN NOT NULL DEFAULT 0,
			read_progress INTEGER NOT NULL DEFAULT 0,
			read_time TIMESTAMP,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS wechat_credentials (
			user_id INTEGER PRIMARY KEY,
			cookie_sealed BLOB NOT NULL,
			token TEXT NOT NULL DEFAULT '',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_wechat_accounts_user_id ON wechat_accounts(user_id);
		CREATE INDEX IF NOT EXISTS idx_wechat_accounts_fakeid ON wechat_accounts(fakeid);
		CREATE INDEX IF NOT EXISTS idx_wechat_articles_url_account ON wechat_articles(original_url, account_id);
		CREATE INDEX IF NOT EXISTS idx_wechat_articles_account_status ON wechat_articles(account_id, read_status);
		CREATE INDEX IF NOT EXISTS idx_wechat_articles_publish_time ON wechat_articles(publish_time);
	`,
	DownSQL: `
		DROP INDEX IF EXISTS idx_wechat_articles_publish_time;
		DROP INDEX IF EXISTS idx_wechat_articles_account_status;
		DROP INDEX IF EXISTS idx_wechat_articles_url_account;
		DROP INDEX IF EXISTS idx_wechat_accounts_fakeid;
		DROP INDEX IF EXISTS idx_wechat_accounts_user_id;

		DROP TABLE IF EXISTS wechat_credentials;
		DROP TABLE IF EXISTS wechat_articles;
		DROP TABLE IF EXISTS wechat_accounts;
	`,
}
