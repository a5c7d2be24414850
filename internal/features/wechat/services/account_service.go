package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"
)

// AccountService stores tracked official accounts
type AccountService struct {
	db     *core.Database
	logger *core.Logger
}

// NewAccountService creates a new account service
func NewAccountService(db *core.Database, logger *core.Logger) *AccountService {
	return &AccountService{
		db:     db,
		logger: logger,
	}
}

const accountColumns = `id, user_id, name, alias, wechat_id, fakeid, avatar, description, category_id, rss_url,
	fetch_method, fetch_enabled, fetch_frequency, last_fetch_time, article_count, unread_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var account models.Account
	var categoryID sql.NullInt64
	var lastFetch sql.NullTime

	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Name,
		&account.Alias,
		&account.WechatID,
		&account.Fakeid,
		&account.Avatar,
		&account.Description,
		&categoryID,
		&account.RSSURL,
		&account.FetchMethod,
		&account.FetchEnabled,
		&account.FetchFrequency,
		&lastFetch,
		&account.ArticleCount,
		&account.UnreadCount,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if categoryID.Valid {
		id := int(categoryID.Int64)
		account.CategoryID = &id
	}
	if lastFetch.Valid {
		account.LastFetchTime = &lastFetch.Time
	}
	return &account, nil
}

// CreateAccount creates a new account for userID
func (s *AccountService) CreateAccount(ctx context.Context, userID int, input *models.AccountCreate) (*models.Account, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, core.NewValidationError("account name is required", nil)
	}

	method := input.FetchMethod
	if method == "" {
		method = models.FetchMethodCrawl
	}
	frequency := input.FetchFrequency
	if frequency <= 0 {
		frequency = 24
	}
	enabled := true
	if input.FetchEnabled != nil {
		enabled = *input.FetchEnabled
	}

	query := `
		INSERT INTO wechat_accounts (user_id, name, alias, wechat_id, fakeid, avatar, description, category_id,
			rss_url, fetch_method, fetch_enabled, fetch_frequency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + accountColumns

	now := time.Now()
	account, err := scanAccount(s.db.QueryRowWithTimeout(ctx, query,
		userID,
		strings.TrimSpace(input.Name),
		input.Alias,
		input.WechatID,
		input.Fakeid,
		input.Avatar,
		input.Description,
		input.CategoryID,
		input.RSSURL,
		method,
		enabled,
		frequency,
		now,
		now,
	))
	if err != nil {
		return nil, core.NewDatabaseError("failed to create account", err)
	}

	s.logger.Info("Created account", "id", account.ID, "name", account.Name, "fakeid", account.Fakeid)
	return account, nil
}

// GetAccount retrieves an account owned by userID
func (s *AccountService) GetAccount(ctx context.Context, id, userID int) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM wechat_accounts WHERE id = ? AND user_id = ?`

	account, err := scanAccount(s.db.QueryRowWithTimeout(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewNotFoundError(fmt.Sprintf("account not found: %d", id), nil)
		}
		return nil, core.NewDatabaseError("failed to get account", err)
	}
	return account, nil
}

// GetAccountByFakeid retrieves the account a user tracks under a platform id
func (s *AccountService) GetAccountByFakeid(ctx context.Context, fakeid string, userID int) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM wechat_accounts WHERE fakeid = ? AND user_id = ? ORDER BY id LIMIT 1`

	account, err := scanAccount(s.db.QueryRowWithTimeout(ctx, query, fakeid, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewNotFoundError(fmt.Sprintf("account not found for fakeid %s", fakeid), nil)
		}
		return nil, core.NewDatabaseError("failed to get account", err)
	}
	return account, nil
}

// ListAccounts returns the accounts of a user, optionally only fetch-enabled ones.
// A userID of 0 lists across users, which the scheduler uses.
func (s *AccountService) ListAccounts(ctx context.Context, userID int, enabledOnly bool) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM wechat_accounts`

	var where []string
	var args []any
	if userID > 0 {
		where = append(where, "user_id = ?")
		args = append(args, userID)
	}
	if enabledOnly {
		where = append(where, "fetch_enabled = 1")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryWithTimeout(ctx, query, args...)
	if err != nil {
		return nil, core.NewDatabaseError("failed to query accounts", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, core.NewDatabaseError("failed to scan account", err)
		}
		accounts = append(accounts, *account)
	}

	return accounts, rows.Err()
}

// UpdateAccount applies a partial update and returns the stored account
func (s *AccountService) UpdateAccount(ctx context.Context, id, userID int, update *models.AccountUpdate) (*models.Account, error) {
	var sets []string
	var args []any

	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if update.Name != nil {
		set("name", *update.Name)
	}
	if update.Alias != nil {
		set("alias", *update.Alias)
	}
	if update.Fakeid != nil {
		set("fakeid", *update.Fakeid)
	}
	if update.Avatar != nil {
		set("avatar", *update.Avatar)
	}
	if update.Description != nil {
		set("description", *update.Description)
	}
	if update.CategoryID != nil {
		set("category_id", *update.CategoryID)
	}
	if update.RSSURL != nil {
		set("rss_url", *update.RSSURL)
	}
	if update.FetchMethod != nil {
		set("fetch_method", *update.FetchMethod)
	}
	if update.FetchEnabled != nil {
		set("fetch_enabled", *update.FetchEnabled)
	}
	if update.FetchFrequency != nil {
		set("fetch_frequency", *update.FetchFrequency)
	}
	if update.LastFetchTime != nil {
		set("last_fetch_time", *update.LastFetchTime)
	}

	if len(sets) == 0 {
		return s.GetAccount(ctx, id, userID)
	}

	set("updated_at", time.Now())
	args = append(args, id, userID)

	query := `UPDATE wechat_accounts SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND user_id = ?`
	result, err := s.db.ExecWithTimeout(ctx, query, args...)
	if err != nil {
		return nil, core.NewDatabaseError("failed to update account", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, core.NewNotFoundError(fmt.Sprintf("account not found: %d", id), nil)
	}

	return s.GetAccount(ctx, id, userID)
}

// UpdateArticleStats refreshes the cached article counters and the last fetch time
func (s *AccountService) UpdateArticleStats(ctx context.Context, id, userID int, counter ArticleCounter) (*models.AccountStats, error) {
	total, err := counter.CountByAccount(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	unread, err := counter.CountUnreadByAccount(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	stats := &models.AccountStats{
		ArticleCount:  total,
		UnreadCount:   unread,
		LastFetchTime: time.Now(),
	}

	query := `
		UPDATE wechat_accounts
		SET article_count = ?, unread_count = ?, last_fetch_time = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`
	if _, err := s.db.ExecWithTimeout(ctx, query, stats.ArticleCount, stats.UnreadCount, stats.LastFetchTime, stats.LastFetchTime, id, userID); err != nil {
		return nil, core.NewDatabaseError("failed to update account stats", err)
	}

	s.logger.Debug("Updated account stats", "id", id, "articles", total, "unread", unread)
	return stats, nil
}
