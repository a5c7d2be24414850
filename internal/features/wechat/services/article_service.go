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

	"github.com/samber/lo"
)

// ArticleService stores articles
type ArticleService struct {
	db     *core.Database
	logger *core.Logger
}

// NewArticleService creates a new article service
func NewArticleService(db *core.Database, logger *core.Logger) *ArticleService {
	return &ArticleService{
		db:     db,
		logger: logger,
	}
}

const articleColumns = `id, user_id, account_id, category_id, title, content, summary, cover_image, original_url,
	publish_time, author, read_status, is_favorite, read_progress, read_time, created_at, updated_at`

func scanArticle(row rowScanner) (*models.Article, error) {
	var article models.Article
	var accountID, categoryID sql.NullInt64
	var readTime sql.NullTime

	err := row.Scan(
		&article.ID,
		&article.UserID,
		&accountID,
		&categoryID,
		&article.Title,
		&article.Content,
		&article.Summary,
		&article.CoverImage,
		&article.OriginalURL,
		&article.PublishTime,
		&article.Author,
		&article.ReadStatus,
		&article.IsFavorite,
		&article.ReadProgress,
		&readTime,
		&article.CreatedAt,
		&article.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if accountID.Valid {
		id := int(accountID.Int64)
		article.AccountID = &id
	}
	if categoryID.Valid {
		id := int(categoryID.Int64)
		article.CategoryID = &id
	}
	if readTime.Valid {
		article.ReadTime = &readTime.Time
	}
	return &article, nil
}

// CreateArticle persists a new article
func (s *ArticleService) CreateArticle(ctx context.Context, input *models.ArticleCreate) (*models.Article, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, core.NewValidationError("article title is required", nil)
	}
	if input.OriginalURL == "" {
		return nil, core.NewValidationError("article original url is required", nil)
	}

	status := input.ReadStatus
	if status == "" {
		status = models.ReadStatusUnread
	}
	publishTime := input.PublishTime
	if publishTime.IsZero() {
		publishTime = time.Now()
	}

	query := `
		INSERT INTO wechat_articles (user_id, account_id, category_id, title, content, summary, cover_image,
			original_url, publish_time, author, read_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + articleColumns

	now := time.Now()
	article, err := scanArticle(s.db.QueryRowWithTimeout(ctx, query,
		input.UserID,
		input.AccountID,
		input.CategoryID,
		input.Title,
		input.Content,
		input.Summary,
		input.CoverImage,
		input.OriginalURL,
		publishTime,
		input.Author,
		status,
		now,
		now,
	))
	if err != nil {
		return nil, core.NewDatabaseError("failed to create article", err)
	}

	s.logger.Debug("Created article", "id", article.ID, "title", article.Title, "account_id", input.AccountID)
	return article, nil
}

// GetArticle retrieves an article owned by userID
func (s *ArticleService) GetArticle(ctx context.Context, id, userID int) (*models.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM wechat_articles WHERE id = ? AND user_id = ?`

	article, err := scanArticle(s.db.QueryRowWithTimeout(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewNotFoundError(fmt.Sprintf("article not found: %d", id), nil)
		}
		return nil, core.NewDatabaseError("failed to get article", err)
	}
	return article, nil
}

// FindExistingByURLs returns the stored articles among urls in one query, keyed by URL.
// A nil accountID searches across accounts.
func (s *ArticleService) FindExistingByURLs(ctx context.Context, urls []string, accountID *int) (map[string]models.Article, error) {
	existing := make(map[string]models.Article)

	urls = lo.Uniq(lo.Filter(urls, func(u string, _ int) bool { return u != "" }))
	if len(urls) == 0 {
		return existing, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(urls)), ",")
	args := lo.Map(urls, func(u string, _ int) any { return u })

	query := `SELECT ` + articleColumns + ` FROM wechat_articles WHERE original_url IN (` + placeholders + `)`
	if accountID != nil {
		query += ` AND account_id = ?`
		args = append(args, *accountID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryWithTimeout(ctx, query, args...)
	if err != nil {
		return nil, core.NewDatabaseError("failed to query existing articles", err)
	}
	defer rows.Close()

	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, core.NewDatabaseError("failed to scan article", err)
		}
		if _, seen := existing[article.OriginalURL]; !seen {
			existing[article.OriginalURL] = *article
		}
	}

	return existing, rows.Err()
}

// FindByOriginalURL looks up an article by URL under an account.
// A nil accountID matches articles that belong to no account.
func (s *ArticleService) FindByOriginalURL(ctx context.Context, url string, accountID *int) (*models.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM wechat_articles WHERE original_url = ?`
	args := []any{url}
	if accountID != nil {
		query += ` AND account_id = ?`
		args = append(args, *accountID)
	} else {
		query += ` AND account_id IS NULL`
	}
	query += ` ORDER BY id LIMIT 1`

	article, err := scanArticle(s.db.QueryRowWithTimeout(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, core.NewDatabaseError("failed to find article by url", err)
	}
	return article, nil
}

// CountByAccount counts the articles of an account
func (s *ArticleService) CountByAccount(ctx context.Context, accountID, userID int) (int, error) {
	var count int
	err := s.db.QueryRowWithTimeout(ctx,
		`SELECT COUNT(*) FROM wechat_articles WHERE account_id = ? AND user_id = ?`,
		accountID, userID).Scan(&count)
	if err != nil {
		return 0, core.NewDatabaseError("failed to count articles", err)
	}
	return count, nil
}

// CountUnreadByAccount counts the unread articles of an account
func (s *ArticleService) CountUnreadByAccount(ctx context.Context, accountID, userID int) (int, error) {
	var count int
	err := s.db.QueryRowWithTimeout(ctx,
		`SELECT COUNT(*) FROM wechat_articles WHERE account_id = ? AND user_id = ? AND read_status = ?`,
		accountID, userID, models.ReadStatusUnread).Scan(&count)
	if err != nil {
		return 0, core.NewDatabaseError("failed to count unread articles", err)
	}
	return count, nil
}

// UpdateProgress records read progress; reaching 100 marks the article read
func (s *ArticleService) UpdateProgress(ctx context.Context, id, userID, progress int) (*models.Article, error) {
	if progress < 0 || progress > 100 {
		return nil, core.NewValidationError("progress must be between 0 and 100", nil)
	}

	now := time.Now()
	query := `UPDATE wechat_articles SET read_progress = ?, updated_at = ? WHERE id = ? AND user_id = ?`
	args := []any{progress, now, id, userID}
	if progress >= 100 {
		query = `UPDATE wechat_articles SET read_progress = ?, read_status = ?, read_time = ?, updated_at = ? WHERE id = ? AND user_id = ?`
		args = []any{progress, models.ReadStatusRead, now, now, id, userID}
	}

	result, err := s.db.ExecWithTimeout(ctx, query, args...)
	if err != nil {
		return nil, core.NewDatabaseError("failed to update read progress", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, core.NewNotFoundError(fmt.Sprintf("article not found: %d", id), nil)
	}

	return s.GetArticle(ctx, id, userID)
}
