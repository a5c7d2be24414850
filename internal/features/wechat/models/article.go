package models

import (
	"time"
)

// Read statuses
const (
	ReadStatusUnread = "unread"
	ReadStatusRead   = "read"
)

// Article represents a persisted article
type Article struct {
	ID           int        `json:"id"`
	UserID       int        `json:"user_id"`
	AccountID    *int       `json:"account_id"`
	CategoryID   *int       `json:"category_id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Summary      string     `json:"summary"`
	CoverImage   string     `json:"cover_image"`
	OriginalURL  string     `json:"original_url"`
	PublishTime  time.Time  `json:"publish_time"`
	Author       string     `json:"author"`
	ReadStatus   string     `json:"read_status"`
	IsFavorite   bool       `json:"is_favorite"`
	ReadProgress int        `json:"read_progress"`
	ReadTime     *time.Time `json:"read_time"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// ArticleCreate represents the data needed to persist a new article
type ArticleCreate struct {
	UserID      int       `json:"user_id" validate:"required"`
	AccountID   *int      `json:"account_id"`
	CategoryID  *int      `json:"category_id"`
	Title       string    `json:"title" validate:"required"`
	Content     string    `json:"content"`
	Summary     string    `json:"summary"`
	CoverImage  string    `json:"cover_image"`
	OriginalURL string    `json:"original_url" validate:"required,url"`
	PublishTime time.Time `json:"publish_time"`
	Author      string    `json:"author"`
	ReadStatus  string    `json:"read_status"`
}

// ArticleFromCandidate builds the create payload for a candidate owned by userID
func ArticleFromCandidate(c *ArticleCandidate, userID int, accountID, categoryID *int) *ArticleCreate {
	return &ArticleCreate{
		UserID:      userID,
		AccountID:   accountID,
		CategoryID:  categoryID,
		Title:       c.Title,
		Content:     c.Content,
		Summary:     c.Summary,
		CoverImage:  c.CoverImage,
		OriginalURL: c.OriginalURL,
		PublishTime: c.PublishTimeOrNow(),
		Author:      c.Author,
		ReadStatus:  ReadStatusUnread,
	}
}
