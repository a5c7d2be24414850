package models

import (
	"time"
)

// FetchOptions narrows a fetch or preview run
type FetchOptions struct {
	Fakeid string `json:"fakeid"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

// FetchResult is the outcome of a fetch run.
// Success + Failed + Skipped always equals the number of candidates considered.
type FetchResult struct {
	Success  int       `json:"success"`
	Failed   int       `json:"failed"`
	Skipped  int       `json:"skipped"`
	Articles []Article `json:"articles"`
}

// Total returns the number of candidates the run considered
func (r *FetchResult) Total() int {
	return r.Success + r.Failed + r.Skipped
}

// PreviewItem is the lightweight view of one candidate in preview mode
type PreviewItem struct {
	Title       string    `json:"title"`
	PublishTime time.Time `json:"publish_time"`
	OriginalURL string    `json:"original_url"`
	IsExisting  bool      `json:"is_existing"`
}

// PreviewResult reports what a fetch would import
type PreviewResult struct {
	Total            int           `json:"total"`
	NewArticles      int           `json:"new_articles"`
	ExistingArticles int           `json:"existing_articles"`
	Articles         []PreviewItem `json:"articles"`
}

// ImportRequest asks for a single article to be imported by URL
type ImportRequest struct {
	UserID     int    `json:"-"`
	URL        string `json:"url"`
	AccountID  *int   `json:"account_id"`
	CategoryID *int   `json:"category_id"`
}

// ImportResult is the outcome of a single URL import
type ImportResult struct {
	Article *Article `json:"article"`
	IsNew   bool     `json:"is_new"`
}

// AcquireRequest carries everything a strategy may need to list candidates
type AcquireRequest struct {
	Account     *Account
	DisplayName string
	Fakeid      string
	Credential  *Credential
	Query       string
	Limit       int
}
