package models

import (
	"time"
)

// Fetch method tags. They are informational; acquisition always runs the same pipeline.
const (
	FetchMethodRSS   = "rss"
	FetchMethodCrawl = "crawl"
	FetchMethodAPI   = "api"
)

// Account represents a WeChat official account tracked by a user
type Account struct {
	ID             int        `json:"id"`
	UserID         int        `json:"user_id"`
	Name           string     `json:"name"`
	Alias          string     `json:"alias"`
	WechatID       string     `json:"wechat_id"`
	Fakeid         string     `json:"fakeid"`
	Avatar         string     `json:"avatar"`
	Description    string     `json:"description"`
	CategoryID     *int       `json:"category_id"`
	RSSURL         string     `json:"rss_url"`
	FetchMethod    string     `json:"fetch_method"`
	FetchEnabled   bool       `json:"fetch_enabled"`
	FetchFrequency int        `json:"fetch_frequency"`
	LastFetchTime  *time.Time `json:"last_fetch_time"`
	ArticleCount   int        `json:"article_count"`
	UnreadCount    int        `json:"unread_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// DueForFetch reports whether the advisory fetch frequency has elapsed
func (a *Account) DueForFetch(now time.Time) bool {
	if !a.FetchEnabled {
		return false
	}
	if a.LastFetchTime == nil {
		return true
	}
	frequency := a.FetchFrequency
	if frequency <= 0 {
		frequency = 24
	}
	return now.Sub(*a.LastFetchTime) >= time.Duration(frequency)*time.Hour
}

// AccountCreate represents the data needed to create a new account
type AccountCreate struct {
	Name           string `json:"name" validate:"required"`
	Alias          string `json:"alias"`
	WechatID       string `json:"wechat_id"`
	Fakeid         string `json:"fakeid"`
	Avatar         string `json:"avatar"`
	Description    string `json:"description"`
	CategoryID     *int   `json:"category_id"`
	RSSURL         string `json:"rss_url"`
	FetchMethod    string `json:"fetch_method"`
	FetchEnabled   *bool  `json:"fetch_enabled"`
	FetchFrequency int    `json:"fetch_frequency"`
}

// AccountUpdate represents a partial account update
type AccountUpdate struct {
	Name           *string    `json:"name"`
	Alias          *string    `json:"alias"`
	Fakeid         *string    `json:"fakeid"`
	Avatar         *string    `json:"avatar"`
	Description    *string    `json:"description"`
	CategoryID     *int       `json:"category_id"`
	RSSURL         *string    `json:"rss_url"`
	FetchMethod    *string    `json:"fetch_method"`
	FetchEnabled   *bool      `json:"fetch_enabled"`
	FetchFrequency *int       `json:"fetch_frequency"`
	LastFetchTime  *time.Time `json:"-"`
}

// AccountStats holds the cached counters refreshed after a fetch
type AccountStats struct {
	ArticleCount  int       `json:"article_count"`
	UnreadCount   int       `json:"unread_count"`
	LastFetchTime time.Time `json:"last_fetch_time"`
}

// AccountSearchResult is one hit from the platform account search
type AccountSearchResult struct {
	Nickname    string `json:"nickname"`
	Name        string `json:"name"`
	Alias       string `json:"alias"`
	Fakeid      string `json:"fakeid"`
	Headimg     string `json:"headimg"`
	ServiceType int    `json:"service_type"`
}
