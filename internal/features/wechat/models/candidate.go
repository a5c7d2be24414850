package models

import (
	"time"
)

// ArticleCandidate is a discovered article that has not been persisted yet
type ArticleCandidate struct {
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	CoverImage  string    `json:"cover_image,omitempty"`
	OriginalURL string    `json:"original_url"`
	PublishTime time.Time `json:"publish_time"`
	Content     string    `json:"content,omitempty"`
}

// PublishTimeOrNow returns the publish time, or the current time when it is unknown
func (c *ArticleCandidate) PublishTimeOrNow() time.Time {
	if c.PublishTime.IsZero() {
		return time.Now()
	}
	return c.PublishTime
}

// HasContent reports whether the candidate carries a body
func (c *ArticleCandidate) HasContent() bool {
	return c.Content != ""
}
