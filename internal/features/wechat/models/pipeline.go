package models

import (
	"time"
)

// PipelineConfig holds the tunable heuristics of the acquisition pipeline
type PipelineConfig struct {
	UserAgent         string
	MinImageBytes     int
	PageDelay         time.Duration
	BackfillDelay     time.Duration
	ImageDelay        time.Duration
	DefaultFetchLimit int
	MaxFetchLimit     int
	DefaultToken      string
	ListTimeout       time.Duration
	ArticleTimeout    time.Duration
	ImageTimeout      time.Duration
	MirrorTimeout     time.Duration
}

// DefaultPipelineConfig returns the values tuned against the live platform
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		MinImageBytes:     20480,
		PageDelay:         300 * time.Millisecond,
		BackfillDelay:     500 * time.Millisecond,
		ImageDelay:        300 * time.Millisecond,
		DefaultFetchLimit: 10,
		MaxFetchLimit:     100,
		ListTimeout:       60 * time.Second,
		ArticleTimeout:    15 * time.Second,
		ImageTimeout:      10 * time.Second,
		MirrorTimeout:     15 * time.Second,
	}
}

// ClampLimit applies the default and the upper bound to a caller-supplied limit
func (c *PipelineConfig) ClampLimit(limit int) int {
	if limit <= 0 {
		limit = c.DefaultFetchLimit
	}
	if c.MaxFetchLimit > 0 && limit > c.MaxFetchLimit {
		limit = c.MaxFetchLimit
	}
	return limit
}

// SchedulerConfig holds configuration for the periodic fetch loop
type SchedulerConfig struct {
	UpdateInterval time.Duration
	MaxWorkers     int
}

// DefaultSchedulerConfig returns default scheduler configuration.
// One worker keeps upstream traffic sequential.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		UpdateInterval: 1 * time.Hour,
		MaxWorkers:     1,
	}
}
