package wechat

import (
	"fmt"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"
	"wechat-reader/internal/features/wechat/services"
)

// Image storage backends
const (
	ImageBackendLocal = "local"
	ImageBackendS3    = "s3"
)

// Config represents wechat feature configuration
type Config struct {
	Enabled bool

	DefaultCookie    string
	DefaultToken     string
	CredentialSecret string

	ImageBackend      string
	ImageDir          string
	ImagePublicPrefix string
	S3                services.S3Config
	MinImageBytes     int

	PageDelay         time.Duration
	BackfillDelay     time.Duration
	ImageDelay        time.Duration
	DefaultFetchLimit int
	MaxFetchLimit     int
	Strategies        []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	SchedulerEnabled  bool
	SchedulerInterval time.Duration
	SchedulerWorkers  int

	// Upstream base URLs; empty means the live services
	PlatformBaseURL string
	MirrorBaseURL   string
}

// NewConfig creates wechat config from core config
func NewConfig(coreConfig *core.Config) *Config {
	wc := coreConfig.Features.Wechat
	return &Config{
		Enabled:           wc.Enabled,
		DefaultCookie:     wc.DefaultCookie,
		DefaultToken:      wc.DefaultToken,
		CredentialSecret:  wc.CredentialSecret,
		ImageBackend:      wc.ImageBackend,
		ImageDir:          wc.ImageDir,
		ImagePublicPrefix: wc.ImagePublicPrefix,
		S3: services.S3Config{
			Bucket:        wc.S3Bucket,
			Region:        wc.S3Region,
			Prefix:        wc.S3Prefix,
			PublicBaseURL: wc.S3PublicBaseURL,
			UsePathStyle:  wc.S3UsePathStyle,
		},
		MinImageBytes:     wc.MinImageBytes,
		PageDelay:         wc.PageDelay,
		BackfillDelay:     wc.BackfillDelay,
		ImageDelay:        wc.ImageDelay,
		DefaultFetchLimit: wc.DefaultFetchLimit,
		MaxFetchLimit:     wc.MaxFetchLimit,
		Strategies:        wc.Strategies,
		RedisAddr:         wc.RedisAddr,
		RedisPassword:     wc.RedisPassword,
		RedisDB:           wc.RedisDB,
		LockTTL:           wc.LockTTL,
		SchedulerEnabled:  wc.SchedulerEnabled,
		SchedulerInterval: wc.SchedulerInterval,
		SchedulerWorkers:  wc.SchedulerWorkers,
	}
}

// Validate validates the wechat configuration
func (c *Config) Validate() error {
	if c.ImageBackend != ImageBackendLocal && c.ImageBackend != ImageBackendS3 {
		return fmt.Errorf("image backend must be %q or %q, got %q", ImageBackendLocal, ImageBackendS3, c.ImageBackend)
	}

	if c.ImageBackend == ImageBackendLocal && c.ImageDir == "" {
		return fmt.Errorf("image directory is required for the local image backend")
	}

	if c.ImageBackend == ImageBackendS3 && c.S3.Bucket == "" {
		return fmt.Errorf("s3 bucket is required for the s3 image backend")
	}

	if c.MinImageBytes < 0 {
		return fmt.Errorf("min image bytes must not be negative")
	}

	if c.PageDelay < 0 || c.BackfillDelay < 0 || c.ImageDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}

	if c.DefaultFetchLimit < 1 || c.MaxFetchLimit < c.DefaultFetchLimit || c.MaxFetchLimit > 1000 {
		return fmt.Errorf("fetch limits must satisfy 1 <= default <= max <= 1000")
	}

	if c.RedisAddr != "" && c.LockTTL < time.Second {
		return fmt.Errorf("lock ttl must be at least one second when redis locks are enabled")
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one acquisition strategy is required")
	}

	if c.SchedulerEnabled {
		if c.SchedulerInterval < time.Minute {
			return fmt.Errorf("scheduler interval must be at least one minute")
		}
		if c.SchedulerWorkers < 1 || c.SchedulerWorkers > 20 {
			return fmt.Errorf("scheduler workers must be between 1 and 20")
		}
	}

	return nil
}

// PipelineConfig returns the pipeline heuristics derived from this configuration
func (c *Config) PipelineConfig() *models.PipelineConfig {
	pipeline := models.DefaultPipelineConfig()
	pipeline.MinImageBytes = c.MinImageBytes
	pipeline.PageDelay = c.PageDelay
	pipeline.BackfillDelay = c.BackfillDelay
	pipeline.ImageDelay = c.ImageDelay
	pipeline.DefaultFetchLimit = c.DefaultFetchLimit
	pipeline.MaxFetchLimit = c.MaxFetchLimit
	pipeline.DefaultToken = c.DefaultToken
	return pipeline
}

// SchedulerConfig returns the scheduler settings derived from this configuration
func (c *Config) SchedulerConfig() *models.SchedulerConfig {
	scheduler := models.DefaultSchedulerConfig()
	if c.SchedulerInterval > 0 {
		scheduler.UpdateInterval = c.SchedulerInterval
	}
	if c.SchedulerWorkers > 0 {
		scheduler.MaxWorkers = c.SchedulerWorkers
	}
	return scheduler
}
