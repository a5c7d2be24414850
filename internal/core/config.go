package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the main configuration for the reader service
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Log      LogConfig      `json:"log"`
	Metrics  MetricsConfig  `json:"metrics"`
	Features FeatureConfig  `json:"features"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path string `json:"path"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level string `json:"level"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// FeatureConfig contains feature-specific configuration
type FeatureConfig struct {
	Wechat WechatConfig `json:"wechat"`
}

// WechatConfig contains the acquisition pipeline configuration
type WechatConfig struct {
	Enabled bool `json:"enabled"`

	// Credentials
	DefaultCookie    string `json:"-"`
	DefaultToken     string `json:"default_token"`
	CredentialSecret string `json:"-"`

	// Image storage
	ImageBackend      string `json:"image_backend"`
	ImageDir          string `json:"image_dir"`
	ImagePublicPrefix string `json:"image_public_prefix"`
	S3Bucket          string `json:"s3_bucket"`
	S3Region          string `json:"s3_region"`
	S3Prefix          string `json:"s3_prefix"`
	S3PublicBaseURL   string `json:"s3_public_base_url"`
	S3UsePathStyle    bool   `json:"s3_use_path_style"`
	MinImageBytes     int    `json:"min_image_bytes"`

	// Pacing and limits
	PageDelay         time.Duration `json:"page_delay"`
	BackfillDelay     time.Duration `json:"backfill_delay"`
	ImageDelay        time.Duration `json:"image_delay"`
	DefaultFetchLimit int           `json:"default_fetch_limit"`
	MaxFetchLimit     int           `json:"max_fetch_limit"`
	Strategies        []string      `json:"strategies"`

	// Fetch lock
	RedisAddr     string        `json:"redis_addr"`
	RedisPassword string        `json:"-"`
	RedisDB       int           `json:"redis_db"`
	LockTTL       time.Duration `json:"lock_ttl"`

	// Scheduler
	SchedulerEnabled  bool          `json:"scheduler_enabled"`
	SchedulerInterval time.Duration `json:"scheduler_interval"`
	SchedulerWorkers  int           `json:"scheduler_workers"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("WXR_PORT", 4000),
			Host: getEnvOrDefault("WXR_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Path: getEnvOrDefault("WXR_DB_PATH", "./wechat-reader.db"),
		},
		Log: LogConfig{
			Level: getEnvOrDefault("WXR_LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("WXR_METRICS_ENABLED", true),
			Path:    getEnvOrDefault("WXR_METRICS_PATH", "/metrics"),
		},
		Features: FeatureConfig{
			Wechat: WechatConfig{
				Enabled:           getEnvAsBool("WXR_ENABLE_WECHAT", true),
				DefaultCookie:     getEnvOrDefault("WECHAT_MP_COOKIES", ""),
				DefaultToken:      getEnvOrDefault("WECHAT_MP_TOKEN", ""),
				CredentialSecret:  getEnvOrDefault("WXR_CREDENTIAL_SECRET", ""),
				ImageBackend:      strings.ToLower(getEnvOrDefault("WXR_IMAGE_BACKEND", "local")),
				ImageDir:          getEnvOrDefault("WXR_IMAGE_DIR", "./uploads/images"),
				ImagePublicPrefix: getEnvOrDefault("WXR_IMAGE_PUBLIC_PREFIX", "/uploads/images"),
				S3Bucket:          getEnvOrDefault("WXR_S3_BUCKET", ""),
				S3Region:          getEnvOrDefault("WXR_S3_REGION", ""),
				S3Prefix:          getEnvOrDefault("WXR_S3_PREFIX", "images/"),
				S3PublicBaseURL:   getEnvOrDefault("WXR_S3_PUBLIC_BASE_URL", ""),
				S3UsePathStyle:    getEnvAsBool("WXR_S3_USE_PATH_STYLE", false),
				MinImageBytes:     getEnvAsInt("WXR_MIN_IMAGE_BYTES", 20480),
				PageDelay:         getEnvAsDuration("WXR_PAGE_DELAY", 300*time.Millisecond),
				BackfillDelay:     getEnvAsDuration("WXR_BACKFILL_DELAY", 500*time.Millisecond),
				ImageDelay:        getEnvAsDuration("WXR_IMAGE_DELAY", 300*time.Millisecond),
				DefaultFetchLimit: getEnvAsInt("WXR_DEFAULT_FETCH_LIMIT", 10),
				MaxFetchLimit:     getEnvAsInt("WXR_MAX_FETCH_LIMIT", 100),
				Strategies:        getEnvAsList("WXR_STRATEGIES", []string{"rss", "publish", "appmsg", "sogou"}),
				RedisAddr:         getEnvOrDefault("WXR_REDIS_ADDR", ""),
				RedisPassword:     getEnvOrDefault("WXR_REDIS_PASSWORD", ""),
				RedisDB:           getEnvAsInt("WXR_REDIS_DB", 0),
				LockTTL:           getEnvAsDuration("WXR_LOCK_TTL", 10*time.Minute),
				SchedulerEnabled:  getEnvAsBool("WXR_SCHEDULER_ENABLED", false),
				SchedulerInterval: getEnvAsDuration("WXR_SCHEDULER_INTERVAL", time.Hour),
				SchedulerWorkers:  getEnvAsInt("WXR_SCHEDULER_WORKERS", 1),
			},
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Features.Wechat.ImageBackend == "s3" && c.Features.Wechat.S3Bucket == "" {
		return fmt.Errorf("WXR_S3_BUCKET is required when the s3 image backend is selected")
	}

	return nil
}

// GetFeatureConfig returns configuration for a specific feature
func (c *Config) GetFeatureConfig(featureName string) interface{} {
	switch strings.ToLower(featureName) {
	case "wechat":
		return c.Features.Wechat
	default:
		return nil
	}
}

// IsFeatureEnabled checks if a feature is enabled
func (c *Config) IsFeatureEnabled(featureName string) bool {
	switch strings.ToLower(featureName) {
	case "wechat":
		return c.Features.Wechat.Enabled
	default:
		return false
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("300ms") or bare milliseconds ("300")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, strings.ToLower(part))
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
