package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ImageStore persists downloaded images and returns the reference articles should use
type ImageStore interface {
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// LocalImageStore writes images into a directory served under a public prefix
type LocalImageStore struct {
	dir          string
	publicPrefix string
}

// NewLocalImageStore creates the image directory if needed
func NewLocalImageStore(dir, publicPrefix string) (*LocalImageStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	return &LocalImageStore{
		dir:          dir,
		publicPrefix: strings.TrimSuffix(publicPrefix, "/"),
	}, nil
}

// Dir returns the directory images are written to
func (s *LocalImageStore) Dir() string {
	return s.dir
}

// Save writes data to dir/name and returns prefix/name
func (s *LocalImageStore) Save(_ context.Context, name string, data []byte, _ string) (string, error) {
	if err := os.WriteFile(filepath.Join(s.dir, filepath.Base(name)), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return s.publicPrefix + "/" + filepath.Base(name), nil
}

// S3Config selects the bucket images are uploaded to
type S3Config struct {
	Bucket        string
	Region        string
	Prefix        string
	PublicBaseURL string
	UsePathStyle  bool
}

// S3ImageStore uploads images to an S3-compatible bucket
type S3ImageStore struct {
	client *s3.Client
	cfg    S3Config
}

// NewS3ImageStore builds a client from the default AWS credential chain
func NewS3ImageStore(ctx context.Context, cfg S3Config) (*S3ImageStore, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3ImageStore{client: client, cfg: cfg}, nil
}

// Save uploads data under prefix/name and returns its public URL
func (s *S3ImageStore) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := s.cfg.Prefix + name

	in := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("failed to upload image %s: %w", key, err)
	}

	return s.publicURL(key), nil
}

func (s *S3ImageStore) publicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + key
	}
	if s.cfg.Region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.cfg.Bucket, key)
}
