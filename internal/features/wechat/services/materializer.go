package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"

	"github.com/google/uuid"
)

const maxImageBytes = 20 << 20

var allowedImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ImageMaterializer copies remote article images into an ImageStore
type ImageMaterializer struct {
	client *http.Client
	store  ImageStore
	logger *core.Logger
	config *models.PipelineConfig
}

// NewImageMaterializer creates a new image materializer
func NewImageMaterializer(client *http.Client, store ImageStore, logger *core.Logger, config *models.PipelineConfig) *ImageMaterializer {
	return &ImageMaterializer{
		client: client,
		store:  store,
		logger: logger,
		config: config,
	}
}

// Materialize downloads remoteURL and stores it, returning the stored reference.
// Failures and images below the size threshold report false and are never returned as errors.
func (m *ImageMaterializer) Materialize(ctx context.Context, remoteURL string) (string, bool) {
	if !isHTTPURL(remoteURL) {
		return "", false
	}

	u, err := url.Parse(remoteURL)
	if err != nil {
		m.logger.Debug("Skipping unparsable image url", "url", remoteURL, "error", err)
		RecordImage("invalid")
		return "", false
	}

	data, contentType, err := m.download(ctx, remoteURL)
	if err != nil {
		m.logger.Warn("Failed to download image", "url", remoteURL, "error", err)
		RecordImage("error")
		return "", false
	}

	if len(data) < m.config.MinImageBytes {
		m.logger.Debug("Skipping small image", "url", remoteURL, "bytes", len(data))
		RecordImage("small")
		return "", false
	}

	name := imageFileName(u, time.Now())
	ref, err := m.store.Save(ctx, name, data, contentType)
	if err != nil {
		m.logger.Warn("Failed to store image", "url", remoteURL, "error", err)
		RecordImage("error")
		return "", false
	}

	m.logger.Debug("Stored image", "url", remoteURL, "ref", ref, "bytes", len(data))
	RecordImage("stored")
	return ref, true
}

func (m *ImageMaterializer) download(ctx context.Context, remoteURL string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.config.ImageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", m.config.UserAgent)
	req.Header.Set("Referer", "https://"+articleHost+"/")
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// imageFileName builds <unixMillis>_<random><ext>, taking the extension from the URL path
func imageFileName(u *url.URL, now time.Time) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if !allowedImageExts[ext] {
		ext = ".jpg"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d_%s%s", now.UnixMilli(), suffix, ext)
}
