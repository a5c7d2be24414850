package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

const (
	maxRedirects     = 5
	maxDocumentBytes = 10 << 20
)

// NewHTTPClient returns the client shared by the upstream calls; it follows at most five redirects
func NewHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// ArticleFetcher downloads a single article page and materializes its images
type ArticleFetcher struct {
	client       *http.Client
	extractor    *Extractor
	materializer *ImageMaterializer
	logger       *core.Logger
	config       *models.PipelineConfig
}

// NewArticleFetcher creates a new article fetcher
func NewArticleFetcher(client *http.Client, extractor *Extractor, materializer *ImageMaterializer, logger *core.Logger, config *models.PipelineConfig) *ArticleFetcher {
	return &ArticleFetcher{
		client:       client,
		extractor:    extractor,
		materializer: materializer,
		logger:       logger,
		config:       config,
	}
}

// ValidateArticleURL accepts only http(s) links on the article host
func ValidateArticleURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return nil, core.NewInvalidURLError("invalid article url: "+rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, core.NewInvalidURLError("article url must use http or https: "+rawURL, nil)
	}
	if !strings.EqualFold(u.Hostname(), articleHost) {
		return nil, core.NewInvalidURLError("not an official-account article url: "+rawURL, nil)
	}
	return u, nil
}

// IsArticleURL reports whether rawURL points at the article host
func IsArticleURL(rawURL string) bool {
	_, err := ValidateArticleURL(rawURL)
	return err == nil
}

// FetchByURL downloads and extracts one article, replacing remote images with stored copies.
// Image failures keep the original reference.
func (f *ArticleFetcher) FetchByURL(ctx context.Context, rawURL string) (*models.ArticleCandidate, error) {
	u, err := ValidateArticleURL(rawURL)
	if err != nil {
		return nil, err
	}
	articleURL := u.String()

	raw, err := f.download(ctx, articleURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, core.NewExtractionError("failed to parse article document", err)
	}

	result, err := f.extractor.extract(doc, raw, articleURL, time.Now())
	if err != nil {
		return nil, err
	}

	f.materializeCover(ctx, result)
	if result.body != nil {
		f.materializeBody(ctx, result)
	}

	f.logger.Info("Fetched article", "url", articleURL, "title", result.candidate.Title)
	return &result.candidate, nil
}

func (f *ArticleFetcher) download(ctx context.Context, articleURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.ArticleTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Referer", "https://"+articleHost+"/")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", core.NewTransientNetworkError("failed to download article", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", core.NewTransientNetworkError(fmt.Sprintf("article returned status %d", resp.StatusCode), nil)
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", core.NewExtractionError("failed to decode article charset", err)
	}
	data, err := io.ReadAll(io.LimitReader(body, maxDocumentBytes))
	if err != nil {
		return "", core.NewTransientNetworkError("failed to read article", err)
	}
	return string(data), nil
}

// materializeCover stores the cover locally. A cover taken from the body is kept only when stored.
func (f *ArticleFetcher) materializeCover(ctx context.Context, result *extraction) {
	cover := result.candidate.CoverImage
	if !isHTTPURL(cover) {
		return
	}

	if ref, ok := f.materializer.Materialize(ctx, cover); ok {
		result.candidate.CoverImage = ref
		return
	}
	if result.coverFromBody {
		result.candidate.CoverImage = ""
	}
}

// materializeBody stores every body image and rewrites its src
func (f *ArticleFetcher) materializeBody(ctx context.Context, result *extraction) {
	pacer := NewPacer(f.config.ImageDelay)
	rewritten := 0

	result.body.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := normalizeImageURL(imageSource(img))
		if !isHTTPURL(src) {
			return true
		}
		if err := pacer.Wait(ctx); err != nil {
			return false
		}

		ref, ok := f.materializer.Materialize(ctx, src)
		if !ok {
			return true
		}
		img.SetAttr("src", ref)
		for _, attr := range lazyImageAttrs {
			img.RemoveAttr(attr)
		}
		rewritten++
		return true
	})

	if rewritten == 0 {
		return
	}
	if inner, err := result.body.Html(); err == nil {
		result.candidate.Content = inner
	}
	f.logger.Debug("Rewrote article images", "url", result.candidate.OriginalURL, "images", rewritten)
}
