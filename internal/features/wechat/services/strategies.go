package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"
	"golang.org/x/net/html/charset"
)

// Strategy names accepted in the strategy order
const (
	StrategyRSS     = "rss"
	StrategyPublish = "publish"
	StrategyAppMsg  = "appmsg"
	StrategySogou   = "sogou"
)

// ErrStrategyNotApplicable is returned by a strategy that cannot run for the request
var ErrStrategyNotApplicable = errors.New("strategy not applicable")

// Strategy lists article candidates from one upstream surface
type Strategy interface {
	Name() string
	Acquire(ctx context.Context, req *models.AcquireRequest) ([]models.ArticleCandidate, error)
}

// Acquirer runs strategies in order until one yields candidates
type Acquirer struct {
	strategies []Strategy
	logger     *core.Logger
}

// NewAcquirer creates an acquirer over the given strategy order
func NewAcquirer(logger *core.Logger, strategies ...Strategy) *Acquirer {
	return &Acquirer{
		strategies: strategies,
		logger:     logger,
	}
}

// AcquireCandidates returns the first non-empty result of the chain.
// When no strategy yields candidates and any of them failed, the errors are
// joined with the first one leading. An empty result means nothing failed.
func (a *Acquirer) AcquireCandidates(ctx context.Context, req *models.AcquireRequest) ([]models.ArticleCandidate, error) {
	var errs []error

	for _, strategy := range a.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates, err := strategy.Acquire(ctx, req)
		switch {
		case errors.Is(err, ErrStrategyNotApplicable):
			RecordStrategy(strategy.Name(), "skipped")
			continue
		case err != nil:
			RecordStrategy(strategy.Name(), "error")
			a.logger.Warn("Acquisition strategy failed", "strategy", strategy.Name(), "fakeid", req.Fakeid, "error", err)
			errs = append(errs, err)
			continue
		}

		if len(candidates) == 0 {
			RecordStrategy(strategy.Name(), "empty")
			a.logger.Info("Acquisition strategy returned nothing", "strategy", strategy.Name(), "fakeid", req.Fakeid)
			continue
		}

		RecordStrategy(strategy.Name(), "success")
		a.logger.Info("Acquired candidates", "strategy", strategy.Name(), "fakeid", req.Fakeid, "count", len(candidates))
		return candidates, nil
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

// PublishStrategy lists articles from the published-articles endpoint
type PublishStrategy struct {
	fetcher *PublishListFetcher
}

// NewPublishStrategy creates a new publish strategy
func NewPublishStrategy(fetcher *PublishListFetcher) *PublishStrategy {
	return &PublishStrategy{fetcher: fetcher}
}

// Name returns the strategy name
func (s *PublishStrategy) Name() string { return StrategyPublish }

// Acquire lists published articles
func (s *PublishStrategy) Acquire(ctx context.Context, req *models.AcquireRequest) ([]models.ArticleCandidate, error) {
	return s.fetcher.ListPublished(ctx, req)
}

// AppMsgStrategy lists articles from the legacy appmsg endpoint
type AppMsgStrategy struct {
	platform *PlatformClient
	logger   *core.Logger
	config   *models.PipelineConfig
}

// NewAppMsgStrategy creates a new appmsg strategy
func NewAppMsgStrategy(platform *PlatformClient, logger *core.Logger, config *models.PipelineConfig) *AppMsgStrategy {
	return &AppMsgStrategy{
		platform: platform,
		logger:   logger,
		config:   config,
	}
}

// Name returns the strategy name
func (s *AppMsgStrategy) Name() string { return StrategyAppMsg }

// Acquire resolves the fakeid by name when needed and pages through the legacy list
func (s *AppMsgStrategy) Acquire(ctx context.Context, req *models.AcquireRequest) ([]models.ArticleCandidate, error) {
	if req.Credential == nil || req.Credential.Cookie == "" {
		return nil, ErrStrategyNotApplicable
	}

	fakeid := req.Fakeid
	if fakeid == "" {
		if req.DisplayName == "" {
			return nil, ErrStrategyNotApplicable
		}
		results, err := s.platform.SearchAccounts(ctx, req.Credential, req.DisplayName)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 || results[0].Fakeid == "" {
			s.logger.Warn("No account found by name", "name", req.DisplayName)
			return nil, nil
		}
		fakeid = results[0].Fakeid
	}

	limit := s.config.ClampLimit(req.Limit)
	pacer := NewPacer(s.config.BackfillDelay)
	now := time.Now()

	var collected []models.ArticleCandidate
	for begin := 0; begin < s.config.MaxFetchLimit && len(collected) < limit; begin += appMsgPageSize {
		if err := pacer.Wait(ctx); err != nil {
			return nil, err
		}

		items, err := s.platform.fetchAppMsgPage(ctx, req.Credential, fakeid, begin)
		if err != nil {
			if len(collected) > 0 {
				s.logger.Warn("Stopping appmsg pagination after page error", "fakeid", fakeid, "begin", begin, "error", err)
				break
			}
			return nil, err
		}

		for _, item := range items {
			if item.Link == "" {
				continue
			}
			published := unixOrZero(item.UpdateTime)
			collected = append(collected, models.ArticleCandidate{
				Title:       lo.Ternary(item.Title != "", item.Title, untitledLabel),
				Author:      req.DisplayName,
				Summary:     item.Digest,
				CoverImage:  item.Cover,
				OriginalURL: item.Link,
				PublishTime: lo.Ternary(published.IsZero(), now, published),
			})
		}

		if len(items) < appMsgPageSize {
			break
		}
	}

	collected = lo.UniqBy(collected, func(c models.ArticleCandidate) string { return c.OriginalURL })
	if len(collected) > limit {
		collected = collected[:limit]
	}
	return collected, nil
}

// DefaultMirrorBaseURL is the search mirror scraped when the platform API yields nothing
const DefaultMirrorBaseURL = "https://weixin.sogou.com"

var (
	mirrorListSelectors = []string{
		".news-list li",
		".news-box",
		".article-item",
		".news-text",
		"ul.news-list2 li",
		".wx-news-info",
		`[class*="news"]`,
	}
	mirrorTitleSelector   = `h3 a, h4 a, .title a, a[href*="mp.weixin"]`
	mirrorSummarySelector = ".news-text-content, .txt-box .news-text-content, .summary, .desc, .text"
	mirrorImageSelector   = ".news-pic img, .img-box img, img"
	mirrorTimeSelector    = `.news-from, .time, [class*="time"]`
)

// SogouStrategy scrapes account and article listings from the search mirror
type SogouStrategy struct {
	client  *http.Client
	baseURL string
	logger  *core.Logger
	config  *models.PipelineConfig
}

// NewSogouStrategy creates a mirror strategy against baseURL, or the live mirror when empty
func NewSogouStrategy(client *http.Client, baseURL string, logger *core.Logger, config *models.PipelineConfig) *SogouStrategy {
	if baseURL == "" {
		baseURL = DefaultMirrorBaseURL
	}
	return &SogouStrategy{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
		config:  config,
	}
}

// Name returns the strategy name
func (s *SogouStrategy) Name() string { return StrategySogou }

// Acquire finds the account on the mirror and scrapes its article list
func (s *SogouStrategy) Acquire(ctx context.Context, req *models.AcquireRequest) ([]models.ArticleCandidate, error) {
	if req.DisplayName == "" {
		return nil, ErrStrategyNotApplicable
	}

	searchDoc, err := s.getDocument(ctx, s.baseURL+"/weixin?type=1&query="+url.QueryEscape(req.DisplayName))
	if err != nil {
		return nil, err
	}

	href, ok := searchDoc.Find(".news-box .news-text h3 a").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		s.logger.Warn("Account not found on mirror", "name", req.DisplayName)
		return nil, nil
	}

	listDoc, err := s.getDocument(ctx, s.resolve(href))
	if err != nil {
		return nil, err
	}

	candidates := s.parseList(listDoc, req.DisplayName, time.Now())
	limit := s.config.ClampLimit(req.Limit)
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	s.logger.Info("Scraped mirror article list", "name", req.DisplayName, "count", len(candidates))
	return candidates, nil
}

// parseList applies the list selectors in order and keeps the first that yields articles,
// falling back to any article link on the page
func (s *SogouStrategy) parseList(doc *goquery.Document, displayName string, now time.Time) []models.ArticleCandidate {
	seen := make(map[string]bool)
	var candidates []models.ArticleCandidate

	for _, selector := range mirrorListSelectors {
		doc.Find(selector).Each(func(_ int, item *goquery.Selection) {
			link := item.Find(mirrorTitleSelector).First()
			if link.Length() == 0 {
				link = item.Find("a").First()
			}

			title := collapseSpace(link.Text())
			href := firstNonEmpty(link.AttrOr("href", ""), link.AttrOr("data-url", ""), item.AttrOr("data-url", ""))
			if title == "" {
				title = collapseSpace(item.Find(`h3, h4, .title, [class*="title"]`).First().Text())
			}
			if title == "" || href == "" || strings.Contains(title, "文章标题") {
				return
			}

			articleURL := s.resolve(href)
			if seen[articleURL] {
				return
			}
			seen[articleURL] = true

			candidate := models.ArticleCandidate{
				Title:       title,
				Author:      displayName,
				Summary:     collapseSpace(item.Find(mirrorSummarySelector).First().Text()),
				OriginalURL: articleURL,
				PublishTime: now,
			}
			if src, ok := item.Find(mirrorImageSelector).First().Attr("src"); ok && src != "" {
				candidate.CoverImage = normalizeImageURL(src)
			}
			if t, ok := ParsePublishTime(item.Find(mirrorTimeSelector).First().Text(), now); ok {
				candidate.PublishTime = t
			}
			candidates = append(candidates, candidate)
		})

		if len(candidates) > 0 {
			return candidates
		}
	}

	doc.Find(`a[href*="mp.weixin"]`).Each(func(_ int, link *goquery.Selection) {
		title := collapseSpace(firstNonEmpty(link.Text(), link.AttrOr("title", "")))
		href := link.AttrOr("href", "")
		if href == "" || len([]rune(title)) <= 5 || strings.Contains(title, "文章标题") {
			return
		}
		articleURL := s.resolve(href)
		if seen[articleURL] {
			return
		}
		seen[articleURL] = true
		candidates = append(candidates, models.ArticleCandidate{
			Title:       title,
			Author:      displayName,
			OriginalURL: articleURL,
			PublishTime: now,
		})
	})

	return candidates
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// resolve makes a mirror href absolute
func (s *SogouStrategy) resolve(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case isHTTPURL(href):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return s.baseURL + href
	default:
		return s.baseURL + "/" + href
	}
}

func (s *SogouStrategy) getDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.MirrorTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Referer", s.baseURL+"/")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, core.NewTransientNetworkError("mirror request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.NewUpstreamProtocolError(fmt.Sprintf("mirror returned status %d", resp.StatusCode), nil)
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode mirror page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse mirror page: %w", err)
	}
	return doc, nil
}

const feedTimeout = 10 * time.Second

// RSSStrategy reads an account's configured feed
type RSSStrategy struct {
	parser *gofeed.Parser
	logger *core.Logger
	config *models.PipelineConfig
}

// NewRSSStrategy creates a feed strategy using client for downloads
func NewRSSStrategy(client *http.Client, logger *core.Logger, config *models.PipelineConfig) *RSSStrategy {
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = config.UserAgent
	return &RSSStrategy{
		parser: parser,
		logger: logger,
		config: config,
	}
}

// Name returns the strategy name
func (s *RSSStrategy) Name() string { return StrategyRSS }

// Acquire parses the account feed; it only applies to accounts with a feed URL
func (s *RSSStrategy) Acquire(ctx context.Context, req *models.AcquireRequest) ([]models.ArticleCandidate, error) {
	if req.Account == nil || strings.TrimSpace(req.Account.RSSURL) == "" {
		return nil, ErrStrategyNotApplicable
	}

	ctx, cancel := context.WithTimeout(ctx, feedTimeout)
	defer cancel()

	feed, err := s.parser.ParseURLWithContext(req.Account.RSSURL, ctx)
	if err != nil {
		return nil, core.NewTransientNetworkError("failed to read feed "+req.Account.RSSURL, err)
	}

	now := time.Now()
	candidates := make([]models.ArticleCandidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		title := collapseSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			continue
		}
		published := now
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}
		candidates = append(candidates, models.ArticleCandidate{
			Title:       title,
			Author:      req.DisplayName,
			Summary:     strings.TrimSpace(item.Description),
			OriginalURL: link,
			PublishTime: published,
		})
	}

	candidates = lo.UniqBy(candidates, func(c models.ArticleCandidate) string { return c.OriginalURL })
	if limit := s.config.ClampLimit(req.Limit); len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// BuildStrategies assembles the chain in the configured order, ignoring unknown names
func BuildStrategies(order []string, available map[string]Strategy, logger *core.Logger) []Strategy {
	var chain []Strategy
	for _, name := range lo.Uniq(order) {
		strategy, ok := available[name]
		if !ok {
			logger.Warn("Ignoring unknown acquisition strategy", "name", name)
			continue
		}
		chain = append(chain, strategy)
	}
	return chain
}
