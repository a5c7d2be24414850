package services

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

// field is one step of a fallback chain: a selector and, for meta tags, the attribute to read
type field struct {
	selector string
	attr     string
}

var (
	titleChain = []field{
		{selector: "#activity-name"},
		{selector: "#js_article_name"},
		{selector: ".rich_media_title"},
		{selector: "h1"},
		{selector: "title"},
		{selector: `meta[property="og:title"]`, attr: "content"},
	}
	authorChain = []field{
		{selector: "#meta_content .rich_media_meta_text"},
		{selector: "#meta_content"},
		{selector: ".rich_media_meta_text"},
		{selector: "#js_name"},
		{selector: `meta[name="author"]`, attr: "content"},
	}
	summaryChain = []field{
		{selector: "#js_content .rich_media_meta_text"},
		{selector: "#js_article_desc"},
		{selector: `meta[name="description"]`, attr: "content"},
		{selector: `meta[property="og:description"]`, attr: "content"},
	}
	publishTimeChain = []field{
		{selector: "#meta_content .rich_media_meta_text"},
		{selector: "#publish_time"},
		{selector: `meta[property="article:published_time"]`, attr: "content"},
		{selector: "time", attr: "datetime"},
		{selector: "time"},
	}
	coverChain = []field{
		{selector: `meta[property="og:image"]`, attr: "content"},
		{selector: `meta[name="twitter:image"]`, attr: "content"},
		{selector: "#js_article_cover", attr: "src"},
		{selector: "#js_article_cover", attr: "data-src"},
	}
	bodyChain = []string{"#js_content", "#js_article_content", ".rich_media_content", ".article-content"}

	strippedNodes  = "script, style, .qr_code_pc_outer, .qr_code_pc_inner"
	imageSrcAttrs  = []string{"src", "data-src", "data-original", "data-lazy-src"}
	lazyImageAttrs = []string{"data-src", "data-original", "data-lazy-src"}
	brandingTokens = []string{"微信", "公众号"}
	imageBlacklist = []string{"placeholder", "default", "blank", "loading", "icon", "logo"}
)

const (
	articleHost   = "mp.weixin.qq.com"
	minCoverSide  = 100
	untitledLabel = "无标题"
)

// Extractor pulls article fields out of official-account article pages
type Extractor struct {
	logger *core.Logger
	text   *bluemonday.Policy
}

// NewExtractor creates a new extractor
func NewExtractor(logger *core.Logger) *Extractor {
	return &Extractor{
		logger: logger,
		text:   bluemonday.StrictPolicy(),
	}
}

// extraction is the candidate plus the body node it was read from, kept for image rewriting
type extraction struct {
	candidate     models.ArticleCandidate
	body          *goquery.Selection
	coverFromBody bool
}

// Extract parses documentHTML and returns the article it describes.
// It fails with an extraction error when no title can be found.
func (e *Extractor) Extract(documentHTML, articleURL string) (*models.ArticleCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(documentHTML))
	if err != nil {
		return nil, core.NewExtractionError("failed to parse article document", err)
	}

	result, err := e.extract(doc, documentHTML, articleURL, time.Now())
	if err != nil {
		return nil, err
	}
	return &result.candidate, nil
}

func (e *Extractor) extract(doc *goquery.Document, raw, articleURL string, now time.Time) (*extraction, error) {
	doc.Find(strippedNodes).Remove()

	title := e.firstText(doc, titleChain, func(s string) bool {
		for _, token := range brandingTokens {
			if strings.Contains(s, token) {
				return false
			}
		}
		return true
	})
	if title == "" {
		return nil, core.NewExtractionError("no title found in article "+articleURL, nil)
	}

	result := &extraction{
		candidate: models.ArticleCandidate{
			Title:       title,
			Author:      e.firstText(doc, authorChain, nil),
			Summary:     e.firstText(doc, summaryChain, nil),
			OriginalURL: articleURL,
		},
	}

	for _, f := range publishTimeChain {
		if t, ok := ParsePublishTime(e.valueOf(doc.Find(f.selector).First(), f), now); ok {
			result.candidate.PublishTime = t
			break
		}
	}

	for _, selector := range bodyChain {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		if inner, err := sel.Html(); err == nil && strings.TrimSpace(inner) != "" {
			result.body = sel
			result.candidate.Content = inner
			break
		}
	}

	if result.body == nil || result.candidate.Summary == "" {
		e.readabilityFallback(raw, articleURL, result)
	}

	result.candidate.CoverImage, result.coverFromBody = e.cover(doc, result.body)
	return result, nil
}

// readabilityFallback fills the body and summary from a readability pass when the selector chains found none
func (e *Extractor) readabilityFallback(raw, articleURL string, result *extraction) {
	pageURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(raw), pageURL)
	if err != nil {
		e.logger.Debug("Readability fallback failed", "url", articleURL, "error", err)
		return
	}

	if result.candidate.Summary == "" {
		result.candidate.Summary = collapseSpace(article.Excerpt)
	}

	if result.body == nil && strings.TrimSpace(article.Content) != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
		if err != nil {
			return
		}
		body := doc.Find("body")
		if inner, err := body.Html(); err == nil && strings.TrimSpace(inner) != "" {
			result.body = body
			result.candidate.Content = inner
			e.logger.Debug("Using readability content", "url", articleURL)
		}
	}
}

// cover returns the declared cover, or the first large body image and true
func (e *Extractor) cover(doc *goquery.Document, body *goquery.Selection) (string, bool) {
	for _, f := range coverChain {
		candidate := normalizeImageURL(e.valueOf(doc.Find(f.selector).First(), f))
		if isHTTPURL(candidate) && !isBlacklisted(candidate) {
			return candidate, false
		}
	}

	scope := doc.Selection
	if body != nil {
		scope = body
	}
	if src := findFirstLargeImage(scope); src != "" {
		return src, true
	}
	return "", false
}

// valueOf reads the attribute of a field, or its sanitized text
func (e *Extractor) valueOf(sel *goquery.Selection, f field) string {
	if sel.Length() == 0 {
		return ""
	}
	if f.attr != "" {
		v, _ := sel.Attr(f.attr)
		return collapseSpace(v)
	}
	inner, err := sel.Html()
	if err != nil {
		return collapseSpace(sel.Text())
	}
	return collapseSpace(html.UnescapeString(e.text.Sanitize(inner)))
}

// firstText walks a chain and returns the first non-empty value accepted by keep
func (e *Extractor) firstText(doc *goquery.Document, chain []field, keep func(string) bool) string {
	for _, f := range chain {
		v := e.valueOf(doc.Find(f.selector).First(), f)
		if v == "" {
			continue
		}
		if keep != nil && !keep(v) {
			continue
		}
		return v
	}
	return ""
}

// findFirstLargeImage returns the first image in scope that can serve as a cover
func findFirstLargeImage(scope *goquery.Selection) string {
	var found string
	scope.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src := normalizeImageURL(imageSource(img))
		if !isHTTPURL(src) || isBlacklisted(src) {
			return true
		}

		w, wok := img.Attr("width")
		h, hok := img.Attr("height")
		if wok && hok {
			width, werr := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(w), "px"))
			height, herr := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(h), "px"))
			if werr == nil && herr == nil && (width < minCoverSide || height < minCoverSide) {
				return true
			}
		}

		found = src
		return false
	})
	return found
}

// imageSource returns the first populated source attribute, including lazy-load ones
func imageSource(img *goquery.Selection) string {
	for _, attr := range imageSrcAttrs {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// normalizeImageURL makes protocol-relative and root-relative references absolute
func normalizeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		return "https://" + articleHost + raw
	default:
		return raw
	}
}

func isHTTPURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func isBlacklisted(raw string) bool {
	lower := strings.ToLower(raw)
	for _, token := range imageBlacklist {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var (
	hoursAgoPattern   = regexp.MustCompile(`(\d+)\s*(?:小时前|hours?\s+ago)`)
	minutesAgoPattern = regexp.MustCompile(`(\d+)\s*(?:分钟前|minutes?\s+ago)`)
	fullDatePattern   = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	shortDatePattern  = regexp.MustCompile(`(?:^|[^\d])(\d{1,2})-(\d{1,2})(?:[^\d]|$)`)
)

// ParsePublishTime reads the relative and absolute date forms used on article pages.
// Dates without a year fall in the year of now.
func ParsePublishTime(text string, now time.Time) (time.Time, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return time.Time{}, false
	}

	switch {
	case strings.Contains(text, "今天") || strings.Contains(text, "today"):
		return now, true
	case strings.Contains(text, "昨天") || strings.Contains(text, "yesterday"):
		return now.Add(-24 * time.Hour), true
	}

	if m := hoursAgoPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * time.Hour), true
	}
	if m := minutesAgoPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * time.Minute), true
	}

	if m := fullDatePattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		return calendarDate(year, month, day, now.Location())
	}
	if m := shortDatePattern.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		return calendarDate(now.Year(), month, day, now.Location())
	}

	return time.Time{}, false
}

func calendarDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc), true
}
