package services

import (
	"context"
	"encoding/json"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"

	"github.com/samber/lo"
)

type publishPage struct {
	TotalCount  int           `json:"total_count"`
	PublishList []publishItem `json:"publish_list"`
}

type publishItem struct {
	PublishInfo json.RawMessage `json:"publish_info"`
	AppMsgEx    []appMsgItem    `json:"appmsgex"`
}

type publishInfo struct {
	AppMsgEx []appMsgItem `json:"appmsgex"`
	SentInfo struct {
		Time int64 `json:"time"`
	} `json:"sent_info"`
}

// decodedPage is one publish_page reduced to candidates
type decodedPage struct {
	Candidates []models.ArticleCandidate
	Items      int
	TotalCount int
}

// decodePublishPage unwraps the publish_page string and the publish_info strings inside it.
// An item whose publish_info cannot be decoded is skipped.
func decodePublishPage(raw json.RawMessage, displayName string, now time.Time, logger *core.Logger) (*decodedPage, error) {
	var page publishPage
	if err := decodeNested(raw, &page); err != nil {
		return nil, core.NewUpstreamProtocolError("failed to parse publish_page", err)
	}

	decoded := &decodedPage{
		Items:      len(page.PublishList),
		TotalCount: page.TotalCount,
	}

	for i, item := range page.PublishList {
		var info publishInfo
		if len(item.PublishInfo) > 0 {
			if err := decodeNested(item.PublishInfo, &info); err != nil {
				logger.Warn("Skipping unparsable publish_info", "index", i, "error", err)
				continue
			}
		}

		if len(info.AppMsgEx) > 0 {
			for _, msg := range info.AppMsgEx {
				if msg.Link == "" || msg.Title == "" {
					continue
				}
				published := unixOrZero(msg.UpdateTime)
				if published.IsZero() {
					published = unixOrZero(info.SentInfo.Time)
				}
				decoded.Candidates = append(decoded.Candidates, models.ArticleCandidate{
					Title:       msg.Title,
					Author:      lo.Ternary(msg.AuthorName != "", msg.AuthorName, displayName),
					Summary:     msg.Digest,
					CoverImage:  msg.Cover,
					OriginalURL: msg.Link,
					PublishTime: lo.Ternary(published.IsZero(), now, published),
				})
			}
			continue
		}

		// Older payloads carry appmsgex on the item itself.
		for _, msg := range item.AppMsgEx {
			if msg.Link == "" || msg.Title == "" {
				continue
			}
			published := unixOrZero(msg.UpdateTime)
			decoded.Candidates = append(decoded.Candidates, models.ArticleCandidate{
				Title:       msg.Title,
				Author:      displayName,
				Summary:     msg.Digest,
				CoverImage:  msg.Cover,
				OriginalURL: msg.Link,
				PublishTime: lo.Ternary(published.IsZero(), now, published),
			})
		}
	}

	return decoded, nil
}

// PublishListFetcher pages through the published-articles endpoint
type PublishListFetcher struct {
	platform *PlatformClient
	logger   *core.Logger
	config   *models.PipelineConfig
}

// NewPublishListFetcher creates a new publish list fetcher
func NewPublishListFetcher(platform *PlatformClient, logger *core.Logger, config *models.PipelineConfig) *PublishListFetcher {
	return &PublishListFetcher{
		platform: platform,
		logger:   logger,
		config:   config,
	}
}

// ListPublished returns up to req.Limit published articles, unique by URL.
// An error on a later page keeps the candidates already collected.
func (f *PublishListFetcher) ListPublished(ctx context.Context, req *models.AcquireRequest) ([]models.ArticleCandidate, error) {
	if req.Fakeid == "" {
		return nil, core.NewMissingIdentifierError("fakeid is required to list published articles; search the account first", nil)
	}
	if req.Credential == nil || req.Credential.Cookie == "" {
		return nil, core.NewCredentialError("a session cookie is required to list published articles", nil)
	}

	limit := f.config.ClampLimit(req.Limit)
	pacer := NewPacer(f.config.PageDelay)
	byURL := func(c models.ArticleCandidate) string { return c.OriginalURL }

	var collected []models.ArticleCandidate
	for begin := 0; ; begin += publishPageSize {
		page, err := f.pacedPage(ctx, pacer, req, begin)
		if err != nil {
			if len(collected) > 0 {
				f.logger.Warn("Stopping pagination after page error", "fakeid", req.Fakeid, "begin", begin, "collected", len(collected), "error", err)
				return collected, nil
			}
			return nil, err
		}

		f.logger.Info("Fetched publish page", "fakeid", req.Fakeid, "begin", begin, "items", page.Items, "total_count", page.TotalCount)
		if page.Items == 0 {
			break
		}

		collected = lo.UniqBy(append(collected, page.Candidates...), byURL)
		if len(collected) >= limit {
			collected = collected[:limit]
			break
		}
		if page.TotalCount <= begin+publishPageSize {
			break
		}
	}

	return collected, nil
}

func (f *PublishListFetcher) pacedPage(ctx context.Context, pacer *Pacer, req *models.AcquireRequest, begin int) (*decodedPage, error) {
	if err := pacer.Wait(ctx); err != nil {
		return nil, err
	}
	return f.fetchPage(ctx, req, begin)
}

func (f *PublishListFetcher) fetchPage(ctx context.Context, req *models.AcquireRequest, begin int) (*decodedPage, error) {
	raw, err := f.platform.FetchPublishPage(ctx, req.Credential, req.Fakeid, req.Query, begin)
	if err != nil {
		return nil, err
	}
	return decodePublishPage(raw, req.DisplayName, time.Now(), f.logger)
}
