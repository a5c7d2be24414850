package services

import (
	"context"
	"strings"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"

	"github.com/samber/lo"
)

// FetchOrchestrator turns acquired candidates into stored articles
type FetchOrchestrator struct {
	accounts    AccountStore
	articles    ArticleStore
	credentials CredentialStore
	acquirer    CandidateSource
	fetcher     ArticleSource
	searcher    AccountSearcher
	locker      Locker
	logger      *core.Logger
	config      *models.PipelineConfig
}

// OrchestratorDeps groups the collaborators of the orchestrator
type OrchestratorDeps struct {
	Accounts    AccountStore
	Articles    ArticleStore
	Credentials CredentialStore
	Acquirer    CandidateSource
	Fetcher     ArticleSource
	Searcher    AccountSearcher
	Locker      Locker
}

// NewFetchOrchestrator creates a new orchestrator; a nil Locker defaults to a process-local one
func NewFetchOrchestrator(deps OrchestratorDeps, logger *core.Logger, config *models.PipelineConfig) *FetchOrchestrator {
	locker := deps.Locker
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &FetchOrchestrator{
		accounts:    deps.Accounts,
		articles:    deps.Articles,
		credentials: deps.Credentials,
		acquirer:    deps.Acquirer,
		fetcher:     deps.Fetcher,
		searcher:    deps.Searcher,
		locker:      locker,
		logger:      logger,
		config:      config,
	}
}

// resolvedRun is what fetch and preview share: the candidates and which of them are already stored
type resolvedRun struct {
	candidates []models.ArticleCandidate
	existing   map[string]models.Article
	fakeid     string
}

func (o *FetchOrchestrator) resolveCandidates(ctx context.Context, account *models.Account, displayName string, opts models.FetchOptions) (*resolvedRun, error) {
	fakeid := strings.TrimSpace(opts.Fakeid)
	if fakeid == "" {
		fakeid = account.Fakeid
	}
	if fakeid == "" {
		return nil, core.NewMissingIdentifierError("account has no fakeid; search the account and save its fakeid first", nil)
	}

	credential, err := o.credentials.GetSessionCookie(ctx, account.UserID)
	if err != nil {
		return nil, err
	}

	candidates, err := o.acquirer.AcquireCandidates(ctx, &models.AcquireRequest{
		Account:     account,
		DisplayName: displayName,
		Fakeid:      fakeid,
		Credential:  credential,
		Query:       opts.Query,
		Limit:       o.config.ClampLimit(opts.Limit),
	})
	if err != nil {
		return nil, err
	}

	candidates = lo.Filter(candidates, func(c models.ArticleCandidate, _ int) bool {
		return strings.TrimSpace(c.OriginalURL) != ""
	})
	candidates = lo.UniqBy(candidates, func(c models.ArticleCandidate) string { return c.OriginalURL })

	urls := lo.Map(candidates, func(c models.ArticleCandidate, _ int) string { return c.OriginalURL })
	existing, err := o.articles.FindExistingByURLs(ctx, urls, &account.ID)
	if err != nil {
		return nil, err
	}

	return &resolvedRun{candidates: candidates, existing: existing, fakeid: fakeid}, nil
}

func displayNameFor(account *models.Account, displayName string) string {
	if strings.TrimSpace(displayName) != "" {
		return strings.TrimSpace(displayName)
	}
	return account.Name
}

// FetchArticles acquires, backfills and stores the new articles of an account.
// Success + Failed + Skipped equals the number of distinct candidates.
func (o *FetchOrchestrator) FetchArticles(ctx context.Context, account *models.Account, displayName string, opts models.FetchOptions) (*models.FetchResult, error) {
	start := time.Now()
	displayName = displayNameFor(account, displayName)
	logger := o.logger.WithContext(ctx).WithUser(account.UserID)

	unlock, err := o.locker.Lock(ctx, FetchLockKey(account.ID))
	if err != nil {
		return nil, core.NewInternalError("failed to acquire fetch lock", err)
	}
	defer unlock()

	run, err := o.resolveCandidates(ctx, account, displayName, opts)
	if err != nil {
		RecordRun("fetch", "error", time.Since(start).Seconds())
		return nil, err
	}

	result := &models.FetchResult{Articles: []models.Article{}}
	pacer := NewPacer(o.config.BackfillDelay)
	var runErr error

	for _, candidate := range run.candidates {
		if _, ok := run.existing[candidate.OriginalURL]; ok {
			result.Skipped++
			continue
		}

		if !candidate.HasContent() && IsArticleURL(candidate.OriginalURL) {
			if runErr = pacer.Wait(ctx); runErr != nil {
				break
			}
			candidate = o.backfill(ctx, candidate, displayName)
		}

		article, err := o.articles.CreateArticle(ctx, models.ArticleFromCandidate(&candidate, account.UserID, &account.ID, account.CategoryID))
		if err != nil {
			result.Failed++
			logger.Error("Failed to save article", "url", candidate.OriginalURL, "error", err)
			continue
		}

		run.existing[candidate.OriginalURL] = *article
		result.Success++
		result.Articles = append(result.Articles, *article)
	}

	// Articles stored before a cancellation still count
	o.afterRun(context.WithoutCancel(ctx), account, run.fakeid)
	RecordCandidates(result.Success, result.Failed, result.Skipped)

	if runErr != nil {
		RecordRun("fetch", "cancelled", time.Since(start).Seconds())
		logger.Warn("Fetch interrupted", "account_id", account.ID, "success", result.Success, "error", runErr)
		return result, runErr
	}

	RecordRun("fetch", "success", time.Since(start).Seconds())
	logger.Info("Fetch completed",
		"account_id", account.ID,
		"fakeid", run.fakeid,
		"success", result.Success,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"duration", time.Since(start),
	)
	return result, nil
}

// backfill replaces a link-only candidate with the fetched article, keeping candidate fields the page lacks
func (o *FetchOrchestrator) backfill(ctx context.Context, candidate models.ArticleCandidate, displayName string) models.ArticleCandidate {
	fetched, err := o.fetcher.FetchByURL(ctx, candidate.OriginalURL)
	if err != nil {
		o.logger.Warn("Failed to fetch article content, keeping list data", "url", candidate.OriginalURL, "error", err)
		return candidate
	}

	merged := *fetched
	merged.OriginalURL = candidate.OriginalURL
	if merged.Title == "" {
		merged.Title = candidate.Title
	}
	if merged.Author == "" {
		merged.Author = lo.Ternary(candidate.Author != "", candidate.Author, displayName)
	}
	if merged.Summary == "" {
		merged.Summary = candidate.Summary
	}
	if merged.CoverImage == "" {
		merged.CoverImage = candidate.CoverImage
	}
	if merged.PublishTime.IsZero() {
		merged.PublishTime = candidate.PublishTime
	}
	return merged
}

// afterRun records a newly learned fakeid and refreshes the cached counters
func (o *FetchOrchestrator) afterRun(ctx context.Context, account *models.Account, fakeid string) {
	if account.Fakeid == "" && fakeid != "" {
		if _, err := o.accounts.UpdateAccount(ctx, account.ID, account.UserID, &models.AccountUpdate{Fakeid: &fakeid}); err != nil {
			o.logger.Warn("Failed to save fakeid", "account_id", account.ID, "error", err)
		} else {
			account.Fakeid = fakeid
		}
	}

	stats, err := o.accounts.UpdateArticleStats(ctx, account.ID, account.UserID, o.articles)
	if err != nil {
		o.logger.Warn("Failed to refresh account stats", "account_id", account.ID, "error", err)
		return
	}
	account.ArticleCount = stats.ArticleCount
	account.UnreadCount = stats.UnreadCount
	account.LastFetchTime = &stats.LastFetchTime
}

// FetchAccount loads an account of userID and fetches it
func (o *FetchOrchestrator) FetchAccount(ctx context.Context, accountID, userID int, displayName string, opts models.FetchOptions) (*models.FetchResult, error) {
	account, err := o.accounts.GetAccount(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	return o.FetchArticles(ctx, account, displayName, opts)
}

// Preview reports what FetchArticles would import without writing anything
func (o *FetchOrchestrator) Preview(ctx context.Context, account *models.Account, displayName string, opts models.FetchOptions) (*models.PreviewResult, error) {
	start := time.Now()
	displayName = displayNameFor(account, displayName)

	run, err := o.resolveCandidates(ctx, account, displayName, opts)
	if err != nil {
		RecordRun("preview", "error", time.Since(start).Seconds())
		return nil, err
	}

	result := &models.PreviewResult{
		Total:    len(run.candidates),
		Articles: make([]models.PreviewItem, 0, len(run.candidates)),
	}
	for _, candidate := range run.candidates {
		_, exists := run.existing[candidate.OriginalURL]
		if exists {
			result.ExistingArticles++
		} else {
			result.NewArticles++
		}
		result.Articles = append(result.Articles, models.PreviewItem{
			Title:       lo.Ternary(strings.TrimSpace(candidate.Title) != "", candidate.Title, untitledLabel),
			PublishTime: candidate.PublishTimeOrNow(),
			OriginalURL: candidate.OriginalURL,
			IsExisting:  exists,
		})
	}

	RecordRun("preview", "success", time.Since(start).Seconds())
	o.logger.Info("Preview completed", "account_id", account.ID, "total", result.Total, "new", result.NewArticles, "existing", result.ExistingArticles)
	return result, nil
}

// PreviewAccount loads an account of userID and previews it
func (o *FetchOrchestrator) PreviewAccount(ctx context.Context, accountID, userID int, displayName string, opts models.FetchOptions) (*models.PreviewResult, error) {
	account, err := o.accounts.GetAccount(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	return o.Preview(ctx, account, displayName, opts)
}

// ImportByURL stores a single article unless it already exists for the same account, or for no account
func (o *FetchOrchestrator) ImportByURL(ctx context.Context, req *models.ImportRequest) (*models.ImportResult, error) {
	start := time.Now()

	u, err := ValidateArticleURL(req.URL)
	if err != nil {
		return nil, err
	}
	articleURL := u.String()

	var account *models.Account
	if req.AccountID != nil {
		account, err = o.accounts.GetAccount(ctx, *req.AccountID, req.UserID)
		if err != nil {
			return nil, err
		}
		unlock, err := o.locker.Lock(ctx, FetchLockKey(account.ID))
		if err != nil {
			return nil, core.NewInternalError("failed to acquire fetch lock", err)
		}
		defer unlock()
	}

	existing, err := o.articles.FindByOriginalURL(ctx, articleURL, req.AccountID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		RecordRun("import", "existing", time.Since(start).Seconds())
		return &models.ImportResult{Article: existing, IsNew: false}, nil
	}

	candidate, err := o.fetcher.FetchByURL(ctx, articleURL)
	if err != nil {
		RecordRun("import", "error", time.Since(start).Seconds())
		return nil, err
	}

	categoryID := req.CategoryID
	if categoryID == nil && account != nil {
		categoryID = account.CategoryID
	}
	if candidate.Author == "" && account != nil {
		candidate.Author = account.Name
	}

	article, err := o.articles.CreateArticle(ctx, models.ArticleFromCandidate(candidate, req.UserID, req.AccountID, categoryID))
	if err != nil {
		RecordRun("import", "error", time.Since(start).Seconds())
		return nil, err
	}

	if account != nil {
		if _, err := o.accounts.UpdateArticleStats(ctx, account.ID, account.UserID, o.articles); err != nil {
			o.logger.Warn("Failed to refresh account stats", "account_id", account.ID, "error", err)
		}
	}

	RecordRun("import", "success", time.Since(start).Seconds())
	o.logger.Info("Imported article", "id", article.ID, "url", articleURL, "account_id", req.AccountID)
	return &models.ImportResult{Article: article, IsNew: true}, nil
}

// SearchAccounts searches the platform with the session of userID
func (o *FetchOrchestrator) SearchAccounts(ctx context.Context, userID int, query string) ([]models.AccountSearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.NewValidationError("query is required", nil)
	}

	credential, err := o.credentials.GetSessionCookie(ctx, userID)
	if err != nil {
		return nil, err
	}
	return o.searcher.SearchAccounts(ctx, credential, query)
}
