package services

import (
	"context"
	"wechat-reader/internal/features/wechat/models"
)

// ArticleCounter counts stored articles of an account
type ArticleCounter interface {
	CountByAccount(ctx context.Context, accountID, userID int) (int, error)
	CountUnreadByAccount(ctx context.Context, accountID, userID int) (int, error)
}

// AccountStore is the account persistence the pipeline reads and updates
type AccountStore interface {
	GetAccount(ctx context.Context, id, userID int) (*models.Account, error)
	UpdateAccount(ctx context.Context, id, userID int, update *models.AccountUpdate) (*models.Account, error)
	UpdateArticleStats(ctx context.Context, id, userID int, counter ArticleCounter) (*models.AccountStats, error)
}

// ArticleStore is the article persistence the pipeline writes to
type ArticleStore interface {
	ArticleCounter
	CreateArticle(ctx context.Context, input *models.ArticleCreate) (*models.Article, error)
	FindExistingByURLs(ctx context.Context, urls []string, accountID *int) (map[string]models.Article, error)
	FindByOriginalURL(ctx context.Context, url string, accountID *int) (*models.Article, error)
}

// CredentialStore supplies the platform session of a user
type CredentialStore interface {
	GetSessionCookie(ctx context.Context, userID int) (*models.Credential, error)
}

// CandidateSource lists article candidates for an account
type CandidateSource interface {
	AcquireCandidates(ctx context.Context, req *models.AcquireRequest) ([]models.ArticleCandidate, error)
}

// ArticleSource fetches one article by URL
type ArticleSource interface {
	FetchByURL(ctx context.Context, rawURL string) (*models.ArticleCandidate, error)
}

// AccountSearcher looks accounts up on the platform
type AccountSearcher interface {
	SearchAccounts(ctx context.Context, credential *models.Credential, query string) ([]models.AccountSearchResult, error)
}
