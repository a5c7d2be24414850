package services

import (
	"context"
	"testing"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindExistingByURLsScopesToAccount(t *testing.T) {
	db := openTestDB(t)
	accounts := NewAccountService(db, testLogger())
	articles := NewArticleService(db, testLogger())
	ctx := context.Background()

	a := createTestAccount(t, accounts, 1, "A", "fa")
	b := createTestAccount(t, accounts, 1, "B", "fb")

	first := candidate(1)
	_, err := articles.CreateArticle(ctx, models.ArticleFromCandidate(&first, 1, &a.ID, nil))
	require.NoError(t, err)

	urls := []string{candidate(1).OriginalURL, candidate(2).OriginalURL, "", candidate(1).OriginalURL}

	found, err := articles.FindExistingByURLs(ctx, urls, &a.ID)
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, candidate(1).OriginalURL)

	found, err = articles.FindExistingByURLs(ctx, urls, &b.ID)
	require.NoError(t, err)
	assert.Empty(t, found, "another account's article is not a duplicate")

	found, err = articles.FindExistingByURLs(ctx, nil, &a.ID)
	require.NoError(t, err)
	assert.Empty(t, found)

	// The lookup has no side effects
	count, err := articles.CountByAccount(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFindByOriginalURLWithoutAccount(t *testing.T) {
	db := openTestDB(t)
	articles := NewArticleService(db, testLogger())
	ctx := context.Background()

	loose := candidate(1)
	_, err := articles.CreateArticle(ctx, models.ArticleFromCandidate(&loose, 1, nil, nil))
	require.NoError(t, err)

	found, err := articles.FindByOriginalURL(ctx, loose.OriginalURL, nil)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Nil(t, found.AccountID)

	missing, err := articles.FindByOriginalURL(ctx, candidate(2).OriginalURL, nil)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateProgress(t *testing.T) {
	db := openTestDB(t)
	articles := NewArticleService(db, testLogger())
	ctx := context.Background()

	c := candidate(1)
	article, err := articles.CreateArticle(ctx, models.ArticleFromCandidate(&c, 1, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, models.ReadStatusUnread, article.ReadStatus)

	updated, err := articles.UpdateProgress(ctx, article.ID, 1, 40)
	require.NoError(t, err)
	assert.Equal(t, 40, updated.ReadProgress)
	assert.Equal(t, models.ReadStatusUnread, updated.ReadStatus)

	updated, err = articles.UpdateProgress(ctx, article.ID, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, models.ReadStatusRead, updated.ReadStatus)
	assert.NotNil(t, updated.ReadTime)

	_, err = articles.UpdateProgress(ctx, article.ID, 1, 101)
	assert.True(t, core.HasCode(err, core.ErrCodeValidation))

	_, err = articles.UpdateProgress(ctx, article.ID, 2, 50)
	assert.True(t, core.HasCode(err, core.ErrCodeNotFound), "articles are scoped to their owner")
}

func TestCreateArticleValidates(t *testing.T) {
	articles := NewArticleService(openTestDB(t), testLogger())

	_, err := articles.CreateArticle(context.Background(), &models.ArticleCreate{UserID: 1, OriginalURL: "https://mp.weixin.qq.com/s/x"})
	assert.True(t, core.HasCode(err, core.ErrCodeValidation))
}
