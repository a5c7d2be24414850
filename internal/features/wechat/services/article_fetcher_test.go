package services

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"wechat-reader/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fetchedArticle = `<html><head>
<meta property="og:image" content="https://mmbiz.qpic.cn/missing-cover.png">
</head><body>
<h1 id="activity-name">Fetched Title</h1>
<span id="js_name">Account Name</span>
<div id="js_content">
  <p>Hello</p>
  <img data-src="https://mmbiz.qpic.cn/large.png" width="640" height="480">
  <img src="https://mmbiz.qpic.cn/small.png">
</div>
</body></html>`

func newArticleServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/s/abc":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(fetchedArticle))
		case "/s/nocover":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte(strings.Replace(fetchedArticle, `<meta property="og:image" content="https://mmbiz.qpic.cn/missing-cover.png">`, "", 1)))
		case "/large.png":
			w.Write(bytes.Repeat([]byte{1}, 30*1024))
		case "/small.png":
			w.Write(bytes.Repeat([]byte{1}, 1024))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestArticleFetcher(t *testing.T, transport *redirectTransport) *ArticleFetcher {
	t.Helper()

	client := redirectClient(transport)
	materializer, _ := newTestMaterializer(t, client)
	return NewArticleFetcher(client, NewExtractor(testLogger()), materializer, testLogger(), testPipelineConfig())
}

func TestFetchByURLRejectsInvalidURL(t *testing.T) {
	transport := newRedirectTransport(newArticleServer(t))
	fetcher := newTestArticleFetcher(t, transport)

	for _, raw := range []string{"https://example.com/s/abc", "ftp://mp.weixin.qq.com/s/abc", "not a url", ""} {
		_, err := fetcher.FetchByURL(context.Background(), raw)
		require.Error(t, err, raw)
		assert.True(t, core.HasCode(err, core.ErrCodeInvalidURL), raw)
	}
	assert.Zero(t, transport.total.Load(), "invalid urls never reach the network")
}

func TestFetchByURLMaterializesImages(t *testing.T) {
	transport := newRedirectTransport(newArticleServer(t))
	fetcher := newTestArticleFetcher(t, transport)

	candidate, err := fetcher.FetchByURL(context.Background(), "https://mp.weixin.qq.com/s/abc")
	require.NoError(t, err)

	assert.Equal(t, "Fetched Title", candidate.Title)
	assert.Equal(t, "Account Name", candidate.Author)
	assert.Equal(t, "https://mp.weixin.qq.com/s/abc", candidate.OriginalURL)

	assert.Contains(t, candidate.Content, `src="/uploads/images/`)
	assert.NotContains(t, candidate.Content, "https://mmbiz.qpic.cn/large.png", "stored images drop their remote reference")
	assert.Contains(t, candidate.Content, "https://mmbiz.qpic.cn/small.png", "small images keep their remote reference")

	assert.Equal(t, "https://mmbiz.qpic.cn/missing-cover.png", candidate.CoverImage, "a declared cover keeps its url when it cannot be stored")
	assert.Equal(t, 1, transport.count("mp.weixin.qq.com"))
}

func TestFetchByURLBodyCover(t *testing.T) {
	transport := newRedirectTransport(newArticleServer(t))
	fetcher := newTestArticleFetcher(t, transport)

	candidate, err := fetcher.FetchByURL(context.Background(), "https://mp.weixin.qq.com/s/nocover")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(candidate.CoverImage, "/uploads/images/"), "the first large body image becomes the stored cover")
}

func TestFetchByURLUpstreamFailure(t *testing.T) {
	transport := newRedirectTransport(newArticleServer(t))
	fetcher := newTestArticleFetcher(t, transport)

	_, err := fetcher.FetchByURL(context.Background(), "https://mp.weixin.qq.com/s/missing")
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrCodeTransientNetwork))
}
