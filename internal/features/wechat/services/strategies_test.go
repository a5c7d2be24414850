package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategy struct {
	name       string
	candidates []models.ArticleCandidate
	err        error
	calls      int
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Acquire(context.Context, *models.AcquireRequest) ([]models.ArticleCandidate, error) {
	s.calls++
	return s.candidates, s.err
}

func TestAcquirerFallsThrough(t *testing.T) {
	rss := &stubStrategy{name: StrategyRSS, err: ErrStrategyNotApplicable}
	publish := &stubStrategy{name: StrategyPublish, err: core.NewUpstreamProtocolError("ret=200013", nil)}
	appmsg := &stubStrategy{name: StrategyAppMsg}
	sogou := &stubStrategy{name: StrategySogou, candidates: []models.ArticleCandidate{candidate(1)}}

	acquirer := NewAcquirer(testLogger(), rss, publish, appmsg, sogou)
	candidates, err := acquirer.AcquireCandidates(context.Background(), &models.AcquireRequest{Fakeid: "MzA5"})
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
	assert.Equal(t, []int{1, 1, 1, 1}, []int{rss.calls, publish.calls, appmsg.calls, sogou.calls})
}

func TestAcquirerStopsAtFirstResult(t *testing.T) {
	publish := &stubStrategy{name: StrategyPublish, candidates: []models.ArticleCandidate{candidate(1)}}
	sogou := &stubStrategy{name: StrategySogou, candidates: []models.ArticleCandidate{candidate(2)}}

	candidates, err := NewAcquirer(testLogger(), publish, sogou).AcquireCandidates(context.Background(), &models.AcquireRequest{})
	require.NoError(t, err)
	assert.Equal(t, candidate(1).OriginalURL, candidates[0].OriginalURL)
	assert.Zero(t, sogou.calls)
}

func TestAcquirerJoinsErrors(t *testing.T) {
	first := core.NewUpstreamProtocolError("ret=200003", nil)
	second := core.NewTransientNetworkError("mirror down", nil)
	acquirer := NewAcquirer(testLogger(),
		&stubStrategy{name: StrategyRSS, err: ErrStrategyNotApplicable},
		&stubStrategy{name: StrategyPublish, err: first},
		&stubStrategy{name: StrategySogou, err: second},
	)

	_, err := acquirer.AcquireCandidates(context.Background(), &models.AcquireRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, first))
	assert.True(t, errors.Is(err, second))
	assert.True(t, core.HasCode(err, core.ErrCodeUpstreamProtocol), "the first failure decides the code")
}

func TestAcquirerReportsFailureBehindEmptyResult(t *testing.T) {
	failure := core.NewUpstreamProtocolError("ret=200003", nil)
	acquirer := NewAcquirer(testLogger(),
		&stubStrategy{name: StrategyPublish, err: failure},
		&stubStrategy{name: StrategySogou},
	)

	candidates, err := acquirer.AcquireCandidates(context.Background(), &models.AcquireRequest{})
	require.Error(t, err, "an empty fallback must not hide an earlier failure")
	assert.ErrorIs(t, err, failure)
	assert.Empty(t, candidates)
}

func TestAcquirerEmptyWhenNothingFails(t *testing.T) {
	acquirer := NewAcquirer(testLogger(),
		&stubStrategy{name: StrategyRSS, err: ErrStrategyNotApplicable},
		&stubStrategy{name: StrategyPublish},
		&stubStrategy{name: StrategySogou},
	)

	candidates, err := acquirer.AcquireCandidates(context.Background(), &models.AcquireRequest{})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestAcquirerExpiredSessionWithMirrorMiss(t *testing.T) {
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"base_resp":{"ret":200003,"err_msg":"invalid session"}}`))
	}))
	defer platform.Close()
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>no results</p></body></html>`))
	}))
	defer mirror.Close()

	acquirer := NewAcquirer(testLogger(),
		NewPublishStrategy(newTestPublishFetcher(platform)),
		NewSogouStrategy(mirror.Client(), mirror.URL, testLogger(), testPipelineConfig()),
	)

	_, err := acquirer.AcquireCandidates(context.Background(), publishRequest(3))
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrCodeUpstreamProtocol))
	assert.Contains(t, err.Error(), "200003")
}

func TestBuildStrategies(t *testing.T) {
	available := map[string]Strategy{
		StrategyPublish: &stubStrategy{name: StrategyPublish},
		StrategySogou:   &stubStrategy{name: StrategySogou},
	}

	chain := BuildStrategies([]string{StrategySogou, "unknown", StrategyPublish, StrategySogou}, available, testLogger())
	require.Len(t, chain, 2)
	assert.Equal(t, StrategySogou, chain[0].Name())
	assert.Equal(t, StrategyPublish, chain[1].Name())
}

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Tech Weekly</title>
<item><title>First</title><link>https://mp.weixin.qq.com/s/first</link><description>one</description><pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate></item>
<item><title>Second</title><link>https://mp.weixin.qq.com/s/second</link></item>
<item><title></title><link>https://mp.weixin.qq.com/s/untitled</link></item>
<item><title>First again</title><link>https://mp.weixin.qq.com/s/first</link></item>
</channel></rss>`

func TestRSSStrategy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testFeed))
	}))
	defer server.Close()

	strategy := NewRSSStrategy(server.Client(), testLogger(), testPipelineConfig())

	_, err := strategy.Acquire(context.Background(), &models.AcquireRequest{Account: &models.Account{}})
	assert.ErrorIs(t, err, ErrStrategyNotApplicable)

	candidates, err := strategy.Acquire(context.Background(), &models.AcquireRequest{
		Account:     &models.Account{RSSURL: server.URL + "/feed"},
		DisplayName: "Tech Weekly",
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "First", candidates[0].Title)
	assert.Equal(t, "one", candidates[0].Summary)
	assert.Equal(t, "Tech Weekly", candidates[0].Author)
	assert.Equal(t, 2006, candidates[0].PublishTime.Year())
}

func TestAppMsgStrategyResolvesFakeid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/cgi-bin/searchbiz":
			w.Write([]byte(`{"base_resp":{"ret":0},"list":[{"fakeid":"MzFound","nickname":"Tech Weekly"}]}`))
		case "/cgi-bin/appmsg":
			assert.Equal(t, "MzFound", r.URL.Query().Get("fakeid"))
			if r.URL.Query().Get("begin") != "0" {
				w.Write([]byte(`{"base_resp":{"ret":0},"app_msg_list":[]}`))
				return
			}
			var items []string
			for i := 0; i < 5; i++ {
				items = append(items, fmt.Sprintf(`{"title":"Post %d","link":"https://mp.weixin.qq.com/s/post-%d","update_time":1700000000}`, i, i))
			}
			items = append(items[:4], `{"title":"","link":"https://mp.weixin.qq.com/s/untitled"}`)
			w.Write([]byte(`{"base_resp":{"ret":0},"app_msg_list":[` + strings.Join(items, ",") + `]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	config := testPipelineConfig()
	strategy := NewAppMsgStrategy(NewPlatformClient(server.Client(), server.URL, testLogger(), config), testLogger(), config)

	candidates, err := strategy.Acquire(context.Background(), &models.AcquireRequest{
		DisplayName: "Tech Weekly",
		Credential:  &models.Credential{Cookie: "slave_sid=abc"},
		Limit:       20,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 5)
	assert.Equal(t, untitledLabel, candidates[4].Title)
	assert.Equal(t, "Tech Weekly", candidates[0].Author)

	_, err = strategy.Acquire(context.Background(), &models.AcquireRequest{DisplayName: "Tech Weekly", Credential: &models.Credential{}})
	assert.ErrorIs(t, err, ErrStrategyNotApplicable)
}

func TestSogouStrategy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/weixin", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Tech Weekly", r.URL.Query().Get("query"))
		w.Write([]byte(`<html><body><div class="news-box"><div class="news-text"><h3><a href="/profile?id=1">Tech Weekly</a></h3></div></div></body></html>`))
	})
	mux.HandleFunc("/profile", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><ul class="news-list">
			<li><h3><a href="https://mp.weixin.qq.com/s/one">Mirror One</a></h3><p class="news-text-content">first</p><span class="time">2024-02-03</span></li>
			<li><h3><a href="https://mp.weixin.qq.com/s/tpl">文章标题</a></h3></li>
			<li><h3><a href="//mp.weixin.qq.com/s/two">Mirror Two</a></h3></li>
		</ul></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	strategy := NewSogouStrategy(server.Client(), server.URL, testLogger(), testPipelineConfig())
	candidates, err := strategy.Acquire(context.Background(), &models.AcquireRequest{DisplayName: "Tech Weekly", Limit: 10})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, "Mirror One", candidates[0].Title)
	assert.Equal(t, "first", candidates[0].Summary)
	assert.Equal(t, 2024, candidates[0].PublishTime.Year())
	assert.Equal(t, "https://mp.weixin.qq.com/s/two", candidates[1].OriginalURL)
}

func TestSogouStrategyAccountNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><p>no results</p></body></html>`))
	}))
	defer server.Close()

	strategy := NewSogouStrategy(server.Client(), server.URL, testLogger(), testPipelineConfig())
	candidates, err := strategy.Acquire(context.Background(), &models.AcquireRequest{DisplayName: "Nobody"})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
