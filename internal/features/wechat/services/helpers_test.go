package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/migrations"
	"wechat-reader/internal/features/wechat/models"

	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func testLogger() *core.Logger {
	return core.NewLoggerWithLevel("error")
}

// testPipelineConfig returns the default heuristics with every delay removed
func testPipelineConfig() *models.PipelineConfig {
	config := models.DefaultPipelineConfig()
	config.PageDelay = 0
	config.BackfillDelay = 0
	config.ImageDelay = 0
	return config
}

func openTestDB(t *testing.T) *core.Database {
	t.Helper()

	db, err := core.OpenSQLite(":memory:", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, migrations.NewManager(db, testLogger()).Migrate(context.Background()))
	return db
}

func createTestAccount(t *testing.T, accounts *AccountService, userID int, name, fakeid string) *models.Account {
	t.Helper()

	account, err := accounts.CreateAccount(context.Background(), userID, &models.AccountCreate{
		Name:   name,
		Fakeid: fakeid,
	})
	require.NoError(t, err)
	return account
}

// redirectTransport sends every request to target regardless of its host and counts requests per host
type redirectTransport struct {
	target *url.URL
	mu     sync.Mutex
	hosts  map[string]int
	total  atomic.Int32
}

func newRedirectTransport(server *httptest.Server) *redirectTransport {
	target, _ := url.Parse(server.URL)
	return &redirectTransport{target: target, hosts: make(map[string]int)}
}

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.total.Add(1)
	t.mu.Lock()
	t.hosts[req.URL.Host]++
	t.mu.Unlock()

	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

func (t *redirectTransport) count(host string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hosts[host]
}

func redirectClient(transport *redirectTransport) *http.Client {
	client := NewHTTPClient()
	client.Transport = transport
	return client
}
