package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat"
	"wechat-reader/internal/features/wechat/models"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// publishReply renders an appmsgpublish reply listing one article
func publishReply(t *testing.T) []byte {
	t.Helper()

	info, err := json.Marshal(map[string]any{
		"appmsgex": []map[string]any{{
			"title":       "Weekly Digest",
			"link":        "https://mp.weixin.qq.com/s/weekly-digest",
			"digest":      "digest",
			"update_time": 1700000000,
		}},
	})
	require.NoError(t, err)

	page, err := json.Marshal(map[string]any{
		"total_count":  1,
		"publish_list": []map[string]string{{"publish_info": string(info)}},
	})
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"base_resp":    map[string]any{"ret": 0, "err_msg": "ok"},
		"publish_page": string(page),
	})
	require.NoError(t, err)
	return body
}

// newTestCLI runs subcommands against a fresh database file and the given platform
func newTestCLI(t *testing.T, platformURL string) (*cli, *bytes.Buffer) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "wxctl.db")
	config := &wechat.Config{
		Enabled:           true,
		CredentialSecret:  "test-secret",
		ImageBackend:      wechat.ImageBackendLocal,
		ImageDir:          t.TempDir(),
		ImagePublicPrefix: "/uploads/images",
		MinImageBytes:     20480,
		DefaultFetchLimit: 10,
		MaxFetchLimit:     100,
		Strategies:        []string{"publish"},
		LockTTL:           time.Minute,
		SchedulerInterval: time.Hour,
		SchedulerWorkers:  1,
		PlatformBaseURL:   platformURL,
		MirrorBaseURL:     platformURL,
	}

	out := &bytes.Buffer{}
	return &cli{
		out: out,
		open: func(ctx context.Context) (*environment, error) {
			return newEnvironment(ctx, core.NewLoggerWithLevel("error"), dbPath, config)
		},
	}, out
}

// execute parses args as one command line and returns what it printed
func execute(c *cli, out *bytes.Buffer, args ...string) (string, error) {
	out.Reset()
	parser := newParser(c)
	parser.Options &^= flags.PrintErrors
	_, err := parser.ParseArgs(args)
	return out.String(), err
}

// createAccount stores an account of user 1 directly, since the CLI has no command for it
func createAccount(t *testing.T, c *cli, name, fakeid string) string {
	t.Helper()

	ctx := context.Background()
	env, err := c.open(ctx)
	require.NoError(t, err)
	defer env.Close()

	account, err := env.feature.GetAccountService().CreateAccount(ctx, 1, &models.AccountCreate{Name: name, Fakeid: fakeid})
	require.NoError(t, err)
	return strconv.Itoa(account.ID)
}

func TestParserRejectsIncompleteCommands(t *testing.T) {
	c, out := newTestCLI(t, "http://127.0.0.1:1")

	_, err := execute(c, out, "fetch")
	var flagsErr *flags.Error
	require.ErrorAs(t, err, &flagsErr)
	assert.Equal(t, flags.ErrRequired, flagsErr.Type, "fetch needs an account")

	_, err = execute(c, out, "preview", "--account", "abc")
	require.ErrorAs(t, err, &flagsErr)
	assert.Equal(t, flags.ErrMarshal, flagsErr.Type)

	_, err = execute(c, out, "unknown")
	require.ErrorAs(t, err, &flagsErr)
	assert.Equal(t, flags.ErrUnknownCommand, flagsErr.Type)
}

func TestFetchCommandReportsPipelineErrors(t *testing.T) {
	c, out := newTestCLI(t, "http://127.0.0.1:1")
	accountID := createAccount(t, c, "No Fakeid", "")

	_, err := execute(c, out, "fetch", "-a", accountID)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrCodeMissingIdentifier))

	_, err = execute(c, out, "fetch", "-a", accountID, "--fakeid", "MzA5")
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrCodeCredential), "a supplied fakeid gets past the identifier check")

	_, err = execute(c, out, "--user", "2", "fetch", "-a", accountID)
	require.Error(t, err)
	assert.True(t, core.HasCode(err, core.ErrCodeNotFound), "accounts belong to their user")
}

func TestPreviewCommandPrintsCandidates(t *testing.T) {
	platform := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MzA5", r.URL.Query().Get("fakeid"))
		assert.Equal(t, "99", r.URL.Query().Get("token"))
		w.Header().Set("Content-Type", "application/json")
		w.Write(publishReply(t))
	}))
	defer platform.Close()

	c, out := newTestCLI(t, platform.URL)
	accountID := createAccount(t, c, "Tech Weekly", "MzA5")

	printed, err := execute(c, out, "set-cookie", "--cookie", "slave_sid=abc; token=99")
	require.NoError(t, err)
	assert.Contains(t, printed, `"has_cookie": true`)

	printed, err = execute(c, out, "preview", "--account", accountID, "-n", "5")
	require.NoError(t, err)

	var preview struct {
		Total       int `json:"total"`
		NewArticles int `json:"new_articles"`
		Articles    []struct {
			Title string `json:"title"`
		} `json:"articles"`
	}
	require.NoError(t, json.Unmarshal([]byte(printed), &preview), printed)
	assert.Equal(t, 1, preview.Total)
	assert.Equal(t, 1, preview.NewArticles)
	require.Len(t, preview.Articles, 1)
	assert.Equal(t, "Weekly Digest", preview.Articles[0].Title)
}
