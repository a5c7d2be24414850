package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DefaultPlatformBaseURL is the official-account management backend
const DefaultPlatformBaseURL = "https://mp.weixin.qq.com"

const (
	publishPageSize = 10
	appMsgPageSize  = 5
	searchPageSize  = 5
	searchTimeout   = 15 * time.Second
)

// baseResp is the status block every management endpoint returns
type baseResp struct {
	Ret    int    `json:"ret"`
	ErrMsg string `json:"err_msg"`
}

type searchBizItem struct {
	Fakeid       string `json:"fakeid"`
	Nickname     string `json:"nickname"`
	Alias        string `json:"alias"`
	Headimg      string `json:"headimg"`
	RoundHeadImg string `json:"round_head_img"`
	ServiceType  int    `json:"service_type"`
}

type searchBizResponse struct {
	BaseResp baseResp        `json:"base_resp"`
	List     []searchBizItem `json:"list"`
}

type publishResponse struct {
	BaseResp    baseResp        `json:"base_resp"`
	PublishPage json.RawMessage `json:"publish_page"`
}

type appMsgResponse struct {
	BaseResp   baseResp     `json:"base_resp"`
	AppMsgList []appMsgItem `json:"app_msg_list"`
}

// appMsgItem is one article entry, shared by the publish and legacy list payloads
type appMsgItem struct {
	Title      string `json:"title"`
	Digest     string `json:"digest"`
	Cover      string `json:"cover"`
	Link       string `json:"link"`
	AuthorName string `json:"author_name"`
	UpdateTime int64  `json:"update_time"`
}

// PlatformClient calls the JSON endpoints of the official-account management backend
type PlatformClient struct {
	client  *http.Client
	baseURL string
	logger  *core.Logger
	config  *models.PipelineConfig
}

// NewPlatformClient creates a client against baseURL, or the live backend when empty
func NewPlatformClient(client *http.Client, baseURL string, logger *core.Logger, config *models.PipelineConfig) *PlatformClient {
	if baseURL == "" {
		baseURL = DefaultPlatformBaseURL
	}
	return &PlatformClient{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
		config:  config,
	}
}

// newFingerprint returns 32 random hex characters
func newFingerprint() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (c *PlatformClient) token(credential *models.Credential) string {
	if credential.Token != "" {
		return credential.Token
	}
	return c.config.DefaultToken
}

// getJSON issues an XHR-style GET and decodes the JSON body into out
func (c *PlatformClient) getJSON(ctx context.Context, path string, params url.Values, credential *models.Credential, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Referer", DefaultPlatformBaseURL+"/cgi-bin/appmsg?t=media/appmsg_edit_v2&action=edit&isNew=1&type=77&token="+c.token(credential)+"&lang=zh_CN")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cookie", credential.Cookie)

	resp, err := c.client.Do(req)
	if err != nil {
		return core.NewTransientNetworkError("request to "+path+" failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return core.NewTransientNetworkError(fmt.Sprintf("%s returned status %d", path, resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return core.NewUpstreamProtocolError(fmt.Sprintf("%s returned status %d", path, resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.NewTransientNetworkError("failed to read response from "+path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return core.NewUpstreamProtocolError("malformed response from "+path, err)
	}
	return nil
}

func checkBaseResp(path string, resp baseResp) error {
	if resp.Ret != 0 {
		return core.NewUpstreamProtocolError(fmt.Sprintf("%s failed: ret=%d err_msg=%s", path, resp.Ret, resp.ErrMsg), nil)
	}
	return nil
}

// SearchAccounts looks accounts up by name through searchbiz
func (c *PlatformClient) SearchAccounts(ctx context.Context, credential *models.Credential, query string) ([]models.AccountSearchResult, error) {
	params := url.Values{}
	params.Set("action", "search_biz")
	params.Set("begin", "0")
	params.Set("count", strconv.Itoa(searchPageSize))
	params.Set("query", query)
	params.Set("fingerprint", newFingerprint())
	params.Set("token", c.token(credential))
	params.Set("lang", "zh_CN")
	params.Set("f", "json")
	params.Set("ajax", "1")

	var resp searchBizResponse
	if err := c.getJSON(ctx, "/cgi-bin/searchbiz", params, credential, searchTimeout, &resp); err != nil {
		return nil, err
	}
	if err := checkBaseResp("searchbiz", resp.BaseResp); err != nil {
		return nil, err
	}

	results := lo.Map(resp.List, func(item searchBizItem, _ int) models.AccountSearchResult {
		return models.AccountSearchResult{
			Nickname:    item.Nickname,
			Name:        item.Nickname,
			Alias:       item.Alias,
			Fakeid:      item.Fakeid,
			Headimg:     lo.Ternary(item.Headimg != "", item.Headimg, item.RoundHeadImg),
			ServiceType: item.ServiceType,
		}
	})

	c.logger.Debug("Searched accounts", "query", query, "results", len(results))
	return results, nil
}

// FetchPublishPage requests one page of the published-articles endpoint and returns its raw publish_page
func (c *PlatformClient) FetchPublishPage(ctx context.Context, credential *models.Credential, fakeid, query string, begin int) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("sub", "list")
	params.Set("search_field", "null")
	params.Set("begin", strconv.Itoa(begin))
	params.Set("count", strconv.Itoa(publishPageSize))
	params.Set("query", query)
	params.Set("fakeid", fakeid)
	params.Set("type", "101_1")
	params.Set("free_publish_type", "1")
	params.Set("sub_action", "list_ex")
	params.Set("fingerprint", newFingerprint())
	params.Set("token", c.token(credential))
	params.Set("lang", "zh_CN")
	params.Set("f", "json")
	params.Set("ajax", "1")

	var resp publishResponse
	if err := c.getJSON(ctx, "/cgi-bin/appmsgpublish", params, credential, c.config.ListTimeout, &resp); err != nil {
		return nil, err
	}
	if err := checkBaseResp("appmsgpublish", resp.BaseResp); err != nil {
		return nil, err
	}

	raw := bytes.TrimSpace(resp.PublishPage)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`)) {
		return nil, core.NewUpstreamProtocolError("appmsgpublish response has no publish_page field", nil)
	}
	return raw, nil
}

// fetchAppMsgPage requests one page of the legacy article list
func (c *PlatformClient) fetchAppMsgPage(ctx context.Context, credential *models.Credential, fakeid string, begin int) ([]appMsgItem, error) {
	params := url.Values{}
	params.Set("action", "list_ex")
	params.Set("begin", strconv.Itoa(begin))
	params.Set("count", strconv.Itoa(appMsgPageSize))
	params.Set("fakeid", fakeid)
	params.Set("type", "9")
	params.Set("query", "")
	params.Set("token", c.token(credential))
	params.Set("lang", "zh_CN")
	params.Set("f", "json")
	params.Set("ajax", "1")

	var resp appMsgResponse
	if err := c.getJSON(ctx, "/cgi-bin/appmsg", params, credential, searchTimeout, &resp); err != nil {
		return nil, err
	}
	if err := checkBaseResp("appmsg", resp.BaseResp); err != nil {
		return nil, err
	}
	return resp.AppMsgList, nil
}

// decodeNested decodes a field that may hold either a JSON value or a JSON string wrapping one
func decodeNested(raw json.RawMessage, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errors.New("empty value")
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return err
		}
		return json.Unmarshal([]byte(inner), out)
	}
	return json.Unmarshal(raw, out)
}

func unixOrZero(seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0)
}
