package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"wechat-reader/internal/auth"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"
	"wechat-reader/internal/features/wechat/services"

	"github.com/go-chi/chi/v5"
)

// Handlers contains all wechat feature HTTP handlers
type Handlers struct {
	logger         *core.Logger
	accountService *services.AccountService
	articleService *services.ArticleService
	credentials    *services.CredentialService
	orchestrator   *services.FetchOrchestrator
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	logger *core.Logger,
	accountService *services.AccountService,
	articleService *services.ArticleService,
	credentials *services.CredentialService,
	orchestrator *services.FetchOrchestrator,
) *Handlers {
	return &Handlers{
		logger:         logger,
		accountService: accountService,
		articleService: articleService,
		credentials:    credentials,
		orchestrator:   orchestrator,
	}
}

// fetchRequest is the body of the fetch and preview endpoints
type fetchRequest struct {
	AccountName string `json:"accountName"`
	Fakeid      string `json:"fakeid"`
	Query       string `json:"query"`
	Limit       int    `json:"limit"`
}

type importRequest struct {
	URL        string `json:"url"`
	AccountID  *int   `json:"accountId"`
	CategoryID *int   `json:"categoryId"`
}

type progressRequest struct {
	Progress *int `json:"progress"`
}

type cookieRequest struct {
	Cookie string `json:"cookie"`
	Token  string `json:"token"`
}

func userID(r *http.Request) int {
	return auth.UserID(r.Context())
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, core.NewValidationError("invalid id: "+chi.URLParam(r, "id"), err)
	}
	return id, nil
}

// decodeBody decodes a JSON body into out; an empty body leaves out untouched
func decodeBody(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return core.NewValidationError("invalid request body", err)
	}
	return nil
}

// Account management handlers

// ListAccounts lists the accounts of the user
func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountService.ListAccounts(r.Context(), userID(r), false)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	core.WriteJSON(w, http.StatusOK, accounts)
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var input models.AccountCreate
	if err := decodeBody(r, &input); err != nil {
		core.HandleError(w, err)
		return
	}

	account, err := h.accountService.CreateAccount(r.Context(), userID(r), &input)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	core.WriteJSON(w, http.StatusCreated, account)
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	account, err := h.accountService.GetAccount(r.Context(), id, userID(r))
	if err != nil {
		core.HandleError(w, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, account)
}

func (h *Handlers) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	var update models.AccountUpdate
	if err := decodeBody(r, &update); err != nil {
		core.HandleError(w, err)
		return
	}

	account, err := h.accountService.UpdateAccount(r.Context(), id, userID(r), &update)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, account)
}

// SearchAccounts proxies the platform account search
func (h *Handlers) SearchAccounts(w http.ResponseWriter, r *http.Request) {
	results, err := h.orchestrator.SearchAccounts(r.Context(), userID(r), r.URL.Query().Get("query"))
	if err != nil {
		core.HandleError(w, err)
		return
	}
	if results == nil {
		results = []models.AccountSearchResult{}
	}
	core.WriteJSON(w, http.StatusOK, results)
}

// Acquisition handlers

// FetchAccount imports new articles of an account
func (h *Handlers) FetchAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	var req fetchRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	result, err := h.orchestrator.FetchAccount(r.Context(), id, userID(r), req.AccountName, models.FetchOptions{
		Fakeid: req.Fakeid,
		Query:  req.Query,
		Limit:  req.Limit,
	})
	if err != nil {
		h.logger.WithContext(r.Context()).Warn("Fetch failed", "account_id", id, "error", err)
		core.HandleError(w, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, result)
}

// PreviewAccount reports what a fetch would import
func (h *Handlers) PreviewAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	var req fetchRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	result, err := h.orchestrator.PreviewAccount(r.Context(), id, userID(r), req.AccountName, models.FetchOptions{
		Fakeid: req.Fakeid,
		Query:  req.Query,
		Limit:  req.Limit,
	})
	if err != nil {
		core.HandleError(w, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, result)
}

// Article handlers

func (h *Handlers) ImportArticle(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	result, err := h.orchestrator.ImportByURL(r.Context(), &models.ImportRequest{
		UserID:     userID(r),
		URL:        req.URL,
		AccountID:  req.AccountID,
		CategoryID: req.CategoryID,
	})
	if err != nil {
		core.HandleError(w, err)
		return
	}

	status := http.StatusOK
	if result.IsNew {
		status = http.StatusCreated
	}
	core.WriteJSON(w, status, result)
}

func (h *Handlers) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		core.HandleError(w, err)
		return
	}

	var req progressRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}
	if req.Progress == nil {
		core.HandleError(w, core.NewValidationError("progress is required", nil))
		return
	}

	article, err := h.articleService.UpdateProgress(r.Context(), id, userID(r), *req.Progress)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, article)
}

// Settings handlers

func (h *Handlers) GetCookies(w http.ResponseWriter, r *http.Request) {
	status, err := h.credentials.Status(r.Context(), userID(r))
	if err != nil {
		core.HandleError(w, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, status)
}

func (h *Handlers) SetCookies(w http.ResponseWriter, r *http.Request) {
	var req cookieRequest
	if err := decodeBody(r, &req); err != nil {
		core.HandleError(w, err)
		return
	}

	status, err := h.credentials.SetSessionCookie(r.Context(), userID(r), req.Cookie, req.Token)
	if err != nil {
		core.HandleError(w, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, status)
}
