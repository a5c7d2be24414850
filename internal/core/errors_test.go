package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{NewValidationError("bad", nil), http.StatusBadRequest},
		{NewInvalidURLError("bad url", nil), http.StatusBadRequest},
		{NewNotFoundError("missing", nil), http.StatusNotFound},
		{NewCredentialError("no cookie", nil), http.StatusPreconditionFailed},
		{NewMissingIdentifierError("no fakeid", nil), http.StatusUnprocessableEntity},
		{NewExtractionError("no title", nil), http.StatusUnprocessableEntity},
		{NewUpstreamProtocolError("ret=200003", nil), http.StatusBadGateway},
		{NewTransientNetworkError("timeout", nil), http.StatusGatewayTimeout},
		{NewDatabaseError("locked", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Code, func(t *testing.T) {
			assert.Equal(t, tt.want, GetHTTPStatusCode(tt.err))
		})
	}
}

func TestHasCode(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := fmt.Errorf("page 2: %w", NewTransientNetworkError("request failed", cause))

	assert.True(t, HasCode(err, ErrCodeTransientNetwork))
	assert.False(t, HasCode(err, ErrCodeUpstreamProtocol))
	assert.False(t, HasCode(cause, ErrCodeTransientNetwork))
	assert.ErrorIs(t, err, cause)
}

func TestHandleError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, fmt.Errorf("wrapped: %w", NewCredentialError("no session cookie", nil)))

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, ErrCodeCredential, body["error"].(map[string]any)["code"])

	rec = httptest.NewRecorder()
	HandleError(rec, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrCodeInternal)
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]int{"inserted": 3})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"inserted":3}}`, rec.Body.String())
}
