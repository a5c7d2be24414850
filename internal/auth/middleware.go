package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"wechat-reader/internal/core"
)

// UserIDHeader carries the acting user id
const UserIDHeader = "X-User-ID"

// DefaultUserID is the user of requests that carry no identity
const DefaultUserID = 1

// Context key for user
type contextKey string

const userContextKey = contextKey("user_id")

// Identify middleware adds the acting user id to the request context.
// Requests without the header act as DefaultUserID.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", UserIDHeader)

		raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if raw == "" {
			next.ServeHTTP(w, contextSetUser(r, DefaultUserID))
			return
		}

		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			core.WriteErrorResponse(w, http.StatusBadRequest, core.NewValidationError("invalid "+UserIDHeader+" header", err))
			return
		}

		next.ServeHTTP(w, contextSetUser(r, id))
	})
}

// WithUserID returns a context carrying the given user id
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}

// UserID returns the user id stored by Identify, or DefaultUserID
func UserID(ctx context.Context) int {
	if id, ok := ctx.Value(userContextKey).(int); ok {
		return id
	}
	return DefaultUserID
}

func contextSetUser(r *http.Request, userID int) *http.Request {
	return r.WithContext(WithUserID(r.Context(), userID))
}
