package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"wechat-reader/internal/core"
	"wechat-reader/internal/features/wechat/models"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var tokenPattern = regexp.MustCompile(`token=(\d+)`)

// ExtractToken returns the numeric access token embedded in a cookie string, if any
func ExtractToken(cookie string) string {
	if m := tokenPattern.FindStringSubmatch(cookie); len(m) == 2 {
		return m[1]
	}
	return ""
}

// CredentialService keeps one sealed platform session per user
type CredentialService struct {
	db            *core.Database
	logger        *core.Logger
	key           [32]byte
	defaultCookie string
	defaultToken  string
}

// NewCredentialService creates a credential store sealing cookies under secret.
// defaultCookie applies to users without a stored session.
func NewCredentialService(db *core.Database, logger *core.Logger, secret, defaultCookie, defaultToken string) *CredentialService {
	return &CredentialService{
		db:            db,
		logger:        logger,
		key:           sha256.Sum256([]byte(secret)),
		defaultCookie: strings.TrimSpace(defaultCookie),
		defaultToken:  strings.TrimSpace(defaultToken),
	}
}

func (s *CredentialService) seal(plain string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key), nil
}

func (s *CredentialService) open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", errors.New("sealed cookie is truncated")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", errors.New("sealed cookie failed authentication")
	}
	return string(plain), nil
}

// resolveToken prefers the token embedded in the cookie, then the stored one, then the default
func (s *CredentialService) resolveToken(cookie, stored string) string {
	if token := ExtractToken(cookie); token != "" {
		return token
	}
	if stored != "" {
		return stored
	}
	return s.defaultToken
}

// SetSessionCookie stores the session cookie of a user, replacing any previous one
func (s *CredentialService) SetSessionCookie(ctx context.Context, userID int, cookie, token string) (*models.CredentialStatus, error) {
	cookie = strings.TrimSpace(cookie)
	if cookie == "" {
		return nil, core.NewValidationError("cookie is required", nil)
	}

	sealed, err := s.seal(cookie)
	if err != nil {
		return nil, core.NewInternalError("failed to seal cookie", err)
	}

	token = s.resolveToken(cookie, strings.TrimSpace(token))
	now := time.Now()

	query := `
		INSERT INTO wechat_credentials (user_id, cookie_sealed, token, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			cookie_sealed = excluded.cookie_sealed,
			token = CASE WHEN excluded.token = '' THEN wechat_credentials.token ELSE excluded.token END,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecWithTimeout(ctx, query, userID, sealed, token, now); err != nil {
		return nil, core.NewDatabaseError("failed to store credential", err)
	}

	s.logger.Info("Stored session cookie", "user_id", userID, "has_token", token != "")
	return &models.CredentialStatus{
		UserID:    userID,
		HasCookie: true,
		Token:     token,
		Source:    models.CredentialSourceStored,
		UpdatedAt: &now,
	}, nil
}

func (s *CredentialService) loadStored(ctx context.Context, userID int) (*models.Credential, error) {
	var sealed []byte
	var token string
	var updatedAt time.Time

	err := s.db.QueryRowWithTimeout(ctx,
		`SELECT cookie_sealed, token, updated_at FROM wechat_credentials WHERE user_id = ?`,
		userID).Scan(&sealed, &token, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, core.NewDatabaseError("failed to load credential", err)
	}

	cookie, err := s.open(sealed)
	if err != nil {
		// A rotated secret leaves rows that can no longer be opened; treat them as absent.
		s.logger.Warn("Stored cookie could not be opened", "user_id", userID, "error", err)
		return nil, nil
	}

	return &models.Credential{
		UserID:    userID,
		Cookie:    cookie,
		Token:     s.resolveToken(cookie, token),
		Source:    models.CredentialSourceStored,
		UpdatedAt: updatedAt,
	}, nil
}

// GetSessionCookie returns the session of a user, falling back to the configured default.
// It fails with a credential error when neither exists.
func (s *CredentialService) GetSessionCookie(ctx context.Context, userID int) (*models.Credential, error) {
	stored, err := s.loadStored(ctx, userID)
	if err != nil {
		return nil, err
	}
	if stored != nil && stored.Cookie != "" {
		return stored, nil
	}

	if s.defaultCookie != "" {
		return &models.Credential{
			UserID: userID,
			Cookie: s.defaultCookie,
			Token:  s.resolveToken(s.defaultCookie, ""),
			Source: models.CredentialSourceDefault,
		}, nil
	}

	return nil, core.NewCredentialError(fmt.Sprintf("no session cookie configured for user %d", userID), nil)
}

// Status reports whether a user has a usable session without revealing the cookie
func (s *CredentialService) Status(ctx context.Context, userID int) (*models.CredentialStatus, error) {
	credential, err := s.GetSessionCookie(ctx, userID)
	if err != nil {
		if core.HasCode(err, core.ErrCodeCredential) {
			return &models.CredentialStatus{UserID: userID}, nil
		}
		return nil, err
	}

	status := &models.CredentialStatus{
		UserID:    userID,
		HasCookie: true,
		Token:     credential.Token,
		Source:    credential.Source,
	}
	if !credential.UpdatedAt.IsZero() {
		status.UpdatedAt = &credential.UpdatedAt
	}
	return status, nil
}
