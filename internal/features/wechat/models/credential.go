package models

import (
	"time"
)

// Credential sources
const (
	CredentialSourceStored  = "stored"
	CredentialSourceDefault = "default"
)

// Credential is a platform session for one user
type Credential struct {
	UserID    int       `json:"user_id"`
	Cookie    string    `json:"-"`
	Token     string    `json:"token"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CredentialStatus is the redacted view returned to API clients
type CredentialStatus struct {
	UserID    int        `json:"user_id"`
	HasCookie bool       `json:"has_cookie"`
	Token     string     `json:"token,omitempty"`
	Source    string     `json:"source,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
