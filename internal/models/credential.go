package models

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Credential holds a user's access/refresh token pair with expiry.
//
// Exactly one row exists per connected user; refresh mutates it in place.
type Credential struct {
	userID       string
	tokenType    string
	accessToken  string
	refreshToken string
	expiresAt    time.Time
	scopes       []string
	createdAt    time.Time
	updatedAt    time.Time
}

// NewCredential creates a credential for the given user.
func NewCredential(userID, tokenType, accessToken, refreshToken string, expiresAt time.Time, scopes []string) *Credential {
	now := time.Now().UTC()
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &Credential{
		userID:       userID,
		tokenType:    tokenType,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    expiresAt,
		scopes:       scopes,
		createdAt:    now,
		updatedAt:    now,
	}
}

// ID returns the owning user's id; credentials are keyed by user.
func (c *Credential) ID() string { return c.userID }

func (c *Credential) UserID() string       { return c.userID }
func (c *Credential) TokenType() string    { return c.tokenType }
func (c *Credential) AccessToken() string  { return c.accessToken }
func (c *Credential) RefreshToken() string { return c.refreshToken }
func (c *Credential) ExpiresAt() time.Time { return c.expiresAt }
func (c *Credential) Scopes() []string     { return c.scopes }
func (c *Credential) CreatedAt() time.Time { return c.createdAt }
func (c *Credential) UpdatedAt() time.Time { return c.updatedAt }

// ScopeString returns the scopes as a single space-separated string.
func (c *Credential) ScopeString() string { return strings.Join(c.scopes, " ") }

func (c *Credential) SetCreatedAt(t time.Time) { c.createdAt = t }
func (c *Credential) SetUpdatedAt(t time.Time) { c.updatedAt = t }

// Rotate replaces the token pair after a refresh. The remote service does not
// always return a new refresh token; an empty refreshToken keeps the old one.
func (c *Credential) Rotate(accessToken, refreshToken string, expiresAt time.Time) {
	c.accessToken = accessToken
	if refreshToken != "" {
		c.refreshToken = refreshToken
	}
	c.expiresAt = expiresAt
	c.updatedAt = time.Now().UTC()
}

// IsExpired reports whether the access token is expired or within buffer of expiring.
func (c *Credential) IsExpired(buffer time.Duration) bool {
	return !time.Now().Before(c.expiresAt.Add(-buffer))
}

// Validate checks the credential's data.
func (c *Credential) Validate() error {
	if err := validation.Validate(c.userID, validation.Required); err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	if err := validation.Validate(c.accessToken, validation.Required); err != nil {
		return fmt.Errorf("access_token: %w", err)
	}
	if err := validation.Validate(c.refreshToken, validation.Required); err != nil {
		return fmt.Errorf("refresh_token: %w", err)
	}
	if c.expiresAt.IsZero() {
		return fmt.Errorf("expires_at: cannot be blank")
	}
	return nil
}

// ParseScopes splits a space-separated scope string.
func ParseScopes(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
