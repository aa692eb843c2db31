package models

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// AuthStatus enumerates the lifecycle of a pending authorization.
type AuthStatus string

const (
	AuthPending   AuthStatus = "pending"
	AuthCompleted AuthStatus = "completed"
	AuthExpired   AuthStatus = "expired"
	AuthFailed    AuthStatus = "failed"
)

// Terminal reports whether the status can no longer change.
// A terminal request can only be superseded by a fresh begin.
func (s AuthStatus) Terminal() bool {
	return s == AuthCompleted || s == AuthExpired || s == AuthFailed
}

// AuthRequest is the transient record bridging the interactive CLI and the
// callback listener during the authorization handshake. The two processes
// never call each other; this row is their only channel.
type AuthRequest struct {
	state      string
	userID     string
	status     AuthStatus
	code       string
	errMessage string
	createdAt  time.Time
	updatedAt  time.Time
}

// NewAuthRequest creates a pending request for the given user and state token.
func NewAuthRequest(state, userID string) *AuthRequest {
	now := time.Now().UTC()
	return &AuthRequest{
		state:     state,
		userID:    userID,
		status:    AuthPending,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the state token; requests are keyed by state.
func (a *AuthRequest) ID() string { return a.state }

func (a *AuthRequest) State() string        { return a.state }
func (a *AuthRequest) UserID() string       { return a.userID }
func (a *AuthRequest) Status() AuthStatus   { return a.status }
func (a *AuthRequest) Code() string         { return a.code }
func (a *AuthRequest) ErrMessage() string   { return a.errMessage }
func (a *AuthRequest) CreatedAt() time.Time { return a.createdAt }
func (a *AuthRequest) UpdatedAt() time.Time { return a.updatedAt }

func (a *AuthRequest) SetStatus(s AuthStatus)   { a.status = s; a.updatedAt = time.Now().UTC() }
func (a *AuthRequest) SetCode(code string)      { a.code = code }
func (a *AuthRequest) SetErrMessage(msg string) { a.errMessage = msg }
func (a *AuthRequest) SetCreatedAt(t time.Time) { a.createdAt = t }
func (a *AuthRequest) SetUpdatedAt(t time.Time) { a.updatedAt = t }

// ExpiredAfter reports whether a still-pending request is older than ttl.
func (a *AuthRequest) ExpiredAfter(ttl time.Duration) bool {
	return a.status == AuthPending && time.Since(a.createdAt) > ttl
}

// Validate checks the request's data.
func (a *AuthRequest) Validate() error {
	if err := validation.Validate(a.state, validation.Required); err != nil {
		return fmt.Errorf("state: %w", err)
	}
	if err := validation.Validate(a.userID, validation.Required); err != nil {
		return fmt.Errorf("user_id: %w", err)
	}
	switch a.status {
	case AuthPending, AuthCompleted, AuthExpired, AuthFailed:
		return nil
	default:
		return fmt.Errorf("status: invalid value %q", a.status)
	}
}
