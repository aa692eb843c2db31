// package auth coordinates the authorization handshake between the
// interactive CLI and the callback listener.
//
// The two processes share nothing but the database: the CLI writes a pending
// auth_requests row and polls it, the listener resolves the row when the
// redirect arrives. Either side may be restarted mid-flow without losing the
// handshake.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/shared"
	"golang.org/x/oauth2"
)

const (
	// PendingTTL is how long a pending request stays claimable before the
	// callback listener treats it as abandoned.
	PendingTTL = 10 * time.Minute

	// DefaultPollInterval is how often Await re-reads the request row.
	DefaultPollInterval = time.Second
)

// Exchanger is the slice of the remote client the coordinator needs.
type Exchanger interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Scopes() []string
}

// Coordinator drives the handshake from both sides.
type Coordinator struct {
	requests    *repositories.AuthRequestRepository
	credentials *repositories.CredentialRepository
	client      Exchanger
	logger      *log.Logger
	ttl         time.Duration
}

// NewCoordinator creates a coordinator over the given repositories and client.
func NewCoordinator(requests *repositories.AuthRequestRepository, credentials *repositories.CredentialRepository, client Exchanger, logger *log.Logger) *Coordinator {
	return &Coordinator{
		requests:    requests,
		credentials: credentials,
		client:      client,
		logger:      logger,
		ttl:         PendingTTL,
	}
}

// Begin starts a handshake for the given user and returns the URL the user
// must open. A user with a live pending request cannot start another; an
// abandoned pending request is expired and superseded.
func (c *Coordinator) Begin(userID string) (string, error) {
	latest, err := c.requests.LatestByUser(userID)
	if err != nil && err != shared.ErrUnknownState {
		return "", err
	}

	if latest != nil && latest.Status() == models.AuthPending {
		if !latest.ExpiredAfter(c.ttl) {
			return "", fmt.Errorf("%w: authorization already in progress for user %s", shared.ErrAlreadyPending, userID)
		}

		if _, err := c.requests.Transition(latest.State(), models.AuthExpired, "", ""); err != nil {
			return "", err
		}
		c.logger.Debug("expired abandoned auth request", "state", latest.State())
	}

	request := models.NewAuthRequest(shared.GenerateState(), userID)
	if err := c.requests.Create(request); err != nil {
		return "", err
	}

	c.logger.Info("authorization started", "user_id", userID, "state", request.State())
	return c.client.AuthURL(request.State()), nil
}

// HandleCallback resolves a handshake from the redirect the listener
// received. An unknown or already-resolved state is rejected; replaying a
// redirect never overwrites a terminal request.
func (c *Coordinator) HandleCallback(ctx context.Context, state, code, errParam string) error {
	request, err := c.requests.GetByState(state)
	if err != nil {
		return err
	}

	if request.Status().Terminal() {
		return fmt.Errorf("%w: request already %s", shared.ErrUnknownState, request.Status())
	}

	if request.ExpiredAfter(c.ttl) {
		c.requests.Transition(state, models.AuthExpired, "", "")
		return fmt.Errorf("%w: authorization window elapsed", shared.ErrAuthTimeout)
	}

	if errParam != "" {
		if _, err := c.requests.Transition(state, models.AuthFailed, "", errParam); err != nil {
			return err
		}
		c.logger.Warn("authorization denied", "user_id", request.UserID(), "reason", errParam)
		return fmt.Errorf("%w: %s", shared.ErrAuthDenied, errParam)
	}

	if code == "" {
		if _, err := c.requests.Transition(state, models.AuthFailed, "", "missing authorization code"); err != nil {
			return err
		}
		return fmt.Errorf("%w: redirect carried no code", shared.ErrInvalidInput)
	}

	token, err := c.client.Exchange(ctx, code)
	if err != nil {
		c.requests.Transition(state, models.AuthFailed, code, err.Error())
		return err
	}

	credential := credentialFromToken(request.UserID(), token, c.client.Scopes())
	if err := c.credentials.Upsert(credential); err != nil {
		return err
	}

	completed, err := c.requests.Transition(state, models.AuthCompleted, code, "")
	if err != nil {
		return err
	}
	if !completed {
		// Another listener resolved the same redirect first. The credential
		// upsert is idempotent, so this is a no-op rather than an error.
		c.logger.Debug("auth request already resolved", "state", state)
		return nil
	}

	c.logger.Info("authorization completed", "user_id", request.UserID())
	return nil
}

// Await blocks until the user's latest handshake resolves, polling the
// request row, and returns the credential the listener stored. A zero or
// negative timeout checks exactly once. Awaiting past the deadline expires
// the pending request so a later Begin can supersede it.
func (c *Coordinator) Await(ctx context.Context, userID string, timeout, pollInterval time.Duration) (*models.Credential, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		request, err := c.requests.LatestByUser(userID)
		if err != nil {
			return nil, err
		}

		switch request.Status() {
		case models.AuthCompleted:
			return c.credentials.GetByUserID(userID)
		case models.AuthFailed:
			if msg := request.ErrMessage(); msg != "" {
				return nil, fmt.Errorf("%w: %s", shared.ErrAuthDenied, msg)
			}
			return nil, shared.ErrAuthDenied
		case models.AuthExpired:
			return nil, shared.ErrAuthTimeout
		}

		if timeout <= 0 || !time.Now().Before(deadline) {
			c.requests.Transition(request.State(), models.AuthExpired, "", "")
			return nil, fmt.Errorf("%w: no response within %s", shared.ErrAuthTimeout, timeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// credentialFromToken builds the stored credential for a fresh token pair.
// The granted scope string from the token response wins over the requested
// scopes when the service reports one.
func credentialFromToken(userID string, token *oauth2.Token, requested []string) *models.Credential {
	scopes := requested
	if granted, ok := token.Extra("scope").(string); ok && granted != "" {
		scopes = strings.Fields(granted)
	}

	return models.NewCredential(userID, token.TokenType, token.AccessToken, token.RefreshToken, token.Expiry, scopes)
}
