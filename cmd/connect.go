package main

import (
	"context"
	"time"

	"github.com/desertthunder/mixtape/internal/auth"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultConnectTimeout = 5 * time.Minute

// SpotifyConnect starts the authorization handshake for a user.
//
// The callback listener (serve) resolves the handshake in its own process;
// this command only creates the pending request, opens the browser, and
// optionally polls for the outcome.
func (r *Runner) SpotifyConnect(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}

	user, err := r.resolveUser(db, cmd.String("user"))
	if err != nil {
		return err
	}

	client, err := r.spotifyClient()
	if err != nil {
		return err
	}

	coordinator := auth.NewCoordinator(
		repositories.NewAuthRequestRepository(db),
		repositories.NewCredentialRepository(db),
		client,
		r.logger,
	)

	authURL, err := coordinator.Begin(user.ID())
	if err != nil {
		return err
	}

	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL to authorize:\n\n  %s\n\n", authURL)
	} else {
		r.writePlain("Opening browser for authorization...\n")
		if err := shared.OpenBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
			r.writePlain("Open this URL to authorize:\n\n  %s\n\n", authURL)
		}
	}

	if !cmd.Bool("wait") && cmd.Duration("timeout") <= 0 {
		r.writePlain("Authorization pending. Make sure the listener is running (serve),\nthen re-run sync once you have approved access.\n")
		return nil
	}

	timeout := cmd.Duration("timeout")
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	r.writePlain("Waiting for authorization (up to %s)...\n", timeout)
	credential, err := coordinator.Await(ctx, user.ID(), timeout, cmd.Duration("poll-interval"))
	if err != nil {
		return err
	}

	r.logger.Info("account connected", "user_id", user.ID())
	return r.writePlain("✓ %s connected (scopes: %s, expires %s)\n",
		user.Email(), credential.ScopeString(), credential.ExpiresAt().Format(time.RFC3339))
}
