package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/desertthunder/mixtape/internal/auth"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the authorization callback listener until interrupted.
//
// The listener shares nothing with the interactive CLI but the database; it
// can run on its own long before or after any connect command starts.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	host := cmd.String("host")
	if host == "" {
		host = r.config.Server.Host
	}
	port := cmd.Int("port")
	if port == 0 {
		port = r.config.Server.Port
	}

	db, err := r.database()
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

	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger), server.Logging(r.logger))
	router.Handler(server.NewCallbackHandler(coordinator, r.logger))
	router.Handler(server.NewHealthHandler(db))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", host, port)
	return server.Serve(ctx, addr, router, r.logger)
}
