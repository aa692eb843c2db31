package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/mixtape/internal/formatter"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SpotifyRecommend scores a user's synced listening history into an ordered
// track list and optionally publishes it as a playlist.
func (r *Runner) SpotifyRecommend(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}

	user, err := r.resolveUser(db, cmd.String("user"))
	if err != nil {
		return err
	}

	recommender := tasks.NewRecommender(
		repositories.NewMusicRepository(db),
		r.logger,
		tasks.WeightsFromConfig(r.config.Recommend),
	)

	result, err := recommender.Recommend(nil, user.ID(), cmd.Int("limit"))
	if err != nil {
		return err
	}

	if err := r.writeRecommendations(result, cmd.String("format")); err != nil {
		return err
	}

	if cmd.String("publish") == "" && cmd.String("playlist-id") == "" {
		return nil
	}
	return r.publishRecommendations(ctx, cmd, db, user.ID(), result)
}

func (r *Runner) writeRecommendations(result *tasks.RecommendResult, format string) error {
	switch format {
	case "text", "":
		return r.writePlain("%s", formatter.RecommendationsToText(result))
	case "markdown", "md":
		return r.writePlain("%s", formatter.RecommendationsToMarkdown(result))
	case "csv":
		output, err := formatter.RecommendationsToCSV(result)
		if err != nil {
			return err
		}
		return r.writePlain("%s", output)
	case "json":
		return r.writeJSON(result, true)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
}

func (r *Runner) publishRecommendations(ctx context.Context, cmd *cli.Command, db *sql.DB, userID string, result *tasks.RecommendResult) error {
	session, err := r.session(db, userID)
	if err != nil {
		return err
	}

	tracks := make([]models.Track, 0, len(result.Tracks))
	for _, scored := range result.Tracks {
		tracks = append(tracks, scored.Track)
	}

	publisher := tasks.NewPublisher(session, r.logger)
	published, err := publisher.Publish(ctx, nil, tasks.PublishOptions{
		Name:        cmd.String("publish"),
		Description: cmd.String("description"),
		Public:      cmd.Bool("public"),
		PlaylistID:  cmd.String("playlist-id"),
	}, tracks)
	if err != nil {
		if published != nil && published.Added > 0 {
			r.writePlain("Partial publish: %d tracks added to %s before failure.\n", published.Added, published.PlaylistName)
		}
		return err
	}

	verb := "Created"
	label := published.PlaylistName
	if published.Reused {
		verb = "Updated"
		if label == "" {
			label = published.PlaylistID
		}
	}
	return r.writePlain("✓ %s playlist %q with %d tracks\n", verb, label, published.Added)
}
