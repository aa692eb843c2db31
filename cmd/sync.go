package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mixtape/internal/formatter"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/shared"
	"github.com/desertthunder/mixtape/internal/tasks"
	"github.com/desertthunder/mixtape/internal/ui"
	"github.com/urfave/cli/v3"
)

// SpotifySync runs the listening-history pipeline for a user.
func (r *Runner) SpotifySync(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}

	user, err := r.resolveUser(db, cmd.String("user"))
	if err != nil {
		return err
	}

	opts, err := syncOptions(cmd)
	if err != nil {
		return err
	}

	session, err := r.session(db, user.ID())
	if err != nil {
		return err
	}

	pageLimit := cmd.Int("page-limit")
	if pageLimit == 0 {
		pageLimit = r.config.Sync.PageLimit
	}
	batchSize := cmd.Int("batch-size")
	if batchSize == 0 {
		batchSize = r.config.Sync.BatchSize
	}

	engine := tasks.NewEngine(session, repositories.NewMusicRepository(db), r.logger, pageLimit, batchSize)

	var report *tasks.SyncReport
	if cmd.Bool("tui") {
		report, err = r.syncWithTUI(ctx, engine, user.ID(), opts)
	} else {
		report, err = engine.Sync(ctx, nil, user.ID(), opts)
	}
	if err != nil {
		return err
	}

	if err := r.writePlain("%s", formatter.SyncReportToText(report)); err != nil {
		return err
	}
	if report.Failed() {
		return fmt.Errorf("%w: %d of %d kinds failed", shared.ErrSyncIncomplete, len(report.Errors), len(opts.Kinds))
	}
	return nil
}

// syncWithTUI runs the engine in the background while a terminal view drains
// its progress channel.
func (r *Runner) syncWithTUI(ctx context.Context, engine *tasks.Engine, userID string, opts tasks.SyncOptions) (*tasks.SyncReport, error) {
	progress := make(chan tasks.ProgressUpdate, 16)

	type syncResult struct {
		report *tasks.SyncReport
		err    error
	}
	results := make(chan syncResult, 1)

	go func() {
		report, err := engine.Sync(ctx, progress, userID, opts)
		close(progress)
		results <- syncResult{report, err}
	}()

	model := ui.NewSyncModel("Syncing listening history", opts.Kinds, progress)
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTUIFailure, err)
	}

	result := <-results
	return result.report, result.err
}

// syncOptions builds the pipeline inputs from flags. Omitting --kind selects
// every kind; omitting --time-range selects every range.
func syncOptions(cmd *cli.Command) (tasks.SyncOptions, error) {
	opts := tasks.SyncOptions{
		Kinds: models.AllKinds(),
		Purge: cmd.Bool("purge"),
	}

	if values := cmd.StringSlice("kind"); len(values) > 0 {
		opts.Kinds = opts.Kinds[:0]
		for _, value := range values {
			kind, err := models.ParseKind(value)
			if err != nil {
				return opts, fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
			}
			opts.Kinds = append(opts.Kinds, kind)
		}
	}

	for _, value := range cmd.StringSlice("time-range") {
		timeRange, err := models.ParseTimeRange(value)
		if err != nil {
			return opts, fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
		}
		opts.TimeRanges = append(opts.TimeRanges, timeRange)
	}

	return opts, nil
}
