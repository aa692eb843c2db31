// package tasks orchestrates the sync pipeline, the recommendation engine,
// and the playlist publisher.
//
// Operations emit progress updates via channels for non-blocking status
// reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/services"
)

const (
	defaultPageLimit = 50
	defaultBatchSize = 300
)

// SyncOptions selects what a pipeline run covers. An empty Kinds set fetches
// nothing, which together with Purge clears a user's associations outright.
type SyncOptions struct {
	Kinds      []models.Kind
	TimeRanges []models.TimeRange // ranked kinds only; nil means all three
	Purge      bool               // delete prior associations for Kinds before fetching
}

// ranges resolves the time ranges ranked kinds are synced across.
func (o SyncOptions) ranges() []models.TimeRange {
	if len(o.TimeRanges) == 0 {
		return []models.TimeRange{models.ShortTerm, models.MediumTerm, models.LongTerm}
	}
	return o.TimeRanges
}

// KindError reports a kind whose sync failed partway. Batches committed
// before the failure stay committed; other kinds are unaffected.
type KindError struct {
	Kind      models.Kind
	Committed int
	Err       error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s failed after %d associations: %v", e.Kind, e.Committed, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// KindCount breaks one kind's committed associations into rows inserted for
// the first time and rows refreshed in place.
type KindCount struct {
	Created int
	Updated int
}

// Total returns the associations committed for the kind.
func (c KindCount) Total() int { return c.Created + c.Updated }

// SyncReport summarizes one pipeline run.
type SyncReport struct {
	UserID   string
	Counts   map[models.Kind]KindCount // per-kind created/updated tallies
	Purged   int64                     // prior associations cleared before the run
	Errors   []KindError               // kinds that failed partway
	Duration time.Duration
}

// Total returns the number of associations committed across all kinds.
func (r *SyncReport) Total() int {
	var total int
	for _, count := range r.Counts {
		total += count.Total()
	}
	return total
}

// Failed reports whether any kind failed.
func (r *SyncReport) Failed() bool { return len(r.Errors) > 0 }

// Engine runs the sync pipeline for one user: fetch every requested kind
// from the remote library, page by page, and commit associations in batches.
type Engine struct {
	library   services.Library
	music     *repositories.MusicRepository
	logger    *log.Logger
	pageLimit int
	batchSize int
}

// NewEngine creates a sync engine over the given library and repository.
// Non-positive limits fall back to defaults.
func NewEngine(library services.Library, music *repositories.MusicRepository, logger *log.Logger, pageLimit, batchSize int) *Engine {
	if pageLimit <= 0 || pageLimit > defaultPageLimit {
		pageLimit = defaultPageLimit
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Engine{
		library:   library,
		music:     music,
		logger:    logger,
		pageLimit: pageLimit,
		batchSize: batchSize,
	}
}

// Sync fetches the requested kinds from the remote library into the store.
// Without Purge the run is an incremental upsert; with it, prior
// associations for the selected kinds are cleared first. Kinds run
// concurrently; within a kind, pages are fetched sequentially so offsets
// stay consistent. A kind failing partway never aborts the others.
func (e *Engine) Sync(ctx context.Context, progress chan<- ProgressUpdate, userID string, opts SyncOptions) (*SyncReport, error) {
	kinds := opts.Kinds

	start := time.Now()
	report := &SyncReport{UserID: userID, Counts: map[models.Kind]KindCount{}}

	if opts.Purge {
		purged, err := e.music.Purge(userID, kinds)
		if err != nil {
			return nil, fmt.Errorf("failed to purge prior associations: %w", err)
		}
		report.Purged = purged
		e.sendProgress(progress, purgeUpdate(purged))
	}

	type kindResult struct {
		kind  models.Kind
		tally kindTally
		err   error
	}

	results := make(chan kindResult, len(kinds))
	var wg sync.WaitGroup

	for _, kind := range kinds {
		wg.Add(1)
		go func(kind models.Kind) {
			defer wg.Done()
			tally, err := e.syncKind(ctx, progress, userID, kind, opts.ranges())
			e.sendProgress(progress, kindDoneUpdate(kind, tally.total(), err))
			results <- kindResult{kind: kind, tally: tally, err: err}
		}(kind)
	}

	wg.Wait()
	close(results)

	for result := range results {
		report.Counts[result.kind] = KindCount{Created: result.tally.created, Updated: result.tally.updated}
		if result.err != nil {
			e.logger.Error("kind sync failed", "kind", result.kind, "committed", result.tally.total(), "error", result.err)
			report.Errors = append(report.Errors, KindError{Kind: result.kind, Committed: result.tally.total(), Err: result.err})
		}
	}

	report.Duration = time.Since(start)
	e.logger.Info("sync finished",
		"user_id", userID,
		"total", report.Total(),
		"purged", report.Purged,
		"failed_kinds", len(report.Errors),
		"duration", report.Duration.Round(time.Millisecond),
	)

	return report, nil
}

// kindTally accumulates one kind's committed association rows.
type kindTally struct {
	created int
	updated int
}

func (t kindTally) total() int { return t.created + t.updated }

// syncKind drains one kind completely, committing batches as they fill.
func (e *Engine) syncKind(ctx context.Context, progress chan<- ProgressUpdate, userID string, kind models.Kind, ranges []models.TimeRange) (kindTally, error) {
	switch kind {
	case models.KindTopArtist, models.KindTopTrack:
		return e.syncRanked(ctx, progress, userID, kind, ranges)
	case models.KindSavedTrack:
		return e.syncSaved(ctx, progress, userID)
	case models.KindPlaylistTrack:
		return e.syncPlaylists(ctx, progress, userID)
	default:
		return kindTally{}, fmt.Errorf("unknown kind %q", kind)
	}
}

// syncRanked fetches a top-artists or top-tracks kind across every time
// range. The first batch of each range carries a replace scope so a re-run
// fully supersedes prior positions.
func (e *Engine) syncRanked(ctx context.Context, progress chan<- ProgressUpdate, userID string, kind models.Kind, ranges []models.TimeRange) (kindTally, error) {
	var tally kindTally

	for _, timeRange := range ranges {
		batch := repositories.Batch{
			Replace: []repositories.KindScope{{UserID: userID, Kind: kind, TimeRange: timeRange}},
		}
		offset := 0

		for {
			e.sendProgress(progress, fetchPageUpdate(kind, offset, 0))

			var items []rankedItem
			var pageLen int
			var err error

			if kind == models.KindTopArtist {
				items, pageLen, err = e.fetchTopArtists(ctx, offset, timeRange)
			} else {
				items, pageLen, err = e.fetchTopTracks(ctx, offset, timeRange)
			}
			if err != nil {
				return tally, err
			}

			now := time.Now().UTC()
			for i, item := range items {
				if item.track != nil {
					batch.Tracks = append(batch.Tracks, *item.track)
					batch.Artists = append(batch.Artists, item.track.Artists...)
				} else {
					batch.Artists = append(batch.Artists, *item.artist)
				}
				batch.Associations = append(batch.Associations, models.Association{
					UserID:    userID,
					ItemID:    item.id,
					Kind:      kind,
					TimeRange: timeRange,
					Position:  offset + i + 1,
					SyncedAt:  now,
				})
			}

			if batch.Size() >= e.batchSize {
				if err := e.flush(progress, kind, &batch, &tally); err != nil {
					return tally, err
				}
			}

			if pageLen < e.pageLimit {
				break
			}
			offset += pageLen
		}

		if err := e.flush(progress, kind, &batch, &tally); err != nil {
			return tally, err
		}
	}

	return tally, nil
}

// rankedItem is one remote listing entry, either an artist or a track.
type rankedItem struct {
	id     string
	artist *models.Artist
	track  *models.Track
}

func (e *Engine) fetchTopArtists(ctx context.Context, offset int, timeRange models.TimeRange) ([]rankedItem, int, error) {
	page, err := e.library.TopArtists(ctx, e.pageLimit, offset, timeRange)
	if err != nil {
		return nil, 0, err
	}

	items := make([]rankedItem, 0, len(page.Items))
	for _, remote := range page.Items {
		if remote.ID == "" {
			continue
		}
		artist := remote.ToModel()
		items = append(items, rankedItem{id: artist.ID, artist: &artist})
	}
	return items, len(page.Items), nil
}

func (e *Engine) fetchTopTracks(ctx context.Context, offset int, timeRange models.TimeRange) ([]rankedItem, int, error) {
	page, err := e.library.TopTracks(ctx, e.pageLimit, offset, timeRange)
	if err != nil {
		return nil, 0, err
	}

	items := make([]rankedItem, 0, len(page.Items))
	for _, remote := range page.Items {
		if remote.ID == "" {
			continue
		}
		track := remote.ToModel()
		items = append(items, rankedItem{id: track.ID, track: &track})
	}
	return items, len(page.Items), nil
}

// syncSaved fetches the user's saved tracks. Order carries no meaning, so
// associations are unranked and never replace-scoped; re-synced rows upsert
// in place.
func (e *Engine) syncSaved(ctx context.Context, progress chan<- ProgressUpdate, userID string) (kindTally, error) {
	var batch repositories.Batch
	var tally kindTally
	offset := 0

	for {
		e.sendProgress(progress, fetchPageUpdate(models.KindSavedTrack, offset, 0))

		page, err := e.library.SavedTracks(ctx, e.pageLimit, offset)
		if err != nil {
			return tally, err
		}

		now := time.Now().UTC()
		for _, saved := range page.Items {
			if saved.Track.ID == "" {
				continue
			}
			track := saved.Track.ToModel()
			batch.Tracks = append(batch.Tracks, track)
			batch.Artists = append(batch.Artists, track.Artists...)
			batch.Associations = append(batch.Associations, models.Association{
				UserID:   userID,
				ItemID:   track.ID,
				Kind:     models.KindSavedTrack,
				SyncedAt: now,
			})
		}

		if batch.Size() >= e.batchSize {
			if err := e.flush(progress, models.KindSavedTrack, &batch, &tally); err != nil {
				return tally, err
			}
		}

		if len(page.Items) < e.pageLimit {
			break
		}
		offset += len(page.Items)
	}

	err := e.flush(progress, models.KindSavedTrack, &batch, &tally)
	return tally, err
}

// syncPlaylists walks every playlist the user follows and collects its
// tracks. The same track on several playlists yields one association; a
// playlist page that cannot be fetched is skipped rather than failing the
// kind.
func (e *Engine) syncPlaylists(ctx context.Context, progress chan<- ProgressUpdate, userID string) (kindTally, error) {
	var batch repositories.Batch
	var tally kindTally
	seen := map[string]bool{}
	offset := 0

	for {
		e.sendProgress(progress, fetchPageUpdate(models.KindPlaylistTrack, offset, 0))

		page, err := e.library.Playlists(ctx, e.pageLimit, offset)
		if err != nil {
			return tally, err
		}

		for _, playlist := range page.Items {
			if playlist.ID == "" {
				continue
			}
			if err := e.collectPlaylist(ctx, progress, userID, playlist.ID, seen, &batch, &tally); err != nil {
				return tally, err
			}
		}

		if len(page.Items) < e.pageLimit {
			break
		}
		offset += len(page.Items)
	}

	err := e.flush(progress, models.KindPlaylistTrack, &batch, &tally)
	return tally, err
}

// collectPlaylist drains one playlist's tracks into the batch. Fetch errors
// on an individual playlist skip the rest of that playlist only.
func (e *Engine) collectPlaylist(ctx context.Context, progress chan<- ProgressUpdate, userID, playlistID string, seen map[string]bool, batch *repositories.Batch, tally *kindTally) error {
	offset := 0

	for {
		page, err := e.library.PlaylistItems(ctx, playlistID, e.pageLimit, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("skipping unreadable playlist", "playlist_id", playlistID, "error", err)
			return nil
		}

		now := time.Now().UTC()
		for _, item := range page.Items {
			if item.Track.ID == "" || seen[item.Track.ID] {
				continue
			}
			seen[item.Track.ID] = true

			track := item.Track.ToModel()
			batch.Tracks = append(batch.Tracks, track)
			batch.Artists = append(batch.Artists, track.Artists...)
			batch.Associations = append(batch.Associations, models.Association{
				UserID:   userID,
				ItemID:   track.ID,
				Kind:     models.KindPlaylistTrack,
				SyncedAt: now,
			})
		}

		if batch.Size() >= e.batchSize {
			if err := e.flush(progress, models.KindPlaylistTrack, batch, tally); err != nil {
				return err
			}
		}

		if len(page.Items) < e.pageLimit {
			return nil
		}
		offset += len(page.Items)
	}
}

// flush commits the accumulated batch, folds the created/updated counts into
// the tally, and resets the batch.
func (e *Engine) flush(progress chan<- ProgressUpdate, kind models.Kind, batch *repositories.Batch, tally *kindTally) error {
	if batch.Size() == 0 && len(batch.Replace) == 0 {
		return nil
	}

	result, err := e.music.CommitBatch(*batch)
	if err != nil {
		return err
	}

	*batch = repositories.Batch{}
	tally.created += result.Created
	tally.updated += result.Updated
	e.sendProgress(progress, commitUpdate(kind, tally.total()))
	return nil
}

// sendProgress sends an update without blocking when the consumer lags.
func (e *Engine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
