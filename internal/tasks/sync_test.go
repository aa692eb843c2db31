package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
	mocks "github.com/desertthunder/mixtape/internal/testing"
	_ "github.com/mattn/go-sqlite3"
)

func newMusicRepository(t *testing.T) *repositories.MusicRepository {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return repositories.NewMusicRepository(db)
}

func trackPageOf(limit, offset int, ids ...string) *services.TrackPage {
	page := &services.TrackPage{Limit: limit, Offset: offset}
	for _, id := range ids {
		page.Items = append(page.Items, services.SpotifyTrack{
			ID:      id,
			Name:    "Track " + id,
			Artists: []services.SpotifyArtist{{ID: "artist-" + id, Name: "Artist " + id}},
		})
	}
	return page
}

func savedPageOf(limit, offset int, ids ...string) *services.SavedTrackPage {
	page := &services.SavedTrackPage{Limit: limit, Offset: offset}
	for _, id := range ids {
		page.Items = append(page.Items, services.SpotifySavedTrack{
			Track: services.SpotifyTrack{ID: id, Name: "Track " + id},
		})
	}
	return page
}

func TestEngineSyncRanked(t *testing.T) {
	t.Run("paginates until a short page and ranks across pages", func(t *testing.T) {
		music := newMusicRepository(t)
		library := &mocks.MockLibrary{
			TopTracksFunc: func(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*services.TrackPage, error) {
				if timeRange != models.LongTerm {
					return &services.TrackPage{Limit: limit, Offset: offset}, nil
				}
				switch offset {
				case 0:
					ids := make([]string, limit)
					for i := range ids {
						ids[i] = fmt.Sprintf("t%03d", i)
					}
					return trackPageOf(limit, offset, ids...), nil
				default:
					return trackPageOf(limit, offset, "t-last"), nil
				}
			},
		}

		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)
		report, err := engine.Sync(context.Background(), nil, "user-1", SyncOptions{Kinds: []models.Kind{models.KindTopTrack}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Counts[models.KindTopTrack].Total() != 51 {
			t.Errorf("expected 51 associations, got %d", report.Counts[models.KindTopTrack].Total())
		}
		if report.Failed() {
			t.Errorf("unexpected errors: %v", report.Errors)
		}

		associations, err := music.ListAssociations("user-1", models.KindTopTrack)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		byID := map[string]models.Association{}
		for _, association := range associations {
			byID[association.ItemID] = association
		}
		if byID["t000"].Position != 1 {
			t.Errorf("expected first item at position 1, got %d", byID["t000"].Position)
		}
		if byID["t-last"].Position != 51 {
			t.Errorf("expected cross-page rank 51, got %d", byID["t-last"].Position)
		}
	})

	t.Run("restricts ranked sync to requested time ranges", func(t *testing.T) {
		music := newMusicRepository(t)
		var ranges []models.TimeRange
		library := &mocks.MockLibrary{
			TopTracksFunc: func(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*services.TrackPage, error) {
				ranges = append(ranges, timeRange)
				return trackPageOf(limit, offset, "t-"+string(timeRange)), nil
			},
		}

		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)
		report, err := engine.Sync(context.Background(), nil, "user-1", SyncOptions{
			Kinds:      []models.Kind{models.KindTopTrack},
			TimeRanges: []models.TimeRange{models.ShortTerm},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(ranges) != 1 || ranges[0] != models.ShortTerm {
			t.Errorf("expected a single short_term fetch, got %v", ranges)
		}
		if report.Counts[models.KindTopTrack].Total() != 1 {
			t.Errorf("expected 1 association, got %d", report.Counts[models.KindTopTrack].Total())
		}
	})

	t.Run("re-sync supersedes prior positions without purge", func(t *testing.T) {
		music := newMusicRepository(t)
		first := true
		library := &mocks.MockLibrary{
			TopTracksFunc: func(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*services.TrackPage, error) {
				if timeRange != models.LongTerm {
					return &services.TrackPage{Limit: limit, Offset: offset}, nil
				}
				if first {
					return trackPageOf(limit, offset, "a", "b", "c"), nil
				}
				return trackPageOf(limit, offset, "c", "a"), nil
			},
		}

		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)
		opts := SyncOptions{Kinds: []models.Kind{models.KindTopTrack}}
		if _, err := engine.Sync(context.Background(), nil, "user-1", opts); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		first = false
		report, err := engine.Sync(context.Background(), nil, "user-1", opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Purged != 0 {
			t.Errorf("expected no upfront purge, got %d", report.Purged)
		}

		associations, _ := music.ListAssociations("user-1", models.KindTopTrack)
		if len(associations) != 2 {
			t.Fatalf("expected 2 associations after re-sync, got %d", len(associations))
		}

		byID := map[string]int{}
		for _, association := range associations {
			byID[association.ItemID] = association.Position
		}
		if byID["c"] != 1 || byID["a"] != 2 {
			t.Errorf("expected c=1 a=2, got %v", byID)
		}
		if _, gone := byID["b"]; gone {
			t.Error("expected b to be superseded")
		}
	})

	t.Run("skips items with no id", func(t *testing.T) {
		music := newMusicRepository(t)
		library := &mocks.MockLibrary{
			TopTracksFunc: func(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*services.TrackPage, error) {
				if timeRange != models.ShortTerm {
					return &services.TrackPage{Limit: limit, Offset: offset}, nil
				}
				page := trackPageOf(limit, offset, "good")
				page.Items = append(page.Items, services.SpotifyTrack{Name: "no id"})
				return page, nil
			},
		}

		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)
		report, err := engine.Sync(context.Background(), nil, "user-1", SyncOptions{Kinds: []models.Kind{models.KindTopTrack}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Counts[models.KindTopTrack].Total() != 1 {
			t.Errorf("expected malformed item skipped, got %d", report.Counts[models.KindTopTrack].Total())
		}
	})
}

func TestEngineSyncPolicy(t *testing.T) {
	t.Run("identical runs leave identical rows", func(t *testing.T) {
		music := newMusicRepository(t)
		library := &mocks.MockLibrary{
			SavedTracksFunc: func(ctx context.Context, limit, offset int) (*services.SavedTrackPage, error) {
				return savedPageOf(limit, offset, "s1", "s2"), nil
			},
		}

		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)
		opts := SyncOptions{Kinds: []models.Kind{models.KindSavedTrack}}
		reports := make([]*SyncReport, 2)
		for i := range reports {
			report, err := engine.Sync(context.Background(), nil, "user-1", opts)
			if err != nil {
				t.Fatalf("run %d failed: %v", i+1, err)
			}
			reports[i] = report
		}

		if got := reports[0].Counts[models.KindSavedTrack]; got != (KindCount{Created: 2}) {
			t.Errorf("expected first run to create 2, got %+v", got)
		}
		if got := reports[1].Counts[models.KindSavedTrack]; got != (KindCount{Updated: 2}) {
			t.Errorf("expected second run to update 2, got %+v", got)
		}

		associations, err := music.ListAssociations("user-1", models.KindSavedTrack)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(associations) != 2 {
			t.Errorf("expected upsert to keep 2 rows, got %d", len(associations))
		}
	})

	t.Run("purge scoped to the selected kinds", func(t *testing.T) {
		music := newMusicRepository(t)
		library := &mocks.MockLibrary{
			SavedTracksFunc: func(ctx context.Context, limit, offset int) (*services.SavedTrackPage, error) {
				return savedPageOf(limit, offset, "s-new"), nil
			},
			PlaylistsFunc: func(ctx context.Context, limit, offset int) (*services.PlaylistPage, error) {
				return &services.PlaylistPage{Limit: limit, Offset: offset}, nil
			},
		}

		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)
		seed := SyncOptions{Kinds: []models.Kind{models.KindSavedTrack, models.KindPlaylistTrack}}
		if _, err := engine.Sync(context.Background(), nil, "user-1", seed); err != nil {
			t.Fatalf("seed sync failed: %v", err)
		}
		if _, err := music.CommitBatch(repositories.Batch{
			Tracks: []models.Track{{ID: "p-old", Name: "Old"}},
			Associations: []models.Association{
				{UserID: "user-1", ItemID: "p-old", Kind: models.KindPlaylistTrack, SyncedAt: time.Now().UTC()},
			},
		}); err != nil {
			t.Fatalf("failed to seed playlist row: %v", err)
		}

		report, err := engine.Sync(context.Background(), nil, "user-1", SyncOptions{
			Kinds: []models.Kind{models.KindSavedTrack},
			Purge: true,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Purged != 1 {
			t.Errorf("expected 1 purged saved row, got %d", report.Purged)
		}

		playlistRows, _ := music.ListAssociations("user-1", models.KindPlaylistTrack)
		if len(playlistRows) != 1 {
			t.Errorf("expected playlist rows untouched, got %d", len(playlistRows))
		}
	})

	t.Run("purge with no kinds clears everything and fetches nothing", func(t *testing.T) {
		music := newMusicRepository(t)
		library := &mocks.MockLibrary{
			SavedTracksFunc: func(ctx context.Context, limit, offset int) (*services.SavedTrackPage, error) {
				return savedPageOf(limit, offset, "s1"), nil
			},
		}

		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)
		if _, err := engine.Sync(context.Background(), nil, "user-1", SyncOptions{Kinds: []models.Kind{models.KindSavedTrack}}); err != nil {
			t.Fatalf("seed sync failed: %v", err)
		}

		report, err := engine.Sync(context.Background(), nil, "user-1", SyncOptions{Purge: true})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Purged != 1 {
			t.Errorf("expected 1 purged row, got %d", report.Purged)
		}
		if report.Total() != 0 {
			t.Errorf("expected nothing fetched, got %d", report.Total())
		}

		count, err := music.CountAssociations("user-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 0 {
			t.Errorf("expected zero rows after full purge, got %d", count)
		}
	})
}

func TestEngineSyncIsolation(t *testing.T) {
	t.Run("one kind failing does not abort the others", func(t *testing.T) {
		music := newMusicRepository(t)
		library := &mocks.MockLibrary{
			TopTracksFunc: func(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*services.TrackPage, error) {
				return nil, errors.New("remote exploded")
			},
			SavedTracksFunc: func(ctx context.Context, limit, offset int) (*services.SavedTrackPage, error) {
				return savedPageOf(limit, offset, "s1", "s2"), nil
			},
		}

		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)
		report, err := engine.Sync(context.Background(), nil, "user-1",
			SyncOptions{Kinds: []models.Kind{models.KindTopTrack, models.KindSavedTrack}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !report.Failed() || len(report.Errors) != 1 {
			t.Fatalf("expected exactly one kind error, got %v", report.Errors)
		}
		if report.Errors[0].Kind != models.KindTopTrack {
			t.Errorf("expected top_track to fail, got %s", report.Errors[0].Kind)
		}
		if report.Counts[models.KindSavedTrack].Total() != 2 {
			t.Errorf("expected saved tracks committed, got %d", report.Counts[models.KindSavedTrack].Total())
		}
	})

	t.Run("partial batches stay committed when a later page fails", func(t *testing.T) {
		music := newMusicRepository(t)
		library := &mocks.MockLibrary{
			SavedTracksFunc: func(ctx context.Context, limit, offset int) (*services.SavedTrackPage, error) {
				if offset > 0 {
					return nil, errors.New("remote exploded")
				}
				ids := make([]string, limit)
				for i := range ids {
					ids[i] = fmt.Sprintf("s%03d", i)
				}
				return savedPageOf(limit, offset, ids...), nil
			},
		}

		// batch size below the page size forces a commit before the failure
		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 10)
		report, err := engine.Sync(context.Background(), nil, "user-1", SyncOptions{Kinds: []models.Kind{models.KindSavedTrack}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(report.Errors) != 1 {
			t.Fatalf("expected one kind error, got %v", report.Errors)
		}
		if report.Errors[0].Committed != 50 {
			t.Errorf("expected 50 committed before failure, got %d", report.Errors[0].Committed)
		}

		associations, _ := music.ListAssociations("user-1", models.KindSavedTrack)
		if len(associations) != 50 {
			t.Errorf("expected committed batch to survive, got %d rows", len(associations))
		}
	})
}

func TestEngineSyncPlaylists(t *testing.T) {
	playlistPage := func(limit, offset int, ids ...string) *services.PlaylistPage {
		page := &services.PlaylistPage{Limit: limit, Offset: offset}
		for _, id := range ids {
			page.Items = append(page.Items, services.SpotifyPlaylist{ID: id, Name: "Playlist " + id})
		}
		return page
	}

	t.Run("same track on two playlists stored once", func(t *testing.T) {
		music := newMusicRepository(t)
		library := &mocks.MockLibrary{
			PlaylistsFunc: func(ctx context.Context, limit, offset int) (*services.PlaylistPage, error) {
				return playlistPage(limit, offset, "p1", "p2"), nil
			},
			PlaylistItemsFunc: func(ctx context.Context, playlistID string, limit, offset int) (*services.PlaylistItemPage, error) {
				return &services.PlaylistItemPage{
					Limit: limit, Offset: offset,
					Items: []services.SpotifyPlaylistItem{
						{Track: services.SpotifyTrack{ID: "shared-track", Name: "Shared"}},
						{Track: services.SpotifyTrack{ID: "only-" + playlistID, Name: "Solo"}},
					},
				}, nil
			},
		}

		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)
		report, err := engine.Sync(context.Background(), nil, "user-1", SyncOptions{Kinds: []models.Kind{models.KindPlaylistTrack}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Counts[models.KindPlaylistTrack].Total() != 3 {
			t.Errorf("expected 3 deduplicated associations, got %d", report.Counts[models.KindPlaylistTrack].Total())
		}
	})

	t.Run("unreadable playlist skipped, rest of kind survives", func(t *testing.T) {
		music := newMusicRepository(t)
		library := &mocks.MockLibrary{
			PlaylistsFunc: func(ctx context.Context, limit, offset int) (*services.PlaylistPage, error) {
				return playlistPage(limit, offset, "broken", "ok"), nil
			},
			PlaylistItemsFunc: func(ctx context.Context, playlistID string, limit, offset int) (*services.PlaylistItemPage, error) {
				if playlistID == "broken" {
					return nil, errors.New("malformed payload")
				}
				return &services.PlaylistItemPage{
					Limit: limit, Offset: offset,
					Items: []services.SpotifyPlaylistItem{{Track: services.SpotifyTrack{ID: "t1", Name: "Fine"}}},
				}, nil
			},
		}

		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)
		report, err := engine.Sync(context.Background(), nil, "user-1", SyncOptions{Kinds: []models.Kind{models.KindPlaylistTrack}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if report.Failed() {
			t.Errorf("unexpected kind errors: %v", report.Errors)
		}
		if report.Counts[models.KindPlaylistTrack].Total() != 1 {
			t.Errorf("expected 1 association from readable playlist, got %d", report.Counts[models.KindPlaylistTrack].Total())
		}
	})

	t.Run("cancellation aborts instead of skipping", func(t *testing.T) {
		music := newMusicRepository(t)
		ctx, cancel := context.WithCancel(context.Background())
		library := &mocks.MockLibrary{
			PlaylistsFunc: func(ctx context.Context, limit, offset int) (*services.PlaylistPage, error) {
				return playlistPage(limit, offset, "p1"), nil
			},
			PlaylistItemsFunc: func(ctx context.Context, playlistID string, limit, offset int) (*services.PlaylistItemPage, error) {
				cancel()
				return nil, ctx.Err()
			},
		}

		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)
		report, err := engine.Sync(ctx, nil, "user-1", SyncOptions{Kinds: []models.Kind{models.KindPlaylistTrack}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(report.Errors) != 1 || !errors.Is(report.Errors[0].Err, context.Canceled) {
			t.Errorf("expected cancellation error, got %v", report.Errors)
		}
	})
}

func TestEngineSyncProgress(t *testing.T) {
	t.Run("emits updates without blocking a slow consumer", func(t *testing.T) {
		music := newMusicRepository(t)
		library := &mocks.MockLibrary{
			SavedTracksFunc: func(ctx context.Context, limit, offset int) (*services.SavedTrackPage, error) {
				return savedPageOf(limit, offset, "s1"), nil
			},
		}

		// unbuffered channel nobody reads; sends must fall through
		progress := make(chan ProgressUpdate)
		engine := NewEngine(library, music, shared.NewLogger(io.Discard), 50, 300)

		done := make(chan struct{})
		go func() {
			defer close(done)
			engine.Sync(context.Background(), progress, "user-1", SyncOptions{Kinds: []models.Kind{models.KindSavedTrack}})
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("sync blocked on progress channel")
		}
	})
}
