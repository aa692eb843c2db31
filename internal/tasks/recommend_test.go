package tasks

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/shared"
	_ "github.com/mattn/go-sqlite3"
)

// seedHistory commits one association per (track, kind, position) triple.
func seedHistory(t *testing.T, music *repositories.MusicRepository, userID string, syncedAt time.Time, rows []models.Association) {
	t.Helper()

	batch := repositories.Batch{}
	seen := map[string]bool{}
	for _, row := range rows {
		row.UserID = userID
		row.SyncedAt = syncedAt
		if !seen[row.ItemID] {
			seen[row.ItemID] = true
			batch.Tracks = append(batch.Tracks, models.Track{ID: row.ItemID, Name: "Track " + row.ItemID})
		}
		batch.Associations = append(batch.Associations, row)
	}

	if _, err := music.CommitBatch(batch); err != nil {
		t.Fatalf("failed to seed history: %v", err)
	}
}

func newRecommender(t *testing.T, music *repositories.MusicRepository, weights Weights) *Recommender {
	t.Helper()
	recommender := NewRecommender(music, shared.NewLogger(io.Discard), weights)
	// pin the clock so recency decay is deterministic
	now := time.Now().UTC()
	recommender.now = func() time.Time { return now }
	return recommender
}

func TestRecommenderScoring(t *testing.T) {
	noDecay := Weights{Saved: 3, Top: 2, Playlist: 1, RankScale: 2}

	t.Run("saved outweighs top outweighs playlist", func(t *testing.T) {
		music := newMusicRepository(t)
		now := time.Now().UTC()
		seedHistory(t, music, "user-1", now, []models.Association{
			{ItemID: "saved-one", Kind: models.KindSavedTrack},
			{ItemID: "playlist-one", Kind: models.KindPlaylistTrack},
			{ItemID: "top-one", Kind: models.KindTopTrack, TimeRange: models.LongTerm, Position: 100},
		})

		result, err := newRecommender(t, music, noDecay).Recommend(nil, "user-1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got := []string{result.Tracks[0].Track.ID, result.Tracks[1].Track.ID, result.Tracks[2].Track.ID}
		want := []string{"saved-one", "top-one", "playlist-one"}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected order %v, got %v", want, got)
			}
		}
	})

	t.Run("appearances across kinds accumulate", func(t *testing.T) {
		music := newMusicRepository(t)
		now := time.Now().UTC()
		seedHistory(t, music, "user-1", now, []models.Association{
			{ItemID: "everywhere", Kind: models.KindSavedTrack},
			{ItemID: "everywhere", Kind: models.KindPlaylistTrack},
			{ItemID: "saved-only", Kind: models.KindSavedTrack},
		})

		result, err := newRecommender(t, music, noDecay).Recommend(nil, "user-1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Tracks[0].Track.ID != "everywhere" {
			t.Errorf("expected multi-kind track first, got %s", result.Tracks[0].Track.ID)
		}
		if got := result.Tracks[0].Score; got != 4 {
			t.Errorf("expected score 4 (3+1), got %g", got)
		}
		if len(result.Tracks[0].Sources) != 2 {
			t.Errorf("expected two source kinds, got %v", result.Tracks[0].Sources)
		}
	})

	t.Run("higher rank earns a larger bonus", func(t *testing.T) {
		music := newMusicRepository(t)
		now := time.Now().UTC()
		seedHistory(t, music, "user-1", now, []models.Association{
			{ItemID: "rank-one", Kind: models.KindTopTrack, TimeRange: models.LongTerm, Position: 1},
			{ItemID: "rank-forty", Kind: models.KindTopTrack, TimeRange: models.LongTerm, Position: 40},
		})

		result, err := newRecommender(t, music, noDecay).Recommend(nil, "user-1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Tracks[0].Track.ID != "rank-one" {
			t.Errorf("expected rank 1 first, got %s", result.Tracks[0].Track.ID)
		}
		if got := result.Tracks[0].Score; got != 4 { // 2 + 2/1
			t.Errorf("expected score 4, got %g", got)
		}
		if got := result.Tracks[1].Score; math.Abs(got-2.05) > 1e-9 { // 2 + 2/40
			t.Errorf("expected score 2.05, got %g", got)
		}
	})

	t.Run("stale syncs decay by half-life", func(t *testing.T) {
		music := newMusicRepository(t)
		decay := Weights{Saved: 3, Top: 2, Playlist: 1, RankScale: 2, RecencyHalfLife: 30}
		now := time.Now().UTC()
		seedHistory(t, music, "user-1", now, []models.Association{
			{ItemID: "fresh-playlist", Kind: models.KindPlaylistTrack},
		})
		seedHistory(t, music, "user-1", now.Add(-60*24*time.Hour), []models.Association{
			{ItemID: "stale-saved", Kind: models.KindSavedTrack},
		})

		recommender := newRecommender(t, music, decay)
		recommender.now = func() time.Time { return now }

		result, err := recommender.Recommend(nil, "user-1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// two half-lives quarter the saved weight: 3/4 < 1
		if result.Tracks[0].Track.ID != "fresh-playlist" {
			t.Errorf("expected fresh track to beat stale save, got %s", result.Tracks[0].Track.ID)
		}
	})

	t.Run("equal scores order by track id", func(t *testing.T) {
		music := newMusicRepository(t)
		now := time.Now().UTC()
		seedHistory(t, music, "user-1", now, []models.Association{
			{ItemID: "zzz", Kind: models.KindSavedTrack},
			{ItemID: "aaa", Kind: models.KindSavedTrack},
			{ItemID: "mmm", Kind: models.KindSavedTrack},
		})

		recommender := newRecommender(t, music, noDecay)
		first, err := recommender.Recommend(nil, "user-1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := recommender.Recommend(nil, "user-1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"aaa", "mmm", "zzz"}
		for i := range want {
			if first.Tracks[i].Track.ID != want[i] {
				t.Fatalf("expected deterministic order %v, got %+v", want, first.Tracks)
			}
			if first.Tracks[i].Track.ID != second.Tracks[i].Track.ID {
				t.Fatal("expected repeated runs to agree")
			}
		}
	})
}

func TestRecommenderLimits(t *testing.T) {
	t.Run("empty history is ErrNoCandidates", func(t *testing.T) {
		music := newMusicRepository(t)
		_, err := newRecommender(t, music, Weights{}).Recommend(nil, "user-1", 10)
		if !errors.Is(err, shared.ErrNoCandidates) {
			t.Errorf("expected ErrNoCandidates, got %v", err)
		}
	})

	t.Run("limit truncates and flags", func(t *testing.T) {
		music := newMusicRepository(t)
		now := time.Now().UTC()
		seedHistory(t, music, "user-1", now, []models.Association{
			{ItemID: "one", Kind: models.KindSavedTrack},
			{ItemID: "two", Kind: models.KindSavedTrack},
			{ItemID: "three", Kind: models.KindSavedTrack},
		})

		result, err := newRecommender(t, music, Weights{}).Recommend(nil, "user-1", 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Tracks) != 2 {
			t.Errorf("expected 2 tracks, got %d", len(result.Tracks))
		}
		if !result.Truncated {
			t.Error("expected truncated flag")
		}
	})

	t.Run("zero limit returns everything", func(t *testing.T) {
		music := newMusicRepository(t)
		now := time.Now().UTC()
		seedHistory(t, music, "user-1", now, []models.Association{
			{ItemID: "one", Kind: models.KindSavedTrack},
			{ItemID: "two", Kind: models.KindSavedTrack},
		})

		result, err := newRecommender(t, music, Weights{}).Recommend(nil, "user-1", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Tracks) != 2 || result.Truncated {
			t.Errorf("expected full untruncated list, got %d truncated=%v", len(result.Tracks), result.Truncated)
		}
	})

	t.Run("top artists never surface as track recommendations", func(t *testing.T) {
		music := newMusicRepository(t)

		batch := repositories.Batch{
			Artists: []models.Artist{{ID: "artist-1", Name: "Only Artist"}},
			Associations: []models.Association{{
				UserID: "user-1", ItemID: "artist-1",
				Kind: models.KindTopArtist, TimeRange: models.LongTerm, Position: 1,
				SyncedAt: time.Now().UTC(),
			}},
		}
		if _, err := music.CommitBatch(batch); err != nil {
			t.Fatalf("failed to seed artist: %v", err)
		}

		_, err := newRecommender(t, music, Weights{}).Recommend(nil, "user-1", 0)
		if !errors.Is(err, shared.ErrNoCandidates) {
			t.Errorf("expected artist-only history to yield no candidates, got %v", err)
		}
	})
}
