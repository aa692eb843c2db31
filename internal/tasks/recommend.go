package tasks

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/repositories"
	"github.com/desertthunder/mixtape/internal/shared"
)

// Weights controls how listening events translate into scores. A track's
// score is the sum over its appearances of the kind weight, a rank bonus for
// ranked kinds, and a recency decay.
type Weights struct {
	Saved           float64 // weight of a saved-track appearance
	Top             float64 // weight of a top-track appearance
	Playlist        float64 // weight of a playlist-track appearance
	RankScale       float64 // rank bonus numerator; bonus is RankScale/position
	RecencyHalfLife int     // days until a sync's contribution halves
}

// WeightsFromConfig maps the [recommend] config section onto scoring weights.
func WeightsFromConfig(cfg shared.RecommendConfig) Weights {
	return Weights{
		Saved:           cfg.SavedWeight,
		Top:             cfg.TopWeight,
		Playlist:        cfg.PlaylistWeight,
		RankScale:       cfg.RankScale,
		RecencyHalfLife: cfg.RecencyHalfLife,
	}
}

// DefaultWeights mirror the config defaults: a deliberate save signals more
// intent than chart position, which signals more than playlist membership.
func DefaultWeights() Weights {
	return Weights{Saved: 3.0, Top: 2.0, Playlist: 1.0, RankScale: 2.0, RecencyHalfLife: 30}
}

func (w Weights) kindWeight(kind models.Kind) float64 {
	switch kind {
	case models.KindSavedTrack:
		return w.Saved
	case models.KindTopTrack:
		return w.Top
	case models.KindPlaylistTrack:
		return w.Playlist
	default:
		return 0
	}
}

// ScoredTrack is one recommendation with its composite score and the kinds
// that contributed to it.
type ScoredTrack struct {
	Track   models.Track
	Score   float64
	Sources []models.Kind
}

// RecommendResult holds a scored, ordered track list.
type RecommendResult struct {
	UserID     string
	Tracks     []ScoredTrack
	Candidates int  // listening events scored
	Truncated  bool // more tracks existed than the requested limit
}

// Recommender scores synced listening history into an ordered track list.
type Recommender struct {
	music   *repositories.MusicRepository
	logger  *log.Logger
	weights Weights
	now     func() time.Time
}

// NewRecommender creates a recommender with the given weights.
func NewRecommender(music *repositories.MusicRepository, logger *log.Logger, weights Weights) *Recommender {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	return &Recommender{music: music, logger: logger, weights: weights, now: time.Now}
}

// Recommend scores every track in the user's synced history and returns the
// top tracks by score. Identical scores order by track id so repeated runs
// over unchanged history produce identical lists.
func (r *Recommender) Recommend(progress chan<- ProgressUpdate, userID string, limit int) (*RecommendResult, error) {
	candidates, err := r.music.Candidates(userID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no synced listening history for user %s", shared.ErrNoCandidates, userID)
	}

	type entry struct {
		track   models.Track
		score   float64
		sources map[models.Kind]bool
	}

	entries := map[string]*entry{}
	order := []string{}

	for _, candidate := range candidates {
		current, ok := entries[candidate.Track.ID]
		if !ok {
			current = &entry{track: candidate.Track, sources: map[models.Kind]bool{}}
			entries[candidate.Track.ID] = current
			order = append(order, candidate.Track.ID)
		}
		current.score += r.appearanceScore(candidate)
		current.sources[candidate.Kind] = true
	}

	scored := make([]ScoredTrack, 0, len(entries))
	for _, id := range order {
		current := entries[id]
		sources := make([]models.Kind, 0, len(current.sources))
		for _, kind := range models.AllKinds() {
			if current.sources[kind] {
				sources = append(sources, kind)
			}
		}
		scored = append(scored, ScoredTrack{Track: current.track, Score: current.score, Sources: sources})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Track.ID < scored[j].Track.ID
	})

	result := &RecommendResult{UserID: userID, Candidates: len(candidates)}
	if limit > 0 && len(scored) > limit {
		result.Tracks = scored[:limit]
		result.Truncated = true
	} else {
		result.Tracks = scored
	}

	if progress != nil {
		select {
		case progress <- scoreUpdate(len(candidates), len(scored)):
		default:
		}
	}

	r.logger.Debug("recommendations scored",
		"user_id", userID,
		"candidates", len(candidates),
		"distinct", len(scored),
		"returned", len(result.Tracks),
	)

	return result, nil
}

// appearanceScore computes one listening event's contribution: the kind
// weight, a 1/position bonus for ranked kinds, and an exponential decay with
// the configured half-life so stale syncs fade.
func (r *Recommender) appearanceScore(candidate models.Candidate) float64 {
	score := r.weights.kindWeight(candidate.Kind)

	if candidate.Kind.Ranked() && candidate.Position > 0 {
		score += r.weights.RankScale / float64(candidate.Position)
	}

	if r.weights.RecencyHalfLife > 0 {
		ageDays := r.now().Sub(candidate.SyncedAt).Hours() / 24
		if ageDays > 0 {
			score *= math.Exp2(-ageDays / float64(r.weights.RecencyHalfLife))
		}
	}

	return score
}
