package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags a user→item association with the collection it came from.
type Kind string

const (
	KindTopArtist     Kind = "top_artist"
	KindTopTrack      Kind = "top_track"
	KindSavedTrack    Kind = "saved_track"
	KindPlaylistTrack Kind = "playlist_track"
)

// AllKinds returns every syncable kind in pipeline order.
func AllKinds() []Kind {
	return []Kind{KindTopArtist, KindTopTrack, KindSavedTrack, KindPlaylistTrack}
}

// Ranked reports whether the remote ordering carries a meaningful position.
func (k Kind) Ranked() bool {
	return k == KindTopArtist || k == KindTopTrack
}

// TrackKind reports whether the kind links to tracks rather than artists.
func (k Kind) TrackKind() bool {
	return k != KindTopArtist
}

func (k Kind) String() string { return string(k) }

// ParseKind converts the CLI spelling (e.g. "top-tracks") to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "top-artists", "top_artist", "top-artist":
		return KindTopArtist, nil
	case "top-tracks", "top_track", "top-track":
		return KindTopTrack, nil
	case "saved-tracks", "saved_track", "saved-track":
		return KindSavedTrack, nil
	case "playlist-tracks", "playlist_track", "playlist-track":
		return KindPlaylistTrack, nil
	default:
		return "", fmt.Errorf("unknown kind: %q", s)
	}
}

// TimeRange is the remote service's windowing for top rankings.
type TimeRange string

const (
	ShortTerm  TimeRange = "short_term"
	MediumTerm TimeRange = "medium_term"
	LongTerm   TimeRange = "long_term"
)

func (t TimeRange) String() string { return string(t) }

// ParseTimeRange converts the CLI spelling ("short", "medium", "long") to a TimeRange.
func ParseTimeRange(s string) (TimeRange, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short", "short_term":
		return ShortTerm, nil
	case "medium", "medium_term":
		return MediumTerm, nil
	case "long", "long_term", "":
		return LongTerm, nil
	default:
		return "", fmt.Errorf("unknown time range: %q", s)
	}
}

// Artist is a canonical remote artist, shared across all users.
type Artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Popularity int      `json:"popularity"`
	Genres     []string `json:"genres,omitempty"`
}

// Validate checks that the artist carries the fields the store requires.
func (a Artist) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("artist id cannot be blank")
	}
	if a.Name == "" {
		return fmt.Errorf("artist name cannot be blank")
	}
	return nil
}

// Track is a canonical remote track, shared across all users.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Popularity int      `json:"popularity"`
	DurationMS int      `json:"duration_ms"`
	ISRC       string   `json:"isrc,omitempty"`
	Artists    []Artist `json:"artists,omitempty"`
}

// Validate checks that the track carries the fields the store requires.
func (t Track) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("track id cannot be blank")
	}
	if t.Name == "" {
		return fmt.Errorf("track name cannot be blank")
	}
	return nil
}

// Association links a user to a canonical item with source metadata.
// At most one row exists per (user, item, kind, time range); re-sync
// overwrites rather than duplicates.
type Association struct {
	UserID    string
	ItemID    string
	Kind      Kind
	TimeRange TimeRange // empty for unranked kinds
	Position  int       // 1-based remote rank; 0 for unranked kinds
	SyncedAt  time.Time
}

// Candidate is an association joined with its track, the unit the
// recommendation engine scores.
type Candidate struct {
	Track     Track
	Kind      Kind
	Position  int
	TimeRange TimeRange
	SyncedAt  time.Time
}
