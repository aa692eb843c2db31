// package services defines the typed client surface for the remote streaming service
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

// Library is the per-user view of the remote service that the pipeline and
// publisher consume. [Session] is the production implementation; tests
// substitute fakes.
type Library interface {
	// Me retrieves the authenticated user's remote profile.
	Me(ctx context.Context) (*SpotifyUser, error)

	// TopArtists retrieves one page of the user's top artists for a time range.
	TopArtists(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*ArtistPage, error)

	// TopTracks retrieves one page of the user's top tracks for a time range.
	TopTracks(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*TrackPage, error)

	// SavedTracks retrieves one page of the user's saved tracks.
	SavedTracks(ctx context.Context, limit, offset int) (*SavedTrackPage, error)

	// Playlists retrieves one page of the user's playlists.
	Playlists(ctx context.Context, limit, offset int) (*PlaylistPage, error)

	// PlaylistItems retrieves one page of a playlist's tracks.
	PlaylistItems(ctx context.Context, playlistID string, limit, offset int) (*PlaylistItemPage, error)

	// CreatePlaylist creates a new playlist owned by the authenticated user.
	CreatePlaylist(ctx context.Context, name, description string, public bool) (*SpotifyPlaylist, error)

	// AddPlaylistItems appends track URIs to a playlist, in order.
	// Callers chunk to [MaxItemsPerAdd] per request.
	AddPlaylistItems(ctx context.Context, playlistID string, uris []string) error
}

// MaxItemsPerAdd is the remote API's cap on tracks per add-items request.
const MaxItemsPerAdd = 100

// RateLimitError reports a 429 that survived the adapter's bounded retries,
// carrying the service's suggested delay when one was present.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitError) Unwrap() error { return shared.ErrRateLimited }

// SpotifyUser represents the remote user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// SpotifyArtist represents a remote artist.
type SpotifyArtist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Popularity int      `json:"popularity"`
	Genres     []string `json:"genres"`
}

// ToModel converts the artist to its canonical form.
func (a SpotifyArtist) ToModel() models.Artist {
	return models.Artist{ID: a.ID, Name: a.Name, Popularity: a.Popularity, Genres: a.Genres}
}

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyTrack represents a remote track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Popularity  int             `json:"popularity"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	Artists     []SpotifyArtist `json:"artists"`
	URI         string          `json:"uri"`
}

// ToModel converts the track and its artists to canonical form.
func (t SpotifyTrack) ToModel() models.Track {
	track := models.Track{
		ID:         t.ID,
		Name:       t.Name,
		Popularity: t.Popularity,
		DurationMS: t.DurationMS,
		ISRC:       t.ExternalIDs.ISRC,
	}
	for _, artist := range t.Artists {
		track.Artists = append(track.Artists, artist.ToModel())
	}
	return track
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPlaylistItem represents a track within a playlist context.
type SpotifyPlaylistItem struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

type playlistTracks struct {
	Total int `json:"total"`
}

// SpotifyPlaylist represents a remote playlist.
type SpotifyPlaylist struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Public      bool           `json:"public"`
	Tracks      playlistTracks `json:"tracks"`
	URI         string         `json:"uri"`
}

// ArtistPage is one page of a paginated artist listing.
type ArtistPage struct {
	Items  []SpotifyArtist `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
	Next   *string         `json:"next"`
}

// TrackPage is one page of a paginated track listing.
type TrackPage struct {
	Items  []SpotifyTrack `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
	Next   *string        `json:"next"`
}

// SavedTrackPage is one page of the user's saved tracks.
type SavedTrackPage struct {
	Items  []SpotifySavedTrack `json:"items"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
	Next   *string             `json:"next"`
}

// PlaylistPage is one page of the user's playlists.
type PlaylistPage struct {
	Items  []SpotifyPlaylist `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	Next   *string           `json:"next"`
}

// PlaylistItemPage is one page of a playlist's tracks.
type PlaylistItemPage struct {
	Items  []SpotifyPlaylistItem `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
	Next   *string               `json:"next"`
}
