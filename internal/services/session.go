package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"golang.org/x/oauth2"
)

// expiryBuffer treats a token expiring within this window as already expired
// so long-running syncs do not start page fetches with a token about to lapse.
const expiryBuffer = 5 * time.Minute

// CredentialStore is the persistence surface the session needs. The
// repositories package provides the real implementation.
type CredentialStore interface {
	GetByUserID(userID string) (*models.Credential, error)
	Rotate(userID, prevRefreshToken string, credential *models.Credential) (bool, error)
}

// Session binds a SpotifyClient to one user's stored credentials and
// implements [Library]. Token refresh is serialized per session and written
// back with a compare-and-swap on the stored refresh token, so two processes
// sharing the database never clobber each other's rotated tokens.
type Session struct {
	client *SpotifyClient
	store  CredentialStore
	userID string

	mu         sync.Mutex
	credential *models.Credential
}

// NewSession creates a session for the given user. Credentials are loaded
// lazily on the first call.
func NewSession(client *SpotifyClient, store CredentialStore, userID string) *Session {
	return &Session{client: client, store: store, userID: userID}
}

// UserID returns the user this session acts for.
func (s *Session) UserID() string { return s.userID }

// token returns a usable access token, refreshing it first when expired.
func (s *Session) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.credential == nil {
		credential, err := s.store.GetByUserID(s.userID)
		if err != nil {
			return "", err
		}
		s.credential = credential
	}

	if !s.credential.IsExpired(expiryBuffer) {
		return s.credential.AccessToken(), nil
	}

	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.credential.AccessToken(), nil
}

// forceRefresh discards the cached token and refreshes unconditionally. Used
// when the service rejects a token the local clock still considers valid.
func (s *Session) forceRefresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.credential == nil {
		credential, err := s.store.GetByUserID(s.userID)
		if err != nil {
			return err
		}
		s.credential = credential
	}

	return s.refreshLocked(ctx)
}

// refreshLocked refreshes the token and persists it. The caller holds s.mu.
//
// The write is a compare-and-swap against the refresh token we refreshed
// from. Losing the swap means another process refreshed first; its stored
// credential is adopted instead of overwritten.
func (s *Session) refreshLocked(ctx context.Context) error {
	prev := s.credential.RefreshToken()
	if prev == "" {
		return fmt.Errorf("%w: reconnect required", shared.ErrNoRefreshToken)
	}

	token, err := s.client.Refresh(ctx, prev)
	if err != nil {
		// The other process may have rotated the refresh token out from
		// under us, invalidating ours. Re-read before giving up.
		if fresh, readErr := s.store.GetByUserID(s.userID); readErr == nil && fresh.RefreshToken() != prev {
			s.credential = fresh
			return nil
		}
		return err
	}

	s.credential.Rotate(token.AccessToken, token.RefreshToken, token.Expiry)

	swapped, err := s.store.Rotate(s.userID, prev, s.credential)
	if err != nil {
		return fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	if !swapped {
		fresh, err := s.store.GetByUserID(s.userID)
		if err != nil {
			return err
		}
		s.credential = fresh
	}

	return nil
}

// call runs fn with a valid access token, forcing one refresh and retry when
// the service reports the token expired despite the local expiry check.
func (s *Session) call(ctx context.Context, fn func(token string) error) error {
	token, err := s.token(ctx)
	if err != nil {
		return err
	}

	err = fn(token)
	if !errors.Is(err, shared.ErrTokenExpired) {
		return err
	}

	if err := s.forceRefresh(ctx); err != nil {
		return err
	}

	token, err = s.token(ctx)
	if err != nil {
		return err
	}
	return fn(token)
}

// Exchange completes the authorization code flow and returns the resulting
// token pair without touching the session's cached credential.
func (s *Session) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.client.Exchange(ctx, code)
}

func (s *Session) Me(ctx context.Context) (*SpotifyUser, error) {
	var user *SpotifyUser
	err := s.call(ctx, func(token string) error {
		var callErr error
		user, callErr = s.client.Me(ctx, token)
		return callErr
	})
	return user, err
}

func (s *Session) TopArtists(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*ArtistPage, error) {
	var page *ArtistPage
	err := s.call(ctx, func(token string) error {
		var callErr error
		page, callErr = s.client.TopArtists(ctx, token, limit, offset, timeRange)
		return callErr
	})
	return page, err
}

func (s *Session) TopTracks(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*TrackPage, error) {
	var page *TrackPage
	err := s.call(ctx, func(token string) error {
		var callErr error
		page, callErr = s.client.TopTracks(ctx, token, limit, offset, timeRange)
		return callErr
	})
	return page, err
}

func (s *Session) SavedTracks(ctx context.Context, limit, offset int) (*SavedTrackPage, error) {
	var page *SavedTrackPage
	err := s.call(ctx, func(token string) error {
		var callErr error
		page, callErr = s.client.SavedTracks(ctx, token, limit, offset)
		return callErr
	})
	return page, err
}

func (s *Session) Playlists(ctx context.Context, limit, offset int) (*PlaylistPage, error) {
	var page *PlaylistPage
	err := s.call(ctx, func(token string) error {
		var callErr error
		page, callErr = s.client.Playlists(ctx, token, limit, offset)
		return callErr
	})
	return page, err
}

func (s *Session) PlaylistItems(ctx context.Context, playlistID string, limit, offset int) (*PlaylistItemPage, error) {
	var page *PlaylistItemPage
	err := s.call(ctx, func(token string) error {
		var callErr error
		page, callErr = s.client.PlaylistItems(ctx, token, playlistID, limit, offset)
		return callErr
	})
	return page, err
}

func (s *Session) CreatePlaylist(ctx context.Context, name, description string, public bool) (*SpotifyPlaylist, error) {
	var playlist *SpotifyPlaylist
	err := s.call(ctx, func(token string) error {
		me, callErr := s.client.Me(ctx, token)
		if callErr != nil {
			return callErr
		}
		playlist, callErr = s.client.CreatePlaylist(ctx, token, me.ID, name, description, public)
		return callErr
	})
	return playlist, err
}

func (s *Session) AddPlaylistItems(ctx context.Context, playlistID string, uris []string) error {
	return s.call(ctx, func(token string) error {
		return s.client.AddPlaylistItems(ctx, token, playlistID, uris)
	})
}
