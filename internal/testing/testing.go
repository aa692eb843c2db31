// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"testing"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
)

// MockLibrary is a configurable test double for [services.Library]. Page
// functions default to empty pages; tests override only what they exercise.
type MockLibrary struct {
	MeFunc               func(ctx context.Context) (*services.SpotifyUser, error)
	TopArtistsFunc       func(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*services.ArtistPage, error)
	TopTracksFunc        func(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*services.TrackPage, error)
	SavedTracksFunc      func(ctx context.Context, limit, offset int) (*services.SavedTrackPage, error)
	PlaylistsFunc        func(ctx context.Context, limit, offset int) (*services.PlaylistPage, error)
	PlaylistItemsFunc    func(ctx context.Context, playlistID string, limit, offset int) (*services.PlaylistItemPage, error)
	CreatePlaylistFunc   func(ctx context.Context, name, description string, public bool) (*services.SpotifyPlaylist, error)
	AddPlaylistItemsFunc func(ctx context.Context, playlistID string, uris []string) error
}

func (m *MockLibrary) Me(ctx context.Context) (*services.SpotifyUser, error) {
	if m.MeFunc != nil {
		return m.MeFunc(ctx)
	}
	return &services.SpotifyUser{ID: "mock-user"}, nil
}

func (m *MockLibrary) TopArtists(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*services.ArtistPage, error) {
	if m.TopArtistsFunc != nil {
		return m.TopArtistsFunc(ctx, limit, offset, timeRange)
	}
	return &services.ArtistPage{Limit: limit, Offset: offset}, nil
}

func (m *MockLibrary) TopTracks(ctx context.Context, limit, offset int, timeRange models.TimeRange) (*services.TrackPage, error) {
	if m.TopTracksFunc != nil {
		return m.TopTracksFunc(ctx, limit, offset, timeRange)
	}
	return &services.TrackPage{Limit: limit, Offset: offset}, nil
}

func (m *MockLibrary) SavedTracks(ctx context.Context, limit, offset int) (*services.SavedTrackPage, error) {
	if m.SavedTracksFunc != nil {
		return m.SavedTracksFunc(ctx, limit, offset)
	}
	return &services.SavedTrackPage{Limit: limit, Offset: offset}, nil
}

func (m *MockLibrary) Playlists(ctx context.Context, limit, offset int) (*services.PlaylistPage, error) {
	if m.PlaylistsFunc != nil {
		return m.PlaylistsFunc(ctx, limit, offset)
	}
	return &services.PlaylistPage{Limit: limit, Offset: offset}, nil
}

func (m *MockLibrary) PlaylistItems(ctx context.Context, playlistID string, limit, offset int) (*services.PlaylistItemPage, error) {
	if m.PlaylistItemsFunc != nil {
		return m.PlaylistItemsFunc(ctx, playlistID, limit, offset)
	}
	return &services.PlaylistItemPage{Limit: limit, Offset: offset}, nil
}

func (m *MockLibrary) CreatePlaylist(ctx context.Context, name, description string, public bool) (*services.SpotifyPlaylist, error) {
	if m.CreatePlaylistFunc != nil {
		return m.CreatePlaylistFunc(ctx, name, description, public)
	}
	return &services.SpotifyPlaylist{ID: "mock-playlist", Name: name, Description: description, Public: public}, nil
}

func (m *MockLibrary) AddPlaylistItems(ctx context.Context, playlistID string, uris []string) error {
	if m.AddPlaylistItemsFunc != nil {
		return m.AddPlaylistItemsFunc(ctx, playlistID, uris)
	}
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
