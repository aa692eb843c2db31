// Spotify implementation of the remote client adapter.
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

const (
	maxAttempts    = 4
	initialBackoff = 500 * time.Millisecond
)

// Scopes requested during the connect flow. Read scopes cover the sync kinds;
// modify scopes cover playlist publication.
var spotifyScopes = []string{
	"user-read-private",
	"user-read-email",
	"user-top-read",
	"user-library-read",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-private",
	"playlist-modify-public",
}

// SpotifyClient is the typed request/response wrapper around the remote
// service. It knows pagination and rate-limit conventions but holds no
// business logic and no per-user state; access tokens are passed per call.
type SpotifyClient struct {
	config     *oauth2.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewSpotifyClient creates a client with the given OAuth2 credentials.
func NewSpotifyClient(credentials map[string]string) (*SpotifyClient, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:8080/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       spotifyScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyClient{
		config:     config,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
		baseURL:    spotifyBaseURL,
	}, nil
}

// Scopes returns the scopes the client requests.
func (c *SpotifyClient) Scopes() []string { return c.config.Scopes }

// AuthURL returns the authorization URL embedding the given state token.
func (c *SpotifyClient) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange swaps an authorization code for a token pair.
func (c *SpotifyClient) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return token, nil
}

// Refresh obtains a fresh access token from a refresh token. The service does
// not always return a new refresh token; the old one is preserved when absent.
func (c *SpotifyClient) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	source := c.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}

	return token, nil
}

// Me retrieves the user profile for the given access token.
func (c *SpotifyClient) Me(ctx context.Context, token string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := c.doRequest(ctx, token, "GET", "/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// TopArtists retrieves one page of the user's top artists.
func (c *SpotifyClient) TopArtists(ctx context.Context, token string, limit, offset int, timeRange models.TimeRange) (*ArtistPage, error) {
	query := pageQuery(limit, offset)
	query.Set("time_range", string(timeRange))

	var page ArtistPage
	if err := c.doRequest(ctx, token, "GET", "/me/top/artists", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// TopTracks retrieves one page of the user's top tracks.
func (c *SpotifyClient) TopTracks(ctx context.Context, token string, limit, offset int, timeRange models.TimeRange) (*TrackPage, error) {
	query := pageQuery(limit, offset)
	query.Set("time_range", string(timeRange))

	var page TrackPage
	if err := c.doRequest(ctx, token, "GET", "/me/top/tracks", query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SavedTracks retrieves one page of the user's saved tracks.
func (c *SpotifyClient) SavedTracks(ctx context.Context, token string, limit, offset int) (*SavedTrackPage, error) {
	var page SavedTrackPage
	if err := c.doRequest(ctx, token, "GET", "/me/tracks", pageQuery(limit, offset), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Playlists retrieves one page of the user's playlists.
func (c *SpotifyClient) Playlists(ctx context.Context, token string, limit, offset int) (*PlaylistPage, error) {
	var page PlaylistPage
	if err := c.doRequest(ctx, token, "GET", "/me/playlists", pageQuery(limit, offset), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// PlaylistItems retrieves one page of a playlist's tracks.
func (c *SpotifyClient) PlaylistItems(ctx context.Context, token, playlistID string, limit, offset int) (*PlaylistItemPage, error) {
	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)

	var page PlaylistItemPage
	if err := c.doRequest(ctx, token, "GET", endpoint, pageQuery(limit, offset), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreatePlaylist creates a playlist owned by ownerID.
func (c *SpotifyClient) CreatePlaylist(ctx context.Context, token, ownerID, name, description string, public bool) (*SpotifyPlaylist, error) {
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(ownerID))
	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      public,
	}

	var playlist SpotifyPlaylist
	if err := c.doRequest(ctx, token, "POST", endpoint, nil, body, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// AddPlaylistItems appends up to [MaxItemsPerAdd] track URIs to a playlist.
func (c *SpotifyClient) AddPlaylistItems(ctx context.Context, token, playlistID string, uris []string) error {
	if len(uris) == 0 {
		return fmt.Errorf("%w: no track URIs provided", shared.ErrInvalidInput)
	}
	if len(uris) > MaxItemsPerAdd {
		return fmt.Errorf("%w: maximum %d track URIs allowed per request", shared.ErrInvalidInput, MaxItemsPerAdd)
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", playlistID)
	body := map[string]any{"uris": uris}

	return c.doRequest(ctx, token, "POST", endpoint, nil, body, nil)
}

// doRequest performs an authenticated request with bounded retries.
//
// Transient failures (network errors, 5xx) back off exponentially. A 429
// honors the service's Retry-After delay instead of the backoff schedule.
// Both are surfaced only after the attempt budget is exhausted. A 401 is
// returned immediately as [shared.ErrTokenExpired] so the session can force a
// refresh and retry once.
func (c *SpotifyClient) doRequest(ctx context.Context, token, method, endpoint string, query url.Values, body, result any) error {
	if token == "" {
		return fmt.Errorf("%w: empty access token", shared.ErrMissingCredentials)
	}

	apiURL := c.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		retryable, delay, err := c.attempt(ctx, token, method, apiURL, payload, result)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}

		wait := backoff
		if delay > 0 {
			wait = delay
		} else {
			backoff *= 2
		}

		if err := sleepContext(ctx, wait); err != nil {
			return err
		}
	}

	return lastErr
}

// attempt performs a single HTTP exchange. It reports whether the failure is
// retryable and, for rate limits, the delay the service suggested.
func (c *SpotifyClient) attempt(ctx context.Context, token, method, apiURL string, payload []byte, result any) (bool, time.Duration, error) {
	var reqBody *bytes.Reader
	var req *http.Request
	var err error

	if payload != nil {
		reqBody = bytes.NewReader(payload)
		req, err = http.NewRequestWithContext(ctx, method, apiURL, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, apiURL, nil)
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, 0, ctx.Err()
		}
		return true, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return false, 0, shared.ErrTokenExpired
	case resp.StatusCode == http.StatusTooManyRequests:
		delay := retryAfter(resp)
		return true, delay, &RateLimitError{RetryAfter: delay}
	case resp.StatusCode >= 500:
		return true, 0, fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, 0, fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return false, 0, fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return false, 0, nil
}

func retryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds+1) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func pageQuery(limit, offset int) url.Values {
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	return query
}
