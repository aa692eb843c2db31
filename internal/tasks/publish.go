package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/services"
	"github.com/desertthunder/mixtape/internal/shared"
)

// PublishOptions controls where a recommendation list lands. PlaylistID
// reuses an existing playlist; otherwise a new one is created under Name,
// even if a playlist of that name already exists.
type PublishOptions struct {
	Name        string
	Description string
	Public      bool
	PlaylistID  string
}

// PublishResult describes the playlist a recommendation run produced.
type PublishResult struct {
	PlaylistID   string
	PlaylistName string
	Reused       bool // tracks were appended to a caller-supplied playlist
	Added        int  // track URIs sent
	Chunks       int  // add-items requests made
}

// Publisher pushes a recommended track list back to the remote service as a
// playlist.
type Publisher struct {
	library services.Library
	logger  *log.Logger
}

// NewPublisher creates a publisher over the given library.
func NewPublisher(library services.Library, logger *log.Logger) *Publisher {
	return &Publisher{library: library, logger: logger}
}

// Publish writes the tracks to a playlist. Additions go out in chunks of
// [services.MaxItemsPerAdd], in order. Creation is at-least-once: a retry
// after a partial failure creates a second playlist unless the caller passes
// the first one's id back in, and a chunk that fails after earlier chunks
// landed leaves those tracks in place, so retrying may duplicate them.
func (p *Publisher) Publish(ctx context.Context, progress chan<- ProgressUpdate, opts PublishOptions, tracks []models.Track) (*PublishResult, error) {
	if opts.Name == "" && opts.PlaylistID == "" {
		return nil, fmt.Errorf("%w: playlist name or id required", shared.ErrInvalidInput)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: nothing to publish", shared.ErrNoCandidates)
	}

	result := &PublishResult{
		PlaylistID:   opts.PlaylistID,
		PlaylistName: opts.Name,
		Reused:       opts.PlaylistID != "",
	}
	if opts.PlaylistID == "" {
		playlist, err := p.library.CreatePlaylist(ctx, opts.Name, opts.Description, opts.Public)
		if err != nil {
			return nil, fmt.Errorf("failed to create playlist: %w", err)
		}
		result.PlaylistID = playlist.ID
		result.PlaylistName = playlist.Name
	}

	uris := make([]string, 0, len(tracks))
	for _, track := range tracks {
		if track.ID == "" {
			continue
		}
		uris = append(uris, "spotify:track:"+track.ID)
	}

	totalChunks := (len(uris) + services.MaxItemsPerAdd - 1) / services.MaxItemsPerAdd
	for start := 0; start < len(uris); start += services.MaxItemsPerAdd {
		end := min(start+services.MaxItemsPerAdd, len(uris))
		chunk := uris[start:end]

		p.sendProgress(progress, publishUpdate(result.Chunks+1, totalChunks, result.PlaylistName))

		if err := p.library.AddPlaylistItems(ctx, result.PlaylistID, chunk); err != nil {
			return result, fmt.Errorf("failed to add tracks (chunk %d of %d): %w", result.Chunks+1, totalChunks, err)
		}

		result.Chunks++
		result.Added += len(chunk)
	}

	p.logger.Info("playlist published",
		"playlist_id", result.PlaylistID,
		"name", result.PlaylistName,
		"tracks", result.Added,
		"reused", result.Reused,
	)

	return result, nil
}

func (p *Publisher) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
