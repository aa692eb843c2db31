package repositories

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
)

// MusicRepository persists canonical artists/tracks and the per-user
// association rows the synchronization pipeline writes.
//
// Canonical rows are insert-or-ignore: an Artist or Track id maps to exactly
// one row regardless of how many users reference it, and concurrent
// first-writers resolve through the primary-key constraint rather than a
// check-then-insert race.
type MusicRepository struct {
	db *sql.DB
}

// NewMusicRepository creates a new MusicRepository with the given database connection
func NewMusicRepository(db *sql.DB) *MusicRepository {
	return &MusicRepository{db: db}
}

// KindScope identifies one user's slice of one kind for replacement or purge.
type KindScope struct {
	UserID    string
	Kind      models.Kind
	TimeRange models.TimeRange
}

// Batch is one transactional unit of pipeline writes. Replace scopes are
// cleared before the inserts so a re-synced ranked kind fully supersedes its
// prior positions.
type Batch struct {
	Replace      []KindScope
	Artists      []models.Artist
	Tracks       []models.Track
	Associations []models.Association
}

// Size returns the number of association rows in the batch.
func (b *Batch) Size() int { return len(b.Associations) }

// BatchResult reports what a committed batch changed: association rows
// inserted vs. refreshed in place, and canonical rows seen for the first
// time.
type BatchResult struct {
	Created        int // association rows inserted
	Updated        int // association rows already present, refreshed
	ArtistsCreated int
	TracksCreated  int
}

// CommitBatch writes one batch in a single transaction.
func (r *MusicRepository) CommitBatch(batch Batch) (BatchResult, error) {
	var result BatchResult

	tx, err := r.db.Begin()
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	for _, scope := range batch.Replace {
		if _, err := tx.Exec(
			"DELETE FROM associations WHERE user_id = ? AND kind = ? AND time_range = ?",
			scope.UserID, string(scope.Kind), string(scope.TimeRange),
		); err != nil {
			return result, fmt.Errorf("failed to replace kind %s: %w", scope.Kind, err)
		}
	}

	for _, artist := range batch.Artists {
		inserted, err := insertArtist(tx, artist, now)
		if err != nil {
			return result, err
		}
		result.ArtistsCreated += inserted
	}

	for _, track := range batch.Tracks {
		inserted, err := insertTrack(tx, track, now)
		if err != nil {
			return result, err
		}
		result.TracksCreated += inserted
	}

	for _, assoc := range batch.Associations {
		var exists int
		if err := tx.QueryRow(
			"SELECT COUNT(*) FROM associations WHERE user_id = ? AND item_id = ? AND kind = ? AND time_range = ?",
			assoc.UserID, assoc.ItemID, string(assoc.Kind), string(assoc.TimeRange),
		).Scan(&exists); err != nil {
			return result, fmt.Errorf("failed to check association: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO associations (user_id, item_id, kind, time_range, position, synced_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, item_id, kind, time_range) DO UPDATE SET
				position = excluded.position,
				synced_at = excluded.synced_at
		`,
			assoc.UserID,
			assoc.ItemID,
			string(assoc.Kind),
			string(assoc.TimeRange),
			nullablePosition(assoc.Position),
			assoc.SyncedAt,
		); err != nil {
			return result, fmt.Errorf("failed to upsert association: %w", err)
		}

		if exists > 0 {
			result.Updated++
		} else {
			result.Created++
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("failed to commit batch: %w", err)
	}

	return result, nil
}

// Purge deletes a user's association rows, optionally scoped to kinds.
// Canonical artist/track rows are left intact; other users may reference them.
func (r *MusicRepository) Purge(userID string, kinds []models.Kind) (int64, error) {
	query := "DELETE FROM associations WHERE user_id = ?"
	args := []any{userID}

	if len(kinds) > 0 {
		placeholders := make([]string, len(kinds))
		for i, kind := range kinds {
			placeholders[i] = "?"
			args = append(args, string(kind))
		}
		query += fmt.Sprintf(" AND kind IN (%s)", strings.Join(placeholders, ", "))
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge associations: %w", err)
	}

	return result.RowsAffected()
}

// CountAssociations returns the number of association rows for a user.
func (r *MusicRepository) CountAssociations(userID string) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM associations WHERE user_id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count associations: %w", err)
	}
	return count, nil
}

// ListAssociations retrieves a user's association rows, optionally filtered by kind.
func (r *MusicRepository) ListAssociations(userID string, kind models.Kind) ([]models.Association, error) {
	query := `
		SELECT user_id, item_id, kind, time_range, position, synced_at
		FROM associations
		WHERE user_id = ?
	`
	args := []any{userID}

	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}

	query += " ORDER BY kind, time_range, position, item_id"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query associations: %w", err)
	}
	defer rows.Close()

	var assocs []models.Association
	for rows.Next() {
		var (
			assoc     models.Association
			kindValue string
			timeRange string
			position  sql.NullInt64
		)
		if err := rows.Scan(&assoc.UserID, &assoc.ItemID, &kindValue, &timeRange, &position, &assoc.SyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		assoc.Kind = models.Kind(kindValue)
		assoc.TimeRange = models.TimeRange(timeRange)
		if position.Valid {
			assoc.Position = int(position.Int64)
		}
		assocs = append(assocs, assoc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return assocs, nil
}

// Candidates returns a user's track-linked associations joined with their
// tracks, the raw material for the recommendation engine. Artist-only
// associations are excluded; the engine scores tracks.
func (r *MusicRepository) Candidates(userID string) ([]models.Candidate, error) {
	query := `
		SELECT t.id, t.name, t.popularity, t.duration_ms, t.isrc,
		       a.kind, a.time_range, a.position, a.synced_at
		FROM associations a
		JOIN tracks t ON t.id = a.item_id
		WHERE a.user_id = ? AND a.kind IN (?, ?, ?)
		ORDER BY t.id
	`

	rows, err := r.db.Query(query, userID,
		string(models.KindTopTrack),
		string(models.KindSavedTrack),
		string(models.KindPlaylistTrack),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []models.Candidate
	for rows.Next() {
		var (
			c         models.Candidate
			kindValue string
			timeRange string
			position  sql.NullInt64
		)
		if err := rows.Scan(
			&c.Track.ID, &c.Track.Name, &c.Track.Popularity, &c.Track.DurationMS, &c.Track.ISRC,
			&kindValue, &timeRange, &position, &c.SyncedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Kind = models.Kind(kindValue)
		c.TimeRange = models.TimeRange(timeRange)
		if position.Valid {
			c.Position = int(position.Int64)
		}
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return candidates, nil
}

// GetTrack retrieves a canonical track with its artists.
func (r *MusicRepository) GetTrack(id string) (*models.Track, error) {
	var track models.Track
	err := r.db.QueryRow(
		"SELECT id, name, popularity, duration_ms, isrc FROM tracks WHERE id = ?", id,
	).Scan(&track.ID, &track.Name, &track.Popularity, &track.DurationMS, &track.ISRC)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("track not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}

	rows, err := r.db.Query(`
		SELECT ar.id, ar.name, ar.popularity, ar.genres
		FROM track_artists ta
		JOIN artists ar ON ar.id = ta.artist_id
		WHERE ta.track_id = ?
		ORDER BY ar.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query track artists: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			artist models.Artist
			genres string
		)
		if err := rows.Scan(&artist.ID, &artist.Name, &artist.Popularity, &genres); err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		artist.Genres = splitGenres(genres)
		track.Artists = append(track.Artists, artist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return &track, nil
}

// GetArtist retrieves a canonical artist.
func (r *MusicRepository) GetArtist(id string) (*models.Artist, error) {
	var (
		artist models.Artist
		genres string
	)
	err := r.db.QueryRow(
		"SELECT id, name, popularity, genres FROM artists WHERE id = ?", id,
	).Scan(&artist.ID, &artist.Name, &artist.Popularity, &genres)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artist not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query artist: %w", err)
	}
	artist.Genres = splitGenres(genres)
	return &artist, nil
}

// insertArtist writes a canonical artist row, reporting 1 when the row is
// new. Existing rows are left untouched.
func insertArtist(tx *sql.Tx, artist models.Artist, now time.Time) (int, error) {
	if err := artist.Validate(); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}
	res, err := tx.Exec(
		"INSERT OR IGNORE INTO artists (id, name, popularity, genres, created_at) VALUES (?, ?, ?, ?, ?)",
		artist.ID, artist.Name, artist.Popularity, strings.Join(artist.Genres, ","), now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert artist: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read insert result: %w", err)
	}
	return int(inserted), nil
}

// insertTrack writes a canonical track row and its artist links, reporting 1
// when the track row is new.
func insertTrack(tx *sql.Tx, track models.Track, now time.Time) (int, error) {
	if err := track.Validate(); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}
	res, err := tx.Exec(
		"INSERT OR IGNORE INTO tracks (id, name, popularity, duration_ms, isrc, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		track.ID, track.Name, track.Popularity, track.DurationMS, track.ISRC, now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert track: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read insert result: %w", err)
	}

	for _, artist := range track.Artists {
		if _, err := insertArtist(tx, artist, now); err != nil {
			return 0, err
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO track_artists (track_id, artist_id) VALUES (?, ?)",
			track.ID, artist.ID,
		); err != nil {
			return 0, fmt.Errorf("failed to link track artist: %w", err)
		}
	}

	return int(inserted), nil
}

func nullablePosition(position int) any {
	if position <= 0 {
		return nil
	}
	return position
}

func splitGenres(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
