package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

// CredentialRepository persists per-user token pairs.
//
// Both the CLI and the callback listener read and write this table, so all
// mutations are single-statement upserts or compare-and-swap updates.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert inserts or replaces the credential for its user.
func (r *CredentialRepository) Upsert(cred *models.Credential) error {
	if err := cred.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	cred.SetUpdatedAt(now)

	query := `
		INSERT INTO credentials (user_id, token_type, access_token, refresh_token, expires_at, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			token_type = excluded.token_type,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scopes = excluded.scopes,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		cred.UserID(),
		cred.TokenType(),
		cred.AccessToken(),
		cred.RefreshToken(),
		cred.ExpiresAt(),
		cred.ScopeString(),
		cred.CreatedAt(),
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}

// GetByUserID retrieves the credential for a user.
// Returns [shared.ErrNotConnected] when the user has never completed a connect flow.
func (r *CredentialRepository) GetByUserID(userID string) (*models.Credential, error) {
	query := `
		SELECT user_id, token_type, access_token, refresh_token, expires_at, scopes, created_at, updated_at
		FROM credentials
		WHERE user_id = ?
	`

	var (
		uid          string
		tokenType    string
		accessToken  string
		refreshToken string
		expiresAt    time.Time
		scopes       string
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := r.db.QueryRow(query, userID).Scan(&uid, &tokenType, &accessToken, &refreshToken, &expiresAt, &scopes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", shared.ErrNotConnected, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query credential: %w", err)
	}

	cred := models.NewCredential(uid, tokenType, accessToken, refreshToken, expiresAt, models.ParseScopes(scopes))
	cred.SetCreatedAt(createdAt)
	cred.SetUpdatedAt(updatedAt)

	return cred, nil
}

// Rotate swaps in a refreshed token pair only if the stored refresh token
// still matches prevRefreshToken. Returns false when another process
// refreshed first; the caller should re-read instead of overwriting.
func (r *CredentialRepository) Rotate(userID, prevRefreshToken string, cred *models.Credential) (bool, error) {
	query := `
		UPDATE credentials
		SET access_token = ?, refresh_token = ?, expires_at = ?, updated_at = ?
		WHERE user_id = ? AND refresh_token = ?
	`

	result, err := r.db.Exec(query,
		cred.AccessToken(),
		cred.RefreshToken(),
		cred.ExpiresAt(),
		time.Now().UTC(),
		userID,
		prevRefreshToken,
	)
	if err != nil {
		return false, fmt.Errorf("failed to rotate credential: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// Delete removes the credential for a user. Used when a connect flow is restarted from scratch.
func (r *CredentialRepository) Delete(userID string) error {
	if _, err := r.db.Exec("DELETE FROM credentials WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
