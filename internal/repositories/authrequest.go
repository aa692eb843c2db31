package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/mixtape/internal/models"
	"github.com/desertthunder/mixtape/internal/shared"
)

// AuthRequestRepository persists the pending-authorization rows the CLI and
// the callback listener coordinate through.
type AuthRequestRepository struct {
	db *sql.DB
}

// NewAuthRequestRepository creates a new AuthRequestRepository with the given database connection
func NewAuthRequestRepository(db *sql.DB) *AuthRequestRepository {
	return &AuthRequestRepository{db: db}
}

// Create inserts a new pending request keyed by its state token.
func (r *AuthRequestRepository) Create(req *models.AuthRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO auth_requests (state, user_id, status, code, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		req.State(),
		req.UserID(),
		string(req.Status()),
		nullable(req.Code()),
		nullable(req.ErrMessage()),
		req.CreatedAt(),
		req.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert auth request: %w", err)
	}

	return nil
}

// GetByState retrieves a request by its state token.
func (r *AuthRequestRepository) GetByState(state string) (*models.AuthRequest, error) {
	query := `
		SELECT state, user_id, status, code, error, created_at, updated_at
		FROM auth_requests
		WHERE state = ?
	`

	req, err := scanAuthRequest(r.db.QueryRow(query, state).Scan)
	if err == sql.ErrNoRows {
		return nil, shared.ErrUnknownState
	}
	return req, err
}

// LatestByUser retrieves the most recently created request for a user.
func (r *AuthRequestRepository) LatestByUser(userID string) (*models.AuthRequest, error) {
	query := `
		SELECT state, user_id, status, code, error, created_at, updated_at
		FROM auth_requests
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	req, err := scanAuthRequest(r.db.QueryRow(query, userID).Scan)
	if err == sql.ErrNoRows {
		return nil, shared.ErrUnknownState
	}
	return req, err
}

// Transition moves a still-pending request to a terminal status, recording the
// authorization code or error message when present. Returns false if the row
// was already terminal; terminal rows never change again.
func (r *AuthRequestRepository) Transition(state string, to models.AuthStatus, code, errMessage string) (bool, error) {
	query := `
		UPDATE auth_requests
		SET status = ?, code = ?, error = ?, updated_at = ?
		WHERE state = ? AND status = ?
	`

	result, err := r.db.Exec(query,
		string(to),
		nullable(code),
		nullable(errMessage),
		time.Now().UTC(),
		state,
		string(models.AuthPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition auth request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows > 0, nil
}

// DeleteExpiredBefore removes terminal rows older than cutoff. Housekeeping
// for the listener; pending rows are never removed here.
func (r *AuthRequestRepository) DeleteExpiredBefore(cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM auth_requests
		WHERE created_at < ? AND status != ?
	`

	result, err := r.db.Exec(query, cutoff, string(models.AuthPending))
	if err != nil {
		return 0, fmt.Errorf("failed to delete auth requests: %w", err)
	}

	return result.RowsAffected()
}

func scanAuthRequest(scan func(dest ...any) error) (*models.AuthRequest, error) {
	var (
		state      string
		userID     string
		status     string
		code       sql.NullString
		errMessage sql.NullString
		createdAt  time.Time
		updatedAt  time.Time
	)

	if err := scan(&state, &userID, &status, &code, &errMessage, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan auth request: %w", err)
	}

	req := models.NewAuthRequest(state, userID)
	req.SetStatus(models.AuthStatus(status))
	req.SetCode(code.String)
	req.SetErrMessage(errMessage.String)
	req.SetCreatedAt(createdAt)
	req.SetUpdatedAt(updatedAt)

	return req, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
