package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// CredentialRepository handles provider credential rows.
//
// At most one credential exists per (user, provider); re-linking replaces the
// row in place.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert stores the credential, replacing any existing row for the same
// (user, provider) pair.
func (r *CredentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	if cred.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", shared.ErrInvalidInput)
	}

	now := time.Now().UTC()
	refresh := sql.NullString{String: cred.RefreshToken, Valid: cred.RefreshToken != ""}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO provider_credentials (user_id, provider, access_token, refresh_token, expiry, scope, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider) DO UPDATE
		SET access_token = excluded.access_token, refresh_token = excluded.refresh_token,
			expiry = excluded.expiry, scope = excluded.scope, updated_on = excluded.updated_on
	`, cred.UserID, cred.Provider, cred.AccessToken, refresh, cred.Expiry, cred.Scope, now, now)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert credential: %v", shared.ErrStorage, err)
	}

	return nil
}

// Get retrieves the credential for (user, provider). Returns
// [shared.ErrNotLinked] when the user has not linked the provider.
func (r *CredentialRepository) Get(ctx context.Context, userID int64, provider models.Origin) (*models.Credential, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, provider, access_token, refresh_token, expiry, scope
		FROM provider_credentials
		WHERE user_id = ? AND provider = ?
	`, userID, provider)

	var (
		cred    models.Credential
		refresh sql.NullString
	)
	err := row.Scan(&cred.UserID, &cred.Provider, &cred.AccessToken, &refresh, &cred.Expiry, &cred.Scope)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s for user %d", shared.ErrNotLinked, provider, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan credential: %v", shared.ErrStorage, err)
	}

	if refresh.Valid {
		cred.RefreshToken = refresh.String
	}

	return &cred, nil
}

// Delete removes the credential row for (user, provider).
func (r *CredentialRepository) Delete(ctx context.Context, userID int64, provider models.Origin) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM provider_credentials WHERE user_id = ? AND provider = ?
	`, userID, provider)
	if err != nil {
		return fmt.Errorf("%w: failed to delete credential: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s for user %d", shared.ErrNotLinked, provider, userID)
	}

	return nil
}
