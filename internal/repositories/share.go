package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// ShareRepository handles playlist-share edges.
type ShareRepository struct {
	db *sql.DB
}

// NewShareRepository creates a new ShareRepository with the given database connection
func NewShareRepository(db *sql.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// Create inserts a share edge. No-op if the (playlist, recipient) edge
// already exists.
func (r *ShareRepository) Create(ctx context.Context, playlistID, recipientID, sharedBy int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playlist_shares (playlist_id, recipient_id, shared_by, created_on)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (playlist_id, recipient_id) DO NOTHING
	`, playlistID, recipientID, sharedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: failed to insert share: %v", shared.ErrStorage, err)
	}
	return nil
}

// Delete removes exactly the (playlist, recipient) share edge.
func (r *ShareRepository) Delete(ctx context.Context, playlistID, recipientID int64) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM playlist_shares WHERE playlist_id = ? AND recipient_id = ?
	`, playlistID, recipientID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete share: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: playlist %d is not shared with user %d", shared.ErrNotFound, playlistID, recipientID)
	}

	return nil
}

// IsSharedWith reports whether the playlist is shared with the given user.
func (r *ShareRepository) IsSharedWith(ctx context.Context, playlistID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM playlist_shares WHERE playlist_id = ? AND recipient_id = ?)
	`, playlistID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check share: %v", shared.ErrStorage, err)
	}
	return exists, nil
}

// SharedTo lists playlists shared to the given user, each with the sharer's
// public profile.
func (r *ShareRepository) SharedTo(ctx context.Context, userID int64) ([]models.ShareView, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.created_on,
			p.id, p.owner_id, p.name, p.description, p.origin, p.origin_id,
			p.image_url, p.created_on, p.updated_on,
			u.id, u.username, u.email, u.first_name, u.last_name, u.role,
			u.created_on, u.updated_on, u.deleted_on
		FROM playlist_shares s
		JOIN playlists p ON p.id = s.playlist_id
		JOIN users u ON u.id = s.shared_by
		WHERE s.recipient_id = ?
		ORDER BY s.created_on DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query shares: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var shares []models.ShareView
	for rows.Next() {
		var (
			view      models.ShareView
			deletedOn sql.NullTime
		)
		err := rows.Scan(&view.ShareID, &view.SharedOn,
			&view.Playlist.ID, &view.Playlist.OwnerID, &view.Playlist.Name,
			&view.Playlist.Description, &view.Playlist.Origin, &view.Playlist.OriginID,
			&view.Playlist.ImageURL, &view.Playlist.CreatedOn, &view.Playlist.UpdatedOn,
			&view.Sharer.ID, &view.Sharer.Username, &view.Sharer.Email,
			&view.Sharer.FirstName, &view.Sharer.LastName, &view.Sharer.Role,
			&view.Sharer.CreatedOn, &view.Sharer.UpdatedOn, &deletedOn)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan share: %v", shared.ErrStorage, err)
		}
		if deletedOn.Valid {
			view.Sharer.DeletedOn = &deletedOn.Time
		}
		shares = append(shares, view)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return shares, nil
}
