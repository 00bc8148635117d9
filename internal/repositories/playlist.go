package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// PlaylistRepository handles canonical playlists and their track memberships.
//
// Membership is a set: no duplicate tracks per playlist and no ordering.
// Cascade deletes remove memberships and shares explicitly rather than
// trusting schema-level ON DELETE clauses.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

const playlistColumns = "id, owner_id, name, description, origin, origin_id, image_url, created_on, updated_on"

// UpsertByOrigin returns the canonical playlist for (owner, origin, origin_id),
// creating it if absent or updating the mutable fields otherwise. The
// playlist's ID is populated either way.
func (r *PlaylistRepository) UpsertByOrigin(ctx context.Context, playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playlists (owner_id, name, description, origin, origin_id, image_url, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, origin, origin_id) DO UPDATE
		SET name = excluded.name, description = excluded.description,
			image_url = excluded.image_url, updated_on = excluded.updated_on
	`, playlist.OwnerID, playlist.Name, playlist.Description, playlist.Origin,
		playlist.OriginID, playlist.ImageURL, now, now)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert playlist: %v", shared.ErrStorage, err)
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+playlistColumns+` FROM playlists
		WHERE owner_id = ? AND origin = ? AND origin_id = ?
	`, playlist.OwnerID, playlist.Origin, playlist.OriginID)

	stored, err := scanPlaylist(row)
	if err != nil {
		return err
	}
	*playlist = *stored

	return nil
}

// Get retrieves a playlist by ID.
func (r *PlaylistRepository) Get(ctx context.Context, id int64) (*models.Playlist, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+playlistColumns+" FROM playlists WHERE id = ?", id)
	return scanPlaylist(row)
}

// ListByOwner retrieves an owner's playlists, optionally filtered by origin.
func (r *PlaylistRepository) ListByOwner(ctx context.Context, ownerID int64, origin models.Origin) ([]models.Playlist, error) {
	query := "SELECT " + playlistColumns + " FROM playlists WHERE owner_id = ?"
	args := []any{ownerID}

	if origin != "" {
		query += " AND origin = ?"
		args = append(args, origin)
	}

	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query playlists: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var playlists []models.Playlist
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, *playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return playlists, nil
}

// PlaylistWithTracks pairs a playlist with its membership set.
type PlaylistWithTracks struct {
	Playlist models.Playlist
	Tracks   []models.Track
}

// ListByOwnerWithTracks retrieves an owner's playlists with their membership
// sets eager-loaded in one membership query.
func (r *PlaylistRepository) ListByOwnerWithTracks(ctx context.Context, ownerID int64, origin models.Origin) ([]PlaylistWithTracks, error) {
	playlists, err := r.ListByOwner(ctx, ownerID, origin)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*PlaylistWithTracks, len(playlists))
	result := make([]PlaylistWithTracks, len(playlists))
	for i, p := range playlists {
		result[i] = PlaylistWithTracks{Playlist: p}
		byID[p.ID] = &result[i]
	}

	query := `
		SELECT pt.playlist_id, t.title, t.artist, t.album, t.release_date, t.genre
		FROM playlist_tracks pt
		JOIN tracks t ON t.title = pt.title AND t.artist = pt.artist AND t.album = pt.album
		JOIN playlists p ON p.id = pt.playlist_id
		WHERE p.owner_id = ?`
	args := []any{ownerID}
	if origin != "" {
		query += " AND p.origin = ?"
		args = append(args, origin)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query memberships: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			playlistID int64
			track      models.Track
		)
		if err := rows.Scan(&playlistID, &track.Title, &track.Artist, &track.Album,
			&track.ReleaseDate, &track.Genre); err != nil {
			return nil, fmt.Errorf("%w: failed to scan membership: %v", shared.ErrStorage, err)
		}
		if entry, ok := byID[playlistID]; ok {
			entry.Tracks = append(entry.Tracks, track)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return result, nil
}

// Tracks reads the current membership set of a playlist.
func (r *PlaylistRepository) Tracks(ctx context.Context, playlistID int64) ([]models.Track, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.title, t.artist, t.album, t.release_date, t.genre
		FROM playlist_tracks pt
		JOIN tracks t ON t.title = pt.title AND t.artist = pt.artist AND t.album = pt.album
		WHERE pt.playlist_id = ?
	`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query playlist tracks: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		var track models.Track
		if err := rows.Scan(&track.Title, &track.Artist, &track.Album,
			&track.ReleaseDate, &track.Genre); err != nil {
			return nil, fmt.Errorf("%w: failed to scan track: %v", shared.ErrStorage, err)
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return tracks, nil
}

// AddTrack inserts a membership. No-op if the track is already a member.
func (r *PlaylistRepository) AddTrack(ctx context.Context, playlistID int64, key models.TrackKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playlist_tracks (playlist_id, title, artist, album)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (playlist_id, title, artist, album) DO NOTHING
	`, playlistID, key.Title, key.Artist, key.Album)
	if err != nil {
		return fmt.Errorf("%w: failed to add membership: %v", shared.ErrStorage, err)
	}
	return nil
}

// RemoveTrack deletes a membership. Fails with [shared.ErrNotInPlaylist] if
// the track is not a member.
func (r *PlaylistRepository) RemoveTrack(ctx context.Context, playlistID int64, key models.TrackKey) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM playlist_tracks
		WHERE playlist_id = ? AND title = ? AND artist = ? AND album = ?
	`, playlistID, key.Title, key.Artist, key.Album)
	if err != nil {
		return fmt.Errorf("%w: failed to remove membership: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}
	if rows == 0 {
		return shared.ErrNotInPlaylist
	}

	return nil
}

// Reconcile makes the playlist's membership set equal to remote, in one
// transaction. Canonical track rows for remote tracks are upserted as needed.
// Observers see either the pre-import or post-import set, never a partial one.
func (r *PlaylistRepository) Reconcile(ctx context.Context, playlistID int64, remote []models.Track) (added, removed int, err error) {
	err = inTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT title, artist, album FROM playlist_tracks WHERE playlist_id = ?", playlistID)
		if err != nil {
			return fmt.Errorf("%w: failed to read membership: %v", shared.ErrStorage, err)
		}

		local := make(map[models.TrackKey]bool)
		for rows.Next() {
			var key models.TrackKey
			if err := rows.Scan(&key.Title, &key.Artist, &key.Album); err != nil {
				rows.Close()
				return fmt.Errorf("%w: failed to scan membership: %v", shared.ErrStorage, err)
			}
			local[key] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
		}
		rows.Close()

		for _, track := range remote {
			key := track.Key()
			if local[key] {
				// Still present on the provider side.
				delete(local, key)
				continue
			}

			if err := upsertTrack(ctx, tx, track); err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO playlist_tracks (playlist_id, title, artist, album)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (playlist_id, title, artist, album) DO NOTHING
			`, playlistID, key.Title, key.Artist, key.Album); err != nil {
				return fmt.Errorf("%w: failed to add membership: %v", shared.ErrStorage, err)
			}
			added++
		}

		// Whatever is left locally no longer exists on the provider.
		for key := range local {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM playlist_tracks
				WHERE playlist_id = ? AND title = ? AND artist = ? AND album = ?
			`, playlistID, key.Title, key.Artist, key.Album); err != nil {
				return fmt.Errorf("%w: failed to remove membership: %v", shared.ErrStorage, err)
			}
			removed++
		}

		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return added, removed, nil
}

// Delete removes a playlist along with its memberships and shares, in one
// transaction.
func (r *PlaylistRepository) Delete(ctx context.Context, id int64) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_shares WHERE playlist_id = ?", id); err != nil {
			return fmt.Errorf("%w: failed to delete shares: %v", shared.ErrStorage, err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_tracks WHERE playlist_id = ?", id); err != nil {
			return fmt.Errorf("%w: failed to delete memberships: %v", shared.ErrStorage, err)
		}

		result, err := tx.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("%w: failed to delete playlist: %v", shared.ErrStorage, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: playlist %d", shared.ErrPlaylistNotFound, id)
		}

		return nil
	})
}

// DeleteByOwnerOrigin removes every playlist of the owner with the given
// origin, cascading to memberships and shares, in a single transaction.
// Used by provider disconnect.
func (r *PlaylistRepository) DeleteByOwnerOrigin(ctx context.Context, ownerID int64, origin models.Origin) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM playlist_shares WHERE playlist_id IN
				(SELECT id FROM playlists WHERE owner_id = ? AND origin = ?)
		`, ownerID, origin); err != nil {
			return fmt.Errorf("%w: failed to delete shares: %v", shared.ErrStorage, err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM playlist_tracks WHERE playlist_id IN
				(SELECT id FROM playlists WHERE owner_id = ? AND origin = ?)
		`, ownerID, origin); err != nil {
			return fmt.Errorf("%w: failed to delete memberships: %v", shared.ErrStorage, err)
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM playlists WHERE owner_id = ? AND origin = ?", ownerID, origin); err != nil {
			return fmt.Errorf("%w: failed to delete playlists: %v", shared.ErrStorage, err)
		}

		return nil
	})
}

// scanPlaylist scans one playlist row from either *sql.Row or *sql.Rows.
func scanPlaylist(row rowScanner) (*models.Playlist, error) {
	var playlist models.Playlist
	err := row.Scan(&playlist.ID, &playlist.OwnerID, &playlist.Name, &playlist.Description,
		&playlist.Origin, &playlist.OriginID, &playlist.ImageURL,
		&playlist.CreatedOn, &playlist.UpdatedOn)
	if err == sql.ErrNoRows {
		return nil, shared.ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan playlist: %v", shared.ErrStorage, err)
	}
	return &playlist, nil
}
