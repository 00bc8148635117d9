package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// TrackRepository handles canonical track rows.
//
// Tracks are keyed by (title, artist, album) and deduplicated on insert;
// there is no surrogate id and no explicit delete path.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Upsert returns the canonical track for the given fields, creating the row if
// absent. Idempotent: repeated calls with the same key return the same row and
// never duplicate it.
func (r *TrackRepository) Upsert(ctx context.Context, track models.Track) (*models.Track, error) {
	if err := track.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	if err := upsertTrack(ctx, r.db, track); err != nil {
		return nil, err
	}

	return r.Get(ctx, track.Key())
}

// Get retrieves a canonical track by its natural key.
func (r *TrackRepository) Get(ctx context.Context, key models.TrackKey) (*models.Track, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT title, artist, album, release_date, genre
		FROM tracks
		WHERE title = ? AND artist = ? AND album = ?
	`, key.Title, key.Artist, key.Album)

	var track models.Track
	err := row.Scan(&track.Title, &track.Artist, &track.Album, &track.ReleaseDate, &track.Genre)
	if err == sql.ErrNoRows {
		return nil, shared.ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan track: %v", shared.ErrStorage, err)
	}

	return &track, nil
}

// Count returns the number of canonical track rows.
func (r *TrackRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracks").Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: failed to count tracks: %v", shared.ErrStorage, err)
	}
	return count, nil
}

// execer covers both *sql.DB and *sql.Tx so track upserts can participate in
// reconciliation transactions.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// upsertTrack inserts the track if its key is absent. Metadata on an existing
// row is kept; the first import wins.
func upsertTrack(ctx context.Context, db execer, track models.Track) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO tracks (title, artist, album, release_date, genre, created_on)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (title, artist, album) DO NOTHING
	`, track.Title, track.Artist, track.Album, track.ReleaseDate, track.Genre, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: failed to upsert track: %v", shared.ErrStorage, err)
	}
	return nil
}
