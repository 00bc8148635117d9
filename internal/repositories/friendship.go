package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// FriendshipRepository handles directed friend edges.
//
// Edges are stored as written; mutuality is a read-side derivation requiring
// both directed edges to exist.
type FriendshipRepository struct {
	db *sql.DB
}

// NewFriendshipRepository creates a new FriendshipRepository with the given database connection
func NewFriendshipRepository(db *sql.DB) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

// Add inserts the directed edge userID → friendID. Rejected if the edge
// already exists or the endpoints are equal.
func (r *FriendshipRepository) Add(ctx context.Context, userID, friendID int64) error {
	if userID == friendID {
		return fmt.Errorf("%w: cannot befriend yourself", shared.ErrInvalidInput)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO friendships (user_id, friend_id, created_on) VALUES (?, ?, ?)
	`, userID, friendID, time.Now().UTC())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("%w: friend request already sent", shared.ErrInvalidInput)
		}
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return fmt.Errorf("%w: user %d", shared.ErrUserNotFound, friendID)
		}
		return fmt.Errorf("%w: failed to add friendship: %v", shared.ErrStorage, err)
	}

	return nil
}

// Remove deletes both directed edges between the two users atomically.
func (r *FriendshipRepository) Remove(ctx context.Context, userID, friendID int64) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM friendships
			WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)
		`, userID, friendID, friendID, userID)
		if err != nil {
			return fmt.Errorf("%w: failed to remove friendship: %v", shared.ErrStorage, err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: no friendship between %d and %d", shared.ErrNotFound, userID, friendID)
		}

		return nil
	})
}

// Exists reports whether the directed edge userID → friendID exists.
func (r *FriendshipRepository) Exists(ctx context.Context, userID, friendID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM friendships WHERE user_id = ? AND friend_id = ?)
	`, userID, friendID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: failed to check friendship: %v", shared.ErrStorage, err)
	}
	return exists, nil
}

// ListMutual returns users sharing a mutual friendship with userID: both
// directed edges must exist. Soft-deleted users are filtered out.
func (r *FriendshipRepository) ListMutual(ctx context.Context, userID int64) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.email, u.first_name, u.last_name, u.role,
			u.created_on, u.updated_on, u.deleted_on
		FROM friendships f
		JOIN friendships back ON back.user_id = f.friend_id AND back.friend_id = f.user_id
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = ? AND u.deleted_on IS NULL
		ORDER BY u.username ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query friends: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var friends []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		friends = append(friends, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return friends, nil
}
