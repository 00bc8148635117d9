// package repositories provides the persistence layer for the canonical
// catalog: users, tracks, playlists, memberships, friendships, shares, and
// provider credentials.
//
// Each repository speaks raw SQL over database/sql. Multi-step reconciliation
// runs inside a single transaction; single-row upserts rely on unique
// constraints to resolve races.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tunebridge/tunebridge/internal/shared"
)

// inTx runs fn inside a transaction, committing on success and rolling back on
// error.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrStorage, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", shared.ErrStorage, err)
	}
	return nil
}
