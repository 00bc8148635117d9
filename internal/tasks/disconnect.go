package tasks

import (
	"context"

	"github.com/tunebridge/tunebridge/internal/models"
)

// Disconnect severs a user's link to a provider. Every playlist imported from
// that provider is cascade-deleted (memberships and shares included) in one
// transaction, then the stored credential is removed. Canonical tracks remain;
// they may be referenced by other users' playlists.
func (e *Engine) Disconnect(ctx context.Context, userID int64, provider models.Origin) error {
	if err := e.playlists.DeleteByOwnerOrigin(ctx, userID, provider); err != nil {
		return err
	}
	if err := e.creds.Delete(ctx, userID, provider); err != nil {
		return err
	}

	e.logger.Info("provider disconnected", "provider", provider, "user_id", userID)
	return nil
}
