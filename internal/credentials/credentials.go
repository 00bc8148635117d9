// package credentials manages the provider credential lifecycle: linking,
// refresh, and disconnect-time deletion.
package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/repositories"
	"github.com/tunebridge/tunebridge/internal/services"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// refreshGuard is the ε window: a credential returned from GetLive is valid
// for at least this long.
const refreshGuard = 60 * time.Second

// Manager upserts, refreshes, and deletes provider credentials, and hands the
// sync engine a ready-to-use adapter for a (user, provider) pair.
type Manager struct {
	creds    *repositories.CredentialRepository
	adapters services.Registry
	logger   *log.Logger
}

// NewManager creates a credential manager over the given repository and
// adapter registry.
func NewManager(creds *repositories.CredentialRepository, adapters services.Registry, logger *log.Logger) *Manager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Manager{creds: creds, adapters: adapters, logger: logger}
}

// Adapter returns the adapter for a provider without touching credentials.
func (m *Manager) Adapter(provider models.Origin) (services.Adapter, error) {
	return m.adapters.Get(provider)
}

// Store upserts a credential in place.
func (m *Manager) Store(ctx context.Context, cred *models.Credential) error {
	return m.creds.Upsert(ctx, cred)
}

// GetLive returns the credential for (user, provider) together with the
// provider's adapter. A credential expiring within the guard window is
// refreshed and persisted first, so callers always get at least the guard
// window of validity.
//
// Two callers racing to refresh both produce valid tokens; the row-level
// write serializes them and the last writer wins.
func (m *Manager) GetLive(ctx context.Context, userID int64, provider models.Origin) (*models.Credential, services.Adapter, error) {
	adapter, err := m.adapters.Get(provider)
	if err != nil {
		return nil, nil, err
	}

	cred, err := m.creds.Get(ctx, userID, provider)
	if err != nil {
		return nil, nil, err
	}

	if !cred.ExpiresWithin(refreshGuard) {
		return cred, adapter, nil
	}

	m.logger.Debug("refreshing provider credential", "user_id", userID, "provider", provider)

	renewed, err := adapter.Refresh(ctx, cred)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s refresh for user %d: %v", shared.ErrRefreshFailed, provider, userID, err)
	}
	if renewed.AccessToken == "" {
		return nil, nil, fmt.Errorf("%w: refresh returned empty access token", shared.ErrInternal)
	}

	if err := m.creds.Upsert(ctx, renewed); err != nil {
		return nil, nil, err
	}

	return renewed, adapter, nil
}

// Delete removes the credential for (user, provider). Used by disconnect,
// after the playlist cascade has run.
func (m *Manager) Delete(ctx context.Context, userID int64, provider models.Origin) error {
	return m.creds.Delete(ctx, userID, provider)
}
