// package app is the core facade: every operation the outer transport layer
// may invoke, gated by the caller's [models.Principal].
//
// Authorization policy lives here. Repositories and adapters below stay
// policy-free; the server layer above only authenticates and translates.
package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/tunebridge/tunebridge/internal/credentials"
	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/repositories"
	"github.com/tunebridge/tunebridge/internal/shared"
	"github.com/tunebridge/tunebridge/internal/sharing"
	"github.com/tunebridge/tunebridge/internal/tasks"
)

// App exposes the full operation surface of the service.
type App struct {
	users     *repositories.UserRepository
	playlists *repositories.PlaylistRepository
	creds     *credentials.Manager
	engine    *tasks.Engine
	sharing   *sharing.Service
	logger    *log.Logger
}

// New assembles the facade from its collaborators.
func New(users *repositories.UserRepository, playlists *repositories.PlaylistRepository,
	creds *credentials.Manager, engine *tasks.Engine, social *sharing.Service, logger *log.Logger) *App {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &App{
		users:     users,
		playlists: playlists,
		creds:     creds,
		engine:    engine,
		sharing:   social,
		logger:    logger,
	}
}

// authorize verifies the principal maps to a live account. Soft-deleted users
// keep their rows but lose every capability.
func (a *App) authorize(ctx context.Context, p models.Principal) error {
	if p.UserID == 0 {
		return fmt.Errorf("%w: missing principal", shared.ErrForbidden)
	}
	if _, err := a.users.Get(ctx, p.UserID); err != nil {
		return fmt.Errorf("%w: unknown or deleted account", shared.ErrForbidden)
	}
	return nil
}

// ownedPlaylist loads a playlist and verifies the principal owns it.
func (a *App) ownedPlaylist(ctx context.Context, p models.Principal, playlistID int64) (*models.Playlist, error) {
	playlist, err := a.playlists.Get(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	if playlist.OwnerID != p.UserID {
		return nil, fmt.Errorf("%w: not the playlist owner", shared.ErrForbidden)
	}
	return playlist, nil
}

// LinkStart begins linking the principal's account to a provider and returns
// the authorization URL the client must visit.
func (a *App) LinkStart(ctx context.Context, p models.Principal, provider models.Origin) (string, error) {
	if err := a.authorize(ctx, p); err != nil {
		return "", err
	}
	adapter, err := a.creds.Adapter(provider)
	if err != nil {
		return "", err
	}
	return adapter.AuthorizeURL(ctx, p.UserID)
}

// LinkComplete finishes a provider link with the authorization code and state
// token from the provider callback and persists the resulting credential.
func (a *App) LinkComplete(ctx context.Context, p models.Principal, provider models.Origin, code, state string) error {
	if err := a.authorize(ctx, p); err != nil {
		return err
	}
	adapter, err := a.creds.Adapter(provider)
	if err != nil {
		return err
	}
	cred, err := adapter.CompleteLink(ctx, p.UserID, code, state)
	if err != nil {
		return err
	}
	return a.creds.Store(ctx, cred)
}

// Disconnect unlinks a provider, removing its credential and every playlist
// imported from it.
func (a *App) Disconnect(ctx context.Context, p models.Principal, provider models.Origin) error {
	if err := a.authorize(ctx, p); err != nil {
		return err
	}
	return a.engine.Disconnect(ctx, p.UserID, provider)
}

// Import synchronizes the principal's playlists from a provider into the
// catalog and blocks until the run completes.
func (a *App) Import(ctx context.Context, p models.Principal, provider models.Origin) (*tasks.ImportResult, error) {
	if err := a.authorize(ctx, p); err != nil {
		return nil, err
	}
	return a.engine.Import(ctx, p.UserID, provider, nil)
}

// ImportAsync starts an import in the background and returns immediately.
func (a *App) ImportAsync(ctx context.Context, p models.Principal, provider models.Origin) error {
	if err := a.authorize(ctx, p); err != nil {
		return err
	}
	a.engine.ImportAsync(ctx, p.UserID, provider, nil)
	return nil
}

// Export recreates one of the principal's playlists on the target provider.
// Only the owner may export a playlist, shared visibility does not suffice.
func (a *App) Export(ctx context.Context, p models.Principal, playlistID int64, provider models.Origin) (*tasks.ExportResult, error) {
	if err := a.authorize(ctx, p); err != nil {
		return nil, err
	}
	if _, err := a.ownedPlaylist(ctx, p, playlistID); err != nil {
		return nil, err
	}
	return a.engine.Export(ctx, p.UserID, playlistID, provider, nil)
}

// ListPlaylists returns the principal's playlists, optionally filtered to one
// provider. Pass an empty origin for all providers.
func (a *App) ListPlaylists(ctx context.Context, p models.Principal, origin models.Origin) ([]models.Playlist, error) {
	if err := a.authorize(ctx, p); err != nil {
		return nil, err
	}
	return a.playlists.ListByOwner(ctx, p.UserID, origin)
}

// ListPlaylistsWithTracks returns the principal's playlists with their
// membership sets eager-loaded.
func (a *App) ListPlaylistsWithTracks(ctx context.Context, p models.Principal, origin models.Origin) ([]repositories.PlaylistWithTracks, error) {
	if err := a.authorize(ctx, p); err != nil {
		return nil, err
	}
	return a.playlists.ListByOwnerWithTracks(ctx, p.UserID, origin)
}

// PlaylistTracks returns a playlist's member tracks. The principal must own
// the playlist or have had it shared with them.
func (a *App) PlaylistTracks(ctx context.Context, p models.Principal, playlistID int64) ([]models.Track, error) {
	if err := a.authorize(ctx, p); err != nil {
		return nil, err
	}
	playlist, err := a.playlists.Get(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	visible, err := a.sharing.CanView(ctx, p.UserID, playlist)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, fmt.Errorf("%w: playlist is not shared with you", shared.ErrForbidden)
	}
	return a.playlists.Tracks(ctx, playlistID)
}

// Share grants a recipient read visibility into one of the principal's
// playlists.
func (a *App) Share(ctx context.Context, p models.Principal, playlistID, recipientID int64) error {
	if err := a.authorize(ctx, p); err != nil {
		return err
	}
	return a.sharing.Share(ctx, p.UserID, playlistID, recipientID)
}

// Unshare revokes a previously granted share.
func (a *App) Unshare(ctx context.Context, p models.Principal, playlistID, recipientID int64) error {
	if err := a.authorize(ctx, p); err != nil {
		return err
	}
	return a.sharing.Unshare(ctx, p.UserID, playlistID, recipientID)
}

// SharedToMe lists playlists other users have shared with the principal.
func (a *App) SharedToMe(ctx context.Context, p models.Principal) ([]models.ShareView, error) {
	if err := a.authorize(ctx, p); err != nil {
		return nil, err
	}
	return a.sharing.SharedToMe(ctx, p.UserID)
}

// AddFriend records the principal's directed friend edge toward another user.
func (a *App) AddFriend(ctx context.Context, p models.Principal, otherID int64) error {
	if err := a.authorize(ctx, p); err != nil {
		return err
	}
	return a.sharing.AddFriend(ctx, p.UserID, otherID)
}

// RemoveFriend dissolves a friendship in both directions.
func (a *App) RemoveFriend(ctx context.Context, p models.Principal, otherID int64) error {
	if err := a.authorize(ctx, p); err != nil {
		return err
	}
	return a.sharing.RemoveFriend(ctx, p.UserID, otherID)
}

// ListFriends returns the principal's mutual friends.
func (a *App) ListFriends(ctx context.Context, p models.Principal) ([]models.User, error) {
	if err := a.authorize(ctx, p); err != nil {
		return nil, err
	}
	return a.sharing.ListFriends(ctx, p.UserID)
}

// SearchUsers finds users by name fragments for friend requests and shares.
func (a *App) SearchUsers(ctx context.Context, p models.Principal, query string) ([]models.User, error) {
	if err := a.authorize(ctx, p); err != nil {
		return nil, err
	}
	return a.sharing.SearchUsers(ctx, query)
}
