package tasks

import (
	"context"
	"fmt"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/services"
)

// ImportResult summarizes one import run.
type ImportResult struct {
	Provider         models.Origin
	PlaylistsSynced  int
	PlaylistsSkipped int
	TracksAdded      int
	TracksRemoved    int
}

// Import pulls the user's playlist index from the provider and reconciles each
// playlist into the canonical catalog. The catalog converges to the provider
// state: tracks present remotely are added, tracks absent remotely are
// removed, each playlist in its own transaction.
//
// A failed credential refresh or index fetch aborts the run. A single playlist
// failing to fetch or reconcile is logged and skipped; the rest of the run
// continues.
func (e *Engine) Import(ctx context.Context, userID int64, provider models.Origin, progress chan<- ProgressUpdate) (*ImportResult, error) {
	cred, adapter, err := e.creds.GetLive(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	e.sendProgress(progress, ProgressUpdate{Phase: PhaseFetchIndex, Message: "fetching playlist index"})

	index, err := adapter.ListPlaylists(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("listing %s playlists: %w", provider, err)
	}

	result := &ImportResult{Provider: provider}
	for i, remote := range index {
		e.sendProgress(progress, ProgressUpdate{
			Phase:   PhaseReconcile,
			Current: i + 1,
			Total:   len(index),
			Message: remote.Name,
		})

		if err := e.importPlaylist(ctx, userID, adapter, cred, remote, result); err != nil {
			e.logger.Warn("skipping playlist", "provider", provider, "playlist", remote.Name, "error", err)
			result.PlaylistsSkipped++
			continue
		}
		result.PlaylistsSynced++
	}

	e.logger.Info("import complete",
		"provider", provider,
		"user_id", userID,
		"synced", result.PlaylistsSynced,
		"skipped", result.PlaylistsSkipped,
		"added", result.TracksAdded,
		"removed", result.TracksRemoved)
	return result, nil
}

// ImportAsync runs the import in a detached goroutine so the caller can return
// immediately. The run is decoupled from the caller's context lifetime.
func (e *Engine) ImportAsync(ctx context.Context, userID int64, provider models.Origin, progress chan<- ProgressUpdate) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if _, err := e.Import(detached, userID, provider, progress); err != nil {
			e.logger.Error("background import failed", "provider", provider, "user_id", userID, "error", err)
		}
	}()
}

// importPlaylist upserts one provider playlist and reconciles its membership.
func (e *Engine) importPlaylist(ctx context.Context, userID int64, adapter services.Adapter,
	cred *models.Credential, remote services.ProviderPlaylist, result *ImportResult) error {
	playlist := &models.Playlist{
		OwnerID:     userID,
		Name:        remote.Name,
		Description: remote.Description,
		Origin:      adapter.Origin(),
		OriginID:    remote.ID,
		ImageURL:    remote.ImageURL,
	}
	if err := e.playlists.UpsertByOrigin(ctx, playlist); err != nil {
		return err
	}

	remoteTracks, err := adapter.ListTracks(ctx, cred, remote.ID)
	if err != nil {
		return err
	}

	tracks := make([]models.Track, 0, len(remoteTracks))
	for _, rt := range remoteTracks {
		track := models.Track{
			Title:       rt.Title,
			Artist:      rt.Artist,
			Album:       rt.Album,
			ReleaseDate: rt.ReleaseDate,
		}
		if err := track.Validate(); err != nil {
			e.logger.Debug("skipping track", "playlist", remote.Name, "title", rt.Title, "error", err)
			continue
		}
		tracks = append(tracks, track)
	}

	added, removed, err := e.playlists.Reconcile(ctx, playlist.ID, tracks)
	if err != nil {
		return err
	}
	result.TracksAdded += added
	result.TracksRemoved += removed
	return nil
}
