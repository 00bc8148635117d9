package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/tunebridge/tunebridge/internal/matcher"
	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/services"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ExportResult summarizes one export run.
type ExportResult struct {
	Provider           models.Origin
	ProviderPlaylistID string
	Matched            int
	Unmatched          []models.Track
}

// Export recreates a canonical playlist on the target provider. Each member
// track is searched on the provider catalog and fuzzy-matched; matched tracks
// are added to a freshly created provider playlist in their catalog order.
//
// Tracks that fail to match (or whose search fails) are returned in
// [ExportResult.Unmatched] rather than aborting the run. A failure to create
// the provider playlist aborts before any provider state exists. A failure to
// add tracks is surfaced with the created playlist left in place, its id in
// the result.
func (e *Engine) Export(ctx context.Context, userID, playlistID int64, provider models.Origin, progress chan<- ProgressUpdate) (*ExportResult, error) {
	cred, adapter, err := e.creds.GetLive(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	playlist, err := e.playlists.Get(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	members, err := e.playlists.Tracks(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{Provider: provider}
	if len(members) == 0 {
		return result, nil
	}

	matches := e.searchAll(ctx, adapter, cred, members, progress)

	trackIDs := make([]string, 0, len(members))
	for i, member := range members {
		if matches[i] == nil {
			result.Unmatched = append(result.Unmatched, member)
			continue
		}
		trackIDs = append(trackIDs, matches[i].ID)
		result.Matched++
	}

	e.sendProgress(progress, ProgressUpdate{Phase: PhaseCreate, Message: playlist.Name})

	providerID, err := adapter.CreatePlaylist(ctx, cred, playlist.Name, playlist.Description, true)
	if err != nil {
		return nil, fmt.Errorf("creating %s playlist: %w", provider, err)
	}
	result.ProviderPlaylistID = providerID

	if len(trackIDs) > 0 {
		e.sendProgress(progress, ProgressUpdate{Phase: PhaseAddTracks, Total: len(trackIDs)})
		if err := adapter.AddTracks(ctx, cred, providerID, trackIDs); err != nil {
			return result, fmt.Errorf("adding tracks to %s playlist %s: %w", provider, providerID, err)
		}
	}

	e.logger.Info("export complete",
		"provider", provider,
		"playlist_id", playlistID,
		"provider_playlist_id", providerID,
		"matched", result.Matched,
		"unmatched", len(result.Unmatched))
	return result, nil
}

// searchAll searches the provider catalog for every member track concurrently,
// rate limited. The returned slice is index-aligned with members; a nil entry
// means no match was found or the search failed.
func (e *Engine) searchAll(ctx context.Context, adapter services.Adapter, cred *models.Credential,
	members []models.Track, progress chan<- ProgressUpdate) []*services.ProviderTrack {
	matches := make([]*services.ProviderTrack, len(members))
	limiter := rate.NewLimiter(e.searchRate, 1)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.searchWorkers)

	for i, member := range members {
		group.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}

			e.sendProgress(progress, ProgressUpdate{
				Phase:   PhaseSearch,
				Current: i + 1,
				Total:   len(members),
				Message: member.Title,
			})

			candidates, err := adapter.SearchTracks(gctx, cred, searchQuery(member))
			if err != nil {
				e.logger.Warn("search failed", "title", member.Title, "artist", member.Artist, "error", err)
				return nil
			}
			matches[i] = matcher.Match(member, candidates)
			return nil
		})
	}

	// Workers only return errors for context cancellation; search failures
	// degrade to unmatched tracks.
	_ = group.Wait()
	return matches
}

// searchQuery builds the free-text catalog query for a track.
func searchQuery(track models.Track) string {
	return strings.TrimSpace(track.Title + " " + track.Artist)
}
