// package services defines the provider adapter capability and its variants
//
// Spotify, Deezer, YouTube Music, Apple Music
package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// Per-call timeouts for outbound provider requests.
const (
	ListTimeout     = 30 * time.Second
	SearchTimeout   = 30 * time.Second
	AddTimeout      = 60 * time.Second
	ExchangeTimeout = 30 * time.Second
)

// Adapter is the capability every music provider variant implements. Adapters
// hide OAuth token exchange, catalog search, playlist listing, playlist
// creation, and track addition behind one operation set.
//
// Adapters are stateless across calls except for the transient authorize-flow
// state held in a [StateStore].
type Adapter interface {
	// Origin returns the provider tag this adapter serves.
	Origin() models.Origin

	// AuthorizeURL starts the linking flow for a user and returns the URL the
	// client must visit. Flow state (CSRF token, PKCE verifier) is stashed
	// keyed by user id and consumed by CompleteLink.
	AuthorizeURL(ctx context.Context, userID int64) (string, error)

	// CompleteLink finishes the linking flow, validating the returned state
	// token and exchanging the authorization code for a credential.
	CompleteLink(ctx context.Context, userID int64, code, state string) (*models.Credential, error)

	// Refresh renews an expiring credential.
	Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error)

	// ListPlaylists retrieves the user's playlist index on the provider.
	ListPlaylists(ctx context.Context, cred *models.Credential) ([]ProviderPlaylist, error)

	// ListTracks retrieves the tracks of one provider playlist.
	ListTracks(ctx context.Context, cred *models.Credential, playlistID string) ([]ProviderTrack, error)

	// SearchTracks searches the provider catalog, ranked best-first by the
	// provider.
	SearchTracks(ctx context.Context, cred *models.Credential, query string) ([]ProviderTrack, error)

	// CreatePlaylist creates an empty playlist on the provider and returns
	// its provider-side id.
	CreatePlaylist(ctx context.Context, cred *models.Credential, name, description string, public bool) (string, error)

	// AddTracks adds provider track ids to a provider playlist.
	AddTracks(ctx context.Context, cred *models.Credential, playlistID string, trackIDs []string) error
}

// DeveloperTokenMinter is implemented by adapters whose provider requires a
// server-minted developer token distinct from user credentials (Apple Music).
type DeveloperTokenMinter interface {
	DeveloperToken() (string, error)
}

// ProviderPlaylist is a playlist as described by a provider's index endpoint.
type ProviderPlaylist struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
}

// ProviderTrack is a track as described by a provider. ID is only populated by
// endpoints that return provider-side identifiers (search).
type ProviderTrack struct {
	ID          string
	Title       string
	Artist      string
	Album       string
	ReleaseDate string
}

// Registry maps origin tags to their adapters. Import and export dispatch on
// the origin tag through it.
type Registry map[models.Origin]Adapter

// Get returns the adapter for the given origin.
func (r Registry) Get(origin models.Origin) (Adapter, error) {
	adapter, ok := r[origin]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for provider %s", shared.ErrProviderUnavailable, origin)
	}
	return adapter, nil
}

// checkStatus maps a provider HTTP status to the error taxonomy. Rate limits
// and server errors surface as provider-unavailable so the caller retries the
// whole operation later.
func checkStatus(resp *http.Response, provider string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s returned status %d", shared.ErrProviderUnavailable, provider, resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s rejected credentials (status %d)", shared.ErrProviderUnavailable, provider, resp.StatusCode)
	default:
		return fmt.Errorf("%w: %s API error (status %d)", shared.ErrProviderUnavailable, provider, resp.StatusCode)
	}
}
