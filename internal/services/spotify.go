// Spotify implementation of [Adapter]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
	"golang.org/x/oauth2"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	spotifyPageLimit = 50
	spotifyAddChunk  = 100
)

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ReleaseDate string `json:"release_date"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Artists []SpotifyArtist `json:"artists"`
	Album   SpotifyAlbum    `json:"album"`
	URI     string          `json:"uri"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Images      []SpotifyImage `json:"images"`
}

type spotifyPage[T any] struct {
	Items []T     `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

type spotifyPlaylistTrack struct {
	Track SpotifyTrack `json:"track"`
}

// SpotifyAdapter implements [Adapter] for the Spotify Web API.
type SpotifyAdapter struct {
	config     *oauth2.Config
	states     *StateStore
	httpClient *http.Client
	baseURL    string
}

// NewSpotifyAdapter creates a Spotify adapter from client credentials.
func NewSpotifyAdapter(cfg shared.SpotifyConfig, states *StateStore) (*SpotifyAdapter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: spotify client id and secret are required", shared.ErrMissingCredentials)
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes: []string{
			"playlist-read-private",
			"playlist-read-collaborative",
			"playlist-modify-public",
			"playlist-modify-private",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyAdapter{
		config:     config,
		states:     states,
		httpClient: http.DefaultClient,
		baseURL:    spotifyBaseURL,
	}, nil
}

// Origin returns the Spotify origin tag.
func (s *SpotifyAdapter) Origin() models.Origin {
	return models.OriginSpotify
}

// AuthorizeURL starts the Spotify authorization code flow.
func (s *SpotifyAdapter) AuthorizeURL(ctx context.Context, userID int64) (string, error) {
	state := shared.GenerateID()
	s.states.Put(userID, state, "")
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// CompleteLink exchanges the authorization code for a credential.
func (s *SpotifyAdapter) CompleteLink(ctx context.Context, userID int64, code, state string) (*models.Credential, error) {
	stored, _, err := s.states.Take(userID)
	if err != nil {
		return nil, err
	}
	if stored != state {
		return nil, fmt.Errorf("%w: state token mismatch", shared.ErrStateExpired)
	}

	ctx, cancel := context.WithTimeout(ctx, ExchangeTimeout)
	defer cancel()

	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: spotify code exchange failed: %v", shared.ErrProviderUnavailable, err)
	}

	return tokenToCredential(userID, models.OriginSpotify, token), nil
}

// Refresh renews the credential using its refresh token.
func (s *SpotifyAdapter) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	return oauthRefresh(ctx, s.config, cred)
}

// ListPlaylists retrieves all playlists for the credential's user.
func (s *SpotifyAdapter) ListPlaylists(ctx context.Context, cred *models.Credential) ([]ProviderPlaylist, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	var playlists []ProviderPlaylist
	offset := 0

	for {
		var page spotifyPage[SpotifySimplePlaylist]
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", spotifyPageLimit, offset)
		if err := s.doRequest(ctx, cred, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, sp := range page.Items {
			playlist := ProviderPlaylist{
				ID:          sp.ID,
				Name:        sp.Name,
				Description: sp.Description,
			}
			if len(sp.Images) > 0 {
				playlist.ImageURL = sp.Images[0].URL
			}
			playlists = append(playlists, playlist)
		}

		if page.Next == nil {
			break
		}
		offset += spotifyPageLimit
	}

	return playlists, nil
}

// ListTracks retrieves the tracks of a Spotify playlist. Release dates come
// from the embedded album object, so no auxiliary lookup is needed.
func (s *SpotifyAdapter) ListTracks(ctx context.Context, cred *models.Credential, playlistID string) ([]ProviderTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	var tracks []ProviderTrack
	offset := 0

	for {
		var page spotifyPage[spotifyPlaylistTrack]
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d",
			url.PathEscape(playlistID), spotifyPageLimit, offset)
		if err := s.doRequest(ctx, cred, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			tracks = append(tracks, spotifyToProviderTrack(item.Track))
		}

		if page.Next == nil {
			break
		}
		offset += spotifyPageLimit
	}

	return tracks, nil
}

// SearchTracks searches the Spotify catalog, ranked best-first by Spotify.
func (s *SpotifyAdapter) SearchTracks(ctx context.Context, cred *models.Credential, query string) ([]ProviderTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	var response struct {
		Tracks spotifyPage[SpotifyTrack] `json:"tracks"`
	}

	endpoint := fmt.Sprintf("/search?q=%s&type=track&limit=10", url.QueryEscape(query))
	if err := s.doRequest(ctx, cred, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]ProviderTrack, len(response.Tracks.Items))
	for i, st := range response.Tracks.Items {
		tracks[i] = spotifyToProviderTrack(st)
	}

	return tracks, nil
}

// CreatePlaylist creates an empty playlist for the credential's user.
func (s *SpotifyAdapter) CreatePlaylist(ctx context.Context, cred *models.Credential, name, description string, public bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	var me struct {
		ID string `json:"id"`
	}
	if err := s.doRequest(ctx, cred, http.MethodGet, "/me", nil, &me); err != nil {
		return "", err
	}

	body := map[string]any{"name": name, "description": description, "public": public}
	var created struct {
		ID string `json:"id"`
	}

	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(me.ID))
	if err := s.doRequest(ctx, cred, http.MethodPost, endpoint, body, &created); err != nil {
		return "", err
	}

	return created.ID, nil
}

// AddTracks adds tracks to a playlist, chunked to Spotify's per-request cap.
func (s *SpotifyAdapter) AddTracks(ctx context.Context, cred *models.Credential, playlistID string, trackIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, AddTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))

	for start := 0; start < len(trackIDs); start += spotifyAddChunk {
		end := min(start+spotifyAddChunk, len(trackIDs))

		uris := make([]string, 0, end-start)
		for _, id := range trackIDs[start:end] {
			uris = append(uris, "spotify:track:"+id)
		}

		body := map[string]any{"uris": uris}
		if err := s.doRequest(ctx, cred, http.MethodPost, endpoint, body, nil); err != nil {
			return err
		}
	}

	return nil
}

// doRequest performs an authenticated request against the Spotify API.
func (s *SpotifyAdapter) doRequest(ctx context.Context, cred *models.Credential, method, endpoint string, body, result any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: spotify request failed: %v", shared.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "spotify"); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode spotify response: %v", shared.ErrProviderUnavailable, err)
		}
	}

	return nil
}

// spotifyToProviderTrack maps a Spotify track onto the neutral shape. Tracks
// without an identifiable primary artist keep an empty Artist; the importer
// skips those.
func spotifyToProviderTrack(st SpotifyTrack) ProviderTrack {
	track := ProviderTrack{
		ID:          st.ID,
		Title:       st.Name,
		Album:       st.Album.Name,
		ReleaseDate: st.Album.ReleaseDate,
	}
	if len(st.Artists) > 0 {
		track.Artist = st.Artists[0].Name
	}
	return track
}

// tokenToCredential maps an oauth2 token onto a stored credential.
func tokenToCredential(userID int64, provider models.Origin, token *oauth2.Token) *models.Credential {
	return &models.Credential{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
}

// oauthRefresh renews an oauth2-backed credential. A refresh that yields no
// new refresh token keeps the old one.
func oauthRefresh(ctx context.Context, config *oauth2.Config, cred *models.Credential) (*models.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	ctx, cancel := context.WithTimeout(ctx, ExchangeTimeout)
	defer cancel()

	source := config.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	renewed := tokenToCredential(cred.UserID, cred.Provider, token)
	renewed.Scope = cred.Scope
	if renewed.RefreshToken == "" {
		renewed.RefreshToken = cred.RefreshToken
	}

	return renewed, nil
}
