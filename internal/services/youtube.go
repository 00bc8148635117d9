// YouTube Music implementation of [Adapter]
//
// Authorization goes through Google OAuth with PKCE. Catalog calls use the
// YouTube Music REST surface (playlistId/videoId shapes).
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
	youtubeAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	youtubeTokenURL = "https://oauth2.googleapis.com/token"
	youtubeBaseURL  = "https://music.youtube.com/api/v1"
	youtubeScope    = "https://www.googleapis.com/auth/youtube"
)

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type youtubeAlbum struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents a track/video in YouTube Music responses.
type YouTubeTrack struct {
	VideoID     string          `json:"videoId"`
	Title       string          `json:"title"`
	Artists     []YouTubeArtist `json:"artists"`
	Album       *youtubeAlbum   `json:"album"`
	ReleaseDate string          `json:"releaseDate,omitempty"`
}

// YouTubePlaylist represents a playlist in YouTube Music responses.
type YouTubePlaylist struct {
	PlaylistID  string `json:"playlistId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Privacy     string `json:"privacy"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// YouTubeAdapter implements [Adapter] for YouTube Music.
type YouTubeAdapter struct {
	config     *oauth2.Config
	states     *StateStore
	httpClient *http.Client
	baseURL    string
}

// NewYouTubeAdapter creates a YouTube Music adapter from OAuth client
// credentials.
func NewYouTubeAdapter(cfg shared.YouTubeConfig, states *StateStore) (*YouTubeAdapter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: youtube client id and secret are required", shared.ErrMissingCredentials)
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       []string{youtubeScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  youtubeAuthURL,
			TokenURL: youtubeTokenURL,
		},
	}

	return &YouTubeAdapter{
		config:     config,
		states:     states,
		httpClient: http.DefaultClient,
		baseURL:    youtubeBaseURL,
	}, nil
}

// Origin returns the YouTube Music origin tag.
func (y *YouTubeAdapter) Origin() models.Origin {
	return models.OriginYoutubeMusic
}

// AuthorizeURL starts the Google OAuth flow with a PKCE challenge. The
// verifier stays server-side until CompleteLink consumes it.
func (y *YouTubeAdapter) AuthorizeURL(ctx context.Context, userID int64) (string, error) {
	state := shared.GenerateID()
	verifier, err := newPKCEVerifier()
	if err != nil {
		return "", err
	}
	y.states.Put(userID, state, verifier)

	return y.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("code_challenge", pkceChallenge(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	), nil
}

// CompleteLink exchanges the authorization code, presenting the stashed PKCE
// verifier.
func (y *YouTubeAdapter) CompleteLink(ctx context.Context, userID int64, code, state string) (*models.Credential, error) {
	stored, verifier, err := y.states.Take(userID)
	if err != nil {
		return nil, err
	}
	if stored != state {
		return nil, fmt.Errorf("%w: state token mismatch", shared.ErrStateExpired)
	}

	ctx, cancel := context.WithTimeout(ctx, ExchangeTimeout)
	defer cancel()

	token, err := y.config.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: youtube code exchange failed: %v", shared.ErrProviderUnavailable, err)
	}

	return tokenToCredential(userID, models.OriginYoutubeMusic, token), nil
}

// Refresh renews the credential using its refresh token.
func (y *YouTubeAdapter) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	return oauthRefresh(ctx, y.config, cred)
}

// ListPlaylists retrieves the user's library playlists.
func (y *YouTubeAdapter) ListPlaylists(ctx context.Context, cred *models.Credential) ([]ProviderPlaylist, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	var ytPlaylists []YouTubePlaylist
	if err := y.doRequest(ctx, cred, http.MethodGet, "/library/playlists", nil, &ytPlaylists); err != nil {
		return nil, err
	}

	playlists := make([]ProviderPlaylist, len(ytPlaylists))
	for i, ytp := range ytPlaylists {
		playlists[i] = ProviderPlaylist{
			ID:          ytp.PlaylistID,
			Name:        ytp.Title,
			Description: ytp.Description,
			ImageURL:    ytp.Thumbnail,
		}
	}

	return playlists, nil
}

// ListTracks retrieves the tracks of a YouTube Music playlist.
func (y *YouTubeAdapter) ListTracks(ctx context.Context, cred *models.Credential, playlistID string) ([]ProviderTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	var response struct {
		Tracks []YouTubeTrack `json:"tracks"`
	}

	endpoint := fmt.Sprintf("/playlists/%s", url.PathEscape(playlistID))
	if err := y.doRequest(ctx, cred, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]ProviderTrack, len(response.Tracks))
	for i, ytt := range response.Tracks {
		tracks[i] = youtubeToProviderTrack(ytt)
	}

	return tracks, nil
}

// SearchTracks searches the YouTube Music catalog filtered to songs.
func (y *YouTubeAdapter) SearchTracks(ctx context.Context, cred *models.Credential, query string) ([]ProviderTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	var results []YouTubeTrack
	endpoint := fmt.Sprintf("/search?q=%s&filter=songs", url.QueryEscape(query))
	if err := y.doRequest(ctx, cred, http.MethodGet, endpoint, nil, &results); err != nil {
		return nil, err
	}

	tracks := make([]ProviderTrack, len(results))
	for i, ytt := range results {
		tracks[i] = youtubeToProviderTrack(ytt)
	}

	return tracks, nil
}

// CreatePlaylist creates an empty playlist.
func (y *YouTubeAdapter) CreatePlaylist(ctx context.Context, cred *models.Credential, name, description string, public bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	privacy := "PRIVATE"
	if public {
		privacy = "PUBLIC"
	}

	body := map[string]any{
		"title":          name,
		"description":    description,
		"privacy_status": privacy,
	}

	var created struct {
		PlaylistID string `json:"playlist_id"`
	}
	if err := y.doRequest(ctx, cred, http.MethodPost, "/playlists", body, &created); err != nil {
		return "", err
	}
	if created.PlaylistID == "" {
		return "", fmt.Errorf("%w: youtube returned no playlist id", shared.ErrProviderUnavailable)
	}

	return created.PlaylistID, nil
}

// AddTracks adds videos to a playlist in one call.
func (y *YouTubeAdapter) AddTracks(ctx context.Context, cred *models.Credential, playlistID string, trackIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, AddTimeout)
	defer cancel()

	body := map[string]any{"video_ids": trackIDs}
	endpoint := fmt.Sprintf("/playlists/%s/items", url.PathEscape(playlistID))
	return y.doRequest(ctx, cred, http.MethodPost, endpoint, body, nil)
}

// doRequest performs an authenticated request against the YouTube Music API.
func (y *YouTubeAdapter) doRequest(ctx context.Context, cred *models.Credential, method, endpoint string, body, result any) error {
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

	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: youtube request failed: %v", shared.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "youtube music"); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode youtube response: %v", shared.ErrProviderUnavailable, err)
		}
	}

	return nil
}

// youtubeToProviderTrack maps a YouTube Music track onto the neutral shape.
func youtubeToProviderTrack(ytt YouTubeTrack) ProviderTrack {
	track := ProviderTrack{
		ID:          ytt.VideoID,
		Title:       ytt.Title,
		ReleaseDate: ytt.ReleaseDate,
	}
	if len(ytt.Artists) > 0 {
		track.Artist = ytt.Artists[0].Name
	}
	if ytt.Album != nil {
		track.Album = ytt.Album.Name
	}
	return track
}
