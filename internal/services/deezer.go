// Deezer implementation of [Adapter]
//
// Deezer's OAuth dialect predates RFC-style token endpoints: tokens come from
// access_token.php, do not refresh, and authenticate API calls via an
// access_token query parameter.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

const (
	deezerAuthURL  = "https://connect.deezer.com/oauth/auth.php"
	deezerTokenURL = "https://connect.deezer.com/oauth/access_token.php"
	deezerBaseURL  = "https://api.deezer.com"

	// Deezer access tokens are effectively non-expiring; linked credentials
	// get a far-future expiry and Refresh just re-validates.
	deezerTokenLifetime = 180 * 24 * time.Hour
)

// DeezerArtist represents an artist in Deezer responses.
type DeezerArtist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DeezerAlbum represents an album in Deezer responses.
type DeezerAlbum struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
}

// DeezerTrack represents a track in Deezer responses.
type DeezerTrack struct {
	ID     int64        `json:"id"`
	Title  string       `json:"title"`
	Artist DeezerArtist `json:"artist"`
	Album  DeezerAlbum  `json:"album"`
}

// DeezerPlaylist represents a playlist in Deezer responses.
type DeezerPlaylist struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Picture     string `json:"picture_medium"`
}

type deezerPage[T any] struct {
	Data []T    `json:"data"`
	Next string `json:"next"`
}

// DeezerAdapter implements [Adapter] for the Deezer API.
type DeezerAdapter struct {
	appID      string
	secret     string
	redirect   string
	states     *StateStore
	httpClient *http.Client
	baseURL    string
	authURL    string
	tokenURL   string
}

// NewDeezerAdapter creates a Deezer adapter from application credentials.
func NewDeezerAdapter(cfg shared.DeezerConfig, states *StateStore) (*DeezerAdapter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: deezer app id and secret are required", shared.ErrMissingCredentials)
	}

	return &DeezerAdapter{
		appID:      cfg.ClientID,
		secret:     cfg.ClientSecret,
		redirect:   cfg.RedirectURI,
		states:     states,
		httpClient: http.DefaultClient,
		baseURL:    deezerBaseURL,
		authURL:    deezerAuthURL,
		tokenURL:   deezerTokenURL,
	}, nil
}

// Origin returns the Deezer origin tag.
func (d *DeezerAdapter) Origin() models.Origin {
	return models.OriginDeezer
}

// AuthorizeURL starts the Deezer linking flow.
func (d *DeezerAdapter) AuthorizeURL(ctx context.Context, userID int64) (string, error) {
	state := shared.GenerateID()
	d.states.Put(userID, state, "")

	query := url.Values{}
	query.Set("app_id", d.appID)
	query.Set("redirect_uri", d.redirect)
	query.Set("perms", "basic_access,manage_library")
	query.Set("state", state)

	return d.authURL + "?" + query.Encode(), nil
}

// CompleteLink exchanges the authorization code for an access token.
func (d *DeezerAdapter) CompleteLink(ctx context.Context, userID int64, code, state string) (*models.Credential, error) {
	stored, _, err := d.states.Take(userID)
	if err != nil {
		return nil, err
	}
	if stored != state {
		return nil, fmt.Errorf("%w: state token mismatch", shared.ErrStateExpired)
	}

	ctx, cancel := context.WithTimeout(ctx, ExchangeTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("app_id", d.appID)
	query.Set("secret", d.secret)
	query.Set("code", code)
	query.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.tokenURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: deezer token request failed: %v", shared.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "deezer"); err != nil {
		return nil, err
	}

	var token struct {
		AccessToken string `json:"access_token"`
		Expires     int64  `json:"expires"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("%w: failed to decode deezer token: %v", shared.ErrProviderUnavailable, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: deezer returned no access token", shared.ErrProviderUnavailable)
	}

	expiry := time.Now().Add(deezerTokenLifetime)
	if token.Expires > 0 {
		expiry = time.Now().Add(time.Duration(token.Expires) * time.Second)
	}

	return &models.Credential{
		UserID:      userID,
		Provider:    models.OriginDeezer,
		AccessToken: token.AccessToken,
		Expiry:      expiry,
	}, nil
}

// Refresh re-validates the token against /user/me. Deezer issues no refresh
// tokens; a token that still works gets its expiry pushed out, a rejected one
// fails the refresh so the user re-links.
func (d *DeezerAdapter) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, ExchangeTimeout)
	defer cancel()

	var me struct {
		ID int64 `json:"id"`
	}
	if err := d.doRequest(ctx, cred, http.MethodGet, "/user/me", &me); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	if me.ID == 0 {
		return nil, fmt.Errorf("%w: deezer rejected token", shared.ErrRefreshFailed)
	}

	renewed := *cred
	renewed.Expiry = time.Now().Add(deezerTokenLifetime)
	return &renewed, nil
}

// ListPlaylists retrieves the user's Deezer playlists, following pagination.
func (d *DeezerAdapter) ListPlaylists(ctx context.Context, cred *models.Credential) ([]ProviderPlaylist, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	var playlists []ProviderPlaylist
	endpoint := "/user/me/playlists"

	for endpoint != "" {
		var page deezerPage[DeezerPlaylist]
		if err := d.doRequest(ctx, cred, http.MethodGet, endpoint, &page); err != nil {
			return nil, err
		}

		for _, dp := range page.Data {
			playlists = append(playlists, ProviderPlaylist{
				ID:          strconv.FormatInt(dp.ID, 10),
				Name:        dp.Title,
				Description: dp.Description,
				ImageURL:    dp.Picture,
			})
		}

		endpoint = d.nextEndpoint(page.Next)
	}

	return playlists, nil
}

// ListTracks retrieves the tracks of a Deezer playlist. The track list
// endpoint omits release dates, so each distinct album gets a best-effort
// auxiliary lookup; lookup failures leave the date empty.
func (d *DeezerAdapter) ListTracks(ctx context.Context, cred *models.Credential, playlistID string) ([]ProviderTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	releaseDates := make(map[int64]string)
	var tracks []ProviderTrack
	endpoint := fmt.Sprintf("/playlist/%s/tracks", url.PathEscape(playlistID))

	for endpoint != "" {
		var page deezerPage[DeezerTrack]
		if err := d.doRequest(ctx, cred, http.MethodGet, endpoint, &page); err != nil {
			return nil, err
		}

		for _, dt := range page.Data {
			track := ProviderTrack{
				ID:     strconv.FormatInt(dt.ID, 10),
				Title:  dt.Title,
				Artist: dt.Artist.Name,
				Album:  dt.Album.Title,
			}

			if dt.Album.ID != 0 {
				date, seen := releaseDates[dt.Album.ID]
				if !seen {
					date = d.albumReleaseDate(ctx, cred, dt.Album.ID)
					releaseDates[dt.Album.ID] = date
				}
				track.ReleaseDate = date
			}

			tracks = append(tracks, track)
		}

		endpoint = d.nextEndpoint(page.Next)
	}

	return tracks, nil
}

// nextEndpoint converts Deezer's absolute next-page URL into a request path.
func (d *DeezerAdapter) nextEndpoint(next string) string {
	if next == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(next, d.baseURL); ok {
		return rest
	}
	if parsed, err := url.Parse(next); err == nil && parsed.Host != "" {
		return parsed.RequestURI()
	}
	return next
}

// albumReleaseDate fetches an album's release date, returning "" on any
// failure.
func (d *DeezerAdapter) albumReleaseDate(ctx context.Context, cred *models.Credential, albumID int64) string {
	var album DeezerAlbum
	endpoint := fmt.Sprintf("/album/%d", albumID)
	if err := d.doRequest(ctx, cred, http.MethodGet, endpoint, &album); err != nil {
		return ""
	}
	return album.ReleaseDate
}

// SearchTracks searches the Deezer catalog, ranked best-first by Deezer.
func (d *DeezerAdapter) SearchTracks(ctx context.Context, cred *models.Credential, query string) ([]ProviderTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	var page deezerPage[DeezerTrack]
	endpoint := fmt.Sprintf("/search/track?q=%s", url.QueryEscape(query))
	if err := d.doRequest(ctx, cred, http.MethodGet, endpoint, &page); err != nil {
		return nil, err
	}

	tracks := make([]ProviderTrack, len(page.Data))
	for i, dt := range page.Data {
		tracks[i] = ProviderTrack{
			ID:     strconv.FormatInt(dt.ID, 10),
			Title:  dt.Title,
			Artist: dt.Artist.Name,
			Album:  dt.Album.Title,
		}
	}

	return tracks, nil
}

// CreatePlaylist creates an empty playlist for the credential's user.
// Deezer has no per-playlist description or visibility on create; those are
// accepted and ignored.
func (d *DeezerAdapter) CreatePlaylist(ctx context.Context, cred *models.Credential, name, description string, public bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	var created struct {
		ID int64 `json:"id"`
	}
	endpoint := fmt.Sprintf("/user/me/playlists?title=%s", url.QueryEscape(name))
	if err := d.doRequest(ctx, cred, http.MethodPost, endpoint, &created); err != nil {
		return "", err
	}
	if created.ID == 0 {
		return "", fmt.Errorf("%w: deezer returned no playlist id", shared.ErrProviderUnavailable)
	}

	return strconv.FormatInt(created.ID, 10), nil
}

// AddTracks adds tracks to a Deezer playlist in one call.
func (d *DeezerAdapter) AddTracks(ctx context.Context, cred *models.Credential, playlistID string, trackIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, AddTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("/playlist/%s/tracks?songs=%s",
		url.PathEscape(playlistID), url.QueryEscape(strings.Join(trackIDs, ",")))
	return d.doRequest(ctx, cred, http.MethodPost, endpoint, nil)
}

// doRequest performs a request against the Deezer API with the access token
// appended as a query parameter, per Deezer's auth scheme.
func (d *DeezerAdapter) doRequest(ctx context.Context, cred *models.Credential, method, endpoint string, result any) error {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	apiURL := d.baseURL + endpoint + sep + "access_token=" + url.QueryEscape(cred.AccessToken)

	req, err := http.NewRequestWithContext(ctx, method, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: deezer request failed: %v", shared.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "deezer"); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode deezer response: %v", shared.ErrProviderUnavailable, err)
		}
	}

	return nil
}
