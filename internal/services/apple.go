// Apple Music implementation of [Adapter]
//
// Apple Music has two token tiers: a short-lived developer token the server
// signs itself (ES256, from the team's .p8 key), and a long-lived music-user
// token the client obtains via MusicKit and hands to us. Every API call
// carries both.
package services

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

const (
	appleBaseURL = "https://api.music.apple.com"

	// Developer tokens are minted on demand and kept until close to expiry.
	appleDevTokenTTL = 15 * time.Minute

	// Music-user tokens are not refreshable server-side; Apple documents
	// roughly six months of validity.
	appleUserTokenLifetime = 180 * 24 * time.Hour
)

// appleResource is the generic data envelope of Apple Music responses.
type appleResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Name        string `json:"name"`
		ArtistName  string `json:"artistName"`
		AlbumName   string `json:"albumName"`
		ReleaseDate string `json:"releaseDate"`
		Description struct {
			Standard string `json:"standard"`
		} `json:"description"`
		Artwork struct {
			URL string `json:"url"`
		} `json:"artwork"`
	} `json:"attributes"`
	PlayParams struct {
		CatalogID string `json:"catalogId"`
	} `json:"playParams"`
}

type applePage struct {
	Data []appleResource `json:"data"`
	Next string          `json:"next"`
}

// AppleAdapter implements [Adapter] for the Apple Music API.
type AppleAdapter struct {
	teamID     string
	keyID      string
	privateKey *ecdsa.PrivateKey
	states     *StateStore
	httpClient *http.Client
	baseURL    string

	mu         sync.Mutex
	devToken   string
	devExpires time.Time
}

// NewAppleAdapter creates an Apple Music adapter, loading the ES256 signing
// key from the configured .p8 file.
func NewAppleAdapter(cfg shared.AppleConfig, states *StateStore) (*AppleAdapter, error) {
	if cfg.TeamID == "" || cfg.KeyID == "" {
		return nil, fmt.Errorf("%w: apple team id and key id are required", shared.ErrMissingCredentials)
	}

	pemData, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read apple signing key: %v", shared.ErrMissingCredentials, err)
	}

	key, err := parseP8Key(pemData)
	if err != nil {
		return nil, err
	}

	return &AppleAdapter{
		teamID:     cfg.TeamID,
		keyID:      cfg.KeyID,
		privateKey: key,
		states:     states,
		httpClient: http.DefaultClient,
		baseURL:    appleBaseURL,
	}, nil
}

// parseP8Key parses the PEM-encoded PKCS#8 ECDSA key Apple issues.
func parseP8Key(pemData []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("%w: apple signing key is not PEM encoded", shared.ErrMissingCredentials)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse apple signing key: %v", shared.ErrMissingCredentials, err)
	}

	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: apple signing key is not an ECDSA key", shared.ErrMissingCredentials)
	}

	return key, nil
}

// Origin returns the Apple Music origin tag.
func (a *AppleAdapter) Origin() models.Origin {
	return models.OriginAppleMusic
}

// DeveloperToken returns a live developer token, minting a fresh one when the
// cached token is near expiry. CPU-only; safe to call on the request path.
func (a *AppleAdapter) DeveloperToken() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.devToken != "" && time.Now().Add(time.Minute).Before(a.devExpires) {
		return a.devToken, nil
	}

	now := time.Now()
	expires := now.Add(appleDevTokenTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": a.teamID,
		"iat": now.Unix(),
		"exp": expires.Unix(),
	})
	token.Header["kid"] = a.keyID

	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("%w: failed to sign developer token: %v", shared.ErrInternal, err)
	}

	a.devToken = signed
	a.devExpires = expires
	return signed, nil
}

// AuthorizeURL starts the Apple linking flow. Authorization itself happens
// client-side in MusicKit; the URL points the client at the authorize page
// with a fresh developer token, and the stashed state ties the completion
// back to this flow.
func (a *AppleAdapter) AuthorizeURL(ctx context.Context, userID int64) (string, error) {
	devToken, err := a.DeveloperToken()
	if err != nil {
		return "", err
	}

	state := shared.GenerateID()
	a.states.Put(userID, state, "")

	query := url.Values{}
	query.Set("devToken", devToken)
	query.Set("state", state)

	return "https://authorize.music.apple.com/woa?" + query.Encode(), nil
}

// CompleteLink stores the music-user token produced by MusicKit. The code
// parameter is the token itself.
func (a *AppleAdapter) CompleteLink(ctx context.Context, userID int64, code, state string) (*models.Credential, error) {
	stored, _, err := a.states.Take(userID)
	if err != nil {
		return nil, err
	}
	if stored != state {
		return nil, fmt.Errorf("%w: state token mismatch", shared.ErrStateExpired)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: empty music-user token", shared.ErrInvalidInput)
	}

	return &models.Credential{
		UserID:      userID,
		Provider:    models.OriginAppleMusic,
		AccessToken: code,
		Expiry:      time.Now().Add(appleUserTokenLifetime),
	}, nil
}

// Refresh re-validates the music-user token with a minimal library request.
// Apple issues no refresh tokens; a token that still works gets its expiry
// pushed out, a rejected one fails so the user re-links.
func (a *AppleAdapter) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	ctx, cancel := context.WithTimeout(ctx, ExchangeTimeout)
	defer cancel()

	var page applePage
	if err := a.doRequest(ctx, cred, http.MethodGet, "/v1/me/library/playlists?limit=1", nil, &page); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}

	renewed := *cred
	renewed.Expiry = time.Now().Add(appleUserTokenLifetime)
	return &renewed, nil
}

// ListPlaylists retrieves the user's library playlists, following pagination.
func (a *AppleAdapter) ListPlaylists(ctx context.Context, cred *models.Credential) ([]ProviderPlaylist, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	var playlists []ProviderPlaylist
	endpoint := "/v1/me/library/playlists?limit=100"

	for endpoint != "" {
		var page applePage
		if err := a.doRequest(ctx, cred, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, res := range page.Data {
			playlists = append(playlists, ProviderPlaylist{
				ID:          res.ID,
				Name:        res.Attributes.Name,
				Description: res.Attributes.Description.Standard,
				ImageURL:    res.Attributes.Artwork.URL,
			})
		}

		endpoint = page.Next
	}

	return playlists, nil
}

// ListTracks retrieves the tracks of a library playlist.
func (a *AppleAdapter) ListTracks(ctx context.Context, cred *models.Credential, playlistID string) ([]ProviderTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	var tracks []ProviderTrack
	endpoint := fmt.Sprintf("/v1/me/library/playlists/%s/tracks?limit=100", url.PathEscape(playlistID))

	for endpoint != "" {
		var page applePage
		if err := a.doRequest(ctx, cred, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, res := range page.Data {
			tracks = append(tracks, appleToProviderTrack(res))
		}

		endpoint = page.Next
	}

	return tracks, nil
}

// SearchTracks searches the Apple Music catalog for songs.
func (a *AppleAdapter) SearchTracks(ctx context.Context, cred *models.Credential, query string) ([]ProviderTrack, error) {
	ctx, cancel := context.WithTimeout(ctx, SearchTimeout)
	defer cancel()

	var response struct {
		Results struct {
			Songs applePage `json:"songs"`
		} `json:"results"`
	}

	endpoint := fmt.Sprintf("/v1/catalog/us/search?term=%s&types=songs&limit=10", url.QueryEscape(query))
	if err := a.doRequest(ctx, cred, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	tracks := make([]ProviderTrack, len(response.Results.Songs.Data))
	for i, res := range response.Results.Songs.Data {
		tracks[i] = appleToProviderTrack(res)
	}

	return tracks, nil
}

// CreatePlaylist creates a library playlist. Apple library playlists have no
// public visibility toggle; the flag is accepted and ignored.
func (a *AppleAdapter) CreatePlaylist(ctx context.Context, cred *models.Credential, name, description string, public bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	body := map[string]any{
		"attributes": map[string]any{
			"name":        name,
			"description": description,
		},
	}

	var created applePage
	if err := a.doRequest(ctx, cred, http.MethodPost, "/v1/me/library/playlists", body, &created); err != nil {
		return "", err
	}
	if len(created.Data) == 0 || created.Data[0].ID == "" {
		return "", fmt.Errorf("%w: apple returned no playlist id", shared.ErrProviderUnavailable)
	}

	return created.Data[0].ID, nil
}

// AddTracks adds catalog songs to a library playlist.
func (a *AppleAdapter) AddTracks(ctx context.Context, cred *models.Credential, playlistID string, trackIDs []string) error {
	ctx, cancel := context.WithTimeout(ctx, AddTimeout)
	defer cancel()

	data := make([]map[string]string, len(trackIDs))
	for i, id := range trackIDs {
		data[i] = map[string]string{"id": id, "type": "songs"}
	}

	body := map[string]any{"data": data}
	endpoint := fmt.Sprintf("/v1/me/library/playlists/%s/tracks", url.PathEscape(playlistID))
	return a.doRequest(ctx, cred, http.MethodPost, endpoint, body, nil)
}

// doRequest performs a request carrying both the developer token and the
// music-user token.
func (a *AppleAdapter) doRequest(ctx context.Context, cred *models.Credential, method, endpoint string, body, result any) error {
	devToken, err := a.DeveloperToken()
	if err != nil {
		return err
	}

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

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+devToken)
	req.Header.Set("Music-User-Token", cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: apple request failed: %v", shared.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "apple music"); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode apple response: %v", shared.ErrProviderUnavailable, err)
		}
	}

	return nil
}

// appleToProviderTrack maps an Apple Music resource onto the neutral shape.
// Catalog ids (usable for playlist adds) come from playParams when present.
func appleToProviderTrack(res appleResource) ProviderTrack {
	id := res.ID
	if res.PlayParams.CatalogID != "" {
		id = res.PlayParams.CatalogID
	}

	return ProviderTrack{
		ID:          id,
		Title:       res.Attributes.Name,
		Artist:      res.Attributes.ArtistName,
		Album:       res.Attributes.AlbumName,
		ReleaseDate: res.Attributes.ReleaseDate,
	}
}
