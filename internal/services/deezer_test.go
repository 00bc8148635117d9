package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection failed")
}

func newTestDeezer(t *testing.T, handler http.HandlerFunc) *DeezerAdapter {
	t.Helper()

	adapter, err := NewDeezerAdapter(shared.DeezerConfig{
		ClientID:     "app-1",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost/callback/deezer",
	}, NewStateStore(0))
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}

	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		adapter.baseURL = srv.URL
		adapter.tokenURL = srv.URL + "/oauth/access_token.php"
	}
	return adapter
}

func deezerCredential() *models.Credential {
	return &models.Credential{
		UserID:      1,
		Provider:    models.OriginDeezer,
		AccessToken: "deezer-token",
		Expiry:      time.Now().Add(time.Hour),
	}
}

func TestDeezerCompleteLink(t *testing.T) {
	ctx := context.Background()

	t.Run("ExchangesCode", func(t *testing.T) {
		adapter := newTestDeezer(t, func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query()
			if query.Get("app_id") != "app-1" || query.Get("secret") != "secret" {
				t.Errorf("exchange missing app credentials: %v", query)
			}
			if query.Get("code") != "auth-code" {
				t.Errorf("got code %q", query.Get("code"))
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "fresh-token",
				"expires":      3600,
			})
		})

		raw, err := adapter.AuthorizeURL(ctx, 1)
		if err != nil {
			t.Fatalf("authorize failed: %v", err)
		}
		parsed, _ := url.Parse(raw)

		cred, err := adapter.CompleteLink(ctx, 1, "auth-code", parsed.Query().Get("state"))
		if err != nil {
			t.Fatalf("complete failed: %v", err)
		}
		if cred.AccessToken != "fresh-token" {
			t.Errorf("got token %q", cred.AccessToken)
		}
		if cred.RefreshToken != "" {
			t.Error("deezer issues no refresh tokens")
		}
	})

	t.Run("MismatchedState", func(t *testing.T) {
		adapter := newTestDeezer(t, nil)

		if _, err := adapter.AuthorizeURL(ctx, 1); err != nil {
			t.Fatalf("authorize failed: %v", err)
		}

		_, err := adapter.CompleteLink(ctx, 1, "auth-code", "forged-state")
		if !errors.Is(err, shared.ErrStateExpired) {
			t.Fatalf("expected ErrStateExpired, got %v", err)
		}
	})
}

func TestDeezerRefresh(t *testing.T) {
	t.Run("ValidTokenExtended", func(t *testing.T) {
		adapter := newTestDeezer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("access_token") != "deezer-token" {
				t.Errorf("request missing access token: %v", r.URL)
			}
			json.NewEncoder(w).Encode(map[string]any{"id": 42})
		})

		cred := deezerCredential()
		renewed, err := adapter.Refresh(context.Background(), cred)
		if err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
		if !renewed.Expiry.After(cred.Expiry) {
			t.Error("refresh should push the expiry out")
		}
	})

	t.Run("AnonymousResponseRejected", func(t *testing.T) {
		adapter := newTestDeezer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"id": 0})
		})

		_, err := adapter.Refresh(context.Background(), deezerCredential())
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected ErrRefreshFailed, got %v", err)
		}
	})
}

func TestDeezerListPlaylists(t *testing.T) {
	t.Run("FollowsPagination", func(t *testing.T) {
		adapter := newTestDeezer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("index") == "1" {
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{{"id": 2, "title": "second"}},
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{{"id": 1, "title": "first"}},
				"next": "http://" + r.Host + "/user/me/playlists?index=1",
			})
		})

		playlists, err := adapter.ListPlaylists(context.Background(), deezerCredential())
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(playlists) != 2 {
			t.Fatalf("got %d playlists, want both pages", len(playlists))
		}
		if playlists[1].Name != "second" {
			t.Errorf("got %q, want second page entry", playlists[1].Name)
		}
	})
}

func TestDeezerListTracks(t *testing.T) {
	t.Run("FollowsPagination", func(t *testing.T) {
		adapter := newTestDeezer(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case strings.HasPrefix(r.URL.Path, "/playlist/") && r.URL.Query().Get("index") == "2":
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{
						{"id": 3, "title": "c", "artist": map[string]any{"name": "x"}, "album": map[string]any{"title": "m"}},
					},
				})
			case strings.HasPrefix(r.URL.Path, "/playlist/"):
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{
						{"id": 1, "title": "a", "artist": map[string]any{"name": "x"}, "album": map[string]any{"title": "m"}},
						{"id": 2, "title": "b", "artist": map[string]any{"name": "x"}, "album": map[string]any{"title": "m"}},
					},
					"next": "http://" + r.Host + r.URL.Path + "?index=2",
				})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		})

		tracks, err := adapter.ListTracks(context.Background(), deezerCredential(), "77")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(tracks) != 3 {
			t.Fatalf("got %d tracks, want all pages", len(tracks))
		}
		if tracks[2].Title != "c" {
			t.Errorf("got %q, want second page track", tracks[2].Title)
		}
	})

	t.Run("LooksUpAlbumReleaseDates", func(t *testing.T) {
		var albumLookups int
		adapter := newTestDeezer(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case strings.HasPrefix(r.URL.Path, "/playlist/"):
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{
						{"id": 1, "title": "Harder Better", "artist": map[string]any{"name": "Daft Punk"}, "album": map[string]any{"id": 10, "title": "Discovery"}},
						{"id": 2, "title": "Digital Love", "artist": map[string]any{"name": "Daft Punk"}, "album": map[string]any{"id": 10, "title": "Discovery"}},
					},
				})
			case strings.HasPrefix(r.URL.Path, "/album/"):
				albumLookups++
				json.NewEncoder(w).Encode(map[string]any{"id": 10, "title": "Discovery", "release_date": "2001-03-12"})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		})

		tracks, err := adapter.ListTracks(context.Background(), deezerCredential(), "77")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("got %d tracks, want 2", len(tracks))
		}
		for _, track := range tracks {
			if track.ReleaseDate != "2001-03-12" {
				t.Errorf("got release date %q", track.ReleaseDate)
			}
		}
		if albumLookups != 1 {
			t.Errorf("album lookup should be cached per album, got %d calls", albumLookups)
		}
	})

	t.Run("LookupFailureLeavesDateEmpty", func(t *testing.T) {
		adapter := newTestDeezer(t, func(w http.ResponseWriter, r *http.Request) {
			switch {
			case strings.HasPrefix(r.URL.Path, "/playlist/"):
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{
						{"id": 1, "title": "a", "artist": map[string]any{"name": "x"}, "album": map[string]any{"id": 10, "title": "m"}},
					},
				})
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		})

		tracks, err := adapter.ListTracks(context.Background(), deezerCredential(), "77")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if tracks[0].ReleaseDate != "" {
			t.Errorf("got release date %q, want empty", tracks[0].ReleaseDate)
		}
	})
}

func TestDeezerAddTracks(t *testing.T) {
	adapter := newTestDeezer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("songs"); got != "1,2,3" {
			t.Errorf("got songs %q, want 1,2,3", got)
		}
		w.Write([]byte("true"))
	})

	err := adapter.AddTracks(context.Background(), deezerCredential(), "77", []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
}

func TestDeezerTransportFailure(t *testing.T) {
	adapter := newTestDeezer(t, nil)
	adapter.httpClient = &http.Client{Transport: failingTransport{}}

	_, err := adapter.ListPlaylists(context.Background(), deezerCredential())
	if !errors.Is(err, shared.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}
