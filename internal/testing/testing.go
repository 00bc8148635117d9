// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"testing"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/services"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// MockAdapter is a configurable test double for [services.Adapter]. Each
// operation delegates to the corresponding Fn field when set and returns a
// benign zero value otherwise. Call counts are recorded for assertions.
type MockAdapter struct {
	Provider models.Origin

	AuthorizeURLFn   func(ctx context.Context, userID int64) (string, error)
	CompleteLinkFn   func(ctx context.Context, userID int64, code, state string) (*models.Credential, error)
	RefreshFn        func(ctx context.Context, cred *models.Credential) (*models.Credential, error)
	ListPlaylistsFn  func(ctx context.Context, cred *models.Credential) ([]services.ProviderPlaylist, error)
	ListTracksFn     func(ctx context.Context, cred *models.Credential, playlistID string) ([]services.ProviderTrack, error)
	SearchTracksFn   func(ctx context.Context, cred *models.Credential, query string) ([]services.ProviderTrack, error)
	CreatePlaylistFn func(ctx context.Context, cred *models.Credential, name, description string, public bool) (string, error)
	AddTracksFn      func(ctx context.Context, cred *models.Credential, playlistID string, trackIDs []string) error

	RefreshCalls        int
	SearchCalls         int
	CreatePlaylistCalls int
	AddTracksCalls      int
}

func (m *MockAdapter) Origin() models.Origin {
	if m.Provider == "" {
		return models.OriginSpotify
	}
	return m.Provider
}

func (m *MockAdapter) AuthorizeURL(ctx context.Context, userID int64) (string, error) {
	if m.AuthorizeURLFn != nil {
		return m.AuthorizeURLFn(ctx, userID)
	}
	return "https://example.com/authorize", nil
}

func (m *MockAdapter) CompleteLink(ctx context.Context, userID int64, code, state string) (*models.Credential, error) {
	if m.CompleteLinkFn != nil {
		return m.CompleteLinkFn(ctx, userID, code, state)
	}
	return &models.Credential{UserID: userID, Provider: m.Origin(), AccessToken: "test-token"}, nil
}

func (m *MockAdapter) Refresh(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	m.RefreshCalls++
	if m.RefreshFn != nil {
		return m.RefreshFn(ctx, cred)
	}
	return cred, nil
}

func (m *MockAdapter) ListPlaylists(ctx context.Context, cred *models.Credential) ([]services.ProviderPlaylist, error) {
	if m.ListPlaylistsFn != nil {
		return m.ListPlaylistsFn(ctx, cred)
	}
	return nil, nil
}

func (m *MockAdapter) ListTracks(ctx context.Context, cred *models.Credential, playlistID string) ([]services.ProviderTrack, error) {
	if m.ListTracksFn != nil {
		return m.ListTracksFn(ctx, cred, playlistID)
	}
	return nil, nil
}

func (m *MockAdapter) SearchTracks(ctx context.Context, cred *models.Credential, query string) ([]services.ProviderTrack, error) {
	m.SearchCalls++
	if m.SearchTracksFn != nil {
		return m.SearchTracksFn(ctx, cred, query)
	}
	return nil, nil
}

func (m *MockAdapter) CreatePlaylist(ctx context.Context, cred *models.Credential, name, description string, public bool) (string, error) {
	m.CreatePlaylistCalls++
	if m.CreatePlaylistFn != nil {
		return m.CreatePlaylistFn(ctx, cred, name, description, public)
	}
	return "provider-playlist-1", nil
}

func (m *MockAdapter) AddTracks(ctx context.Context, cred *models.Credential, playlistID string, trackIDs []string) error {
	m.AddTracksCalls++
	if m.AddTracksFn != nil {
		return m.AddTracksFn(ctx, cred, playlistID, trackIDs)
	}
	return nil
}

// MustOpenDB opens an in-memory database with the full schema applied and
// registers cleanup.
func MustOpenDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

// MustSeedUser inserts a user row and returns its id.
func MustSeedUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()
	result, err := db.Exec(
		`INSERT INTO users (username, email, first_name, last_name, role, created_on, updated_on)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		username, username+"@example.com", "Test", "User", string(models.RoleUser))
	if err != nil {
		t.Fatalf("Failed to seed user %s: %v", username, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		t.Fatalf("Failed to read user id: %v", err)
	}
	return id
}
