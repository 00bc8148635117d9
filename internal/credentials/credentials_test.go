package credentials

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/repositories"
	"github.com/tunebridge/tunebridge/internal/services"
	"github.com/tunebridge/tunebridge/internal/shared"
	tt "github.com/tunebridge/tunebridge/internal/testing"
)

func setupManager(t *testing.T) (*Manager, *repositories.CredentialRepository, *tt.MockAdapter, int64) {
	t.Helper()

	db := tt.MustOpenDB(t)
	userID := tt.MustSeedUser(t, db, "alice")

	adapter := &tt.MockAdapter{Provider: models.OriginSpotify}
	creds := repositories.NewCredentialRepository(db)
	manager := NewManager(creds, services.Registry{models.OriginSpotify: adapter}, nil)

	return manager, creds, adapter, userID
}

func seedCredential(t *testing.T, creds *repositories.CredentialRepository, userID int64, expiry time.Time) {
	t.Helper()
	if err := creds.Upsert(context.Background(), &models.Credential{
		UserID:      userID,
		Provider:    models.OriginSpotify,
		AccessToken: "token",
		Expiry:      expiry,
	}); err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}
}

func TestGetLive(t *testing.T) {
	ctx := context.Background()

	t.Run("LiveCredentialSkipsRefresh", func(t *testing.T) {
		manager, creds, adapter, userID := setupManager(t)
		seedCredential(t, creds, userID, time.Now().Add(time.Hour))

		cred, _, err := manager.GetLive(ctx, userID, models.OriginSpotify)
		if err != nil {
			t.Fatalf("GetLive failed: %v", err)
		}
		if cred.AccessToken != "token" {
			t.Errorf("got token %q, want token", cred.AccessToken)
		}
		if adapter.RefreshCalls != 0 {
			t.Errorf("live credential should not refresh, got %d calls", adapter.RefreshCalls)
		}
	})

	t.Run("ExpiringWithinGuardRefreshes", func(t *testing.T) {
		manager, creds, adapter, userID := setupManager(t)
		// Not yet expired, but inside the guard window.
		seedCredential(t, creds, userID, time.Now().Add(30*time.Second))

		adapter.RefreshFn = func(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
			renewed := *cred
			renewed.AccessToken = "renewed"
			renewed.Expiry = time.Now().Add(time.Hour)
			return &renewed, nil
		}

		cred, _, err := manager.GetLive(ctx, userID, models.OriginSpotify)
		if err != nil {
			t.Fatalf("GetLive failed: %v", err)
		}
		if cred.AccessToken != "renewed" {
			t.Errorf("got token %q, want renewed", cred.AccessToken)
		}
		if adapter.RefreshCalls != 1 {
			t.Errorf("got %d refresh calls, want 1", adapter.RefreshCalls)
		}

		// The renewed credential is persisted.
		stored, err := creds.Get(ctx, userID, models.OriginSpotify)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if stored.AccessToken != "renewed" {
			t.Errorf("stored token %q, want renewed", stored.AccessToken)
		}
	})

	t.Run("RefreshFailureSurfaces", func(t *testing.T) {
		manager, creds, adapter, userID := setupManager(t)
		seedCredential(t, creds, userID, time.Now().Add(-time.Minute))

		adapter.RefreshFn = func(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
			return nil, errors.New("provider rejected refresh token")
		}

		_, _, err := manager.GetLive(ctx, userID, models.OriginSpotify)
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected ErrRefreshFailed, got %v", err)
		}
	})

	t.Run("EmptyRenewedTokenRejected", func(t *testing.T) {
		manager, creds, adapter, userID := setupManager(t)
		seedCredential(t, creds, userID, time.Now().Add(-time.Minute))

		adapter.RefreshFn = func(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
			return &models.Credential{UserID: cred.UserID, Provider: cred.Provider}, nil
		}

		_, _, err := manager.GetLive(ctx, userID, models.OriginSpotify)
		if !errors.Is(err, shared.ErrInternal) {
			t.Fatalf("expected ErrInternal, got %v", err)
		}
	})

	t.Run("NotLinked", func(t *testing.T) {
		manager, _, _, userID := setupManager(t)

		_, _, err := manager.GetLive(ctx, userID, models.OriginSpotify)
		if !errors.Is(err, shared.ErrNotLinked) {
			t.Fatalf("expected ErrNotLinked, got %v", err)
		}
	})

	t.Run("UnknownProvider", func(t *testing.T) {
		manager, _, _, userID := setupManager(t)

		_, _, err := manager.GetLive(ctx, userID, models.OriginDeezer)
		if !errors.Is(err, shared.ErrProviderUnavailable) {
			t.Fatalf("expected ErrProviderUnavailable, got %v", err)
		}
	})
}
