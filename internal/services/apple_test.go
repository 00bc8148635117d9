package services

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

func writeTestP8(t *testing.T) (string, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	path := filepath.Join(t.TempDir(), "AuthKey_TEST.p8")
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}

	return path, key
}

func newTestApple(t *testing.T) (*AppleAdapter, *ecdsa.PrivateKey) {
	t.Helper()

	path, key := writeTestP8(t)
	adapter, err := NewAppleAdapter(shared.AppleConfig{
		TeamID:         "TEAM123",
		KeyID:          "KEY456",
		PrivateKeyPath: path,
	}, NewStateStore(0))
	if err != nil {
		t.Fatalf("failed to create adapter: %v", err)
	}
	return adapter, key
}

func TestAppleDeveloperToken(t *testing.T) {
	t.Run("SignsVerifiableClaims", func(t *testing.T) {
		adapter, key := newTestApple(t)

		signed, err := adapter.DeveloperToken()
		if err != nil {
			t.Fatalf("mint failed: %v", err)
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(signed, claims, func(tok *jwt.Token) (any, error) {
			if tok.Method != jwt.SigningMethodES256 {
				t.Errorf("got signing method %v, want ES256", tok.Method)
			}
			return &key.PublicKey, nil
		})
		if err != nil {
			t.Fatalf("token failed verification: %v", err)
		}
		if !token.Valid {
			t.Fatal("token should be valid")
		}

		if claims["iss"] != "TEAM123" {
			t.Errorf("got iss %v, want TEAM123", claims["iss"])
		}
		if token.Header["kid"] != "KEY456" {
			t.Errorf("got kid %v, want KEY456", token.Header["kid"])
		}
	})

	t.Run("CachesUntilNearExpiry", func(t *testing.T) {
		adapter, _ := newTestApple(t)

		first, err := adapter.DeveloperToken()
		if err != nil {
			t.Fatalf("first mint failed: %v", err)
		}
		second, err := adapter.DeveloperToken()
		if err != nil {
			t.Fatalf("second mint failed: %v", err)
		}
		if first != second {
			t.Error("a fresh token should be reused, not re-minted")
		}
	})
}

func TestAppleAuthorizeURL(t *testing.T) {
	adapter, _ := newTestApple(t)

	raw, err := adapter.AuthorizeURL(context.Background(), 1)
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("authorize URL does not parse: %v", err)
	}
	if parsed.Host != "authorize.music.apple.com" {
		t.Errorf("got host %q", parsed.Host)
	}
	if parsed.Query().Get("devToken") == "" {
		t.Error("authorize URL should carry a developer token")
	}
	if parsed.Query().Get("state") == "" {
		t.Error("authorize URL should carry a state token")
	}
}

func TestAppleCompleteLink(t *testing.T) {
	ctx := context.Background()

	t.Run("StoresMusicUserToken", func(t *testing.T) {
		adapter, _ := newTestApple(t)

		raw, err := adapter.AuthorizeURL(ctx, 1)
		if err != nil {
			t.Fatalf("authorize failed: %v", err)
		}
		parsed, _ := url.Parse(raw)
		state := parsed.Query().Get("state")

		cred, err := adapter.CompleteLink(ctx, 1, "music-user-token", state)
		if err != nil {
			t.Fatalf("complete failed: %v", err)
		}
		if cred.AccessToken != "music-user-token" {
			t.Errorf("got token %q", cred.AccessToken)
		}
		if cred.Provider != models.OriginAppleMusic {
			t.Errorf("got provider %q", cred.Provider)
		}
		if cred.Expiry.IsZero() {
			t.Error("credential should carry a far-future expiry")
		}
	})

	t.Run("EmptyToken", func(t *testing.T) {
		adapter, _ := newTestApple(t)

		raw, _ := adapter.AuthorizeURL(ctx, 1)
		parsed, _ := url.Parse(raw)

		_, err := adapter.CompleteLink(ctx, 1, "", parsed.Query().Get("state"))
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestAppleRefresh(t *testing.T) {
	t.Run("ValidTokenExtended", func(t *testing.T) {
		adapter, _ := newTestApple(t)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Music-User-Token"); got != "user-token" {
				t.Errorf("got music-user token %q", got)
			}
			if r.Header.Get("Authorization") == "" {
				t.Error("request should carry a developer token")
			}
			json.NewEncoder(w).Encode(applePage{})
		}))
		defer srv.Close()
		adapter.baseURL = srv.URL

		cred := &models.Credential{UserID: 1, Provider: models.OriginAppleMusic, AccessToken: "user-token"}
		renewed, err := adapter.Refresh(context.Background(), cred)
		if err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
		if !renewed.Expiry.After(cred.Expiry) {
			t.Error("refresh should push the expiry out")
		}
	})

	t.Run("RejectedToken", func(t *testing.T) {
		adapter, _ := newTestApple(t)

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()
		adapter.baseURL = srv.URL

		cred := &models.Credential{UserID: 1, Provider: models.OriginAppleMusic, AccessToken: "revoked"}
		_, err := adapter.Refresh(context.Background(), cred)
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected ErrRefreshFailed, got %v", err)
		}
	})
}

func TestNewAppleAdapterValidation(t *testing.T) {
	t.Run("MissingTeamID", func(t *testing.T) {
		_, err := NewAppleAdapter(shared.AppleConfig{KeyID: "k"}, NewStateStore(0))
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Fatalf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("MissingKeyFile", func(t *testing.T) {
		_, err := NewAppleAdapter(shared.AppleConfig{
			TeamID:         "t",
			KeyID:          "k",
			PrivateKeyPath: "/does/not/exist.p8",
		}, NewStateStore(0))
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Fatalf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("GarbageKeyFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.p8")
		if err := os.WriteFile(path, []byte("not a key"), 0600); err != nil {
			t.Fatalf("write failed: %v", err)
		}

		_, err := NewAppleAdapter(shared.AppleConfig{
			TeamID:         "t",
			KeyID:          "k",
			PrivateKeyPath: path,
		}, NewStateStore(0))
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Fatalf("expected ErrMissingCredentials, got %v", err)
		}
	})
}
