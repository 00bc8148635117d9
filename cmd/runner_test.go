package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
	"github.com/urfave/cli/v3"
)

func testRunner() *Runner {
	return NewRunner(shared.NewLogger(nil))
}

func TestRegister(t *testing.T) {
	runner := testRunner()
	commands := runner.register()

	want := map[string]bool{"setup": false, "rollback": false, "serve": false, "token": false}
	for _, command := range commands {
		if _, ok := want[command.Name]; !ok {
			t.Errorf("unexpected command %q", command.Name)
			continue
		}
		want[command.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("CreatesFileFromTemplate", func(t *testing.T) {
		runner := testRunner()
		path := filepath.Join(t.TempDir(), "config.toml")

		config := runner.loadConfig(path)
		if config == nil {
			t.Fatal("expected a config")
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("config file should have been created: %v", err)
		}
		if config.Server.Port != 8080 {
			t.Errorf("got port %d, want template default 8080", config.Server.Port)
		}
	})

	t.Run("MalformedFileFallsBackToDefaults", func(t *testing.T) {
		runner := testRunner()
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte("not toml ["), 0644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}

		config := runner.loadConfig(path)
		if config == nil {
			t.Fatal("expected fallback defaults")
		}
	})
}

func TestSetupAndRollback(t *testing.T) {
	runner := testRunner()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	dbPath := filepath.Join(dir, "catalog.db")
	t.Setenv("DATABASE_URL", dbPath)

	cmd := &cli.Command{
		Flags:  []cli.Flag{configFlag()},
		Action: runner.Setup,
	}
	if err := cmd.Run(context.Background(), []string{"setup", "--config", configPath}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file should exist: %v", err)
	}

	rollback := &cli.Command{
		Flags:  []cli.Flag{configFlag()},
		Action: runner.Rollback,
	}
	if err := rollback.Run(context.Background(), []string{"rollback", "--config", configPath}); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
}

func TestToken(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	t.Setenv("JWT_SECRET", "dev-secret")

	cmd := tokenCommand(testRunner())
	if err := cmd.Run(context.Background(), []string{"token", "--config", configPath, "--user", "42"}); err != nil {
		t.Fatalf("token minting failed: %v", err)
	}

	t.Run("RequiresSecret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")

		bare := tokenCommand(testRunner())
		err := bare.Run(context.Background(), []string{"token", "--config", configPath, "--user", "42"})
		if err == nil {
			t.Error("minting without a secret should fail")
		}
	})
}

func TestBuildRegistry(t *testing.T) {
	t.Run("SkipsUnconfiguredProviders", func(t *testing.T) {
		runner := testRunner()
		config := shared.DefaultConfig()

		registry := runner.buildRegistry(config)
		if len(registry) != 0 {
			t.Errorf("blank config should yield an empty registry, got %d adapters", len(registry))
		}
	})

	t.Run("RegistersConfiguredProviders", func(t *testing.T) {
		runner := testRunner()
		config := shared.DefaultConfig()
		config.Providers.Spotify.ClientID = "id"
		config.Providers.Spotify.ClientSecret = "secret"
		config.Providers.Deezer.ClientID = "id"
		config.Providers.Deezer.ClientSecret = "secret"

		registry := runner.buildRegistry(config)
		if _, ok := registry[models.OriginSpotify]; !ok {
			t.Error("spotify adapter should be registered")
		}
		if _, ok := registry[models.OriginDeezer]; !ok {
			t.Error("deezer adapter should be registered")
		}
		if _, ok := registry[models.OriginAppleMusic]; ok {
			t.Error("apple adapter should be skipped without signing material")
		}
	})
}
