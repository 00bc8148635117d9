package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/tunebridge/tunebridge/internal/app"
	"github.com/tunebridge/tunebridge/internal/credentials"
	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/repositories"
	"github.com/tunebridge/tunebridge/internal/server"
	"github.com/tunebridge/tunebridge/internal/services"
	"github.com/tunebridge/tunebridge/internal/shared"
	"github.com/tunebridge/tunebridge/internal/sharing"
	"github.com/tunebridge/tunebridge/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds the shared state for all CLI commands.
type Runner struct {
	logger *log.Logger
}

// NewRunner creates a command runner.
func NewRunner(logger *log.Logger) *Runner {
	return &Runner{logger: logger}
}

// register returns all top-level commands.
func (r *Runner) register() []*cli.Command {
	return []*cli.Command{
		setupCommand(r),
		rollbackCommand(r),
		serveCommand(r),
		tokenCommand(r),
	}
}

// loadConfig reads the config file at path, creating it from the embedded
// template when missing.
func (r *Runner) loadConfig(path string) *shared.Config {
	if _, err := os.Stat(path); err != nil {
		r.logger.Info("config file not found, creating from template", "path", path)
		if err := shared.CreateConfigFile(path); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
			return shared.DefaultConfig()
		}
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		return shared.DefaultConfig()
	}
	return config
}

// openDatabase opens the configured database and applies pool settings.
func (r *Runner) openDatabase(config *shared.Config) (*sql.DB, error) {
	db, err := shared.NewDatabase(config.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	return db, nil
}

// Setup initializes the database and runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	r.logger.Info("initializing database", "url", config.Database.URL)
	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.logger.Info("setup complete", "url", config.Database.URL)
	return nil
}

// Rollback reverts the most recent migration.
func (r *Runner) Rollback(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	r.logger.Info("rollback complete")
	return nil
}

// Serve wires the full service and runs the HTTP listener until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("%w: auth.jwt_secret is required to serve", shared.ErrMissingConfig)
	}

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	users := repositories.NewUserRepository(db)
	playlists := repositories.NewPlaylistRepository(db)
	tracks := repositories.NewTrackRepository(db)
	friends := repositories.NewFriendshipRepository(db)
	shares := repositories.NewShareRepository(db)
	creds := repositories.NewCredentialRepository(db)

	registry := r.buildRegistry(config)
	manager := credentials.NewManager(creds, registry, r.logger)
	engine := tasks.NewEngine(playlists, tracks, manager, r.logger, tasks.EngineOpts{})
	social := sharing.NewService(friends, shares, playlists, users)
	core := app.New(users, playlists, manager, engine, social, r.logger)

	router := server.NewBasicRouter()
	router.Use(server.RequestLogger(r.logger))
	router.Handle("GET /health", server.HealthHandler())
	router.Handle("GET /callback", server.RedirectPage())

	router.Use(server.Authenticate(config.Auth.JWTSecret))
	router.Handler(server.NewAPIHandler(core, r.logger))
	router.Handler(server.NewCallbackHandler(core, r.logger))

	srv := server.NewServer(config.Server, router, r.logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() { errs <- srv.Start() }()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Token mints a bearer token for local development and testing.
func (r *Runner) Token(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))
	if config.Auth.JWTSecret == "" {
		return fmt.Errorf("%w: auth.jwt_secret is required", shared.ErrMissingConfig)
	}

	token, err := server.IssueToken(config.Auth.JWTSecret, int64(cmd.Int("user")),
		models.Role(cmd.String("role")), cmd.Duration("ttl"))
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	fmt.Println(token)
	return nil
}

// buildRegistry constructs an adapter for every provider with credentials
// configured. Unconfigured providers are skipped with a warning.
func (r *Runner) buildRegistry(config *shared.Config) services.Registry {
	states := services.NewStateStore(0)
	registry := services.Registry{}

	if spotify, err := services.NewSpotifyAdapter(config.Providers.Spotify, states); err != nil {
		r.logger.Warn("spotify adapter unavailable", "error", err)
	} else {
		registry[models.OriginSpotify] = spotify
	}

	if deezer, err := services.NewDeezerAdapter(config.Providers.Deezer, states); err != nil {
		r.logger.Warn("deezer adapter unavailable", "error", err)
	} else {
		registry[models.OriginDeezer] = deezer
	}

	if youtube, err := services.NewYouTubeAdapter(config.Providers.YouTube, states); err != nil {
		r.logger.Warn("youtube adapter unavailable", "error", err)
	} else {
		registry[models.OriginYoutubeMusic] = youtube
	}

	if apple, err := services.NewAppleAdapter(config.Providers.Apple, states); err != nil {
		r.logger.Warn("apple adapter unavailable", "error", err)
	} else {
		registry[models.OriginAppleMusic] = apple
	}

	return registry
}
