package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration.
//
// Values are loaded from a TOML file first, then overlaid with environment
// variables so container deployments can run without a config file at all.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
	Auth      AuthConfig      `toml:"auth"`
	Providers ProvidersConfig `toml:"providers"`
	Outbound  OutboundConfig  `toml:"outbound"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	URL          string `toml:"url" env:"DATABASE_URL"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host" env:"SERVER_HOST"`
	Port int    `toml:"port" env:"SERVER_PORT"`
}

// AuthConfig contains secrets consumed by the HTTP authentication layer.
// The sync core never reads them; it only sees the resulting principal.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret" env:"JWT_SECRET"`
}

// ProvidersConfig contains per-provider API credentials.
type ProvidersConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Deezer  DeezerConfig  `toml:"deezer"`
	YouTube YouTubeConfig `toml:"youtube"`
	Apple   AppleConfig   `toml:"apple"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id" env:"SPOTIFY_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"SPOTIFY_CLIENT_SECRET"`
	RedirectURI  string `toml:"redirect_uri" env:"SPOTIFY_REDIRECT_URI"`
}

// DeezerConfig contains Deezer API credentials.
type DeezerConfig struct {
	ClientID     string `toml:"client_id" env:"DEEZER_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"DEEZER_CLIENT_SECRET"`
	RedirectURI  string `toml:"redirect_uri" env:"DEEZER_REDIRECT_URI"`
}

// YouTubeConfig contains YouTube Music OAuth credentials.
type YouTubeConfig struct {
	ClientID     string `toml:"client_id" env:"YOUTUI_OAUTH_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"YOUTUI_OAUTH_CLIENT_SECRET"`
	RedirectURI  string `toml:"redirect_uri" env:"YOUTUI_OAUTH_REDIRECT_URI"`
}

// AppleConfig contains the Apple Music developer token signing material.
//
// PrivateKeyPath points at the bundled AuthKey_*.p8 file.
type AppleConfig struct {
	TeamID         string `toml:"team_id" env:"APPLE_TEAM_ID"`
	KeyID          string `toml:"key_id" env:"APPLE_KEY_ID"`
	PrivateKeyPath string `toml:"private_key_path" env:"APPLE_PRIVATE_KEY_PATH"`
}

// OutboundConfig contains settings for external collaborators (push, email).
//
// The sync core does not consume these; they are recognized so one config
// surface covers the whole deployment.
type OutboundConfig struct {
	FCMServerKey       string `toml:"fcm_server_key" env:"FCM_SERVER_KEY"`
	FCMServiceAccount  string `toml:"fcm_service_account" env:"FCM_SERVICE_ACCOUNT"`
	SMTPHost           string `toml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort           int    `toml:"smtp_port" env:"SMTP_PORT"`
	SMTPUsername       string `toml:"smtp_username" env:"SMTP_USERNAME"`
	SMTPPassword       string `toml:"smtp_password" env:"SMTP_PASSWORD"`
	SMTPFromAddress    string `toml:"smtp_from" env:"SMTP_FROM"`
	SMTPStartTLSPolicy string `toml:"smtp_starttls" env:"SMTP_STARTTLS"`
}

// LoadConfig reads a TOML configuration file from path, then applies
// environment variable overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("%w: failed to apply environment overrides: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config seeded from the embedded example file with
// environment overrides applied.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	if err := env.Parse(&config); err != nil {
		panic(fmt.Sprintf("failed to apply environment overrides: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
