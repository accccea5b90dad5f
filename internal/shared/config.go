package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
//
// Secrets are expected to arrive via environment variables ([Config.ApplyEnv]);
// the TOML file carries non-secret settings and local-dev overrides.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify    SpotifyConfig    `toml:"spotify"`
	OpenRouter OpenRouterConfig `toml:"openrouter"`
	Clipdrop   ClipdropConfig   `toml:"clipdrop"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	Scopes       string `toml:"scopes"`
}

// OpenRouterConfig contains credentials for the text generation provider.
type OpenRouterConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// ClipdropConfig contains credentials for the image generation provider.
type ClipdropConfig struct {
	APIKey string `toml:"api_key"`
}

// DatabaseConfig contains session database settings.
//
// An empty Path keeps sessions in process memory only.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host      string  `toml:"host"`
	Port      int     `toml:"port"`
	DeepLink  string  `toml:"deep_link"`
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

// Addr returns the host:port pair the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, os.ErrExist)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables onto the configuration.
//
// Environment always wins over the TOML file. Secrets (client secret, API keys)
// have no file defaults, so in most deployments this is their only source.
func (c *Config) ApplyEnv() {
	overlay := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	overlay(&c.Credentials.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	overlay(&c.Credentials.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	overlay(&c.Credentials.Spotify.RedirectURI, "SPOTIFY_REDIRECT_URI")
	overlay(&c.Credentials.Spotify.Scopes, "SPOTIFY_SCOPES")
	overlay(&c.Credentials.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	overlay(&c.Credentials.OpenRouter.Model, "OPENROUTER_MODEL")
	overlay(&c.Credentials.Clipdrop.APIKey, "CLIPDROP_API_KEY")
	overlay(&c.Server.Host, "REWIND_HOST")
	overlay(&c.Database.Path, "REWIND_DB_PATH")

	if v := os.Getenv("REWIND_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// ValidateSpotify reports whether the Spotify credentials required to serve any
// request at all are present.
func (c *Config) ValidateSpotify() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret are required", ErrMissingCredentials)
	}
	if c.Credentials.Spotify.RedirectURI == "" {
		return fmt.Errorf("%w: spotify redirect_uri is required", ErrMissingCredentials)
	}
	return nil
}
