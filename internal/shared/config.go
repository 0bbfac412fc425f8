package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config is the application configuration, decoded from TOML.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Session     SessionConfig     `toml:"session"`
	Sync        SyncConfig        `toml:"sync"`
	Logging     LoggingConfig     `toml:"logging"`
}

// CredentialsConfig contains provider-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
	Napster NapsterConfig `toml:"napster"`
}

// SpotifyConfig contains Spotify API credentials along with the token state
// persisted by the login command.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	AccessToken  string `toml:"access_token,omitempty"`
	RefreshToken string `toml:"refresh_token,omitempty"`
	TokenExpiry  string `toml:"token_expiry,omitempty"`
	UserID       string `toml:"user_id,omitempty"`
	DisplayName  string `toml:"display_name,omitempty"`
}

// Map returns the client credentials in the form the Spotify service
// constructor consumes.
func (s *SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// Update stores a freshly issued OAuth2 token on the credentials block. The
// refresh token is kept from the previous grant when the provider omits it,
// which Spotify does on refresh.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty oauth token", ErrInvalidCredentials)
	}

	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		s.TokenExpiry = token.Expiry.UTC().Format(time.RFC3339)
	}
	return nil
}

// Token returns the persisted token in the form Authenticate consumes, or
// nil when no login has been saved.
func (s *SpotifyConfig) Token() map[string]string {
	if s.AccessToken == "" {
		return nil
	}
	return map[string]string{
		"access_token":  s.AccessToken,
		"refresh_token": s.RefreshToken,
		"expiry":        s.TokenExpiry,
	}
}

// Expiry parses the persisted token expiry. The zero time means the expiry
// is unknown.
func (s *SpotifyConfig) Expiry() time.Time {
	if s.TokenExpiry == "" {
		return time.Time{}
	}
	expiry, err := time.Parse(time.RFC3339, s.TokenExpiry)
	if err != nil {
		return time.Time{}
	}
	return expiry
}

// Expired reports whether the persisted token is past its recorded expiry.
// An unknown expiry counts as live so the API can reject it instead.
func (s *SpotifyConfig) Expired() bool {
	expiry := s.Expiry()
	return !expiry.IsZero() && time.Now().After(expiry)
}

// NapsterConfig contains Napster API credentials. Username and password feed
// the password grant; they are optional because a destination-only setup
// never authenticates a Napster user.
type NapsterConfig struct {
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	Username  string `toml:"username,omitempty"`
	Password  string `toml:"password,omitempty"`
}

// Map returns the key pair in the form the Napster service constructor
// consumes.
func (n *NapsterConfig) Map() map[string]string {
	return map[string]string{
		"api_key":    n.APIKey,
		"api_secret": n.APISecret,
	}
}

// Token returns the password-grant credentials, or nil when none are
// configured.
func (n *NapsterConfig) Token() map[string]string {
	if n.Username == "" || n.Password == "" {
		return nil
	}
	return map[string]string{
		"username": n.Username,
		"password": n.Password,
	}
}

// DatabaseConfig holds the SQLite path and pool limits.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig holds the HTTP bind address.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr renders the host:port pair the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig contains signing settings for issued session tokens.
type SessionConfig struct {
	Secret     string `toml:"secret"`
	TTLMinutes int    `toml:"ttl_minutes"`
}

// TTL returns the configured session lifetime, or zero when unset so the
// session manager falls back to its default.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(s.TTLMinutes) * time.Minute
}

// SyncConfig tunes the sync engine.
type SyncConfig struct {
	Workers      int     `toml:"workers"`
	RateLimit    float64 `toml:"rate_limit"`
	IncludeSaved bool    `toml:"include_saved"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// LoadEnv loads environment variables from a .env file when one exists.
// A missing file is not an error.
func LoadEnv() {
	_ = godotenv.Load()
}

// LoadConfig reads and parses a TOML configuration file from the specified
// path, then applies SNX_ environment overrides on top of the file values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	LoadEnv()
	if err := config.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return &config, nil
}

// applyEnvOverrides overlays SNX_ environment variables onto the loaded file
// values so credentials can stay out of checked-in config.
func (c *Config) applyEnvOverrides() error {
	set := func(target *string, key string) {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}

	set(&c.Credentials.Spotify.ClientID, "SNX_SPOTIFY_CLIENT_ID")
	set(&c.Credentials.Spotify.ClientSecret, "SNX_SPOTIFY_CLIENT_SECRET")
	set(&c.Credentials.Spotify.RedirectURI, "SNX_SPOTIFY_REDIRECT_URI")
	set(&c.Credentials.Napster.APIKey, "SNX_NAPSTER_API_KEY")
	set(&c.Credentials.Napster.APISecret, "SNX_NAPSTER_API_SECRET")
	set(&c.Credentials.Napster.Username, "SNX_NAPSTER_USERNAME")
	set(&c.Credentials.Napster.Password, "SNX_NAPSTER_PASSWORD")
	set(&c.Database.Path, "SNX_DATABASE_PATH")
	set(&c.Server.Host, "SNX_SERVER_HOST")
	set(&c.Session.Secret, "SNX_SESSION_SECRET")
	set(&c.Logging.Level, "SNX_LOG_LEVEL")
	set(&c.Logging.File, "SNX_LOG_FILE")

	if v := os.Getenv("SNX_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SNX_SERVER_PORT %q is not a number", ErrInvalidConfig, v)
		}
		c.Server.Port = port
	}

	return nil
}

// Validate checks that every setting required to run is present, reporting
// all missing fields at once. Napster credentials are optional: only flows
// that reach Napster need them, and the service reports its own missing
// credentials.
func (c *Config) Validate() error {
	var missing []string

	if c.Credentials.Spotify.ClientID == "" {
		missing = append(missing, "credentials.spotify.client_id")
	}
	if c.Credentials.Spotify.ClientSecret == "" {
		missing = append(missing, "credentials.spotify.client_secret")
	}
	if c.Database.Path == "" {
		missing = append(missing, "database.path")
	}
	if c.Session.Secret == "" {
		missing = append(missing, "session.secret")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

// DefaultConfig decodes the embedded example config and returns it.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("embedded default config does not parse: %v", err))
	}
	return &config
}

// SaveConfig writes the configuration back to path as TOML. The file is
// written with owner-only permissions because it carries tokens after login.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

// CreateConfigFile writes the embedded example config to path, refusing
// to clobber an existing file.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}
