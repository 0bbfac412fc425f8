package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/snx/internal/repositories"
	"github.com/desertthunder/snx/internal/services"
	"github.com/desertthunder/snx/internal/session"
	"github.com/desertthunder/snx/internal/shared"
	"github.com/desertthunder/snx/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultConfigPath = "config.toml"

// Runner carries the dependencies every CLI command action draws on.
type Runner struct {
	config     *shared.Config
	configPath string
	db         *sql.DB
	store      tasks.Store
	spotify    services.Service
	napster    services.Service
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts seeds a Runner. Zero fields fall back to ambient defaults.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Spotify    services.Service
	Napster    services.Service
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner builds a Runner, filling in the logger, output, and HTTP
// client when the caller leaves them unset.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		spotify:    opts.Spotify,
		napster:    opts.Napster,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// SetLogger swaps the runner's logger, used to redirect logs away from the
// terminal while the TUI owns the screen.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	return []*cli.Command{
		setupCommand(r),
		authCommand(r),
		syncCommand(r),
		libraryCommand(r),
		diffCommand(r),
		exportCommand(r),
		serveCommand(r),
		tuiCommand(r),
	}
}

// loadConfig resolves the effective configuration for a command invocation.
// An injected config wins, then the --config file, then embedded defaults.
func (r *Runner) loadConfig(cmd *cli.Command) *shared.Config {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if r.configPath == "" {
		r.configPath = defaultConfigPath
	}

	if r.config == nil {
		if _, err := os.Stat(r.configPath); err == nil {
			if config, err := shared.LoadConfig(r.configPath); err == nil {
				r.config = config
			} else {
				r.logger.Warnf("failed to load config, using defaults %v", err)
			}
		}
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}

	shared.SetLogLevel(r.logger, shared.ParseLogLevel(r.config.Logging.Level))
	return r.config
}

// openStore opens the SQLite store and wires the repository set. Migrations
// are idempotent, so running them on open keeps every command usable against
// a fresh database. Call closeStore when the command finishes.
func (r *Runner) openStore(config *shared.Config) (tasks.Store, error) {
	if r.db != nil {
		return r.store, nil
	}

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return tasks.Store{}, fmt.Errorf("failed to open database: %w", err)
	}

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return tasks.Store{}, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db = db
	r.store = tasks.Store{
		Users:     repositories.NewUserRepository(db),
		Tracks:    repositories.NewTrackRepository(db),
		Playlists: repositories.NewPlaylistRepository(db),
		Jobs:      repositories.NewSyncJobRepository(db),
	}
	return r.store, nil
}

func (r *Runner) closeStore() {
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			r.logger.Warn("failed to close database", "error", err)
		}
		r.db = nil
	}
}

func (r *Runner) engineOpts(config *shared.Config) tasks.EngineOpts {
	return tasks.EngineOpts{
		Workers:   config.Sync.Workers,
		RateLimit: config.Sync.RateLimit,
	}
}

// spotifyService lazily builds the Spotify client from config credentials.
// Tokens the client refreshes mid-command are written back through saveTokens
// so the next invocation starts from the fresh grant.
func (r *Runner) spotifyService(config *shared.Config) (services.Service, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	svc, err := services.NewSpotifyService(config.Credentials.Spotify.Map())
	if err != nil {
		return nil, err
	}
	svc.SetTokenRefreshCallback(func(token *oauth2.Token) {
		if err := r.saveTokens(token); err != nil {
			r.logger.Warn("failed to persist refreshed token", "error", err)
		}
	})

	r.spotify = svc
	return svc, nil
}

func (r *Runner) napsterService(config *shared.Config) (services.Service, error) {
	if r.napster != nil {
		return r.napster, nil
	}

	svc, err := services.NewNapsterService(config.Credentials.Napster.Map())
	if err != nil {
		return nil, err
	}

	r.napster = svc
	return svc, nil
}

// resolveService resolves a provider name to its corresponding Service instance.
func (r *Runner) resolveService(config *shared.Config, name string) (services.Service, error) {
	switch name {
	case "", "spotify":
		return r.spotifyService(config)
	case "napster":
		return r.napsterService(config)
	default:
		return nil, fmt.Errorf("%w: unknown provider '%s' (must be 'spotify' or 'napster')", shared.ErrInvalidArgument, name)
	}
}

// sessionFromConfig rebuilds a session from the token state the login
// command persisted. A token paired with a refresh token is not held to its
// recorded expiry, because the client renews it on first use.
func (r *Runner) sessionFromConfig(config *shared.Config) (*session.Session, error) {
	spotify := config.Credentials.Spotify
	if spotify.AccessToken == "" {
		return nil, fmt.Errorf("%w: no saved login, run 'snx auth login' first", shared.ErrNotAuthenticated)
	}

	sess := &session.Session{
		Identity: session.Identity{
			Provider:     "spotify",
			UserID:       spotify.UserID,
			DisplayName:  spotify.DisplayName,
			AccessToken:  spotify.AccessToken,
			RefreshToken: spotify.RefreshToken,
			Scopes:       []string{session.ScopeLibraryRead, session.ScopeSyncWrite},
		},
	}
	if spotify.RefreshToken == "" {
		sess.ExpiresAt = spotify.Expiry()
	}
	return sess, nil
}

// saveTokens persists freshly issued tokens into the loaded config file.
// With no config path the update stays in memory, which keeps tests and
// ephemeral runs from touching the filesystem.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("config is nil")
	}

	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}

	if r.configPath == "" {
		return nil
	}
	return shared.SaveConfig(r.configPath, r.config)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("write trailing newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	if _, err := fmt.Fprintf(r.output, format, args...); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	return r.writePlain("\n"+format+"\n", args...)
}

func (r *Runner) writePlainHeader(title string) {
	rule := strings.Repeat("═", 39)
	r.writePlain("%s\n%v\n%s\n", rule, title, rule)
}
