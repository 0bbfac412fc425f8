package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/snx/internal/services"
	"github.com/desertthunder/snx/internal/session"
	"github.com/desertthunder/snx/internal/shared"
	"github.com/desertthunder/snx/internal/tasks"
)

// stateTTL bounds how long a login state token stays redeemable.
const stateTTL = 10 * time.Minute

// shutdownTimeout bounds graceful shutdown when the serve context is cancelled.
const shutdownTimeout = 5 * time.Second

// ServiceFactory builds the read client for a provider so each request can
// sync against the provider its session belongs to.
type ServiceFactory func(provider string) (services.Service, error)

// API serves the sync service's web surface: the OAuth login dance, the
// session-authenticated sync trigger, and library reads over the store.
type API struct {
	config   *shared.Config
	sessions *session.Manager
	store    tasks.Store
	opts     tasks.EngineOpts
	source   ServiceFactory
	logger   *log.Logger

	mu     sync.Mutex
	states map[string]time.Time
}

// NewAPI wires the web surface over the session manager, the store, and a
// provider service factory.
func NewAPI(config *shared.Config, sessions *session.Manager, store tasks.Store, opts tasks.EngineOpts, source ServiceFactory, logger *log.Logger) *API {
	if logger == nil {
		logger = shared.NewLogger(os.Stderr)
	}

	return &API{
		config:   config,
		sessions: sessions,
		store:    store,
		opts:     opts,
		source:   source,
		logger:   logger,
		states:   map[string]time.Time{},
	}
}

// Router builds the route table with request logging applied to every route
// and session verification applied to the protected ones.
func (a *API) Router() *BasicRouter {
	router := NewBasicRouter()
	router.Use(RequestLogger(a.logger))

	router.HandleFunc(http.MethodGet, "/health", a.handleHealth)
	router.HandleFunc(http.MethodGet, "/auth/login", a.handleLogin)
	router.HandleFunc(http.MethodGet, "/auth/callback", a.handleCallback)

	readSession := RequireSession(a.sessions, session.ScopeLibraryRead)
	syncSession := RequireSession(a.sessions, session.ScopeLibraryRead, session.ScopeSyncWrite)

	router.Handle(http.MethodPost, "/sync", syncSession(http.HandlerFunc(a.handleSync)))
	router.Handle(http.MethodGet, "/library/playlists", readSession(http.HandlerFunc(a.handleLibrary)))

	return router
}

// Serve runs the API server until ctx is cancelled, then shuts down gracefully.
func (a *API) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:    a.config.Server.Addr(),
		Handler: a.Router(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.logger.Info("api server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLogin starts the authorization code flow by redirecting the browser
// to the provider's consent page with a single-use state token.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = "spotify"
	}

	oauthSvc, err := a.oauthService(provider)
	if err != nil {
		writeError(w, err)
		return
	}

	state := shared.GenerateState()
	a.rememberState(state)
	http.Redirect(w, r, oauthSvc.GetAuthURL(state), http.StatusFound)
}

// handleCallback finishes the authorization code flow: it validates the state
// token, exchanges the code, and answers with a signed session token the
// client presents as a bearer credential from then on.
func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if !a.consumeState(query.Get("state")) {
		writeError(w, fmt.Errorf("%w: state parameter mismatch", shared.ErrAuthFailed))
		return
	}

	code := query.Get("code")
	if code == "" {
		writeError(w, fmt.Errorf("%w: authorization denied: %s", shared.ErrAuthFailed, query.Get("error")))
		return
	}

	// The callback URL carries no provider hint, and only Spotify uses the
	// browser flow.
	oauthSvc, err := a.oauthService("spotify")
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := oauthSvc.GetOAuthConfig().Exchange(r.Context(), code)
	if err != nil {
		writeError(w, fmt.Errorf("%w: token exchange failed: %v", shared.ErrAuthFailed, err))
		return
	}

	if err := oauthSvc.Authenticate(r.Context(), map[string]string{
		"access_token":  token.AccessToken,
		"refresh_token": token.RefreshToken,
		"expiry":        token.Expiry.Format(time.RFC3339),
	}); err != nil {
		writeError(w, err)
		return
	}

	profile, err := oauthSvc.GetProfile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	ttl := a.config.Session.TTL()
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}

	signed, err := a.sessions.Issue(session.Identity{
		Provider:     oauthSvc.Name(),
		UserID:       profile.ID,
		DisplayName:  profile.DisplayName,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scopes:       []string{session.ScopeLibraryRead, session.ScopeSyncWrite},
	}, ttl)
	if err != nil {
		writeError(w, err)
		return
	}

	a.logger.Info("issued session", "provider", oauthSvc.Name(), "user", profile.ID)

	writeJSON(w, http.StatusOK, loginResponse{
		Token:       signed,
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().UTC().Add(ttl),
		Provider:    oauthSvc.Name(),
		UserID:      profile.ID,
		DisplayName: profile.DisplayName,
	})
}

// handleSync runs one sync pass for the bearer session. Force and saved-track
// behavior come from the force and saved query parameters.
func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	sess := SessionFrom(r.Context())
	if sess == nil {
		writeError(w, fmt.Errorf("%w: no session on request", shared.ErrNotAuthenticated))
		return
	}

	source, err := a.source(sess.Provider)
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()
	opts := tasks.SyncOptions{}
	opts.Force, _ = strconv.ParseBool(query.Get("force"))
	opts.IncludeSaved, _ = strconv.ParseBool(query.Get("saved"))

	engine := tasks.NewLibraryEngine(source, a.store, a.opts)
	result, err := engine.Sync(r.Context(), sess, opts, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleLibrary answers with the stored library snapshot for the bearer
// session's user. Reads never touch the provider.
func (a *API) handleLibrary(w http.ResponseWriter, r *http.Request) {
	sess := SessionFrom(r.Context())
	if sess == nil {
		writeError(w, fmt.Errorf("%w: no session on request", shared.ErrNotAuthenticated))
		return
	}

	engine := tasks.NewLibraryEngine(nil, a.store, a.opts)
	snapshot, err := engine.Snapshot(r.Context(), sess.Provider, sess.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// oauthService resolves a provider client and requires browser-login support.
func (a *API) oauthService(provider string) (services.OAuthService, error) {
	svc, err := a.source(provider)
	if err != nil {
		return nil, err
	}

	oauthSvc, ok := svc.(services.OAuthService)
	if !ok {
		return nil, fmt.Errorf("%w: provider %s does not support browser login", shared.ErrInvalidInput, provider)
	}

	return oauthSvc, nil
}

// rememberState registers a login state token and sweeps expired ones.
func (a *API) rememberState(state string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	for s, expiry := range a.states {
		if now.After(expiry) {
			delete(a.states, s)
		}
	}
	a.states[state] = now.Add(stateTTL)
}

// consumeState redeems a state token. Tokens are single use: a second
// callback with the same state fails even when the first one did too.
func (a *API) consumeState(state string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	expiry, ok := a.states[state]
	delete(a.states, state)
	return ok && time.Now().Before(expiry)
}

// loginResponse is the payload a successful callback answers with.
type loginResponse struct {
	Token       string    `json:"token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Provider    string    `json:"provider"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
}

// errorPayload is the structured failure body every endpoint answers with.
type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders a failure as its {kind, message} payload. Lookup misses
// map to 404 and input validation to 400; everything else takes the status of
// its kind.
func writeError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	status := statusFor(kind)

	switch {
	case errors.Is(err, shared.ErrUserNotFound),
		errors.Is(err, shared.ErrPlaylistNotFound),
		errors.Is(err, shared.ErrTrackNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidArgument):
		status = http.StatusBadRequest
	}

	writeJSON(w, status, errorPayload{Kind: kind, Message: err.Error()})
}

// statusFor maps an error kind onto the HTTP status it surfaces as.
func statusFor(kind string) int {
	switch kind {
	case shared.KindAuthenticationRequired:
		return http.StatusUnauthorized
	case shared.KindUpstreamAPIError:
		return http.StatusBadGateway
	case shared.KindPersistenceError, shared.KindConfigurationError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
