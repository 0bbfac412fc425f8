package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/snx/internal/server"
	"github.com/desertthunder/snx/internal/services"
	"github.com/desertthunder/snx/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// AuthLogin runs the OAuth2 authorization flow against Spotify and persists
// the resulting tokens and profile into the config file.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrMissingCredentials, r.configPath)
	}

	svc, err := r.spotifyService(config)
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}

	oauthSvc, ok := svc.(services.OAuthService)
	if !ok {
		return fmt.Errorf("%w: provider does not support browser login", shared.ErrInvalidArgument)
	}

	token, err := r.doOAuth(ctx, config, oauthSvc, "authorization")
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}

	// Record who logged in so store reads can resolve the user without a
	// provider round trip.
	if err := svc.Authenticate(ctx, config.Credentials.Spotify.Token()); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	profile, err := svc.GetProfile(ctx)
	if err != nil {
		return err
	}
	config.Credentials.Spotify.UserID = profile.ID
	config.Credentials.Spotify.DisplayName = profile.DisplayName
	if r.configPath != "" {
		if err := shared.SaveConfig(r.configPath, config); err != nil {
			return err
		}
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Logged in as %s (%s)\n", profile.DisplayName, profile.ID)
	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("You can now run: snx sync run\n")
	return nil
}

// AuthStatus reports the persisted login state without contacting the provider.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)
	spotify := config.Credentials.Spotify

	if cmd.Bool("json") {
		status := map[string]any{
			"provider":      "spotify",
			"authenticated": spotify.AccessToken != "",
			"expired":       spotify.Expired(),
		}
		if spotify.UserID != "" {
			status["user_id"] = spotify.UserID
			status["display_name"] = spotify.DisplayName
		}
		if expiry := spotify.Expiry(); !expiry.IsZero() {
			status["expires_at"] = expiry.Format(time.RFC3339)
		}
		return r.writeJSON(status, cmd.Bool("pretty"))
	}

	if spotify.AccessToken == "" {
		r.writePlain("✗ Not logged in\n")
		r.writePlain("Run 'snx auth login' to authorize with Spotify.\n")
		return nil
	}

	if spotify.DisplayName != "" {
		r.writePlain("✓ Logged in as %s (%s)\n", spotify.DisplayName, spotify.UserID)
	} else {
		r.writePlain("✓ Logged in\n")
	}

	switch expiry := spotify.Expiry(); {
	case expiry.IsZero():
		r.writePlain("Token expiry: unknown\n")
	case spotify.Expired():
		r.writePlain("Token: ✗ expired at %s\n", expiry.Format(time.RFC3339))
		if spotify.RefreshToken != "" {
			r.writePlain("The saved refresh token renews it on the next command.\n")
		} else {
			r.writePlain("Run 'snx auth login' to reauthorize.\n")
		}
	default:
		r.writePlain("Token: ✓ valid until %s\n", expiry.Format(time.RFC3339))
	}
	return nil
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, config *shared.Config, oauthSrv services.OAuthService, prefix string) (*oauth2.Token, error) {
	state := shared.GenerateState()

	authURL := oauthSrv.GetAuthURL(state)
	oauthHandler := server.NewOAuthHandler(oauthSrv.GetOAuthConfig(), state)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	httpServer := &http.Server{
		Addr:    config.Server.Addr(),
		Handler: router,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server for %s at %v", prefix, httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(2 * time.Minute)
	defer timeout.Stop()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
		// Got result from callback
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "error", err)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("no token received")
	}

	return result.Token, nil
}

// handleAuthError triggers a browser reauthorization when err is an expired
// or unrefreshable token. Reports whether the caller should retry the
// operation that failed.
func (r *Runner) handleAuthError(ctx context.Context, err error) (bool, error) {
	if err == nil {
		return false, nil
	}

	if !errors.Is(err, shared.ErrTokenExpired) && !errors.Is(err, shared.ErrRefreshFailed) {
		return false, err
	}

	r.writePlainln("⚠ Authentication token expired. Starting reauthorization...")

	if r.config == nil {
		return false, fmt.Errorf("%w: no configuration loaded", shared.ErrMissingConfig)
	}

	oauthSvc, ok := r.spotify.(services.OAuthService)
	if !ok {
		return false, fmt.Errorf("%w: provider does not support browser login", shared.ErrInvalidArgument)
	}

	token, reauthErr := r.doOAuth(ctx, r.config, oauthSvc, "reauthorization")
	if reauthErr != nil {
		return false, fmt.Errorf("reauthorization failed: %w", reauthErr)
	}

	if err := r.saveTokens(token); err != nil {
		return false, err
	}

	r.writePlainln("✓ Successfully reauthenticated. Retrying operation...")
	return true, nil
}
