// package services defines interface Service for reading music provider libraries
//
// Spotify, Napster
package services

import (
	"context"
	"encoding/json"

	"golang.org/x/oauth2"
)

// Service is the read-side client for a music provider. Implementations
// authenticate once per process and then expose the profile, playlist and
// track listings the sync engine consumes.
type Service interface {
	// Authenticate performs OAuth or API key authentication with the provider.
	// Returns an error if authentication fails.
	Authenticate(ctx context.Context, credentials map[string]string) error

	// GetProfile retrieves the authenticated user's profile.
	GetProfile(ctx context.Context) (*Profile, error)

	// GetPlaylists retrieves all playlists for the authenticated user,
	// walking every page of the provider's listing.
	GetPlaylists(ctx context.Context) ([]Playlist, error)

	// GetPlaylistTracks retrieves the full ordered track list of one playlist.
	GetPlaylistTracks(ctx context.Context, playlistID string) ([]Track, error)

	// GetSavedTracks retrieves the user's saved ("liked") tracks.
	GetSavedTracks(ctx context.Context) ([]Track, error)

	// Name returns the lowercase provider key (e.g., "spotify", "napster").
	// The key doubles as the owner id providers assign to their own editorial
	// playlists, which is how the sync engine recognizes and skips them.
	Name() string
}

// OAuthService extends Service for providers that authenticate users through
// an OAuth2 authorization code flow.
type OAuthService interface {
	Service

	// GetAuthURL returns the provider's authorization URL carrying the state token.
	GetAuthURL(state string) string

	// GetOAuthConfig exposes the OAuth2 config so a callback handler can
	// exchange the authorization code itself.
	GetOAuthConfig() *oauth2.Config
}

// Profile represents an authenticated user's account on any provider.
type Profile struct {
	ID          string
	DisplayName string
	Email       string
	Raw         json.RawMessage
}

// Playlist represents a music playlist from any provider.
type Playlist struct {
	ID          string
	Name        string
	Description string
	OwnerID     string
	TrackCount  int
	Public      bool
	Raw         json.RawMessage
}

// Track represents a music track from any provider.
type Track struct {
	ID         string
	Title      string
	Artist     string
	Album      string
	DurationMS int
	ISRC       string // International Standard Recording Code for matching
	Raw        json.RawMessage
}

// rawJSON re-encodes a provider response object so each DTO carries the
// document it was built from. Encoding the typed struct rather than the
// response bytes keeps the payload deterministic across passes.
func rawJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
