// Napster API implementation of [Service]
//
// Napster API response types based on https://developer.napster.com/api/v2.2
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/snx/internal/shared"
)

const (
	napsterTokenURL   = "https://api.napster.com/oauth/token"
	napsterRefreshURL = "https://api.napster.com/oauth/access_token"
	napsterBaseURL    = "https://api.napster.com/v2.2"

	// Napster accepts windows up to 200 items on library endpoints.
	napsterMaxPageLimit = 200
)

// NapsterAccount represents a Napster account profile.
type NapsterAccount struct {
	ID         string `json:"id"`
	RealName   string `json:"realName"`
	ScreenName string `json:"screenName"`
	Email      string `json:"email"`
	Country    string `json:"country"`
}

type napsterAccountEnvelope struct {
	Account NapsterAccount `json:"account"`
}

// NapsterPlaylist represents a playlist in a Napster library.
type NapsterPlaylist struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Privacy       string `json:"privacy"`
	TrackCount    int    `json:"trackCount"`
	FavoriteCount int    `json:"favoriteCount"`
}

// NapsterTrack represents a Napster track.
type NapsterTrack struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	ArtistName      string  `json:"artistName"`
	AlbumName       string  `json:"albumName"`
	AlbumID         string  `json:"albumId"`
	PlaybackSeconds float64 `json:"playbackSeconds"`
	ISRC            string  `json:"isrc"`
}

// napsterMeta carries the pagination envelope Napster attaches to listings.
type napsterMeta struct {
	TotalCount    int `json:"totalCount"`
	ReturnedCount int `json:"returnedCount"`
}

type napsterPlaylistsPage struct {
	Playlists []NapsterPlaylist `json:"playlists"`
	Meta      napsterMeta       `json:"meta"`
}

type napsterTracksPage struct {
	Tracks []NapsterTrack `json:"tracks"`
	Meta   napsterMeta    `json:"meta"`
}

type napsterTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// NapsterService implements the Service interface for Napster API interactions.
//
// Napster's OAuth flow is a password grant against the developer key pair, so
// the service holds the key pair alongside the bearer token and refreshes the
// token itself when it lapses.
type NapsterService struct {
	apiKey       string
	apiSecret    string
	accessToken  string
	refreshToken string
	expiry       time.Time
	httpClient   *http.Client
}

// NewNapsterService creates a new Napster service with the given API key pair.
func NewNapsterService(credentials map[string]string) (*NapsterService, error) {
	apiKey, ok := credentials["api_key"]
	if !ok || apiKey == "" {
		return nil, fmt.Errorf("%w: missing api_key", shared.ErrMissingCredentials)
	}

	apiSecret, ok := credentials["api_secret"]
	if !ok || apiSecret == "" {
		return nil, fmt.Errorf("%w: missing api_secret", shared.ErrMissingCredentials)
	}

	return &NapsterService{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: http.DefaultClient,
	}, nil
}

// Authenticate obtains a bearer token for the Napster API. Accepts either a
// previously issued "access_token" (optionally with "refresh_token" and
// "expiry") or a "username"/"password" pair for the password grant.
func (n *NapsterService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		n.accessToken = accessToken
		n.refreshToken = credentials["refresh_token"]
		if expiry := credentials["expiry"]; expiry != "" {
			if t, err := time.Parse(time.RFC3339, expiry); err == nil {
				n.expiry = t
			}
		}
		return nil
	}

	username := credentials["username"]
	password := credentials["password"]
	if username == "" || password == "" {
		return fmt.Errorf("%w: missing access_token or username/password in credentials", shared.ErrMissingCredentials)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, napsterTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(n.apiKey, n.apiSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return n.requestToken(req)
}

// refreshAccessToken swaps the refresh token for a new bearer token.
func (n *NapsterService) refreshAccessToken(ctx context.Context) error {
	if n.refreshToken == "" {
		return fmt.Errorf("%w: napster session lapsed", shared.ErrNoRefreshToken)
	}

	form := url.Values{}
	form.Set("client_id", n.apiKey)
	form.Set("client_secret", n.apiSecret)
	form.Set("response_type", "code")
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", n.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, napsterRefreshURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := n.requestToken(req); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return nil
}

func (n *NapsterService) requestToken(req *http.Request) error {
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: napster token endpoint returned status %d", shared.ErrAuthFailed, resp.StatusCode)
	}

	var token napsterTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("%w: failed to decode token response: %v", shared.ErrAPIRequest, err)
	}

	n.accessToken = token.AccessToken
	n.refreshToken = token.RefreshToken
	if token.ExpiresIn > 0 {
		n.expiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	return nil
}

func (n *NapsterService) Name() string {
	return "napster"
}

// doRequest performs an authenticated HTTP request to the Napster API,
// renewing the bearer token first when it has lapsed.
func (n *NapsterService) doRequest(ctx context.Context, method, endpoint string, result interface{}) error {
	if n.accessToken == "" {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if !n.expiry.IsZero() && time.Now().After(n.expiry) {
		if err := n.refreshAccessToken(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, napsterBaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+n.accessToken)
	req.Header.Set("apikey", n.apiKey)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: napster returned status 401", shared.ErrTokenExpired)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: napster returned status 403", shared.ErrAuthFailed)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: napster returned status %d", shared.ErrServiceUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: napster returned status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
		}
	}

	return nil
}

// Account retrieves the authenticated account.
func (n *NapsterService) Account(ctx context.Context) (*NapsterAccount, error) {
	var envelope napsterAccountEnvelope
	if err := n.doRequest(ctx, "GET", "/me/account", &envelope); err != nil {
		return nil, err
	}
	return &envelope.Account, nil
}

// LibraryPlaylists retrieves one page of the account's library playlists.
func (n *NapsterService) LibraryPlaylists(ctx context.Context, limit, offset int) (*napsterPlaylistsPage, error) {
	endpoint := fmt.Sprintf("/me/library/playlists?limit=%d&offset=%d", napsterClampLimit(limit), offset)

	var page napsterPlaylistsPage
	if err := n.doRequest(ctx, "GET", endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// LibraryPlaylistTracks retrieves one page of a library playlist's tracks.
func (n *NapsterService) LibraryPlaylistTracks(ctx context.Context, playlistID string, limit, offset int) (*napsterTracksPage, error) {
	endpoint := fmt.Sprintf("/me/library/playlists/%s/tracks?limit=%d&offset=%d", url.PathEscape(playlistID), napsterClampLimit(limit), offset)

	var page napsterTracksPage
	if err := n.doRequest(ctx, "GET", endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// LibraryTracks retrieves one page of the account's favorited tracks.
func (n *NapsterService) LibraryTracks(ctx context.Context, limit, offset int) (*napsterTracksPage, error) {
	endpoint := fmt.Sprintf("/me/library/tracks?limit=%d&offset=%d", napsterClampLimit(limit), offset)

	var page napsterTracksPage
	if err := n.doRequest(ctx, "GET", endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func napsterClampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > napsterMaxPageLimit {
		return napsterMaxPageLimit
	}
	return limit
}

// Service interface implementation

// GetProfile retrieves the authenticated account as a provider profile.
func (n *NapsterService) GetProfile(ctx context.Context) (*Profile, error) {
	account, err := n.Account(ctx)
	if err != nil {
		return nil, err
	}

	displayName := account.ScreenName
	if displayName == "" {
		displayName = account.RealName
	}

	return &Profile{
		ID:          account.ID,
		DisplayName: displayName,
		Email:       account.Email,
		Raw:         rawJSON(account),
	}, nil
}

// GetPlaylists retrieves all playlists in the account's library. Napster does
// not report an owner for library playlists, so OwnerID is left empty.
func (n *NapsterService) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	items, err := FetchAll(ctx, defaultPageLimit, func(ctx context.Context, limit, offset int) (Page[NapsterPlaylist], error) {
		page, err := n.LibraryPlaylists(ctx, limit, offset)
		if err != nil {
			return Page[NapsterPlaylist]{}, err
		}
		return Page[NapsterPlaylist]{Items: page.Playlists, Total: page.Meta.TotalCount}, nil
	})
	if err != nil {
		return nil, err
	}

	playlists := make([]Playlist, 0, len(items))
	for _, np := range items {
		playlists = append(playlists, Playlist{
			ID:          np.ID,
			Name:        np.Name,
			Description: np.Description,
			TrackCount:  np.TrackCount,
			Public:      np.Privacy == "public",
			Raw:         rawJSON(np),
		})
	}

	return playlists, nil
}

// GetPlaylistTracks retrieves the full ordered track list of one library playlist.
func (n *NapsterService) GetPlaylistTracks(ctx context.Context, playlistID string) ([]Track, error) {
	items, err := FetchAll(ctx, defaultPageLimit, func(ctx context.Context, limit, offset int) (Page[NapsterTrack], error) {
		page, err := n.LibraryPlaylistTracks(ctx, playlistID, limit, offset)
		if err != nil {
			return Page[NapsterTrack]{}, err
		}
		return Page[NapsterTrack]{Items: page.Tracks, Total: page.Meta.TotalCount}, nil
	})
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(items))
	for _, nt := range items {
		tracks = append(tracks, napsterTrackDTO(nt))
	}

	return tracks, nil
}

// GetSavedTracks retrieves the account's favorited tracks.
func (n *NapsterService) GetSavedTracks(ctx context.Context) ([]Track, error) {
	items, err := FetchAll(ctx, defaultPageLimit, func(ctx context.Context, limit, offset int) (Page[NapsterTrack], error) {
		page, err := n.LibraryTracks(ctx, limit, offset)
		if err != nil {
			return Page[NapsterTrack]{}, err
		}
		return Page[NapsterTrack]{Items: page.Tracks, Total: page.Meta.TotalCount}, nil
	})
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(items))
	for _, nt := range items {
		tracks = append(tracks, napsterTrackDTO(nt))
	}

	return tracks, nil
}

func napsterTrackDTO(nt NapsterTrack) Track {
	return Track{
		ID:         nt.ID,
		Title:      nt.Name,
		Artist:     nt.ArtistName,
		Album:      nt.AlbumName,
		DurationMS: int(nt.PlaybackSeconds * 1000),
		ISRC:       nt.ISRC,
		Raw:        rawJSON(nt),
	}
}
