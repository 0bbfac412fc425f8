package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/desertthunder/snx/internal/shared"
	"golang.org/x/oauth2"
)

// roundTripFunc adapts a function into an [http.RoundTripper] so tests can
// serve canned API responses per request.
type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// authedSpotify returns a Spotify service authenticated with a static token
// whose HTTP traffic is answered by handler.
func authedSpotify(t *testing.T, handler roundTripFunc) *SpotifyService {
	t.Helper()

	srv, err := NewSpotifyService(map[string]string{
		"client_id":     "cid_abc123",
		"client_secret": "csec_def456",
	})
	if err != nil {
		t.Fatalf("NewSpotifyService: %v", err)
	}

	if err := srv.Authenticate(context.Background(), map[string]string{"access_token": "tok_live_1"}); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	srv.httpClient = &http.Client{Transport: handler}
	return srv
}

// spotifyPlaylistsPage builds one marshaled playlist page with count items
// starting at offset, out of an advertised total.
func spotifyPlaylistsPage(t *testing.T, offset, count, total int) string {
	t.Helper()

	page := SpotifyPaginatedPlaylists{Total: total, Limit: defaultPageLimit, Offset: offset}
	for i := offset; i < offset+count; i++ {
		page.Items = append(page.Items, SpotifySimplePlaylist{
			ID:     fmt.Sprintf("pl_%03d", i),
			Name:   fmt.Sprintf("Playlist %d", i),
			Owner:  Owner{ID: "user_1", DisplayName: "Test User"},
			Tracks: simplePlaylistTrack{Total: i + 1},
		})
	}

	data, err := json.Marshal(page)
	if err != nil {
		t.Fatalf("failed to marshal playlist page: %v", err)
	}
	return string(data)
}

func TestSpotifyService(t *testing.T) {
	t.Run("NewSpotifyService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			credentials := map[string]string{
				"client_id":     "cid_abc123",
				"client_secret": "csec_def456",
				"redirect_uri":  "http://localhost:9000/callback",
			}

			srv, err := NewSpotifyService(credentials)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if srv == nil {
				t.Fatal("expected a non-nil service")
			}

			if srv.Name() != "spotify" {
				t.Errorf("Name() = %s, want spotify", srv.Name())
			}

			if srv.config.RedirectURL != "http://localhost:9000/callback" {
				t.Errorf("expected configured redirect URI, got %s", srv.config.RedirectURL)
			}
		})

		t.Run("Missing Client ID", func(t *testing.T) {
			credentials := map[string]string{
				"client_secret": "csec_def456",
			}

			_, err := NewSpotifyService(credentials)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("want ErrMissingCredentials without client_id, got %v", err)
			}
		})

		t.Run("Missing Client Secret", func(t *testing.T) {
			credentials := map[string]string{
				"client_id": "cid_abc123",
			}

			_, err := NewSpotifyService(credentials)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("want ErrMissingCredentials without client_secret, got %v", err)
			}
		})

		t.Run("Default Redirect URI", func(t *testing.T) {
			credentials := map[string]string{
				"client_id":     "cid_abc123",
				"client_secret": "csec_def456",
			}

			srv, err := NewSpotifyService(credentials)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if srv.config.RedirectURL != "http://localhost:8080/auth/callback" {
				t.Errorf("expected default redirect URI, got %s", srv.config.RedirectURL)
			}
		})
	})

	t.Run("Get AuthURL", func(t *testing.T) {
		credentials := map[string]string{
			"client_id":     "cid_abc123",
			"client_secret": "csec_def456",
		}

		srv, err := NewSpotifyService(credentials)
		if err != nil {
			t.Fatalf("NewSpotifyService: %v", err)
		}

		authURL := srv.GetAuthURL("state_abc")
		if authURL == "" {
			t.Error("expected a non-empty auth URL")
		}

		if !strings.Contains(authURL, "accounts.spotify.com") {
			t.Error("expected the accounts.spotify.com host in the auth URL")
		}
		if !strings.Contains(authURL, "cid_abc123") {
			t.Error("expected the client id in the auth URL")
		}
		if !strings.Contains(authURL, "state_abc") {
			t.Error("expected the state parameter in the auth URL")
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		credentials := map[string]string{
			"client_id":     "cid_abc123",
			"client_secret": "csec_def456",
		}

		srv, err := NewSpotifyService(credentials)
		if err != nil {
			t.Fatalf("NewSpotifyService: %v", err)
		}

		t.Run("WithAccessToken", func(t *testing.T) {
			creds := map[string]string{
				"access_token": "tok_live_1",
			}

			err := srv.Authenticate(context.Background(), creds)
			if err != nil {
				t.Errorf("Authenticate with access token: %v", err)
			}

			if srv.token == nil {
				t.Fatal("expected a stored token")
			}

			if srv.token.AccessToken != "tok_live_1" {
				t.Errorf("stored access token = %s, want tok_live_1", srv.token.AccessToken)
			}
		})

		t.Run("With Refresh Token", func(t *testing.T) {
			creds := map[string]string{
				"access_token":  "tok_live_1",
				"refresh_token": "tok_refresh_1",
			}

			err := srv.Authenticate(context.Background(), creds)
			if err != nil {
				t.Errorf("expected no error, got %v", err)
			}

			if srv.token.RefreshToken != "tok_refresh_1" {
				t.Errorf("expected refresh token to be kept, got %s", srv.token.RefreshToken)
			}
		})

		t.Run("Missing Credentials", func(t *testing.T) {
			creds := map[string]string{}

			err := srv.Authenticate(context.Background(), creds)
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("want ErrMissingCredentials for empty credentials, got %v", err)
			}
		})
	})

	t.Run("Service Interface", func(t *testing.T) {
		credentials := map[string]string{
			"client_id":     "cid_abc123",
			"client_secret": "csec_def456",
		}

		srv, err := NewSpotifyService(credentials)
		if err != nil {
			t.Fatalf("NewSpotifyService: %v", err)
		}

		var _ Service = srv
	})

	t.Run("Not Authenticated", func(t *testing.T) {
		srv, err := NewSpotifyService(map[string]string{
			"client_id":     "cid_abc123",
			"client_secret": "csec_def456",
		})
		if err != nil {
			t.Fatalf("NewSpotifyService: %v", err)
		}

		_, err = srv.GetProfile(context.Background())
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated before Authenticate, got %v", err)
		}
	})

	t.Run("GetProfile", func(t *testing.T) {
		srv := authedSpotify(t, func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/v1/me" {
				t.Errorf("unexpected request path %s", req.URL.Path)
			}
			if got := req.Header.Get("Authorization"); got != "Bearer tok_live_1" {
				t.Errorf("expected bearer auth header, got %q", got)
			}
			return jsonResponse(http.StatusOK, `{"id":"user_1","display_name":"Test User","email":"user@example.com","country":"US"}`), nil
		})

		profile, err := srv.GetProfile(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if profile.ID != "user_1" {
			t.Errorf("expected profile id 'user_1', got %s", profile.ID)
		}
		if profile.DisplayName != "Test User" {
			t.Errorf("expected display name 'Test User', got %s", profile.DisplayName)
		}
		if profile.Email != "user@example.com" {
			t.Errorf("expected email to be mapped, got %s", profile.Email)
		}
		if !json.Valid(profile.Raw) || len(profile.Raw) <= 2 {
			t.Error("expected raw payload to carry the provider response")
		}
	})

	t.Run("GetPlaylists", func(t *testing.T) {
		t.Run("Collects All Pages", func(t *testing.T) {
			srv := authedSpotify(t, func(req *http.Request) (*http.Response, error) {
				if req.URL.Path != "/v1/me/playlists" {
					t.Errorf("unexpected request path %s", req.URL.Path)
				}

				switch offset := req.URL.Query().Get("offset"); offset {
				case "0":
					return jsonResponse(http.StatusOK, spotifyPlaylistsPage(t, 0, 50, 75)), nil
				case "50":
					return jsonResponse(http.StatusOK, spotifyPlaylistsPage(t, 50, 25, 75)), nil
				default:
					t.Errorf("unexpected offset %q", offset)
					return jsonResponse(http.StatusBadRequest, `{}`), nil
				}
			})

			playlists, err := srv.GetPlaylists(context.Background())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if len(playlists) != 75 {
				t.Fatalf("expected 75 playlists, got %d", len(playlists))
			}
			if playlists[0].ID != "pl_000" {
				t.Errorf("expected first playlist 'pl_000', got %s", playlists[0].ID)
			}
			if playlists[74].ID != "pl_074" {
				t.Errorf("expected last playlist 'pl_074', got %s", playlists[74].ID)
			}
			if playlists[0].OwnerID != "user_1" {
				t.Errorf("expected owner id to be mapped, got %s", playlists[0].OwnerID)
			}
			if playlists[0].TrackCount != 1 {
				t.Errorf("expected track count to be mapped, got %d", playlists[0].TrackCount)
			}
		})

		t.Run("Rejects Shifting Totals", func(t *testing.T) {
			calls := 0
			srv := authedSpotify(t, func(req *http.Request) (*http.Response, error) {
				calls++
				if calls == 1 {
					return jsonResponse(http.StatusOK, spotifyPlaylistsPage(t, 0, 50, 75)), nil
				}
				return jsonResponse(http.StatusOK, spotifyPlaylistsPage(t, 50, 25, 90)), nil
			})

			_, err := srv.GetPlaylists(context.Background())
			if !errors.Is(err, shared.ErrPageDrift) {
				t.Fatalf("expected ErrPageDrift, got %v", err)
			}
			if kind := shared.KindOf(err); kind != shared.KindUpstreamAPIError {
				t.Errorf("expected upstream kind for drift, got %s", kind)
			}
		})
	})

	t.Run("GetPlaylistTracks", func(t *testing.T) {
		body := `{
			"items": [
				{"track": {"id": "trk_1", "name": "First Song", "artists": [{"name": "Artist A"}], "album": {"name": "Album A"}, "duration_ms": 201000, "external_ids": {"isrc": "USUM71703861"}}},
				{"track": {"id": ""}},
				{"track": {"id": "trk_2", "name": "Second Song", "artists": [{"name": "Artist B"}], "album": {"name": "Album B"}, "duration_ms": 185000, "external_ids": {"isrc": "GBUM72000001"}}}
			],
			"total": 3,
			"limit": 50,
			"offset": 0
		}`

		srv := authedSpotify(t, func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/v1/playlists/pl_1/tracks" {
				t.Errorf("unexpected request path %s", req.URL.Path)
			}
			return jsonResponse(http.StatusOK, body), nil
		})

		tracks, err := srv.GetPlaylistTracks(context.Background(), "pl_1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		// The entry without a track id is dropped.
		if len(tracks) != 2 {
			t.Fatalf("expected 2 tracks, got %d", len(tracks))
		}
		if tracks[0].Title != "First Song" {
			t.Errorf("expected title 'First Song', got %s", tracks[0].Title)
		}
		if tracks[0].Artist != "Artist A" {
			t.Errorf("expected artist 'Artist A', got %s", tracks[0].Artist)
		}
		if tracks[0].Album != "Album A" {
			t.Errorf("expected album 'Album A', got %s", tracks[0].Album)
		}
		if tracks[0].ISRC != "USUM71703861" {
			t.Errorf("expected ISRC to be mapped, got %s", tracks[0].ISRC)
		}
		if tracks[0].DurationMS != 201000 {
			t.Errorf("expected duration 201000, got %d", tracks[0].DurationMS)
		}
		if tracks[1].ID != "trk_2" {
			t.Errorf("expected second track 'trk_2', got %s", tracks[1].ID)
		}
	})

	t.Run("GetSavedTracks", func(t *testing.T) {
		body := `{
			"items": [
				{"added_at": "2024-01-15T10:00:00Z", "track": {"id": "trk_9", "name": "Saved Song", "artists": [{"name": "Artist C"}], "album": {"name": "Album C"}, "duration_ms": 240000}}
			],
			"total": 1,
			"limit": 50,
			"offset": 0
		}`

		srv := authedSpotify(t, func(req *http.Request) (*http.Response, error) {
			if req.URL.Path != "/v1/me/tracks" {
				t.Errorf("unexpected request path %s", req.URL.Path)
			}
			return jsonResponse(http.StatusOK, body), nil
		})

		tracks, err := srv.GetSavedTracks(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(tracks) != 1 {
			t.Fatalf("expected 1 track, got %d", len(tracks))
		}
		if tracks[0].ID != "trk_9" {
			t.Errorf("expected track 'trk_9', got %s", tracks[0].ID)
		}
		if tracks[0].Artist != "Artist C" {
			t.Errorf("expected artist 'Artist C', got %s", tracks[0].Artist)
		}
	})

	t.Run("Error Mapping", func(t *testing.T) {
		cases := []struct {
			name   string
			status int
			want   error
		}{
			{"Unauthorized", http.StatusUnauthorized, shared.ErrTokenExpired},
			{"Forbidden", http.StatusForbidden, shared.ErrAuthFailed},
			{"Rate Limited", http.StatusTooManyRequests, shared.ErrServiceUnavailable},
			{"Server Error", http.StatusBadGateway, shared.ErrServiceUnavailable},
			{"Not Found", http.StatusNotFound, shared.ErrAPIRequest},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				srv := authedSpotify(t, func(req *http.Request) (*http.Response, error) {
					return jsonResponse(tc.status, `{}`), nil
				})

				_, err := srv.GetProfile(context.Background())
				if !errors.Is(err, tc.want) {
					t.Errorf("expected %v for status %d, got %v", tc.want, tc.status, err)
				}
			})
		}

		t.Run("Connection Failure", func(t *testing.T) {
			srv := authedSpotify(t, func(req *http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			})

			_, err := srv.GetProfile(context.Background())
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest for transport failure, got %v", err)
			}
			if kind := shared.KindOf(err); kind != shared.KindUpstreamAPIError {
				t.Errorf("expected upstream kind, got %s", kind)
			}
		})

		t.Run("Unreadable Body", func(t *testing.T) {
			srv := authedSpotify(t, func(req *http.Request) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusOK,
					Header:     http.Header{"Content-Type": []string{"application/json"}},
					Body:       &brokenBody{},
				}, nil
			})

			_, err := srv.GetProfile(context.Background())
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest for unreadable body, got %v", err)
			}
		})
	})

	t.Run("SetTokenRefreshCallback", func(t *testing.T) {
		credentials := map[string]string{
			"client_id":     "cid_abc123",
			"client_secret": "csec_def456",
		}

		srv, err := NewSpotifyService(credentials)
		if err != nil {
			t.Fatalf("NewSpotifyService: %v", err)
		}

		t.Run("registers a callback", func(t *testing.T) {
			srv.SetTokenRefreshCallback(func(*oauth2.Token) {})

			if srv.onTokenRefresh == nil {
				t.Error("expected a registered callback")
			}
		})

		t.Run("clears the callback", func(t *testing.T) {
			srv.SetTokenRefreshCallback(nil)
			if srv.onTokenRefresh != nil {
				t.Error("expected the callback to be cleared")
			}
		})

		t.Run("replaces an existing callback", func(t *testing.T) {
			srv.SetTokenRefreshCallback(func(*oauth2.Token) {})

			srv.SetTokenRefreshCallback(func(*oauth2.Token) {})

			if srv.onTokenRefresh == nil {
				t.Error("expected a registered callback")
			}
		})

		t.Run("registered after authenticate still fires", func(t *testing.T) {
			if err := srv.Authenticate(context.Background(), map[string]string{"access_token": "initial_token"}); err != nil {
				t.Fatalf("Authenticate: %v", err)
			}

			var captured *oauth2.Token
			srv.SetTokenRefreshCallback(func(token *oauth2.Token) {
				captured = token
			})

			transport, ok := srv.httpClient.Transport.(*oauth2.Transport)
			if !ok {
				t.Fatalf("expected oauth2 transport, got %T", srv.httpClient.Transport)
			}

			if _, err := transport.Source.Token(); err != nil {
				t.Fatalf("expected token fetch to succeed, got %v", err)
			}

			if captured == nil {
				t.Fatal("expected late-registered callback to fire")
			}
			if srv.token.AccessToken != captured.AccessToken {
				t.Error("expected service token to track the refreshed token")
			}
		})
	})

	t.Run("refreshableTokenSource", func(t *testing.T) {
		t.Run("notifies on the first fetch", func(t *testing.T) {
			notified := false
			var got *oauth2.Token

			src := &mockTokenSource{
				token: &oauth2.Token{AccessToken: "tok_first"},
			}

			ts := &refreshableTokenSource{
				source: src,
				callback: func(token *oauth2.Token) {
					notified = true
					got = token
				},
			}

			token, err := ts.Token()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			if !notified {
				t.Error("expected the callback to fire on the first fetch")
			}
			if got == nil {
				t.Fatal("expected the callback to receive the token")
			}
			if got.AccessToken != "tok_first" {
				t.Errorf("callback received %s, want 'tok_first'", got.AccessToken)
			}
			if token.AccessToken != "tok_first" {
				t.Errorf("Token returned %s, want 'tok_first'", token.AccessToken)
			}
		})

		t.Run("notifies again when the token rotates", func(t *testing.T) {
			fires := 0
			var seen []*oauth2.Token

			src := &mockTokenSource{
				token: &oauth2.Token{AccessToken: "tok_one"},
			}

			ts := &refreshableTokenSource{
				source: src,
				callback: func(token *oauth2.Token) {
					fires++
					seen = append(seen, token)
				},
			}

			_, _ = ts.Token()
			if fires != 1 {
				t.Errorf("callback fired %d times, want 1", fires)
			}

			src.token = &oauth2.Token{AccessToken: "tok_two"}
			rotated, _ := ts.Token()

			if fires != 2 {
				t.Errorf("callback fired %d times, want 2", fires)
			}
			if len(seen) != 2 {
				t.Errorf("captured %d tokens, want 2", len(seen))
			}
			if rotated.AccessToken != "tok_two" {
				t.Errorf("second fetch returned %s, want tok_two", rotated.AccessToken)
			}
		})

		t.Run("stays quiet while the token is stable", func(t *testing.T) {
			fires := 0

			src := &mockTokenSource{
				token: &oauth2.Token{AccessToken: "tok_stable"},
			}

			ts := &refreshableTokenSource{
				source: src,
				callback: func(token *oauth2.Token) {
					fires++
				},
			}

			ts.Token()
			ts.Token()
			ts.Token()

			if fires != 1 {
				t.Errorf("callback fired %d times, want 1", fires)
			}
		})

		t.Run("works without a callback", func(t *testing.T) {
			src := &mockTokenSource{
				token: &oauth2.Token{AccessToken: "tok_first"},
			}

			ts := &refreshableTokenSource{
				source:   src,
				callback: nil,
			}

			token, err := ts.Token()
			if err != nil {
				t.Fatalf("expected no error with nil callback, got %v", err)
			}
			if token.AccessToken != "tok_first" {
				t.Error("expected the token even with no callback registered")
			}
		})

		t.Run("passes source failures through", func(t *testing.T) {
			src := &mockTokenSource{
				err: errors.New("upstream refused"),
			}

			ts := &refreshableTokenSource{
				source: src,
				callback: func(token *oauth2.Token) {
					t.Error("callback must not fire when the source fails")
				},
			}

			token, err := ts.Token()
			if err == nil {
				t.Fatal("expected the source failure to surface")
			}
			if !strings.Contains(err.Error(), "upstream refused") {
				t.Errorf("expected the source error text, got %v", err)
			}
			if token != nil {
				t.Error("expected no token on failure")
			}
		})
	})
}

// mockTokenSource hands back a fixed token or error.
type mockTokenSource struct {
	token *oauth2.Token
	err   error
}

func (m *mockTokenSource) Token() (*oauth2.Token, error) {
	return m.token, m.err
}

// brokenBody simulates a response body that fails mid-read
type brokenBody struct{}

func (b *brokenBody) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (b *brokenBody) Close() error { return nil }
