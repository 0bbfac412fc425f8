package session

import (
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/snx/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test_session_secret"

func testIdentity() Identity {
	return Identity{
		Provider:     "spotify",
		UserID:       "user_1",
		DisplayName:  "Test User",
		AccessToken:  "provider_access_token",
		RefreshToken: "provider_refresh_token",
		Scopes:       []string{ScopeLibraryRead, ScopeSyncWrite},
	}
}

func testManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager([]byte(testSecret), "")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m
}

// signExpired crafts a token that lapsed an hour ago, signed with the same
// secret the manager trusts.
func signExpired(t *testing.T) string {
	t.Helper()

	issued := time.Now().Add(-2 * time.Hour)
	payload := claims{
		Provider:    "spotify",
		AccessToken: "provider_access_token",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user_1",
			Issuer:    defaultIssuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestNewManager(t *testing.T) {
	t.Run("With Secret", func(t *testing.T) {
		m, err := NewManager([]byte(testSecret), "snx-test")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if m.issuer != "snx-test" {
			t.Errorf("expected configured issuer, got %s", m.issuer)
		}
	})

	t.Run("Default Issuer", func(t *testing.T) {
		m, err := NewManager([]byte(testSecret), "  ")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if m.issuer != defaultIssuer {
			t.Errorf("expected default issuer, got %s", m.issuer)
		}
	})

	t.Run("Empty Secret", func(t *testing.T) {
		_, err := NewManager(nil, "")
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestManagerIssue(t *testing.T) {
	m := testManager(t)

	t.Run("Signs Identity", func(t *testing.T) {
		token, err := m.Issue(testIdentity(), time.Hour)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if token == "" {
			t.Fatal("expected a signed token")
		}
	})

	t.Run("Missing Provider", func(t *testing.T) {
		identity := testIdentity()
		identity.Provider = ""

		_, err := m.Issue(identity, time.Hour)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Missing User ID", func(t *testing.T) {
		identity := testIdentity()
		identity.UserID = ""

		_, err := m.Issue(identity, time.Hour)
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestManagerVerify(t *testing.T) {
	m := testManager(t)

	t.Run("Round Trip", func(t *testing.T) {
		token, err := m.Issue(testIdentity(), time.Hour)
		if err != nil {
			t.Fatalf("failed to issue token: %v", err)
		}

		sess, err := m.Verify(token)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if sess.Provider != "spotify" {
			t.Errorf("expected provider 'spotify', got %s", sess.Provider)
		}
		if sess.UserID != "user_1" {
			t.Errorf("expected user id 'user_1', got %s", sess.UserID)
		}
		if sess.DisplayName != "Test User" {
			t.Errorf("expected display name to round trip, got %s", sess.DisplayName)
		}
		if sess.AccessToken != "provider_access_token" {
			t.Errorf("expected access token to round trip, got %s", sess.AccessToken)
		}
		if sess.RefreshToken != "provider_refresh_token" {
			t.Errorf("expected refresh token to round trip, got %s", sess.RefreshToken)
		}
		if !sess.ExpiresAt.After(time.Now()) {
			t.Error("expected expiry in the future")
		}
	})

	t.Run("Empty Token", func(t *testing.T) {
		_, err := m.Verify("")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Garbage Token", func(t *testing.T) {
		_, err := m.Verify("not.a.token")
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Wrong Secret", func(t *testing.T) {
		other, err := NewManager([]byte("a_different_secret"), "")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		token, err := other.Issue(testIdentity(), time.Hour)
		if err != nil {
			t.Fatalf("failed to issue token: %v", err)
		}

		_, err = m.Verify(token)
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated for foreign signature, got %v", err)
		}
	})

	t.Run("Wrong Issuer", func(t *testing.T) {
		other, err := NewManager([]byte(testSecret), "someone-else")
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		token, err := other.Issue(testIdentity(), time.Hour)
		if err != nil {
			t.Fatalf("failed to issue token: %v", err)
		}

		_, err = m.Verify(token)
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated for foreign issuer, got %v", err)
		}
	})

	t.Run("Expired Token", func(t *testing.T) {
		_, err := m.Verify(signExpired(t))
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired, got %v", err)
		}
		if kind := shared.KindOf(err); kind != shared.KindAuthenticationRequired {
			t.Errorf("expected authentication kind, got %s", kind)
		}
	})

	t.Run("Rejected Algorithm", func(t *testing.T) {
		payload := claims{
			Provider:    "spotify",
			AccessToken: "provider_access_token",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user_1",
				Issuer:    defaultIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}

		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, payload).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}

		_, err = m.Verify(signed)
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated for foreign algorithm, got %v", err)
		}
	})

	t.Run("Missing Identity Claims", func(t *testing.T) {
		payload := claims{
			AccessToken: "provider_access_token",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    defaultIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}

		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}

		_, err = m.Verify(signed)
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated for missing claims, got %v", err)
		}
	})

	t.Run("Scopes", func(t *testing.T) {
		token, err := m.Issue(testIdentity(), time.Hour)
		if err != nil {
			t.Fatalf("failed to issue token: %v", err)
		}

		t.Run("Granted", func(t *testing.T) {
			sess, err := m.Verify(token, ScopeLibraryRead, ScopeSyncWrite)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !sess.HasScope(ScopeLibraryRead) {
				t.Error("expected session to carry the library-read scope")
			}
		})

		t.Run("Missing", func(t *testing.T) {
			_, err := m.Verify(token, "admin")
			if !errors.Is(err, shared.ErrScopeMismatch) {
				t.Fatalf("expected ErrScopeMismatch, got %v", err)
			}
			if kind := shared.KindOf(err); kind != shared.KindAuthenticationRequired {
				t.Errorf("expected authentication kind, got %s", kind)
			}
		})

		t.Run("None Granted", func(t *testing.T) {
			identity := testIdentity()
			identity.Scopes = nil

			bare, err := m.Issue(identity, time.Hour)
			if err != nil {
				t.Fatalf("failed to issue token: %v", err)
			}

			if _, err := m.Verify(bare); err != nil {
				t.Errorf("expected no error without required scopes, got %v", err)
			}

			if _, err := m.Verify(bare, ScopeLibraryRead); !errors.Is(err, shared.ErrScopeMismatch) {
				t.Errorf("expected ErrScopeMismatch, got %v", err)
			}
		})
	})
}

func TestSessionCredentials(t *testing.T) {
	t.Run("With Refresh Token", func(t *testing.T) {
		sess := &Session{Identity: testIdentity()}

		creds := sess.Credentials()
		if creds["access_token"] != "provider_access_token" {
			t.Errorf("expected access token in credentials, got %s", creds["access_token"])
		}
		if creds["refresh_token"] != "provider_refresh_token" {
			t.Errorf("expected refresh token in credentials, got %s", creds["refresh_token"])
		}
	})

	t.Run("Without Refresh Token", func(t *testing.T) {
		identity := testIdentity()
		identity.RefreshToken = ""
		sess := &Session{Identity: identity}

		creds := sess.Credentials()
		if _, ok := creds["refresh_token"]; ok {
			t.Error("expected refresh_token to be omitted")
		}
	})
}
