// package session issues and verifies the signed tokens that carry a
// provider identity between the auth flow, the HTTP API, and the sync engine.
package session

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/snx/internal/shared"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL bounds session lifetime when the caller does not pick one.
const DefaultTTL = 30 * time.Minute

const defaultIssuer = "snx"

// Scopes grantable to a session token.
const (
	ScopeLibraryRead = "library-read"
	ScopeSyncWrite   = "sync-write"
)

// Identity is the provider identity a session token carries.
type Identity struct {
	Provider     string
	UserID       string
	DisplayName  string
	AccessToken  string
	RefreshToken string
	Scopes       []string
}

// Session is a verified identity plus the expiry of the token it came from.
type Session struct {
	Identity
	ExpiresAt time.Time
}

// Credentials returns the provider credential map used to authenticate a
// [services.Service] on behalf of this session.
func (s *Session) Credentials() map[string]string {
	creds := map[string]string{
		"access_token": s.AccessToken,
	}
	if s.RefreshToken != "" {
		creds["refresh_token"] = s.RefreshToken
	}
	return creds
}

// HasScope reports whether the session was granted the named scope.
func (s *Session) HasScope(scope string) bool {
	return slices.Contains(s.Scopes, scope)
}

type claims struct {
	Provider     string   `json:"provider"`
	DisplayName  string   `json:"display_name,omitempty"`
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session tokens with a shared HS256 secret. The
// provider user id rides in the subject claim; everything else the sync
// engine needs is carried as private claims.
type Manager struct {
	secret []byte
	issuer string
}

// NewManager creates a session manager for the given signing secret.
func NewManager(secret []byte, issuer string) (*Manager, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: session secret is empty", shared.ErrInvalidConfig)
	}
	if issuer = strings.TrimSpace(issuer); issuer == "" {
		issuer = defaultIssuer
	}

	return &Manager{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
	}, nil
}

// Issue signs a token for the identity, valid for ttl. A non-positive ttl
// falls back to [DefaultTTL].
func (m *Manager) Issue(identity Identity, ttl time.Duration) (string, error) {
	if identity.Provider == "" || identity.UserID == "" {
		return "", fmt.Errorf("%w: session identity requires a provider and user id", shared.ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now().UTC()
	payload := claims{
		Provider:     identity.Provider,
		DisplayName:  identity.DisplayName,
		AccessToken:  identity.AccessToken,
		RefreshToken: identity.RefreshToken,
		Scopes:       identity.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates a token and checks that every required scope
// was granted. An expired token and a missing scope are distinct failures so
// callers can tell re-login apart from re-consent.
func (m *Manager) Verify(tokenString string, requiredScopes ...string) (*Session, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: empty session token", shared.ErrNotAuthenticated)
	}

	payload := &claims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		payload,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm %s", t.Method.Alg())
			}
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: session token expired", shared.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w: invalid session token: %v", shared.ErrNotAuthenticated, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid session token", shared.ErrNotAuthenticated)
	}

	if payload.Subject == "" || payload.Provider == "" {
		return nil, fmt.Errorf("%w: session token missing identity claims", shared.ErrNotAuthenticated)
	}

	for _, required := range requiredScopes {
		if !slices.Contains(payload.Scopes, required) {
			return nil, fmt.Errorf("%w: missing scope %s", shared.ErrScopeMismatch, required)
		}
	}

	sess := &Session{
		Identity: Identity{
			Provider:     payload.Provider,
			UserID:       payload.Subject,
			DisplayName:  payload.DisplayName,
			AccessToken:  payload.AccessToken,
			RefreshToken: payload.RefreshToken,
			Scopes:       payload.Scopes,
		},
	}
	if payload.ExpiresAt != nil {
		sess.ExpiresAt = payload.ExpiresAt.Time
	}

	return sess, nil
}
