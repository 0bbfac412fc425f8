// package testing contains shared test doubles and filesystem assertions.
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/desertthunder/snx/internal/services"
)

// MockService is a canned [services.Service]. The zero value behaves like an
// authenticated account with an empty library; set fields to change the
// responses or force every call to fail.
type MockService struct {
	Profile   *services.Profile
	Playlists []services.Playlist
	Tracks    []services.Track
	Err       error
}

func (m *MockService) Authenticate(ctx context.Context, credentials map[string]string) error {
	return m.Err
}

func (m *MockService) GetProfile(ctx context.Context) (*services.Profile, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Profile != nil {
		return m.Profile, nil
	}
	return &services.Profile{ID: "mock_user", DisplayName: "Mock User"}, nil
}

func (m *MockService) GetPlaylists(ctx context.Context) ([]services.Playlist, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Playlists, nil
}

// GetPlaylistTracks serves the same Tracks slice for every playlist.
func (m *MockService) GetPlaylistTracks(ctx context.Context, playlistID string) ([]services.Track, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Tracks, nil
}

func (m *MockService) GetSavedTracks(ctx context.Context) ([]services.Track, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Tracks, nil
}

func (m *MockService) Name() string { return "mock" }

// FWriter fails every write.
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter proxies writes to target until its budget is spent, then
// fails. Useful for exercising partial-output error paths.
type LimitedWriter struct {
	remaining int
	target    io.Writer
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{remaining: maxWrites - written, target: target}
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.remaining <= 0 {
		return 0, errors.New("write limit exceeded")
	}
	l.remaining--
	return l.target.Write(p)
}

// MustGetwd returns the working directory, failing the test on error.
func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	return wd
}

// MustChdir changes into dir, failing the test on error. Pair with a deferred
// call to restore the original directory.
func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir %s: %v", dir, err)
	}
}

// AssertFileExists fails the test unless path names a regular file.
func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Errorf("expected file at %s: %v", path, err)
		return
	}
	if info.IsDir() {
		t.Errorf("expected a file at %s, found a directory", path)
	}
}

// AssertDirExists fails the test unless path names a directory.
func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Errorf("expected directory at %s: %v", path, err)
		return
	}
	if !info.IsDir() {
		t.Errorf("expected a directory at %s, found a file", path)
	}
}

// MustReadFile returns the contents of path, failing the test on error.
func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(content)
}
