// package models defines the data model for the library sync service
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Model defines the base interface for all persistent models in the library sync service.
// Implementations include User, Track, Playlist and SyncJob.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// ProviderRef identifies a record inside an external provider's namespace.
// Provider is the provider key ("spotify", "napster"); LocalID is the
// identifier the provider assigned, opaque to this system and unique within
// that provider.
type ProviderRef struct {
	Provider string `json:"provider"`
	LocalID  string `json:"local_id"`
}

// Validate checks that both halves of the composite key are present.
func (r ProviderRef) Validate() error {
	if r.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if r.LocalID == "" {
		return fmt.Errorf("provider-local id is required")
	}
	return nil
}

// TrackRef is an ordered playlist membership entry pairing the local store
// identity of a track with its provider-local id.
type TrackRef struct {
	TrackID         string `json:"track_id"`
	ProviderTrackID string `json:"provider_track_id"`
	Position        int    `json:"position"`
}

// UserAttrs carries the provider profile data stored on a [User].
type UserAttrs struct {
	DisplayName string
	Email       string
	Profile     json.RawMessage
}

// Equal reports whether two attribute sets hold the same profile data.
func (a UserAttrs) Equal(b UserAttrs) bool {
	return a.DisplayName == b.DisplayName &&
		a.Email == b.Email &&
		bytes.Equal(a.Profile, b.Profile)
}

// User represents one external identity, keyed by (provider, provider-local user id).
// Created on first successful authentication, updated on every sync, never deleted by the sync engine.
type User struct {
	id        string
	sequence  int
	ref       ProviderRef
	attrs     UserAttrs
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewUser creates a User keyed by provider and provider-local user id.
func NewUser(sequence int, provider, localID string, attrs UserAttrs) *User {
	now := time.Now()
	return &User{
		sequence:  sequence,
		ref:       ProviderRef{Provider: provider, LocalID: localID},
		attrs:     attrs,
		createdAt: now,
		updatedAt: now,
	}
}

func (u *User) ID() string            { return u.id }
func (u *User) Sequence() int         { return u.sequence }
func (u *User) Ref() ProviderRef      { return u.ref }
func (u *User) Provider() string      { return u.ref.Provider }
func (u *User) ProviderUserID() string { return u.ref.LocalID }
func (u *User) Attrs() UserAttrs      { return u.attrs }
func (u *User) DisplayName() string   { return u.attrs.DisplayName }
func (u *User) Email() string         { return u.attrs.Email }
func (u *User) Profile() json.RawMessage { return u.attrs.Profile }
func (u *User) CreatedAt() time.Time  { return u.createdAt }
func (u *User) UpdatedAt() time.Time  { return u.updatedAt }
func (u *User) DeletedAt() *time.Time { return u.deletedAt }

func (u *User) SetID(id string)              { u.id = id }
func (u *User) SetAttrs(attrs UserAttrs)     { u.attrs = attrs }
func (u *User) SetCreatedAt(t time.Time)     { u.createdAt = t }
func (u *User) SetUpdatedAt(t time.Time)     { u.updatedAt = t }
func (u *User) SetDeletedAt(t *time.Time)    { u.deletedAt = t }

// Validate checks the composite identity key.
func (u *User) Validate() error {
	if err := u.ref.Validate(); err != nil {
		return fmt.Errorf("user: %w", err)
	}
	return nil
}

// MarshalJSON serializes the user for API and CLI output.
func (u *User) MarshalJSON() ([]byte, error) {
	profile := u.attrs.Profile
	if len(profile) == 0 {
		profile = json.RawMessage("{}")
	}
	return json.Marshal(map[string]any{
		"id":               u.id,
		"provider":         u.ref.Provider,
		"provider_user_id": u.ref.LocalID,
		"display_name":     u.attrs.DisplayName,
		"email":            u.attrs.Email,
		"profile":          profile,
		"created_at":       u.createdAt,
		"updated_at":       u.updatedAt,
	})
}

// TrackAttrs carries the provider track data stored on a [Track].
type TrackAttrs struct {
	Title      string
	Artist     string
	Album      string
	ISRC       string
	DurationMS int
	Raw        json.RawMessage
}

// Equal reports whether two attribute sets hold the same track data.
func (a TrackAttrs) Equal(b TrackAttrs) bool {
	return a.Title == b.Title &&
		a.Artist == b.Artist &&
		a.Album == b.Album &&
		a.ISRC == b.ISRC &&
		a.DurationMS == b.DurationMS &&
		bytes.Equal(a.Raw, b.Raw)
}

// Track represents one provider track, keyed by (provider, provider-local track id).
// The key is global, not scoped per user; a single record is shared by every
// playlist and user that references it.
type Track struct {
	id        string
	sequence  int
	ref       ProviderRef
	attrs     TrackAttrs
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewTrack creates a Track keyed by provider and provider-local track id.
func NewTrack(sequence int, provider, localID string, attrs TrackAttrs) *Track {
	now := time.Now()
	return &Track{
		sequence:  sequence,
		ref:       ProviderRef{Provider: provider, LocalID: localID},
		attrs:     attrs,
		createdAt: now,
		updatedAt: now,
	}
}

func (t *Track) ID() string             { return t.id }
func (t *Track) Sequence() int          { return t.sequence }
func (t *Track) Ref() ProviderRef       { return t.ref }
func (t *Track) Provider() string       { return t.ref.Provider }
func (t *Track) ProviderTrackID() string { return t.ref.LocalID }
func (t *Track) Attrs() TrackAttrs      { return t.attrs }
func (t *Track) Title() string          { return t.attrs.Title }
func (t *Track) Artist() string         { return t.attrs.Artist }
func (t *Track) Album() string          { return t.attrs.Album }
func (t *Track) ISRC() string           { return t.attrs.ISRC }
func (t *Track) DurationMS() int        { return t.attrs.DurationMS }
func (t *Track) Raw() json.RawMessage   { return t.attrs.Raw }
func (t *Track) CreatedAt() time.Time   { return t.createdAt }
func (t *Track) UpdatedAt() time.Time   { return t.updatedAt }
func (t *Track) DeletedAt() *time.Time  { return t.deletedAt }

func (t *Track) SetID(id string)           { t.id = id }
func (t *Track) SetAttrs(attrs TrackAttrs) { t.attrs = attrs }
func (t *Track) SetCreatedAt(ts time.Time) { t.createdAt = ts }
func (t *Track) SetUpdatedAt(ts time.Time) { t.updatedAt = ts }
func (t *Track) SetDeletedAt(ts *time.Time) { t.deletedAt = ts }

// Validate checks the composite identity key.
func (t *Track) Validate() error {
	if err := t.ref.Validate(); err != nil {
		return fmt.Errorf("track: %w", err)
	}
	return nil
}

// MarshalJSON serializes the track for API and CLI output.
func (t *Track) MarshalJSON() ([]byte, error) {
	raw := t.attrs.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	return json.Marshal(map[string]any{
		"id":                t.id,
		"provider":          t.ref.Provider,
		"provider_track_id": t.ref.LocalID,
		"title":             t.attrs.Title,
		"artist":            t.attrs.Artist,
		"album":             t.attrs.Album,
		"isrc":              t.attrs.ISRC,
		"duration_ms":       t.attrs.DurationMS,
		"raw":               raw,
		"created_at":        t.createdAt,
		"updated_at":        t.updatedAt,
	})
}

// PlaylistAttrs carries the provider playlist data stored on a [Playlist].
type PlaylistAttrs struct {
	Name        string
	Description string
	TrackCount  int
	Public      bool
	Raw         json.RawMessage
}

// Equal reports whether two attribute sets hold the same playlist data.
func (a PlaylistAttrs) Equal(b PlaylistAttrs) bool {
	return a.Name == b.Name &&
		a.Description == b.Description &&
		a.TrackCount == b.TrackCount &&
		a.Public == b.Public &&
		bytes.Equal(a.Raw, b.Raw)
}

// Playlist represents one provider playlist for one owning user, keyed by
// (provider, owner, provider-local playlist id). It carries an ordered list
// of [TrackRef] entries pointing at shared [Track] records.
type Playlist struct {
	id        string
	sequence  int
	ref       ProviderRef
	ownerID   string
	attrs     PlaylistAttrs
	tracks    []TrackRef
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewPlaylist creates a Playlist keyed by provider, owning user's store id
// and provider-local playlist id.
func NewPlaylist(sequence int, provider, localID, ownerID string, attrs PlaylistAttrs) *Playlist {
	now := time.Now()
	return &Playlist{
		sequence:  sequence,
		ref:       ProviderRef{Provider: provider, LocalID: localID},
		ownerID:   ownerID,
		attrs:     attrs,
		createdAt: now,
		updatedAt: now,
	}
}

func (p *Playlist) ID() string              { return p.id }
func (p *Playlist) Sequence() int           { return p.sequence }
func (p *Playlist) Ref() ProviderRef        { return p.ref }
func (p *Playlist) Provider() string        { return p.ref.Provider }
func (p *Playlist) ProviderPlaylistID() string { return p.ref.LocalID }
func (p *Playlist) OwnerID() string         { return p.ownerID }
func (p *Playlist) Attrs() PlaylistAttrs    { return p.attrs }
func (p *Playlist) Name() string            { return p.attrs.Name }
func (p *Playlist) Description() string     { return p.attrs.Description }
func (p *Playlist) TrackCount() int         { return p.attrs.TrackCount }
func (p *Playlist) Public() bool            { return p.attrs.Public }
func (p *Playlist) Raw() json.RawMessage    { return p.attrs.Raw }
func (p *Playlist) Tracks() []TrackRef      { return p.tracks }
func (p *Playlist) CreatedAt() time.Time    { return p.createdAt }
func (p *Playlist) UpdatedAt() time.Time    { return p.updatedAt }
func (p *Playlist) DeletedAt() *time.Time   { return p.deletedAt }

func (p *Playlist) SetID(id string)              { p.id = id }
func (p *Playlist) SetAttrs(attrs PlaylistAttrs) { p.attrs = attrs }
func (p *Playlist) SetTracks(tracks []TrackRef)  { p.tracks = tracks }
func (p *Playlist) SetCreatedAt(t time.Time)     { p.createdAt = t }
func (p *Playlist) SetUpdatedAt(t time.Time)     { p.updatedAt = t }
func (p *Playlist) SetDeletedAt(t *time.Time)    { p.deletedAt = t }

// Validate checks the composite identity key and the owning user reference.
func (p *Playlist) Validate() error {
	if err := p.ref.Validate(); err != nil {
		return fmt.Errorf("playlist: %w", err)
	}
	if p.ownerID == "" {
		return fmt.Errorf("playlist: owner id is required")
	}
	return nil
}

// MarshalJSON serializes the playlist, including its ordered track
// references, for API and CLI output.
func (p *Playlist) MarshalJSON() ([]byte, error) {
	raw := p.attrs.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	tracks := p.tracks
	if tracks == nil {
		tracks = []TrackRef{}
	}
	return json.Marshal(map[string]any{
		"id":                   p.id,
		"provider":             p.ref.Provider,
		"provider_playlist_id": p.ref.LocalID,
		"owner_id":             p.ownerID,
		"name":                 p.attrs.Name,
		"description":          p.attrs.Description,
		"track_count":          p.attrs.TrackCount,
		"public":               p.attrs.Public,
		"raw":                  raw,
		"tracks":               tracks,
		"created_at":           p.createdAt,
		"updated_at":           p.updatedAt,
	})
}

// PlaylistExport pairs a playlist with its resolved track rows in playlist
// order, for export and snapshot output.
type PlaylistExport struct {
	Playlist *Playlist `json:"playlist"`
	Tracks   []*Track  `json:"tracks"`
}

// Sync job status values.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// SyncJob records one synchronization pass for one user: what was fetched,
// what was skipped and how the pass ended.
type SyncJob struct {
	id               string
	sequence         int
	userID           string
	provider         string
	status           string
	playlistsTotal   int
	playlistsSynced  int
	playlistsSkipped int
	tracksUpserted   int
	savedTracks      int
	errorMessage     string
	startedAt        *time.Time
	completedAt      *time.Time
	createdAt        time.Time
	updatedAt        time.Time
	deletedAt        *time.Time
}

// NewSyncJob creates a pending SyncJob for the given user and provider.
func NewSyncJob(sequence int, userID, provider string) *SyncJob {
	now := time.Now()
	return &SyncJob{
		sequence:  sequence,
		userID:    userID,
		provider:  provider,
		status:    JobPending,
		createdAt: now,
		updatedAt: now,
	}
}

func (j *SyncJob) ID() string             { return j.id }
func (j *SyncJob) Sequence() int          { return j.sequence }
func (j *SyncJob) UserID() string         { return j.userID }
func (j *SyncJob) Provider() string       { return j.provider }
func (j *SyncJob) Status() string         { return j.status }
func (j *SyncJob) PlaylistsTotal() int    { return j.playlistsTotal }
func (j *SyncJob) PlaylistsSynced() int   { return j.playlistsSynced }
func (j *SyncJob) PlaylistsSkipped() int  { return j.playlistsSkipped }
func (j *SyncJob) TracksUpserted() int    { return j.tracksUpserted }
func (j *SyncJob) SavedTracks() int       { return j.savedTracks }
func (j *SyncJob) ErrorMessage() string   { return j.errorMessage }
func (j *SyncJob) StartedAt() *time.Time  { return j.startedAt }
func (j *SyncJob) CompletedAt() *time.Time { return j.completedAt }
func (j *SyncJob) CreatedAt() time.Time   { return j.createdAt }
func (j *SyncJob) UpdatedAt() time.Time   { return j.updatedAt }
func (j *SyncJob) DeletedAt() *time.Time  { return j.deletedAt }

func (j *SyncJob) SetID(id string)             { j.id = id }
func (j *SyncJob) SetStatus(status string)     { j.status = status }
func (j *SyncJob) SetPlaylistsTotal(n int)     { j.playlistsTotal = n }
func (j *SyncJob) SetPlaylistsSynced(n int)    { j.playlistsSynced = n }
func (j *SyncJob) SetPlaylistsSkipped(n int)   { j.playlistsSkipped = n }
func (j *SyncJob) SetTracksUpserted(n int)     { j.tracksUpserted = n }
func (j *SyncJob) SetSavedTracks(n int)        { j.savedTracks = n }
func (j *SyncJob) SetErrorMessage(msg string)  { j.errorMessage = msg }
func (j *SyncJob) SetStartedAt(t *time.Time)   { j.startedAt = t }
func (j *SyncJob) SetCompletedAt(t *time.Time) { j.completedAt = t }
func (j *SyncJob) SetCreatedAt(t time.Time)    { j.createdAt = t }
func (j *SyncJob) SetUpdatedAt(t time.Time)    { j.updatedAt = t }
func (j *SyncJob) SetDeletedAt(t *time.Time)   { j.deletedAt = t }

// Validate checks required references and the status value.
func (j *SyncJob) Validate() error {
	if j.userID == "" {
		return fmt.Errorf("sync job: user id is required")
	}
	if j.provider == "" {
		return fmt.Errorf("sync job: provider is required")
	}
	switch j.status {
	case JobPending, JobRunning, JobCompleted, JobFailed:
		return nil
	default:
		return fmt.Errorf("sync job: unknown status %q", j.status)
	}
}

// MarshalJSON serializes the job for API and CLI output.
func (j *SyncJob) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"id":                j.id,
		"seq":               j.sequence,
		"user_id":           j.userID,
		"provider":          j.provider,
		"status":            j.status,
		"playlists_total":   j.playlistsTotal,
		"playlists_synced":  j.playlistsSynced,
		"playlists_skipped": j.playlistsSkipped,
		"tracks_upserted":   j.tracksUpserted,
		"saved_tracks":      j.savedTracks,
		"error":             j.errorMessage,
		"started_at":        j.startedAt,
		"completed_at":      j.completedAt,
	})
}
