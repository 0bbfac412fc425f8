// package tasks implements library synchronization between music providers
// and the local store.
//
// The core abstraction is SyncEngine, which orchestrates sync passes, playlist
// comparisons, and library snapshots. Operations emit progress updates via
// channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/snx/internal/models"
	"github.com/desertthunder/snx/internal/services"
	"github.com/desertthunder/snx/internal/session"
	"github.com/desertthunder/snx/internal/shared"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	defaultWorkers   = 4
	maxWorkers       = 10
	defaultRateLimit = 5.0
)

// UserStore is the user persistence surface the engine writes through.
type UserStore interface {
	Upsert(user *models.User) (*models.User, error)
	GetByProviderID(provider, localID string) (*models.User, error)
}

// TrackStore is the track persistence surface the engine writes through.
type TrackStore interface {
	Upsert(track *models.Track) (*models.Track, error)
	ListByIDs(ids []string) ([]*models.Track, error)
}

// PlaylistStore is the playlist persistence surface the engine writes through.
type PlaylistStore interface {
	Upsert(playlist *models.Playlist) (*models.Playlist, error)
	GetByProviderID(provider, localID string) (*models.Playlist, error)
	ListByOwner(ownerID string) ([]*models.Playlist, error)
}

// JobStore records sync history rows.
type JobStore interface {
	Create(job *models.SyncJob) error
	Update(job *models.SyncJob) error
	List(criteria map[string]any) ([]*models.SyncJob, error)
}

// Store bundles the persistence interfaces a sync pass writes through.
// Jobs may be nil, in which case no sync history is recorded.
type Store struct {
	Users     UserStore
	Tracks    TrackStore
	Playlists PlaylistStore
	Jobs      JobStore
}

// SyncOptions selects optional behavior for one sync pass.
type SyncOptions struct {
	Force        bool // Re-fetch playlists already present in the store
	IncludeSaved bool // Also sync the user's saved tracks
}

// SyncResult contains everything one sync pass produced. Playlists is the
// full library copy re-read from the store, so it includes playlists synced
// on earlier passes.
type SyncResult struct {
	User              *models.User       `json:"user"`
	Playlists         []*models.Playlist `json:"playlists"`
	PlaylistsTotal    int                `json:"playlists_total"`
	PlaylistsSynced   int                `json:"playlists_synced"`
	PlaylistsSkipped  int                `json:"playlists_skipped"`
	PlaylistsFiltered int                `json:"playlists_filtered"`
	TracksUpserted    int                `json:"tracks_upserted"`
	SavedTracks       int                `json:"saved_tracks"`
}

// LibrarySnapshot is the full denormalized copy of one user's synced library.
type LibrarySnapshot struct {
	User      *models.User             `json:"user"`
	Playlists []*models.PlaylistExport `json:"playlists"`
	Jobs      []*models.SyncJob        `json:"jobs,omitempty"`
}

// SyncEngine defines operations for synchronizing provider libraries into the store.
type SyncEngine interface {
	// Sync performs a full provider → store library sync for the session's user.
	Sync(ctx context.Context, sess *session.Session, opts SyncOptions, progress chan<- ProgressUpdate) (*SyncResult, error)

	// Diff compares two playlists across providers by identifying matched tracks, missing tracks, and extra tracks.
	Diff(ctx context.Context, sourceSvc, destSvc services.Service, sourceID, destID string, progress chan<- ProgressUpdate) (*DiffResult, error)

	// Snapshot assembles the stored library of a previously synced user.
	Snapshot(ctx context.Context, provider, providerUserID string) (*LibrarySnapshot, error)
}

// EngineOpts tunes the concurrent portion of a sync pass.
type EngineOpts struct {
	Workers   int     // Concurrent playlist workers (default 4, max 10)
	RateLimit float64 // Upstream requests per second (default 5)
}

// LibraryEngine implements SyncEngine against a source provider and the
// SQLite-backed store.
type LibraryEngine struct {
	source    services.Service
	users     UserStore
	tracks    TrackStore
	playlists PlaylistStore
	jobs      JobStore
	workers   int
	limiter   *rate.Limiter
}

// NewLibraryEngine creates a LibraryEngine reading from source and writing
// through store.
func NewLibraryEngine(source services.Service, store Store, opts EngineOpts) *LibraryEngine {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	limit := opts.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}

	return &LibraryEngine{
		source:    source,
		users:     store.Users,
		tracks:    store.Tracks,
		playlists: store.Playlists,
		jobs:      store.Jobs,
		workers:   workers,
		limiter:   rate.NewLimiter(rate.Limit(limit), 1),
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *LibraryEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
		// Sent successfully
	default:
		// Channel full or closed, skip this update
	}
}

// checkSession rejects sessions the engine cannot act on. Missing, expired,
// and under-scoped sessions are distinct failures so callers can tell
// re-login apart from re-consent.
func checkSession(sess *session.Session) error {
	if sess == nil {
		return fmt.Errorf("%w: no session", shared.ErrNotAuthenticated)
	}
	if sess.AccessToken == "" {
		return fmt.Errorf("%w: session has no provider token", shared.ErrNotAuthenticated)
	}
	if !sess.ExpiresAt.IsZero() && time.Now().After(sess.ExpiresAt) {
		return fmt.Errorf("%w: session expired", shared.ErrTokenExpired)
	}
	if !sess.HasScope(session.ScopeLibraryRead) {
		return fmt.Errorf("%w: sync requires scope %s", shared.ErrScopeMismatch, session.ScopeLibraryRead)
	}
	return nil
}

// Sync copies the session user's provider library into the store.
//
// The pass upserts the user, fetches and filters their playlists, fans the
// remaining playlists out across a bounded worker pool that fetches and
// upserts tracks, and re-reads the full library from the store for the
// result. Playlists already present are skipped unless opts.Force is set.
// The first failure aborts the pass; everything upserted before the failure
// stays durable, and the next pass picks up where this one left off.
func (e *LibraryEngine) Sync(ctx context.Context, sess *session.Session, opts SyncOptions, progress chan<- ProgressUpdate) (*SyncResult, error) {
	if e.source == nil {
		return nil, fmt.Errorf("%w: no source service configured", shared.ErrServiceUnavailable)
	}
	if err := checkSession(sess); err != nil {
		return nil, err
	}

	provider := e.source.Name()

	if err := e.source.Authenticate(ctx, sess.Credentials()); err != nil {
		return nil, err
	}

	e.sendProgress(progress, fetchProfileUpdate(provider))

	profile, err := e.source.GetProfile(ctx)
	if err != nil {
		return nil, err
	}

	user, err := e.users.Upsert(models.NewUser(0, provider, profile.ID, models.UserAttrs{
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		Profile:     profile.Raw,
	}))
	if err != nil {
		return nil, err
	}

	job := e.beginJob(user.ID(), provider)

	e.sendProgress(progress, fetchPlaylistsUpdate(provider))

	fetched, err := e.source.GetPlaylists(ctx)
	if err != nil {
		return nil, e.failJob(job, err)
	}

	// Provider-curated playlists are owned by the provider's own account and
	// never belong in a user's library copy.
	pending := make([]services.Playlist, 0, len(fetched))
	filtered := 0
	for _, pl := range fetched {
		if pl.OwnerID == provider {
			filtered++
			continue
		}
		pending = append(pending, pl)
	}

	skipped := 0
	if !opts.Force {
		fresh := pending[:0]
		for _, pl := range pending {
			existing, err := e.playlists.GetByProviderID(provider, pl.ID)
			if err != nil {
				return nil, e.failJob(job, err)
			}
			if existing != nil {
				skipped++
				continue
			}
			fresh = append(fresh, pl)
		}
		pending = fresh
	}

	e.sendProgress(progress, playlistsFilteredUpdate(len(pending), filtered, skipped))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		synced   int
		upserts  int
	)

	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	pool := semaphore.NewWeighted(int64(e.workers))
	total := len(pending)

	for i, pl := range pending {
		if err := pool.Acquire(poolCtx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(step int, pl services.Playlist) {
			defer wg.Done()
			defer pool.Release(1)

			e.sendProgress(progress, syncPlaylistUpdate(step, total, pl.Name))

			count, err := e.syncPlaylist(poolCtx, user, pl)
			if err != nil {
				fail(fmt.Errorf("playlist %s: %w", pl.ID, err))
				return
			}

			mu.Lock()
			synced++
			upserts += count
			mu.Unlock()

			e.sendProgress(progress, playlistSyncedUpdate(step, total, pl.Name, count))
		}(i+1, pl)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, e.failJob(job, firstErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.failJob(job, err)
	}

	saved := 0
	if opts.IncludeSaved {
		e.sendProgress(progress, syncSavedUpdate(provider))

		saved, err = e.syncSavedTracks(ctx)
		if err != nil {
			return nil, e.failJob(job, err)
		}
	}

	e.sendProgress(progress, assembleResultUpdate())

	library, err := e.playlists.ListByOwner(user.ID())
	if err != nil {
		return nil, e.failJob(job, err)
	}

	result := &SyncResult{
		User:              user,
		Playlists:         library,
		PlaylistsTotal:    len(fetched),
		PlaylistsSynced:   synced,
		PlaylistsSkipped:  skipped,
		PlaylistsFiltered: filtered,
		TracksUpserted:    upserts,
		SavedTracks:       saved,
	}

	e.completeJob(job, result)
	return result, nil
}

// syncPlaylist fetches one playlist's tracks, upserts every track row, and
// upserts the playlist with its ordered membership. Returns the number of
// track rows written.
func (e *LibraryEngine) syncPlaylist(ctx context.Context, owner *models.User, pl services.Playlist) (int, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	dtos, err := e.source.GetPlaylistTracks(ctx, pl.ID)
	if err != nil {
		return 0, err
	}

	provider := e.source.Name()
	refs := make([]models.TrackRef, 0, len(dtos))

	for i, dto := range dtos {
		stored, err := e.tracks.Upsert(trackFromDTO(provider, dto))
		if err != nil {
			return 0, err
		}
		refs = append(refs, models.TrackRef{
			TrackID:         stored.ID(),
			ProviderTrackID: dto.ID,
			Position:        i,
		})
	}

	playlist := models.NewPlaylist(0, provider, pl.ID, owner.ID(), models.PlaylistAttrs{
		Name:        pl.Name,
		Description: pl.Description,
		TrackCount:  len(refs),
		Public:      pl.Public,
		Raw:         pl.Raw,
	})
	playlist.SetTracks(refs)

	if _, err := e.playlists.Upsert(playlist); err != nil {
		return 0, err
	}

	return len(refs), nil
}

// syncSavedTracks upserts the user's saved tracks as plain track rows with
// no playlist membership.
func (e *LibraryEngine) syncSavedTracks(ctx context.Context) (int, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	dtos, err := e.source.GetSavedTracks(ctx)
	if err != nil {
		return 0, err
	}

	provider := e.source.Name()
	for _, dto := range dtos {
		if _, err := e.tracks.Upsert(trackFromDTO(provider, dto)); err != nil {
			return 0, err
		}
	}

	return len(dtos), nil
}

// Snapshot assembles the stored library of a previously synced user,
// resolving every playlist's track references into full track rows.
func (e *LibraryEngine) Snapshot(ctx context.Context, provider, providerUserID string) (*LibrarySnapshot, error) {
	user, err := e.users.GetByProviderID(provider, providerUserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s user %s has never been synced", shared.ErrUserNotFound, provider, providerUserID)
	}

	playlists, err := e.playlists.ListByOwner(user.ID())
	if err != nil {
		return nil, err
	}

	exports := make([]*models.PlaylistExport, 0, len(playlists))
	for _, pl := range playlists {
		refs := pl.Tracks()
		ids := make([]string, 0, len(refs))
		for _, ref := range refs {
			ids = append(ids, ref.TrackID)
		}

		tracks, err := e.tracks.ListByIDs(ids)
		if err != nil {
			return nil, err
		}

		exports = append(exports, &models.PlaylistExport{Playlist: pl, Tracks: tracks})
	}

	snapshot := &LibrarySnapshot{User: user, Playlists: exports}

	if e.jobs != nil {
		jobs, err := e.jobs.List(map[string]any{"user_id": user.ID()})
		if err != nil {
			return nil, err
		}
		snapshot.Jobs = jobs
	}

	return snapshot, nil
}

// beginJob opens a sync history row. History is best effort: a nil or
// failing job store never blocks the pass.
func (e *LibraryEngine) beginJob(userID, provider string) *models.SyncJob {
	if e.jobs == nil {
		return nil
	}

	job := models.NewSyncJob(0, userID, provider)
	job.SetStatus(models.JobRunning)
	now := time.Now()
	job.SetStartedAt(&now)

	if err := e.jobs.Create(job); err != nil {
		return nil
	}
	return job
}

// failJob marks the history row failed and hands the error back unchanged.
func (e *LibraryEngine) failJob(job *models.SyncJob, err error) error {
	if job != nil {
		job.SetStatus(models.JobFailed)
		job.SetErrorMessage(err.Error())
		now := time.Now()
		job.SetCompletedAt(&now)
		_ = e.jobs.Update(job)
	}
	return err
}

func (e *LibraryEngine) completeJob(job *models.SyncJob, result *SyncResult) {
	if job == nil {
		return
	}

	job.SetStatus(models.JobCompleted)
	job.SetPlaylistsTotal(result.PlaylistsTotal)
	job.SetPlaylistsSynced(result.PlaylistsSynced)
	job.SetPlaylistsSkipped(result.PlaylistsSkipped)
	job.SetTracksUpserted(result.TracksUpserted)
	job.SetSavedTracks(result.SavedTracks)
	now := time.Now()
	job.SetCompletedAt(&now)
	_ = e.jobs.Update(job)
}

func trackFromDTO(provider string, dto services.Track) *models.Track {
	return models.NewTrack(0, provider, dto.ID, models.TrackAttrs{
		Title:      dto.Title,
		Artist:     dto.Artist,
		Album:      dto.Album,
		ISRC:       dto.ISRC,
		DurationMS: dto.DurationMS,
		Raw:        dto.Raw,
	})
}
