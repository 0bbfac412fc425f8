package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/snx/internal/models"
	"github.com/desertthunder/snx/internal/shared"
)

// TrackRepository implements [models.Repository] for [models.Track] persistence.
//
// Track rows are global per (provider, provider-local track id), shared by
// every playlist that references them. [TrackRepository.Upsert] is the
// deduplication point: concurrent syncs observing the same track converge on
// a single row.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts the track under a fresh store id and sequence number.
func (r *TrackRepository) Create(track *models.Track) error {
	sequence, err := NextSequence(r.db, "tracks")
	if err != nil {
		return persistErr("failed to generate sequence", err)
	}

	id := shared.GenerateID()
	track.SetID(id)

	if err := track.Validate(); err != nil {
		return fmt.Errorf("invalid track: %w", err)
	}

	query := `
		INSERT INTO tracks (id, sequence, provider, provider_track_id, title, artist, album, isrc, duration_ms, raw, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		track.Provider(),
		track.ProviderTrackID(),
		track.Title(),
		track.Artist(),
		track.Album(),
		track.ISRC(),
		track.DurationMS(),
		profileJSON(track.Raw()),
		track.CreatedAt(),
		track.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert track: %w", err)
		}
		return persistErr("insert track", err)
	}

	return nil
}

// Get returns the live track with the given store id.
func (r *TrackRepository) Get(id string) (*models.Track, error) {
	query := `
		SELECT id, sequence, provider, provider_track_id, title, artist, album, isrc, duration_ms, raw, created_at, updated_at, deleted_at
		FROM tracks
		WHERE id = ? AND deleted_at IS NULL
	`

	track, err := r.scanOne(r.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, id)
	}
	return track, nil
}

// GetByProviderID retrieves a track by its (provider, provider-local track id)
// key. Returns (nil, nil) when no matching row exists.
func (r *TrackRepository) GetByProviderID(provider, localID string) (*models.Track, error) {
	query := `
		SELECT id, sequence, provider, provider_track_id, title, artist, album, isrc, duration_ms, raw, created_at, updated_at, deleted_at
		FROM tracks
		WHERE provider = ? AND provider_track_id = ? AND deleted_at IS NULL
	`

	return r.scanOne(r.db.QueryRow(query, provider, localID))
}

// GetByISRC retrieves a track by ISRC code across any provider
func (r *TrackRepository) GetByISRC(isrc string) (*models.Track, error) {
	query := `
		SELECT id, sequence, provider, provider_track_id, title, artist, album, isrc, duration_ms, raw, created_at, updated_at, deleted_at
		FROM tracks
		WHERE isrc = ? AND deleted_at IS NULL
		LIMIT 1
	`

	track, err := r.scanOne(r.db.QueryRow(query, isrc))
	if err != nil {
		return nil, err
	}
	if track == nil {
		return nil, fmt.Errorf("%w: isrc %s", shared.ErrTrackNotFound, isrc)
	}
	return track, nil
}

// Exists reports whether a track row exists for the composite key.
func (r *TrackRepository) Exists(provider, localID string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM tracks WHERE provider = ? AND provider_track_id = ? AND deleted_at IS NULL)"
	if err := r.db.QueryRow(query, provider, localID).Scan(&exists); err != nil {
		return false, persistErr("failed to check track existence", err)
	}
	return exists, nil
}

// Upsert inserts the track if its (provider, provider-local track id) key is
// absent, otherwise refreshes the stored contents. Returns the post-write
// record including its store-assigned id. Safe under concurrent invocation
// with the same key: the loser of an insert race falls back to the update
// path, so the last write wins and exactly one row remains.
func (r *TrackRepository) Upsert(track *models.Track) (*models.Track, error) {
	existing, err := r.GetByProviderID(track.Provider(), track.ProviderTrackID())
	if err != nil {
		return nil, err
	}

	if existing == nil {
		err := r.Create(track)
		if err == nil {
			return track, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}

		existing, err = r.GetByProviderID(track.Provider(), track.ProviderTrackID())
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, persistErr("failed to upsert track", fmt.Errorf("row vanished after constraint violation"))
		}
	}

	if existing.Attrs().Equal(track.Attrs()) {
		return existing, nil
	}

	existing.SetAttrs(track.Attrs())
	if err := r.Update(existing); err != nil {
		return nil, err
	}

	return existing, nil
}

// Update rewrites the mutable columns of a live track row.
func (r *TrackRepository) Update(track *models.Track) error {
	if err := track.Validate(); err != nil {
		return fmt.Errorf("invalid track: %w", err)
	}

	now := time.Now()
	track.SetUpdatedAt(now)

	query := `
		UPDATE tracks
		SET title = ?, artist = ?, album = ?, isrc = ?, duration_ms = ?, raw = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		track.Title(),
		track.Artist(),
		track.Album(),
		track.ISRC(),
		track.DurationMS(),
		profileJSON(track.Raw()),
		now,
		track.ID(),
	)
	if err != nil {
		return persistErr("failed to update track", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("no live track row for id %s", track.ID())
	}

	return nil
}

// Delete marks the track deleted, keeping the row.
func (r *TrackRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE tracks
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return persistErr("failed to delete track", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("no live track row for id %s", id)
	}

	return nil
}

// List returns live tracks matching criteria in insertion order.
func (r *TrackRepository) List(criteria map[string]any) ([]*models.Track, error) {
	query := `
		SELECT id, sequence, provider, provider_track_id, title, artist, album, isrc, duration_ms, raw, created_at, updated_at, deleted_at
		FROM tracks
		WHERE deleted_at IS NULL
	`

	args := []any{}

	if provider, ok := criteria["provider"].(string); ok && provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}

	if isrc, ok := criteria["isrc"].(string); ok && isrc != "" {
		query += " AND isrc = ?"
		args = append(args, isrc)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, persistErr("failed to query tracks", err)
	}
	defer rows.Close()

	var tracks []*models.Track
	for rows.Next() {
		track, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, persistErr("row iteration error", err)
	}

	return tracks, nil
}

// ListByIDs retrieves tracks by their store ids, preserving the given order.
func (r *TrackRepository) ListByIDs(ids []string) ([]*models.Track, error) {
	byID := make(map[string]*models.Track, len(ids))
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			continue
		}
		track, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		byID[id] = track
	}

	ordered := make([]*models.Track, 0, len(ids))
	for _, id := range ids {
		ordered = append(ordered, byID[id])
	}
	return ordered, nil
}

// scanOne scans a single [sql.Row] into a [models.Track], returning (nil, nil) on no rows.
func (r *TrackRepository) scanOne(row *sql.Row) (*models.Track, error) {
	var (
		id         string
		sequence   int
		provider   string
		localID    string
		title      string
		artist     string
		album      string
		isrc       string
		durationMS int
		raw        string
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := row.Scan(&id, &sequence, &provider, &localID, &title, &artist, &album, &isrc, &durationMS, &raw, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("failed to scan track", err)
	}

	return buildTrack(id, sequence, provider, localID, title, artist, album, isrc, durationMS, raw, createdAt, updatedAt, deletedAt), nil
}

// scanRow scans a row from [sql.Rows] into a [models.Track]
func (r *TrackRepository) scanRow(rows *sql.Rows) (*models.Track, error) {
	var (
		id         string
		sequence   int
		provider   string
		localID    string
		title      string
		artist     string
		album      string
		isrc       string
		durationMS int
		raw        string
		createdAt  time.Time
		updatedAt  time.Time
		deletedAt  sql.NullTime
	)

	err := rows.Scan(&id, &sequence, &provider, &localID, &title, &artist, &album, &isrc, &durationMS, &raw, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, persistErr("failed to scan track", err)
	}

	return buildTrack(id, sequence, provider, localID, title, artist, album, isrc, durationMS, raw, createdAt, updatedAt, deletedAt), nil
}

func buildTrack(id string, sequence int, provider, localID, title, artist, album, isrc string, durationMS int, raw string, createdAt, updatedAt time.Time, deletedAt sql.NullTime) *models.Track {
	attrs := models.TrackAttrs{
		Title:      title,
		Artist:     artist,
		Album:      album,
		ISRC:       isrc,
		DurationMS: durationMS,
		Raw:        json.RawMessage(raw),
	}

	track := models.NewTrack(sequence, provider, localID, attrs)
	track.SetID(id)
	track.SetCreatedAt(createdAt)
	track.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		track.SetDeletedAt(&deletedAt.Time)
	}

	return track
}
