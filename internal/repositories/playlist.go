package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/desertthunder/snx/internal/models"
	"github.com/desertthunder/snx/internal/shared"
)

// PlaylistRepository implements [models.Repository] for [models.Playlist]
// persistence, including the playlist_tracks join rows that pin each
// playlist's ordered track membership.
type PlaylistRepository struct {
	db *sql.DB
}

// NewPlaylistRepository creates a new PlaylistRepository with the given database connection
func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create inserts the playlist, its sequence, and its track membership.
func (r *PlaylistRepository) Create(playlist *models.Playlist) error {
	sequence, err := NextSequence(r.db, "playlists")
	if err != nil {
		return persistErr("failed to generate sequence", err)
	}

	id := shared.GenerateID()
	playlist.SetID(id)

	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("invalid playlist: %w", err)
	}

	query := `
		INSERT INTO playlists (id, sequence, provider, provider_playlist_id, owner_id, name, description, track_count, public, raw, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		playlist.Provider(),
		playlist.ProviderPlaylistID(),
		playlist.OwnerID(),
		playlist.Name(),
		playlist.Description(),
		playlist.TrackCount(),
		playlist.Public(),
		profileJSON(playlist.Raw()),
		playlist.CreatedAt(),
		playlist.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert playlist: %w", err)
		}
		return persistErr("insert playlist", err)
	}

	if len(playlist.Tracks()) > 0 {
		if err := r.ReplaceTracks(id, playlist.Tracks()); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the live playlist with the given store id, track membership loaded.
func (r *PlaylistRepository) Get(id string) (*models.Playlist, error) {
	query := `
		SELECT id, sequence, provider, provider_playlist_id, owner_id, name, description, track_count, public, raw, created_at, updated_at, deleted_at
		FROM playlists
		WHERE id = ? AND deleted_at IS NULL
	`

	playlist, err := r.scanOne(r.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}
	if playlist == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, id)
	}

	if err := r.loadTracks(playlist); err != nil {
		return nil, err
	}
	return playlist, nil
}

// GetByProviderID retrieves a playlist by its (provider, provider-local
// playlist id) key. Returns (nil, nil) when no matching row exists.
func (r *PlaylistRepository) GetByProviderID(provider, localID string) (*models.Playlist, error) {
	query := `
		SELECT id, sequence, provider, provider_playlist_id, owner_id, name, description, track_count, public, raw, created_at, updated_at, deleted_at
		FROM playlists
		WHERE provider = ? AND provider_playlist_id = ? AND deleted_at IS NULL
	`

	playlist, err := r.scanOne(r.db.QueryRow(query, provider, localID))
	if err != nil || playlist == nil {
		return nil, err
	}

	if err := r.loadTracks(playlist); err != nil {
		return nil, err
	}
	return playlist, nil
}

// Exists reports whether a playlist row exists for the composite key.
func (r *PlaylistRepository) Exists(provider, localID string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM playlists WHERE provider = ? AND provider_playlist_id = ? AND deleted_at IS NULL)"
	if err := r.db.QueryRow(query, provider, localID).Scan(&exists); err != nil {
		return false, persistErr("failed to check playlist existence", err)
	}
	return exists, nil
}

// Upsert inserts the playlist if its (provider, provider-local playlist id)
// key is absent, otherwise replaces the stored contents and track membership.
// Returns the post-write record including its store-assigned id. Safe under
// concurrent invocation with the same key: the loser of an insert race falls
// back to the update path. An unchanged playlist is left untouched.
func (r *PlaylistRepository) Upsert(playlist *models.Playlist) (*models.Playlist, error) {
	existing, err := r.GetByProviderID(playlist.Provider(), playlist.ProviderPlaylistID())
	if err != nil {
		return nil, err
	}

	if existing == nil {
		err := r.Create(playlist)
		if err == nil {
			return playlist, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}

		existing, err = r.GetByProviderID(playlist.Provider(), playlist.ProviderPlaylistID())
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, persistErr("failed to upsert playlist", fmt.Errorf("row vanished after constraint violation"))
		}
	}

	if existing.Attrs().Equal(playlist.Attrs()) && slices.Equal(existing.Tracks(), playlist.Tracks()) {
		return existing, nil
	}

	existing.SetAttrs(playlist.Attrs())
	if err := r.Update(existing); err != nil {
		return nil, err
	}

	if !slices.Equal(existing.Tracks(), playlist.Tracks()) {
		if err := r.ReplaceTracks(existing.ID(), playlist.Tracks()); err != nil {
			return nil, err
		}
		existing.SetTracks(playlist.Tracks())
	}

	return existing, nil
}

// Update rewrites the mutable playlist columns. Track membership moves
// through [PlaylistRepository.ReplaceTracks] instead.
func (r *PlaylistRepository) Update(playlist *models.Playlist) error {
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("invalid playlist: %w", err)
	}

	now := time.Now()
	playlist.SetUpdatedAt(now)

	query := `
		UPDATE playlists
		SET name = ?, description = ?, track_count = ?, public = ?, raw = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		playlist.Name(),
		playlist.Description(),
		playlist.TrackCount(),
		playlist.Public(),
		profileJSON(playlist.Raw()),
		now,
		playlist.ID(),
	)
	if err != nil {
		return persistErr("failed to update playlist", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("no live playlist row for id %s", playlist.ID())
	}

	return nil
}

// ReplaceTracks swaps a playlist's track membership for the given ordered
// refs. The delete and inserts run in one transaction so readers never
// observe a half-replaced playlist.
func (r *PlaylistRepository) ReplaceTracks(playlistID string, refs []models.TrackRef) error {
	tx, err := r.db.Begin()
	if err != nil {
		return persistErr("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM playlist_tracks WHERE playlist_id = ?", playlistID); err != nil {
		return persistErr("failed to clear playlist tracks", err)
	}

	query := "INSERT INTO playlist_tracks (playlist_id, position, track_id, provider_track_id) VALUES (?, ?, ?, ?)"
	for _, ref := range refs {
		if _, err := tx.Exec(query, playlistID, ref.Position, ref.TrackID, ref.ProviderTrackID); err != nil {
			return persistErr("insert playlist track", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistErr("failed to commit playlist tracks", err)
	}
	return nil
}

// Delete marks the playlist deleted, keeping the row and its refs.
func (r *PlaylistRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE playlists
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return persistErr("failed to delete playlist", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("no live playlist row for id %s", id)
	}

	return nil
}

// List returns live playlists matching criteria, track membership loaded,
// ordered by insertion sequence so repeated listings are deterministic.
func (r *PlaylistRepository) List(criteria map[string]any) ([]*models.Playlist, error) {
	query := `
		SELECT id, sequence, provider, provider_playlist_id, owner_id, name, description, track_count, public, raw, created_at, updated_at, deleted_at
		FROM playlists
		WHERE deleted_at IS NULL
	`

	args := []any{}

	if ownerID, ok := criteria["owner_id"].(string); ok && ownerID != "" {
		query += " AND owner_id = ?"
		args = append(args, ownerID)
	}

	if provider, ok := criteria["provider"].(string); ok && provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, persistErr("failed to query playlists", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		playlist, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}

	if err := rows.Err(); err != nil {
		return nil, persistErr("row iteration error", err)
	}

	for _, playlist := range playlists {
		if err := r.loadTracks(playlist); err != nil {
			return nil, err
		}
	}

	return playlists, nil
}

// ListByOwner retrieves every playlist owned by the given store user id.
func (r *PlaylistRepository) ListByOwner(ownerID string) ([]*models.Playlist, error) {
	return r.List(map[string]any{"owner_id": ownerID})
}

// loadTracks populates a playlist's ordered track refs from playlist_tracks.
func (r *PlaylistRepository) loadTracks(playlist *models.Playlist) error {
	query := `
		SELECT position, track_id, provider_track_id
		FROM playlist_tracks
		WHERE playlist_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.Query(query, playlist.ID())
	if err != nil {
		return persistErr("failed to query playlist tracks", err)
	}
	defer rows.Close()

	var refs []models.TrackRef
	for rows.Next() {
		var ref models.TrackRef
		if err := rows.Scan(&ref.Position, &ref.TrackID, &ref.ProviderTrackID); err != nil {
			return persistErr("failed to scan playlist track", err)
		}
		refs = append(refs, ref)
	}

	if err := rows.Err(); err != nil {
		return persistErr("row iteration error", err)
	}

	playlist.SetTracks(refs)
	return nil
}

// scanOne scans a single [sql.Row] into a [models.Playlist], returning (nil, nil) on no rows.
func (r *PlaylistRepository) scanOne(row *sql.Row) (*models.Playlist, error) {
	var (
		id          string
		sequence    int
		provider    string
		localID     string
		ownerID     string
		name        string
		description string
		trackCount  int
		public      bool
		raw         string
		createdAt   time.Time
		updatedAt   time.Time
		deletedAt   sql.NullTime
	)

	err := row.Scan(&id, &sequence, &provider, &localID, &ownerID, &name, &description, &trackCount, &public, &raw, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("failed to scan playlist", err)
	}

	return buildPlaylist(id, sequence, provider, localID, ownerID, name, description, trackCount, public, raw, createdAt, updatedAt, deletedAt), nil
}

// scanRow scans a row from [sql.Rows] into a [models.Playlist]
func (r *PlaylistRepository) scanRow(rows *sql.Rows) (*models.Playlist, error) {
	var (
		id          string
		sequence    int
		provider    string
		localID     string
		ownerID     string
		name        string
		description string
		trackCount  int
		public      bool
		raw         string
		createdAt   time.Time
		updatedAt   time.Time
		deletedAt   sql.NullTime
	)

	err := rows.Scan(&id, &sequence, &provider, &localID, &ownerID, &name, &description, &trackCount, &public, &raw, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, persistErr("failed to scan playlist", err)
	}

	return buildPlaylist(id, sequence, provider, localID, ownerID, name, description, trackCount, public, raw, createdAt, updatedAt, deletedAt), nil
}

func buildPlaylist(id string, sequence int, provider, localID, ownerID, name, description string, trackCount int, public bool, raw string, createdAt, updatedAt time.Time, deletedAt sql.NullTime) *models.Playlist {
	attrs := models.PlaylistAttrs{
		Name:        name,
		Description: description,
		TrackCount:  trackCount,
		Public:      public,
		Raw:         json.RawMessage(raw),
	}

	playlist := models.NewPlaylist(sequence, provider, localID, ownerID, attrs)
	playlist.SetID(id)
	playlist.SetCreatedAt(createdAt)
	playlist.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		playlist.SetDeletedAt(&deletedAt.Time)
	}

	return playlist
}
