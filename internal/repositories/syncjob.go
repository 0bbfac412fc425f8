package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/snx/internal/models"
	"github.com/desertthunder/snx/internal/shared"
)

// SyncJobRepository implements [models.Repository] for sync job tracking.
//
// Handles sync job CRUD operations with soft delete support and status-based queries.
type SyncJobRepository struct {
	db *sql.DB
}

// NewSyncJobRepository creates a new SyncJobRepository with the given database connection
func NewSyncJobRepository(db *sql.DB) *SyncJobRepository {
	return &SyncJobRepository{db: db}
}

// Create inserts the job under a fresh store id and sequence number.
func (r *SyncJobRepository) Create(job *models.SyncJob) error {
	sequence, err := NextSequence(r.db, "sync_jobs")
	if err != nil {
		return persistErr("failed to generate sequence", err)
	}

	id := shared.GenerateID()
	job.SetID(id)

	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid sync job: %w", err)
	}

	query := `
		INSERT INTO sync_jobs (
			id, sequence, user_id, provider, status, playlists_total,
			playlists_synced, playlists_skipped, tracks_upserted, saved_tracks,
			error_message, started_at, completed_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var errorMessage any = job.ErrorMessage()
	if errorMessage == "" {
		errorMessage = nil
	}

	_, err = r.db.Exec(query,
		id,
		sequence,
		job.UserID(),
		job.Provider(),
		job.Status(),
		job.PlaylistsTotal(),
		job.PlaylistsSynced(),
		job.PlaylistsSkipped(),
		job.TracksUpserted(),
		job.SavedTracks(),
		errorMessage,
		job.StartedAt(),
		job.CompletedAt(),
		job.CreatedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return persistErr("insert sync job", err)
	}

	return nil
}

// Get returns the live job with the given store id.
func (r *SyncJobRepository) Get(id string) (*models.SyncJob, error) {
	query := `
		SELECT
			id, sequence, user_id, provider, status, playlists_total,
			playlists_synced, playlists_skipped, tracks_upserted, saved_tracks,
			error_message, started_at, completed_at, created_at, updated_at, deleted_at
		FROM sync_jobs
		WHERE id = ? AND deleted_at IS NULL
	`

	return r.scanOne(r.db.QueryRow(query, id))
}

// Update rewrites the mutable columns of a live job row.
func (r *SyncJobRepository) Update(job *models.SyncJob) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid sync job: %w", err)
	}

	now := time.Now()
	job.SetUpdatedAt(now)

	query := `
		UPDATE sync_jobs
		SET status = ?, playlists_total = ?, playlists_synced = ?,
			playlists_skipped = ?, tracks_upserted = ?, saved_tracks = ?,
			error_message = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	var errorMessage any = job.ErrorMessage()
	if errorMessage == "" {
		errorMessage = nil
	}

	result, err := r.db.Exec(query,
		job.Status(),
		job.PlaylistsTotal(),
		job.PlaylistsSynced(),
		job.PlaylistsSkipped(),
		job.TracksUpserted(),
		job.SavedTracks(),
		errorMessage,
		job.StartedAt(),
		job.CompletedAt(),
		now,
		job.ID(),
	)
	if err != nil {
		return persistErr("failed to update sync job", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("no live sync job row for id %s", job.ID())
	}

	return nil
}

// Delete marks the job deleted, keeping the row.
func (r *SyncJobRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE sync_jobs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return persistErr("failed to delete sync job", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("no live sync job row for id %s", id)
	}

	return nil
}

// List returns live jobs matching criteria, newest first.
func (r *SyncJobRepository) List(criteria map[string]any) ([]*models.SyncJob, error) {
	query := `
		SELECT
			id, sequence, user_id, provider, status, playlists_total,
			playlists_synced, playlists_skipped, tracks_upserted, saved_tracks,
			error_message, started_at, completed_at, created_at, updated_at, deleted_at
		FROM sync_jobs
		WHERE deleted_at IS NULL
	`

	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	if provider, ok := criteria["provider"].(string); ok && provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}

	if status, ok := criteria["status"].(string); ok && status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}

	query += " ORDER BY sequence DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, persistErr("failed to query sync jobs", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, persistErr("row iteration error", err)
	}

	return jobs, nil
}

// scanOne scans a single [sql.Row] into a [models.SyncJob]
func (r *SyncJobRepository) scanOne(row *sql.Row) (*models.SyncJob, error) {
	var (
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
		errorMessage     sql.NullString
		startedAt        sql.NullTime
		completedAt      sql.NullTime
		createdAt        time.Time
		updatedAt        time.Time
		deletedAt        sql.NullTime
	)

	err := row.Scan(
		&id, &sequence, &userID, &provider, &status, &playlistsTotal,
		&playlistsSynced, &playlistsSkipped, &tracksUpserted, &savedTracks,
		&errorMessage, &startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync job not found")
	}
	if err != nil {
		return nil, persistErr("failed to scan sync job", err)
	}

	return buildSyncJob(id, sequence, userID, provider, status, playlistsTotal, playlistsSynced, playlistsSkipped, tracksUpserted, savedTracks, errorMessage, startedAt, completedAt, createdAt, updatedAt, deletedAt), nil
}

// scanRow scans a row from [sql.Rows] into a [models.SyncJob]
func (r *SyncJobRepository) scanRow(rows *sql.Rows) (*models.SyncJob, error) {
	var (
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
		errorMessage     sql.NullString
		startedAt        sql.NullTime
		completedAt      sql.NullTime
		createdAt        time.Time
		updatedAt        time.Time
		deletedAt        sql.NullTime
	)

	err := rows.Scan(
		&id, &sequence, &userID, &provider, &status, &playlistsTotal,
		&playlistsSynced, &playlistsSkipped, &tracksUpserted, &savedTracks,
		&errorMessage, &startedAt, &completedAt, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, persistErr("failed to scan sync job", err)
	}

	return buildSyncJob(id, sequence, userID, provider, status, playlistsTotal, playlistsSynced, playlistsSkipped, tracksUpserted, savedTracks, errorMessage, startedAt, completedAt, createdAt, updatedAt, deletedAt), nil
}

func buildSyncJob(id string, sequence int, userID, provider, status string, playlistsTotal, playlistsSynced, playlistsSkipped, tracksUpserted, savedTracks int, errorMessage sql.NullString, startedAt, completedAt sql.NullTime, createdAt, updatedAt time.Time, deletedAt sql.NullTime) *models.SyncJob {
	job := models.NewSyncJob(sequence, userID, provider)
	job.SetID(id)
	job.SetStatus(status)
	job.SetPlaylistsTotal(playlistsTotal)
	job.SetPlaylistsSynced(playlistsSynced)
	job.SetPlaylistsSkipped(playlistsSkipped)
	job.SetTracksUpserted(tracksUpserted)
	job.SetSavedTracks(savedTracks)
	job.SetCreatedAt(createdAt)
	job.SetUpdatedAt(updatedAt)

	if errorMessage.Valid {
		job.SetErrorMessage(errorMessage.String)
	}
	if startedAt.Valid {
		job.SetStartedAt(&startedAt.Time)
	}
	if completedAt.Valid {
		job.SetCompletedAt(&completedAt.Time)
	}
	if deletedAt.Valid {
		job.SetDeletedAt(&deletedAt.Time)
	}

	return job
}
