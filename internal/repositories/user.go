package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/snx/internal/models"
	"github.com/desertthunder/snx/internal/shared"
)

// UserRepository implements [models.Repository] for [models.User] persistence.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository wraps db with [models.User] persistence.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts the user under a fresh store id and sequence number.
func (r *UserRepository) Create(user *models.User) error {
	sequence, err := NextSequence(r.db, "users")
	if err != nil {
		return persistErr("failed to generate sequence", err)
	}

	id := shared.GenerateID()
	user.SetID(id)

	if err := user.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	query := `
		INSERT INTO users (id, sequence, provider, provider_user_id, display_name, email, profile, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		user.Provider(),
		user.ProviderUserID(),
		user.DisplayName(),
		user.Email(),
		profileJSON(user.Profile()),
		user.CreatedAt(),
		user.UpdatedAt(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", err)
		}
		return persistErr("insert user", err)
	}

	return nil
}

// Get returns the live user with the given store id.
func (r *UserRepository) Get(id string) (*models.User, error) {
	query := `
		SELECT id, sequence, provider, provider_user_id, display_name, email, profile, created_at, updated_at, deleted_at
		FROM users
		WHERE id = ? AND deleted_at IS NULL
	`

	user, err := r.scanOne(r.db.QueryRow(query, id))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrUserNotFound, id)
	}
	return user, nil
}

// GetByProviderID retrieves a user by its (provider, provider-local user id)
// key. Returns (nil, nil) when no matching row exists.
func (r *UserRepository) GetByProviderID(provider, localID string) (*models.User, error) {
	query := `
		SELECT id, sequence, provider, provider_user_id, display_name, email, profile, created_at, updated_at, deleted_at
		FROM users
		WHERE provider = ? AND provider_user_id = ? AND deleted_at IS NULL
	`

	return r.scanOne(r.db.QueryRow(query, provider, localID))
}

// Upsert inserts the user if its (provider, provider-local user id) key is
// absent, otherwise refreshes the stored profile. Returns the post-write
// record including its store-assigned id. An unchanged profile is left
// untouched so repeated passes do not rewrite identical rows.
func (r *UserRepository) Upsert(user *models.User) (*models.User, error) {
	existing, err := r.GetByProviderID(user.Provider(), user.ProviderUserID())
	if err != nil {
		return nil, err
	}

	if existing == nil {
		err := r.Create(user)
		if err == nil {
			return user, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}

		// Lost an insert race; the row exists now, fall through to update.
		existing, err = r.GetByProviderID(user.Provider(), user.ProviderUserID())
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, persistErr("failed to upsert user", fmt.Errorf("row vanished after constraint violation"))
		}
	}

	if existing.Attrs().Equal(user.Attrs()) {
		return existing, nil
	}

	existing.SetAttrs(user.Attrs())
	if err := r.Update(existing); err != nil {
		return nil, err
	}

	return existing, nil
}

// Update rewrites the mutable columns of a live user row.
func (r *UserRepository) Update(user *models.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	now := time.Now()
	user.SetUpdatedAt(now)

	query := `
		UPDATE users
		SET display_name = ?, email = ?, profile = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, user.DisplayName(), user.Email(), profileJSON(user.Profile()), now, user.ID())
	if err != nil {
		return persistErr("failed to update user", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("no live user row for id %s", user.ID())
	}

	return nil
}

// Delete marks the user deleted, keeping the row.
func (r *UserRepository) Delete(id string) error {
	now := time.Now()

	query := `
		UPDATE users
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, now, id)
	if err != nil {
		return persistErr("failed to delete user", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return persistErr("failed to get affected rows", err)
	}
	if rows == 0 {
		return fmt.Errorf("no live user row for id %s", id)
	}

	return nil
}

// List returns live users matching criteria in insertion order.
func (r *UserRepository) List(criteria map[string]any) ([]*models.User, error) {
	query := `
		SELECT id, sequence, provider, provider_user_id, display_name, email, profile, created_at, updated_at, deleted_at
		FROM users
		WHERE deleted_at IS NULL
	`

	args := []any{}

	if provider, ok := criteria["provider"].(string); ok && provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}

	if email, ok := criteria["email"].(string); ok && email != "" {
		query += " AND email = ?"
		args = append(args, email)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, persistErr("failed to query users", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, persistErr("row iteration error", err)
	}

	return users, nil
}

// scanOne scans a single [sql.Row] into a [models.User], returning (nil, nil) on no rows.
func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	var (
		id        string
		sequence  int
		provider  string
		localID   string
		display   string
		email     string
		profile   string
		createdAt time.Time
		updatedAt time.Time
		deletedAt sql.NullTime
	)

	err := row.Scan(&id, &sequence, &provider, &localID, &display, &email, &profile, &createdAt, &updatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("failed to scan user", err)
	}

	return buildUser(id, sequence, provider, localID, display, email, profile, createdAt, updatedAt, deletedAt), nil
}

// scanRow scans a row from [sql.Rows] into a [models.User]
func (r *UserRepository) scanRow(rows *sql.Rows) (*models.User, error) {
	var (
		id        string
		sequence  int
		provider  string
		localID   string
		display   string
		email     string
		profile   string
		createdAt time.Time
		updatedAt time.Time
		deletedAt sql.NullTime
	)

	err := rows.Scan(&id, &sequence, &provider, &localID, &display, &email, &profile, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, persistErr("failed to scan user", err)
	}

	return buildUser(id, sequence, provider, localID, display, email, profile, createdAt, updatedAt, deletedAt), nil
}

func buildUser(id string, sequence int, provider, localID, display, email, profile string, createdAt, updatedAt time.Time, deletedAt sql.NullTime) *models.User {
	attrs := models.UserAttrs{
		DisplayName: display,
		Email:       email,
		Profile:     json.RawMessage(profile),
	}

	user := models.NewUser(sequence, provider, localID, attrs)
	user.SetID(id)
	user.SetCreatedAt(createdAt)
	user.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		user.SetDeletedAt(&deletedAt.Time)
	}

	return user
}

// profileJSON normalizes a raw payload for storage; empty payloads persist as
// an empty object so attribute comparisons stay stable across round trips.
func profileJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
