package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tunebridge/tunebridge/internal/models"
	"github.com/tunebridge/tunebridge/internal/shared"
)

// UserRepository handles account rows.
//
// Users are soft-deleted: Delete sets deleted_on and every read filters
// deleted rows unless explicitly asked not to.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository with the given database connection
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, username, email, first_name, last_name, role, created_on, updated_on, deleted_on"

// Create inserts a new user and populates its generated ID.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.Username == "" || user.Email == "" {
		return fmt.Errorf("%w: username and email are required", shared.ErrInvalidInput)
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	now := time.Now().UTC()
	user.CreatedOn = now
	user.UpdatedOn = now

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO users (username, email, first_name, last_name, role, created_on, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, user.Username, user.Email, user.FirstName, user.LastName, user.Role, now, now)
	if err != nil {
		return fmt.Errorf("%w: failed to insert user: %v", shared.ErrStorage, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: failed to read user id: %v", shared.ErrStorage, err)
	}
	user.ID = id

	return nil
}

// Get retrieves a user by ID, excluding soft-deleted users.
func (r *UserRepository) Get(ctx context.Context, id int64) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = ? AND deleted_on IS NULL"
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetAny retrieves a user by ID including soft-deleted rows.
func (r *UserRepository) GetAny(ctx context.Context, id int64) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = ?"
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByUsername retrieves a user by username, excluding soft-deleted users.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE username = ? AND deleted_on IS NULL"
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// Update modifies a user's mutable profile fields.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	user.UpdatedOn = now

	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET username = ?, email = ?, first_name = ?, last_name = ?, role = ?, updated_on = ?
		WHERE id = ? AND deleted_on IS NULL
	`, user.Username, user.Email, user.FirstName, user.LastName, user.Role, now, user.ID)
	if err != nil {
		return fmt.Errorf("%w: failed to update user: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user %d", shared.ErrUserNotFound, user.ID)
	}

	return nil
}

// Delete soft-deletes a user by setting deleted_on.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET deleted_on = ? WHERE id = ? AND deleted_on IS NULL
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("%w: failed to delete user: %v", shared.ErrStorage, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrStorage, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user %d", shared.ErrUserNotFound, id)
	}

	return nil
}

// Search finds users whose username, email, or name contains the query
// substring. Soft-deleted users are excluded unless includeDeleted is set.
//
// SQLite serves this with LIKE; a Postgres deployment would back the same
// query with trigram indexes.
func (r *UserRepository) Search(ctx context.Context, query string, includeDeleted bool) ([]models.User, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", shared.ErrInvalidInput)
	}

	stmt := "SELECT " + userColumns + ` FROM users
		WHERE (username LIKE ? OR email LIKE ? OR first_name LIKE ? OR last_name LIKE ?)`
	if !includeDeleted {
		stmt += " AND deleted_on IS NULL"
	}
	stmt += " ORDER BY username ASC"

	pattern := "%" + query + "%"
	rows, err := r.db.QueryContext(ctx, stmt, pattern, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search users: %v", shared.ErrStorage, err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrStorage, err)
	}

	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser scans one user row from either *sql.Row or *sql.Rows.
func scanUser(row rowScanner) (*models.User, error) {
	var (
		user      models.User
		deletedOn sql.NullTime
	)

	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName,
		&user.LastName, &user.Role, &user.CreatedOn, &user.UpdatedOn, &deletedOn)
	if err == sql.ErrNoRows {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan user: %v", shared.ErrStorage, err)
	}

	if deletedOn.Valid {
		user.DeletedOn = &deletedOn.Time
	}

	return &user, nil
}

func (r *UserRepository) scanOne(row *sql.Row) (*models.User, error) {
	return scanUser(row)
}
