// Package repositories implements the data access layer (repository pattern) for the user
// management API. Each repository type encapsulates all database queries for one entity;
// handlers never issue SQL directly, which keeps query logic testable with sqlmock.
package repositories

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/usermanagement/usermanagement/internal/db/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, username, firstname, lastname, adress_id, active`

// ListActiveUsers returns every active user with address and roles, ordered by username
func (r *UserRepository) ListActiveUsers(ctx context.Context) ([]*models.UserWithDetails, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM users WHERE active ORDER BY username`)
	if err != nil {
		return nil, err
	}

	result := make([]*models.UserWithDetails, 0, len(users))
	for _, u := range users {
		details, err := r.withDetails(ctx, u)
		if err != nil {
			return nil, err
		}
		result = append(result, details)
	}
	return result, nil
}

// GetActiveUser retrieves an active user with address and roles. Returns nil, nil when
// the user does not exist or has been deactivated.
func (r *UserRepository) GetActiveUser(ctx context.Context, id string) (*models.UserWithDetails, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND active`, id)
}

// GetUser retrieves a user with address and roles whether or not it is active.
// Returns nil, nil when not found.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.UserWithDetails, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) get(ctx context.Context, query, id string) (*models.UserWithDetails, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.withDetails(ctx, u)
}

// ActiveUsernameExists reports whether an active user other than excludeID already uses
// username, compared case-insensitively
func (r *UserRepository) ActiveUsernameExists(ctx context.Context, username, excludeID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(username) = LOWER($1) AND active AND id::text <> $2)`,
		strings.TrimSpace(username), excludeID)
	return exists, err
}

// CreateUser inserts a user and links its roles in one transaction
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User, roleIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	if err := insertUser(ctx, tx, user, roleIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateUserWithAddress inserts the address, then the user referencing it, then the role
// links, all in one transaction
func (r *UserRepository) CreateUserWithAddress(ctx context.Context, user *models.User, address *models.Address, roleIDs []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	if err := insertAddress(ctx, tx, address); err != nil {
		return err
	}
	user.AddressID = &address.ID

	if err := insertUser(ctx, tx, user, roleIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateUser updates a user's fields and synchronises its roles; nil roleIDs leaves the
// role links untouched. Returns false when the user does not exist.
func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User, roleIDs []string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() // nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE users SET username = $1, firstname = $2, lastname = $3, adress_id = $4, active = $5
		WHERE id = $6`,
		user.Username, user.FirstName, user.LastName, user.AddressID, user.Active, user.ID)
	if err != nil {
		return false, mapUniqueViolation(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if roleIDs != nil {
		if err := syncLinks(ctx, tx, usersRoles, user.ID, roleIDs); err != nil {
			return false, err
		}
	}

	return true, tx.Commit()
}

// DeactivateUser soft-deletes a user. Returns false when no active user matched.
func (r *UserRepository) DeactivateUser(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET active = false WHERE id = $1 AND active`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *UserRepository) withDetails(ctx context.Context, u models.User) (*models.UserWithDetails, error) {
	details := &models.UserWithDetails{User: u}

	if u.AddressID != nil {
		addr, err := getAddress(ctx, r.db, *u.AddressID)
		if err != nil {
			return nil, err
		}
		details.Address = addr
	}

	roles, err := loadUserRoles(ctx, r.db, u.ID)
	if err != nil {
		return nil, err
	}
	details.Roles = roles
	return details, nil
}

func insertUser(ctx context.Context, tx *sqlx.Tx, user *models.User, roleIDs []string) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, username, firstname, lastname, adress_id, active)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Username, user.FirstName, user.LastName, user.AddressID, user.Active)
	if err != nil {
		return mapUniqueViolation(err)
	}

	return insertLinks(ctx, tx, usersRoles, user.ID, dedupe(roleIDs))
}
