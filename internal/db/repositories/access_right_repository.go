// access_right_repository.go implements AccessRightRepository: CRUD over the permission
// catalogue. Access rights are hard-deleted; their role links cascade.
package repositories

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/usermanagement/usermanagement/internal/db/models"
)

// AccessRightRepository handles access right database operations
type AccessRightRepository struct {
	db *sqlx.DB
}

// NewAccessRightRepository creates a new AccessRightRepository
func NewAccessRightRepository(db *sqlx.DB) *AccessRightRepository {
	return &AccessRightRepository{db: db}
}

// ListAccessRights returns all access rights ordered by description
func (r *AccessRightRepository) ListAccessRights(ctx context.Context) ([]*models.AccessRight, error) {
	rights := []*models.AccessRight{}
	err := r.db.SelectContext(ctx, &rights,
		`SELECT id, description FROM accessrights ORDER BY description`)
	return rights, err
}

// GetAccessRight retrieves an access right by ID. Returns nil, nil when not found.
func (r *AccessRightRepository) GetAccessRight(ctx context.Context, id string) (*models.AccessRight, error) {
	var ar models.AccessRight
	err := r.db.GetContext(ctx, &ar, `SELECT id, description FROM accessrights WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ar, nil
}

// DescriptionExists reports whether another access right already uses description
func (r *AccessRightRepository) DescriptionExists(ctx context.Context, description, excludeID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM accessrights WHERE LOWER(description) = LOWER($1) AND id::text <> $2)`,
		strings.TrimSpace(description), excludeID)
	return exists, err
}

// MissingAccessRightIDs returns the ids that do not reference an access right
func (r *AccessRightRepository) MissingAccessRightIDs(ctx context.Context, ids []string) ([]string, error) {
	return missingIDs(ctx, r.db, "accessrights", ids, false)
}

// CreateAccessRight inserts an access right, assigning its ID
func (r *AccessRightRepository) CreateAccessRight(ctx context.Context, ar *models.AccessRight) error {
	if ar.ID == "" {
		ar.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accessrights (id, description) VALUES ($1, $2)`, ar.ID, ar.Description)
	return mapUniqueViolation(err)
}

// UpdateAccessRight updates the description. Returns false when it does not exist.
func (r *AccessRightRepository) UpdateAccessRight(ctx context.Context, ar *models.AccessRight) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accessrights SET description = $1 WHERE id = $2`, ar.Description, ar.ID)
	if err != nil {
		return false, mapUniqueViolation(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAccessRight removes an access right. Returns false when it does not exist.
func (r *AccessRightRepository) DeleteAccessRight(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accessrights WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
