// role_repository.go implements RoleRepository: soft-deletable roles and the access rights
// they grant through the roles_accessrights association table.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/usermanagement/usermanagement/internal/db/models"
)

// RoleRepository handles role database operations
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository creates a new RoleRepository
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// ListActiveRoles returns all active roles with their access rights, ordered by name
func (r *RoleRepository) ListActiveRoles(ctx context.Context) ([]*models.RoleWithAccessRights, error) {
	var roles []models.Role
	err := r.db.SelectContext(ctx, &roles,
		`SELECT id, rolename, active FROM roles WHERE active ORDER BY rolename`)
	if err != nil {
		return nil, err
	}

	result := make([]*models.RoleWithAccessRights, 0, len(roles))
	for _, role := range roles {
		rights, err := loadAccessRights(ctx, r.db, role.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, &models.RoleWithAccessRights{Role: role, AccessRights: rights})
	}
	return result, nil
}

// GetActiveRole retrieves an active role with its access rights. Returns nil, nil when the
// role does not exist or has been deactivated.
func (r *RoleRepository) GetActiveRole(ctx context.Context, id string) (*models.RoleWithAccessRights, error) {
	return r.get(ctx, `SELECT id, rolename, active FROM roles WHERE id = $1 AND active`, id)
}

// GetRole retrieves a role with its access rights whether or not it is active.
// Returns nil, nil when not found.
func (r *RoleRepository) GetRole(ctx context.Context, id string) (*models.RoleWithAccessRights, error) {
	return r.get(ctx, `SELECT id, rolename, active FROM roles WHERE id = $1`, id)
}

func (r *RoleRepository) get(ctx context.Context, query, id string) (*models.RoleWithAccessRights, error) {
	var role models.Role
	err := r.db.GetContext(ctx, &role, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rights, err := loadAccessRights(ctx, r.db, role.ID)
	if err != nil {
		return nil, err
	}
	return &models.RoleWithAccessRights{Role: role, AccessRights: rights}, nil
}

// ActiveRoleNameExists reports whether an active role other than excludeID already uses
// name, compared case-insensitively
func (r *RoleRepository) ActiveRoleNameExists(ctx context.Context, name, excludeID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM roles WHERE LOWER(rolename) = LOWER($1) AND active AND id::text <> $2)`,
		strings.TrimSpace(name), excludeID)
	return exists, err
}

// MissingRoleIDs returns the ids that do not reference an active role
func (r *RoleRepository) MissingRoleIDs(ctx context.Context, ids []string) ([]string, error) {
	return missingIDs(ctx, r.db, "roles", ids, true)
}

// CreateRole inserts a role and links its access rights in one transaction
func (r *RoleRepository) CreateRole(ctx context.Context, role *models.Role, accessRightIDs []string) error {
	if role.ID == "" {
		role.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO roles (id, rolename, active) VALUES ($1, $2, $3)`,
		role.ID, role.RoleName, role.Active)
	if err != nil {
		return mapUniqueViolation(err)
	}

	if err := insertLinks(ctx, tx, rolesAccessRights, role.ID, dedupe(accessRightIDs)); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateRole updates a role's name and active flag and synchronises its access rights;
// nil accessRightIDs leaves the links untouched. Returns false when the role does not exist.
func (r *RoleRepository) UpdateRole(ctx context.Context, role *models.Role, accessRightIDs []string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() // nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE roles SET rolename = $1, active = $2 WHERE id = $3`,
		role.RoleName, role.Active, role.ID)
	if err != nil {
		return false, mapUniqueViolation(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if accessRightIDs != nil {
		if err := syncLinks(ctx, tx, rolesAccessRights, role.ID, accessRightIDs); err != nil {
			return false, err
		}
	}

	return true, tx.Commit()
}

// DeactivateRole soft-deletes a role. Returns false when no active role matched.
func (r *RoleRepository) DeactivateRole(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE roles SET active = false WHERE id = $1 AND active`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// loadAccessRights returns the access rights granted by roleID
func loadAccessRights(ctx context.Context, q sqlx.QueryerContext, roleID string) ([]models.AccessRight, error) {
	rights := []models.AccessRight{}
	err := sqlx.SelectContext(ctx, q, &rights, `
		SELECT ar.id, ar.description
		FROM accessrights ar
		JOIN roles_accessrights ra ON ra.accessrightid = ar.id
		WHERE ra.roleid = $1
		ORDER BY ar.description`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load access rights for role %s: %w", roleID, err)
	}
	return rights, nil
}

// loadUserRoles returns the active roles of userID, each with its access rights
func loadUserRoles(ctx context.Context, q sqlx.QueryerContext, userID string) ([]models.RoleWithAccessRights, error) {
	var roles []models.Role
	err := sqlx.SelectContext(ctx, q, &roles, `
		SELECT r.id, r.rolename, r.active
		FROM roles r
		JOIN users_roles ur ON ur.roleid = r.id
		WHERE ur.userid = $1 AND r.active
		ORDER BY r.rolename`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles for user %s: %w", userID, err)
	}

	result := make([]models.RoleWithAccessRights, 0, len(roles))
	for _, role := range roles {
		rights, err := loadAccessRights(ctx, q, role.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, models.RoleWithAccessRights{Role: role, AccessRights: rights})
	}
	return result, nil
}
