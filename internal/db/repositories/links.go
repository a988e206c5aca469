// links.go holds the helpers shared by the entity repositories: association-table
// synchronisation, existence checks for referenced ids, and unique-violation detection.
package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrDuplicate is returned when an insert or update violates a unique index
var ErrDuplicate = errors.New("duplicate value")

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// mapUniqueViolation converts a pq unique violation into ErrDuplicate
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	return err
}

// linkTable describes a many-to-many association table
type linkTable struct {
	name      string
	ownerCol  string
	targetCol string
}

var (
	usersRoles        = linkTable{name: "users_roles", ownerCol: "userid", targetCol: "roleid"}
	rolesAccessRights = linkTable{name: "roles_accessrights", ownerCol: "roleid", targetCol: "accessrightid"}
)

// insertLinks adds one association row per target id
func insertLinks(ctx context.Context, tx sqlx.ExecerContext, lt linkTable, ownerID string, targetIDs []string) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2)`, lt.name, lt.ownerCol, lt.targetCol)
	for _, id := range targetIDs {
		if _, err := tx.ExecContext(ctx, query, ownerID, id); err != nil {
			return fmt.Errorf("failed to link %s %s: %w", lt.targetCol, id, err)
		}
	}
	return nil
}

// syncLinks makes the association rows for ownerID match wanted: ids no longer listed are
// removed and new ones are added. Existing rows that are still wanted are left alone.
func syncLinks(ctx context.Context, tx *sqlx.Tx, lt linkTable, ownerID string, wanted []string) error {
	var current []string
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, lt.targetCol, lt.name, lt.ownerCol)
	if err := tx.SelectContext(ctx, &current, query, ownerID); err != nil {
		return fmt.Errorf("failed to load %s: %w", lt.name, err)
	}

	wantedSet := make(map[string]bool, len(wanted))
	for _, id := range wanted {
		wantedSet[id] = true
	}
	currentSet := make(map[string]bool, len(current))
	for _, id := range current {
		currentSet[id] = true
	}

	removeQuery := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 AND %s = $2`, lt.name, lt.ownerCol, lt.targetCol)
	for _, id := range current {
		if wantedSet[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx, removeQuery, ownerID, id); err != nil {
			return fmt.Errorf("failed to unlink %s %s: %w", lt.targetCol, id, err)
		}
	}

	var added []string
	for _, id := range dedupe(wanted) {
		if !currentSet[id] {
			added = append(added, id)
		}
	}
	return insertLinks(ctx, tx, lt, ownerID, added)
}

// missingIDs returns the ids from the input that have no row in table. When activeOnly is
// set, rows with active=false count as missing.
func missingIDs(ctx context.Context, q sqlx.QueryerContext, table string, ids []string, activeOnly bool) ([]string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, table)
	if activeOnly {
		query += ` AND active`
	}

	var found []string
	if err := sqlx.SelectContext(ctx, q, &found, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to check %s ids: %w", table, err)
	}

	foundSet := make(map[string]bool, len(found))
	for _, id := range found {
		foundSet[id] = true
	}
	var missing []string
	for _, id := range ids {
		if !foundSet[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// dedupe drops repeated ids while keeping first-seen order
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
