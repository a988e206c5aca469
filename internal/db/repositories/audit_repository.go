// audit_repository.go implements AuditRepository, the append-only store behind the audit log.
// Every listing joins the acting user's current username, compares operation and table name
// case-insensitively, and returns the newest records first, bounded by a limit.
package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/usermanagement/usermanagement/internal/db/models"
)

// DefaultAuditLimit bounds listings when the caller does not supply a positive limit
const DefaultAuditLimit = 100

// AuditRepository handles audit log database operations
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilter holds the optional actor and interval constraints of a listing.
// Nil fields are not applied.
type AuditFilter struct {
	UserID    *string
	StartDate *time.Time
	EndDate   *time.Time
}

const auditSelect = `
		SELECT a.id, a.table_name, a.operation, a.changed_at, a.userid, COALESCE(u.username, 'Unknown')
		FROM auditlogs a
		LEFT JOIN users u ON u.id = a.userid`

// CreateAuditLog persists one audit record. ChangedAt is stored as given (UTC);
// an empty ID is replaced with a fresh UUID.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.ChangedAt.IsZero() {
		log.ChangedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO auditlogs (id, table_name, operation, changed_at, userid)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		log.TableName,
		log.Operation,
		log.ChangedAt.UTC(),
		log.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// GetAuditLog retrieves a single audit log entry by ID. Returns nil, nil when not found.
func (r *AuditRepository) GetAuditLog(ctx context.Context, logID string) (*models.AuditLog, error) {
	query := auditSelect + `
		WHERE a.id = $1
	`

	log := &models.AuditLog{}
	err := r.db.QueryRowContext(ctx, query, logID).Scan(
		&log.ID,
		&log.TableName,
		&log.Operation,
		&log.ChangedAt,
		&log.UserID,
		&log.Username,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	log.ChangedAt = log.ChangedAt.UTC()
	return log, nil
}

// ListAll returns the most recent audit records
func (r *AuditRepository) ListAll(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	return r.list(ctx, "", "", AuditFilter{}, limit)
}

// ListByActor returns the most recent audit records attributed to userID
func (r *AuditRepository) ListByActor(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error) {
	return r.list(ctx, "", "", AuditFilter{UserID: &userID}, limit)
}

// ListByInterval returns audit records whose changed_at lies within [start, end]
func (r *AuditRepository) ListByInterval(ctx context.Context, start, end time.Time, limit int) ([]*models.AuditLog, error) {
	return r.list(ctx, "", "", AuditFilter{StartDate: &start, EndDate: &end}, limit)
}

// ListByActorAndInterval combines ListByActor and ListByInterval
func (r *AuditRepository) ListByActorAndInterval(ctx context.Context, userID string, start, end time.Time, limit int) ([]*models.AuditLog, error) {
	return r.list(ctx, "", "", AuditFilter{UserID: &userID, StartDate: &start, EndDate: &end}, limit)
}

// ListByOperation returns audit records for an operation (case-insensitive), optionally
// narrowed by actor and interval
func (r *AuditRepository) ListByOperation(ctx context.Context, operation string, filter AuditFilter, limit int) ([]*models.AuditLog, error) {
	return r.list(ctx, "a.operation", operation, filter, limit)
}

// ListByTable returns audit records for a table name (case-insensitive), optionally
// narrowed by actor and interval
func (r *AuditRepository) ListByTable(ctx context.Context, tableName string, filter AuditFilter, limit int) ([]*models.AuditLog, error) {
	return r.list(ctx, "a.table_name", tableName, filter, limit)
}

// list builds the filtered query. textCol, when set, is compared to textVal with LOWER()
// on both sides.
func (r *AuditRepository) list(ctx context.Context, textCol, textVal string, filter AuditFilter, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}

	query := auditSelect + `
		WHERE 1=1`

	args := make([]interface{}, 0, 5)
	paramIndex := 1

	if textCol != "" {
		query += fmt.Sprintf(` AND LOWER(%s) = LOWER($%d)`, textCol, paramIndex)
		args = append(args, strings.TrimSpace(textVal))
		paramIndex++
	}

	if filter.UserID != nil {
		query += fmt.Sprintf(` AND a.userid = $%d`, paramIndex)
		args = append(args, *filter.UserID)
		paramIndex++
	}

	if filter.StartDate != nil {
		query += fmt.Sprintf(` AND a.changed_at >= $%d`, paramIndex)
		args = append(args, filter.StartDate.UTC())
		paramIndex++
	}

	if filter.EndDate != nil {
		query += fmt.Sprintf(` AND a.changed_at <= $%d`, paramIndex)
		args = append(args, filter.EndDate.UTC())
		paramIndex++
	}

	query += fmt.Sprintf(` ORDER BY a.changed_at DESC LIMIT $%d`, paramIndex)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		log := &models.AuditLog{}
		if err := rows.Scan(
			&log.ID,
			&log.TableName,
			&log.Operation,
			&log.ChangedAt,
			&log.UserID,
			&log.Username,
		); err != nil {
			return nil, err
		}
		log.ChangedAt = log.ChangedAt.UTC()
		logs = append(logs, log)
	}

	return logs, rows.Err()
}
