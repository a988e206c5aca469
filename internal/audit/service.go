package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/usermanagement/usermanagement/internal/db/models"
	"github.com/usermanagement/usermanagement/internal/db/repositories"
	"github.com/usermanagement/usermanagement/internal/telemetry"
)

// DefaultLimit bounds listings when the caller does not supply a positive limit
const DefaultLimit = repositories.DefaultAuditLimit

// Store is the append-only audit log the service reads and writes.
// *repositories.AuditRepository is the production implementation.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
	GetAuditLog(ctx context.Context, id string) (*models.AuditLog, error)
	ListAll(ctx context.Context, limit int) ([]*models.AuditLog, error)
	ListByActor(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error)
	ListByInterval(ctx context.Context, start, end time.Time, limit int) ([]*models.AuditLog, error)
	ListByActorAndInterval(ctx context.Context, userID string, start, end time.Time, limit int) ([]*models.AuditLog, error)
	ListByOperation(ctx context.Context, operation string, filter repositories.AuditFilter, limit int) ([]*models.AuditLog, error)
	ListByTable(ctx context.Context, tableName string, filter repositories.AuditFilter, limit int) ([]*models.AuditLog, error)
}

// ListQuery holds the optional filters of a general audit listing. An empty UserID means
// "any actor".
type ListQuery struct {
	UserID string
	Range  RangeQuery
	Limit  int
}

// Service answers audit queries by resolving time ranges and delegating to the Store,
// and is the only write path into the audit log.
type Service struct {
	store    Store
	resolver *Resolver
	shipper  Shipper
	now      func() time.Time
}

// NewService creates a Service. shipper may be nil; now defaults to time.Now.
func NewService(store Store, shipper Shipper, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    store,
		resolver: NewResolver(now),
		shipper:  shipper,
		now:      now,
	}
}

// Record appends one audit entry stamped with the current UTC time. The stored record is
// mirrored to the configured shippers; shipping failures are logged, not returned.
func (s *Service) Record(ctx context.Context, tableName, operation string, actorID uuid.UUID) (*models.AuditLog, error) {
	entry := &models.AuditLog{
		ID:        uuid.New().String(),
		TableName: tableName,
		Operation: operation,
		ChangedAt: s.now().UTC().Truncate(time.Microsecond), // timestamptz precision
		UserID:    actorID.String(),
	}

	if err := s.store.CreateAuditLog(ctx, entry); err != nil {
		telemetry.AuditRecordsTotal.WithLabelValues(tableName, operation, "error").Inc()
		return nil, fmt.Errorf("failed to record audit entry: %w", err)
	}
	telemetry.AuditRecordsTotal.WithLabelValues(tableName, operation, "stored").Inc()

	if s.shipper != nil {
		if err := s.shipper.Ship(ctx, NewLogEntry(entry)); err != nil {
			telemetry.AuditShipFailuresTotal.Inc()
			slog.Warn("audit entry stored but not shipped", "id", entry.ID, "error", err)
		}
	}
	return entry, nil
}

// GetAudit returns one record, or nil when it does not exist
func (s *Service) GetAudit(ctx context.Context, id string) (*models.AuditLog, error) {
	return s.store.GetAuditLog(ctx, id)
}

// ListAudits dispatches on the filters present: actor and interval, interval only,
// actor only, or none (most recent records).
func (s *Service) ListAudits(ctx context.Context, q ListQuery) ([]*models.AuditLog, error) {
	limit := normalizeLimit(q.Limit)
	userID := strings.TrimSpace(q.UserID)

	if q.Range.HasRange() {
		start, end, err := s.resolver.Resolve(q.Range)
		if err != nil {
			return nil, err
		}
		if userID != "" {
			return s.store.ListByActorAndInterval(ctx, userID, start, end, limit)
		}
		return s.store.ListByInterval(ctx, start, end, limit)
	}

	if userID != "" {
		return s.store.ListByActor(ctx, userID, limit)
	}
	return s.store.ListAll(ctx, limit)
}

// ListByUser returns the most recent records attributed to userID
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error) {
	return s.store.ListByActor(ctx, userID, normalizeLimit(limit))
}

// ListByTimeInterval returns the records inside the resolved interval. The range is
// mandatory here, so an empty RangeQuery fails with ErrInvalidRange.
func (s *Service) ListByTimeInterval(ctx context.Context, r RangeQuery, limit int) ([]*models.AuditLog, error) {
	start, end, err := s.resolver.Resolve(r)
	if err != nil {
		return nil, err
	}
	return s.store.ListByInterval(ctx, start, end, normalizeLimit(limit))
}

// ListByUserAndTimeInterval returns userID's records inside the resolved interval
func (s *Service) ListByUserAndTimeInterval(ctx context.Context, userID string, r RangeQuery, limit int) ([]*models.AuditLog, error) {
	start, end, err := s.resolver.Resolve(r)
	if err != nil {
		return nil, err
	}
	return s.store.ListByActorAndInterval(ctx, userID, start, end, normalizeLimit(limit))
}

// ListByOperation returns records for an operation. The interval is resolved only when a
// date-related filter is present; otherwise the listing is unbounded in time.
func (s *Service) ListByOperation(ctx context.Context, operation, userID string, r RangeQuery, limit int) ([]*models.AuditLog, error) {
	filter, err := s.filter(userID, r)
	if err != nil {
		return nil, err
	}
	return s.store.ListByOperation(ctx, operation, filter, normalizeLimit(limit))
}

// ListByTable is ListByOperation keyed on the table name
func (s *Service) ListByTable(ctx context.Context, tableName, userID string, r RangeQuery, limit int) ([]*models.AuditLog, error) {
	filter, err := s.filter(userID, r)
	if err != nil {
		return nil, err
	}
	return s.store.ListByTable(ctx, tableName, filter, normalizeLimit(limit))
}

func (s *Service) filter(userID string, r RangeQuery) (repositories.AuditFilter, error) {
	var filter repositories.AuditFilter
	if userID = strings.TrimSpace(userID); userID != "" {
		filter.UserID = &userID
	}
	if r.HasRange() {
		start, end, err := s.resolver.Resolve(r)
		if err != nil {
			return filter, err
		}
		filter.StartDate = &start
		filter.EndDate = &end
	}
	return filter, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
