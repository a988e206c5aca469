package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/usermanagement/usermanagement/internal/db/models"
	"github.com/usermanagement/usermanagement/internal/db/repositories"
)

// MemoryStore is an in-memory Store, selected with audit.store=memory in dev mode. It
// mirrors the SQL store's semantics: case-insensitive operation/table matching, newest
// first, bounded by limit, and "Unknown" for actors missing from Usernames.
type MemoryStore struct {
	mu sync.Mutex

	Records   []models.AuditLog
	Usernames map[string]string // userID -> username
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Usernames: map[string]string{}}
}

func (m *MemoryStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, *log)
	return nil
}

func (m *MemoryStore) GetAuditLog(ctx context.Context, id string) (*models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Records {
		if r.ID == id {
			out := m.withUsername(r)
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListAll(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	return m.list(func(models.AuditLog) bool { return true }, limit), nil
}

func (m *MemoryStore) ListByActor(ctx context.Context, userID string, limit int) ([]*models.AuditLog, error) {
	return m.list(func(r models.AuditLog) bool { return r.UserID == userID }, limit), nil
}

func (m *MemoryStore) ListByInterval(ctx context.Context, start, end time.Time, limit int) ([]*models.AuditLog, error) {
	return m.list(func(r models.AuditLog) bool { return within(r.ChangedAt, &start, &end) }, limit), nil
}

func (m *MemoryStore) ListByActorAndInterval(ctx context.Context, userID string, start, end time.Time, limit int) ([]*models.AuditLog, error) {
	return m.list(func(r models.AuditLog) bool {
		return r.UserID == userID && within(r.ChangedAt, &start, &end)
	}, limit), nil
}

func (m *MemoryStore) ListByOperation(ctx context.Context, operation string, filter repositories.AuditFilter, limit int) ([]*models.AuditLog, error) {
	return m.list(func(r models.AuditLog) bool {
		return strings.EqualFold(r.Operation, operation) && matches(r, filter)
	}, limit), nil
}

func (m *MemoryStore) ListByTable(ctx context.Context, tableName string, filter repositories.AuditFilter, limit int) ([]*models.AuditLog, error) {
	return m.list(func(r models.AuditLog) bool {
		return strings.EqualFold(r.TableName, tableName) && matches(r, filter)
	}, limit), nil
}

func (m *MemoryStore) list(keep func(models.AuditLog) bool, limit int) []*models.AuditLog {
	if limit <= 0 {
		limit = DefaultLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.AuditLog, 0)
	for _, r := range m.Records {
		if keep(r) {
			rec := m.withUsername(r)
			out = append(out, &rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangedAt.After(out[j].ChangedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryStore) withUsername(r models.AuditLog) models.AuditLog {
	if name, ok := m.Usernames[r.UserID]; ok {
		r.Username = name
	} else {
		r.Username = models.UnknownUsername
	}
	return r
}

func matches(r models.AuditLog, f repositories.AuditFilter) bool {
	if f.UserID != nil && r.UserID != *f.UserID {
		return false
	}
	return within(r.ChangedAt, f.StartDate, f.EndDate)
}

func within(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}
