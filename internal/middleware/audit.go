package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/usermanagement/usermanagement/internal/db/models"
	"github.com/usermanagement/usermanagement/internal/safego"
)

// auditWriteTimeout bounds a single background audit write
const auditWriteTimeout = 5 * time.Second

// resourceSuffixes are stripped from resource names to obtain the audited table name
var resourceSuffixes = []string{"Handlers", "Handler", "Controller"}

// AuditRecorder persists one audit entry. *audit.Service implements it.
type AuditRecorder interface {
	Record(ctx context.Context, tableName, operation string, actorID uuid.UUID) (*models.AuditLog, error)
}

// RouteResources maps Gin route templates to the name of the resource handling them
// (e.g. "/api/users/:id" → "UsersHandler"). The router fills it while registering
// routes; the audit middleware only reads it.
type RouteResources struct {
	mu     sync.RWMutex
	routes map[string]string
}

// NewRouteResources returns an empty registry
func NewRouteResources() *RouteResources {
	return &RouteResources{routes: make(map[string]string)}
}

// Register associates a route template with a resource name
func (r *RouteResources) Register(path, resource string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[path] = resource
}

// Lookup returns the resource registered for path
func (r *RouteResources) Lookup(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resource, ok := r.routes[path]
	return resource, ok
}

// TableNameFor derives the audited table name from a resource name: a trailing
// "Controller", "Handler" or "Handlers" is removed and the rest lower-cased.
// "UsersHandler" → "users", "AccessRightsHandler" → "accessrights".
func TableNameFor(resource string) string {
	for _, suffix := range resourceSuffixes {
		if trimmed := strings.TrimSuffix(resource, suffix); trimmed != resource && trimmed != "" {
			resource = trimmed
			break
		}
	}
	return strings.ToLower(resource)
}

// OperationFor maps an HTTP method to an audit operation; reads and anything else are
// not audited.
func OperationFor(method string) (string, bool) {
	switch method {
	case http.MethodPost:
		return models.OperationInsert, true
	case http.MethodPut, http.MethodPatch:
		return models.OperationUpdate, true
	case http.MethodDelete:
		return models.OperationDelete, true
	default:
		return "", false
	}
}

// AuditMiddleware records every successful mutating request to the audit log.
//
// The handler runs first. A record is written only when the response status is 2xx, the
// matched route has a registered resource, and the method is POST, PUT, PATCH or DELETE.
// The write happens on a background goroutine so the response is never delayed; failures
// are logged and dropped. Requests without an identifiable actor are attributed to the
// nil UUID.
func AuditMiddleware(recorder AuditRecorder, resources *RouteResources, actors ActorProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}

		operation, ok := OperationFor(c.Request.Method)
		if !ok {
			return
		}

		path := c.FullPath()
		resource, ok := resources.Lookup(path)
		if !ok {
			slog.Debug("audit: no resource registered for route", "method", c.Request.Method, "path", path)
			return
		}
		table := TableNameFor(resource)

		actorID := uuid.Nil
		if actors != nil {
			if id, found := actors.CurrentActorID(c); found {
				actorID = id
			}
		}

		requestID := c.GetString(RequestIDKey)
		safego.Go("audit write", func() {
			ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
			defer cancel()

			if _, err := recorder.Record(ctx, table, operation, actorID); err != nil {
				slog.Error("failed to write audit record",
					"table", table,
					"operation", operation,
					"user_id", actorID.String(),
					"request_id", requestID,
					"error", err)
			}
		})
	}
}
