// auditlogs.go implements the read side of the audit log. Records are written by the audit
// middleware, never through these endpoints.
package admin

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/usermanagement/usermanagement/internal/audit"
	"github.com/usermanagement/usermanagement/internal/db/models"
)

// Accepted layouts of startDate/endDate besides RFC 3339
const (
	dateOnly      = "2006-01-02"
	localDateTime = "2006-01-02T15:04:05"
)

// AuditLogsHandler serves audit log queries
type AuditLogsHandler struct {
	service      *audit.Service
	defaultLimit int
}

// NewAuditLogsHandler creates a new AuditLogsHandler. defaultLimit applies when a request
// does not pass ?limit.
func NewAuditLogsHandler(service *audit.Service, defaultLimit int) *AuditLogsHandler {
	return &AuditLogsHandler{service: service, defaultLimit: defaultLimit}
}

// @Summary      List audit logs
// @Description  Newest first. With a date filter the interval is resolved first; with a userId only that actor's records are returned.
// @Tags         AuditLogs
// @Produce      json
// @Param        startDate  query  string  false  "2006-01-02, 2006-01-02T15:04:05 (UTC) or RFC 3339"
// @Param        endDate    query  string  false  "2006-01-02, 2006-01-02T15:04:05 (UTC) or RFC 3339"
// @Param        timeRange  query  string  false  "today, yesterday, last7days, thismonth, lastmonth"
// @Param        timeZone   query  string  false  "IANA zone for date-only bounds (default UTC)"
// @Param        userId     query  string  false  "Actor ID"
// @Param        limit      query  int     false  "Maximum records (default 100)"
// @Success      200  {array}   AuditLogResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid range or time zone"
// @Router       /api/audit-logs [get]
// ListAuditLogs GET /api/audit-logs
func (h *AuditLogsHandler) ListAuditLogs() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, limit, err := h.parseQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userID, err := optionalUserID(c.Query("userId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logs, err := h.service.ListAudits(c.Request.Context(), audit.ListQuery{UserID: userID, Range: r, Limit: limit})
		h.respond(c, logs, err)
	}
}

// @Summary      Get audit log
// @Tags         AuditLogs
// @Produce      json
// @Param        id  path  string  true  "Audit log ID"
// @Success      200  {object}  AuditLogResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid audit log ID"
// @Failure      404  {object}  map[string]interface{}  "Audit log not found"
// @Router       /api/audit-logs/{id} [get]
// GetAuditLog GET /api/audit-logs/:id
func (h *AuditLogsHandler) GetAuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid audit log ID"})
			return
		}

		log, err := h.service.GetAudit(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to get audit log", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve audit log"})
			return
		}
		if log == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Audit log not found"})
			return
		}

		c.JSON(http.StatusOK, toAuditLogResponse(log))
	}
}

// ListByUser GET /api/audit-logs/by-user/:userId
func (h *AuditLogsHandler) ListByUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		if !isUUID(userID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}
		limit, err := h.parseLimit(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logs, err := h.service.ListByUser(c.Request.Context(), userID, limit)
		h.respond(c, logs, err)
	}
}

// ListByTimeInterval requires timeRange or both startDate and endDate
// GET /api/audit-logs/by-time-interval
func (h *AuditLogsHandler) ListByTimeInterval() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, limit, err := h.parseQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logs, err := h.service.ListByTimeInterval(c.Request.Context(), r, limit)
		h.respond(c, logs, err)
	}
}

// ListByUserAndTimeInterval GET /api/audit-logs/by-user-and-time-interval/:userId
func (h *AuditLogsHandler) ListByUserAndTimeInterval() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		if !isUUID(userID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}
		r, limit, err := h.parseQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logs, err := h.service.ListByUserAndTimeInterval(c.Request.Context(), userID, r, limit)
		h.respond(c, logs, err)
	}
}

// ListByOperation GET /api/audit-logs/by-operation/:operation
func (h *AuditLogsHandler) ListByOperation() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, limit, err := h.parseQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userID, err := optionalUserID(c.Query("userId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logs, err := h.service.ListByOperation(c.Request.Context(), c.Param("operation"), userID, r, limit)
		h.respond(c, logs, err)
	}
}

// ListByTable GET /api/audit-logs/by-table/:tableName
func (h *AuditLogsHandler) ListByTable() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, limit, err := h.parseQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userID, err := optionalUserID(c.Query("userId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logs, err := h.service.ListByTable(c.Request.Context(), c.Param("tableName"), userID, r, limit)
		h.respond(c, logs, err)
	}
}

func (h *AuditLogsHandler) respond(c *gin.Context, logs []*models.AuditLog, err error) {
	if err != nil {
		if audit.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.Error("failed to list audit logs", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
		return
	}
	c.JSON(http.StatusOK, toAuditLogResponses(logs))
}

// parseQuery reads the range filter and limit shared by the listing endpoints
func (h *AuditLogsHandler) parseQuery(c *gin.Context) (audit.RangeQuery, int, error) {
	r := audit.RangeQuery{
		TimeRange: c.Query("timeRange"),
		TimeZone:  c.Query("timeZone"),
	}

	var err error
	if r.StartDate, err = parseDate("startDate", c.Query("startDate")); err != nil {
		return r, 0, err
	}
	if r.EndDate, err = parseDate("endDate", c.Query("endDate")); err != nil {
		return r, 0, err
	}

	limit, err := h.parseLimit(c)
	return r, limit, err
}

// parseLimit returns ?limit, or the configured default when absent. Non-positive values
// are passed through and mean the default limit.
func (h *AuditLogsHandler) parseLimit(c *gin.Context) (int, error) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return h.defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	return limit, nil
}

// parseDate accepts 2006-01-02 (midnight UTC, a whole day for the resolver), a zone-less
// 2006-01-02T15:04:05 (taken as UTC) or RFC 3339 (converted to UTC). An empty value is no
// bound.
func parseDate(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{dateOnly, localDateTime} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be a date (2006-01-02), a UTC date-time (2006-01-02T15:04:05) or an RFC 3339 timestamp", name)
	}
	t = t.UTC()
	return &t, nil
}

func optionalUserID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !isUUID(raw) {
		return "", errors.New("userId must be a UUID")
	}
	return raw, nil
}
