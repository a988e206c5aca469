package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/usermanagement/usermanagement/internal/db/models"
	"github.com/usermanagement/usermanagement/internal/db/repositories"
)

// AccessRightsHandler handles the access right catalogue
type AccessRightsHandler struct {
	repo *repositories.AccessRightRepository
}

// NewAccessRightsHandler creates a new AccessRightsHandler
func NewAccessRightsHandler(db *sqlx.DB) *AccessRightsHandler {
	return &AccessRightsHandler{repo: repositories.NewAccessRightRepository(db)}
}

// AccessRightRequest is the body of POST and PUT /api/access-rights
type AccessRightRequest struct {
	Description string `json:"description" binding:"required"`
}

// ListAccessRights GET /api/access-rights
func (h *AccessRightsHandler) ListAccessRights() gin.HandlerFunc {
	return func(c *gin.Context) {
		rights, err := h.repo.ListAccessRights(c.Request.Context())
		if err != nil {
			slog.Error("failed to list access rights", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list access rights"})
			return
		}

		out := make([]AccessRightResponse, 0, len(rights))
		for _, ar := range rights {
			out = append(out, toAccessRightResponse(*ar))
		}
		c.JSON(http.StatusOK, out)
	}
}

// GetAccessRight GET /api/access-rights/:id
func (h *AccessRightsHandler) GetAccessRight() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid access right ID"})
			return
		}

		ar, err := h.repo.GetAccessRight(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to get access right", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve access right"})
			return
		}
		if ar == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Access right not found"})
			return
		}

		c.JSON(http.StatusOK, toAccessRightResponse(*ar))
	}
}

// CreateAccessRight POST /api/access-rights
func (h *AccessRightsHandler) CreateAccessRight() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AccessRightRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ar := &models.AccessRight{Description: strings.TrimSpace(req.Description)}
		if !h.checkDescription(c, ar.Description, "") {
			return
		}

		if err := h.repo.CreateAccessRight(c.Request.Context(), ar); err != nil {
			h.writeFailed(c, "create", err)
			return
		}

		c.Header("Location", "/api/access-rights/"+ar.ID)
		c.JSON(http.StatusCreated, toAccessRightResponse(*ar))
	}
}

// UpdateAccessRight PUT /api/access-rights/:id
func (h *AccessRightsHandler) UpdateAccessRight() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid access right ID"})
			return
		}

		var req AccessRightRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ar := &models.AccessRight{ID: id, Description: strings.TrimSpace(req.Description)}
		if !h.checkDescription(c, ar.Description, id) {
			return
		}

		ok, err := h.repo.UpdateAccessRight(c.Request.Context(), ar)
		if err != nil {
			h.writeFailed(c, "update", err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Access right not found"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// DeleteAccessRight removes an access right and its role links
// DELETE /api/access-rights/:id
func (h *AccessRightsHandler) DeleteAccessRight() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid access right ID"})
			return
		}

		ok, err := h.repo.DeleteAccessRight(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to delete access right", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete access right"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Access right not found"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func (h *AccessRightsHandler) checkDescription(c *gin.Context, description, excludeID string) bool {
	if description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Description must not be empty."})
		return false
	}
	taken, err := h.repo.DescriptionExists(c.Request.Context(), description, excludeID)
	if err != nil {
		slog.Error("failed to check access right description", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate access right"})
		return false
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{"error": "Access right already exists."})
		return false
	}
	return true
}

func (h *AccessRightsHandler) writeFailed(c *gin.Context, action string, err error) {
	if errors.Is(err, repositories.ErrDuplicate) {
		c.JSON(http.StatusConflict, gin.H{"error": "Access right already exists."})
		return
	}
	slog.Error("failed to "+action+" access right", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action + " access right"})
}
