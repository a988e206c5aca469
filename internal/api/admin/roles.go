// roles.go implements handlers for roles and the access rights they grant. Roles are
// soft-deleted like users.
package admin

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/usermanagement/usermanagement/internal/db/models"
	"github.com/usermanagement/usermanagement/internal/db/repositories"
)

// RolesHandler handles role management endpoints
type RolesHandler struct {
	roleRepo        *repositories.RoleRepository
	accessRightRepo *repositories.AccessRightRepository
}

// NewRolesHandler creates a new RolesHandler
func NewRolesHandler(db *sqlx.DB) *RolesHandler {
	return &RolesHandler{
		roleRepo:        repositories.NewRoleRepository(db),
		accessRightRepo: repositories.NewAccessRightRepository(db),
	}
}

// CreateRoleRequest is the body of POST /api/roles
type CreateRoleRequest struct {
	RoleName       string   `json:"roleName" binding:"required"`
	AccessRightIDs []string `json:"accessRightIds"`
}

// UpdateRoleRequest is the body of PUT /api/roles/:id. An omitted accessRightIds leaves
// the links untouched.
type UpdateRoleRequest struct {
	RoleName       *string  `json:"roleName"`
	Active         *bool    `json:"active"`
	AccessRightIDs []string `json:"accessRightIds"`
}

// ListRoles lists active roles with their access rights
// GET /api/roles
func (h *RolesHandler) ListRoles() gin.HandlerFunc {
	return func(c *gin.Context) {
		roles, err := h.roleRepo.ListActiveRoles(c.Request.Context())
		if err != nil {
			slog.Error("failed to list roles", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list roles"})
			return
		}

		out := make([]RoleResponse, 0, len(roles))
		for _, r := range roles {
			out = append(out, toRoleResponse(r))
		}
		c.JSON(http.StatusOK, out)
	}
}

// GetRole returns one active role
// GET /api/roles/:id
func (h *RolesHandler) GetRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role ID"})
			return
		}

		role, err := h.roleRepo.GetActiveRole(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to get role", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve role"})
			return
		}
		if role == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Role not found"})
			return
		}

		c.JSON(http.StatusOK, toRoleResponse(role))
	}
}

// CreateRole creates an active role granting existing access rights
// POST /api/roles
func (h *RolesHandler) CreateRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		role := &models.Role{RoleName: strings.TrimSpace(req.RoleName), Active: true}
		if !h.checkName(c, role.RoleName, "") || !h.checkAccessRights(c, req.AccessRightIDs) {
			return
		}

		ctx := c.Request.Context()
		if err := h.roleRepo.CreateRole(ctx, role, req.AccessRightIDs); err != nil {
			h.writeFailed(c, "create", err)
			return
		}

		created, err := h.roleRepo.GetRole(ctx, role.ID)
		if err != nil || created == nil {
			slog.Error("failed to reload role", "id", role.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve role"})
			return
		}
		c.Header("Location", "/api/roles/"+role.ID)
		c.JSON(http.StatusCreated, toRoleResponse(created))
	}
}

// UpdateRole renames, (re)activates or changes the access rights of a role
// PUT /api/roles/:id
func (h *RolesHandler) UpdateRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role ID"})
			return
		}

		var req UpdateRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()

		existing, err := h.roleRepo.GetRole(ctx, id)
		if err != nil {
			slog.Error("failed to get role", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve role"})
			return
		}
		if existing == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Role not found"})
			return
		}

		role := existing.Role
		if req.RoleName != nil {
			role.RoleName = strings.TrimSpace(*req.RoleName)
		}
		if req.Active != nil {
			role.Active = *req.Active
		}

		renamed := !strings.EqualFold(role.RoleName, existing.RoleName)
		if role.RoleName == "" || (role.Active && (renamed || !existing.Active)) {
			if !h.checkName(c, role.RoleName, id) {
				return
			}
		}
		if !h.checkAccessRights(c, req.AccessRightIDs) {
			return
		}

		ok, err := h.roleRepo.UpdateRole(ctx, &role, req.AccessRightIDs)
		if err != nil {
			h.writeFailed(c, "update", err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Role not found"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// DeleteRole deactivates a role
// DELETE /api/roles/:id
func (h *RolesHandler) DeleteRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role ID"})
			return
		}

		ok, err := h.roleRepo.DeactivateRole(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to deactivate role", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete role"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Role not found"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func (h *RolesHandler) checkName(c *gin.Context, name, excludeID string) bool {
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role name must not be empty."})
		return false
	}
	taken, err := h.roleRepo.ActiveRoleNameExists(c.Request.Context(), name, excludeID)
	if err != nil {
		slog.Error("failed to check role name", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate role"})
		return false
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{"error": "Role name already exists."})
		return false
	}
	return true
}

func (h *RolesHandler) checkAccessRights(c *gin.Context, ids []string) bool {
	if id, bad := invalidID(ids); bad {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Access right with ID %s does not exist.", id)})
		return false
	}
	missing, err := h.accessRightRepo.MissingAccessRightIDs(c.Request.Context(), ids)
	if err != nil {
		slog.Error("failed to check access rights", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate access rights"})
		return false
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Access right with ID %s does not exist.", missing[0])})
		return false
	}
	return true
}

func (h *RolesHandler) writeFailed(c *gin.Context, action string, err error) {
	if errors.Is(err, repositories.ErrDuplicate) {
		c.JSON(http.StatusConflict, gin.H{"error": "Role name already exists."})
		return
	}
	slog.Error("failed to "+action+" role", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action + " role"})
}
