// users.go implements handlers for user accounts: listing, lookup, creation (optionally
// together with a new address), update with role synchronisation, and soft deletion.
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

// UsersHandler handles user management endpoints
type UsersHandler struct {
	userRepo    *repositories.UserRepository
	roleRepo    *repositories.RoleRepository
	addressRepo *repositories.AddressRepository
}

// NewUsersHandler creates a new UsersHandler
func NewUsersHandler(db *sqlx.DB) *UsersHandler {
	return &UsersHandler{
		userRepo:    repositories.NewUserRepository(db),
		roleRepo:    repositories.NewRoleRepository(db),
		addressRepo: repositories.NewAddressRepository(db),
	}
}

// CreateUserRequest is the body of POST /api/users
type CreateUserRequest struct {
	Username  string   `json:"username" binding:"required"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	AddressID *string  `json:"addressId"`
	RoleIDs   []string `json:"roleIds"`
}

// CreateUserWithDetailsRequest is the body of POST /api/users/with-details
type CreateUserWithDetailsRequest struct {
	Username  string `json:"username" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   struct {
		Street     string `json:"street" binding:"required"`
		PostalCode string `json:"postalCode" binding:"required"`
	} `json:"address" binding:"required"`
	RoleIDs []string `json:"roleIds"`
}

// UpdateUserRequest is the body of PUT /api/users/:id. Omitted fields keep their value;
// an omitted roleIds leaves the role links untouched and an empty one removes them all.
type UpdateUserRequest struct {
	Username  *string  `json:"username"`
	FirstName *string  `json:"firstName"`
	LastName  *string  `json:"lastName"`
	AddressID *string  `json:"addressId"`
	Active    *bool    `json:"active"`
	RoleIDs   []string `json:"roleIds"`
}

// @Summary      List users
// @Description  Active users with their address and roles
// @Tags         Users
// @Produce      json
// @Success      200  {array}   UserResponse
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/users [get]
// ListUsers lists active users
// GET /api/users
func (h *UsersHandler) ListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.userRepo.ListActiveUsers(c.Request.Context())
		if err != nil {
			slog.Error("failed to list users", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
			return
		}

		out := make([]UserResponse, 0, len(users))
		for _, u := range users {
			out = append(out, toUserResponse(u))
		}
		c.JSON(http.StatusOK, out)
	}
}

// @Summary      Get user
// @Tags         Users
// @Produce      json
// @Param        id  path  string  true  "User ID"
// @Success      200  {object}  UserResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid user ID"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/users/{id} [get]
// GetUser returns one active user
// GET /api/users/:id
func (h *UsersHandler) GetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}

		user, err := h.userRepo.GetActiveUser(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to get user", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		c.JSON(http.StatusOK, toUserResponse(user))
	}
}

// @Summary      Create user
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUserRequest  true  "User to create"
// @Success      201  {object}  UserResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid request or unknown role/address"
// @Failure      409  {object}  map[string]interface{}  "Username already exists"
// @Router       /api/users [post]
// CreateUser creates an active user linked to existing roles and, optionally, an address
// POST /api/users
func (h *UsersHandler) CreateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()

		user := &models.User{
			Username:  strings.TrimSpace(req.Username),
			FirstName: strings.TrimSpace(req.FirstName),
			LastName:  strings.TrimSpace(req.LastName),
			AddressID: trimmed(req.AddressID),
			Active:    true,
		}
		if user.AddressID != nil && *user.AddressID == "" {
			user.AddressID = nil
		}

		if !h.checkUsername(c, user.Username, "") || !h.checkRoles(c, req.RoleIDs) || !h.checkAddress(c, user.AddressID) {
			return
		}

		if err := h.userRepo.CreateUser(ctx, user, req.RoleIDs); err != nil {
			h.writeFailed(c, "create", err)
			return
		}

		h.respondWithUser(c, http.StatusCreated, &models.UserWithDetails{User: *user})
	}
}

// @Summary      Create user with address
// @Description  Creates the address, the user and its role links in one transaction
// @Tags         Users
// @Accept       json
// @Produce      json
// @Param        body  body  CreateUserWithDetailsRequest  true  "User and address"
// @Success      201  {object}  UserResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid request or unknown role"
// @Failure      409  {object}  map[string]interface{}  "Username already exists"
// @Router       /api/users/with-details [post]
// CreateUserWithDetails creates an address and a user living there
// POST /api/users/with-details
func (h *UsersHandler) CreateUserWithDetails() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserWithDetailsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user := &models.User{
			Username:  strings.TrimSpace(req.Username),
			FirstName: strings.TrimSpace(req.FirstName),
			LastName:  strings.TrimSpace(req.LastName),
			Active:    true,
		}
		address := &models.Address{
			Street:     strings.TrimSpace(req.Address.Street),
			PostalCode: strings.TrimSpace(req.Address.PostalCode),
		}

		if !h.checkUsername(c, user.Username, "") || !h.checkRoles(c, req.RoleIDs) {
			return
		}

		if err := h.userRepo.CreateUserWithAddress(c.Request.Context(), user, address, req.RoleIDs); err != nil {
			h.writeFailed(c, "create", err)
			return
		}

		h.respondWithUser(c, http.StatusCreated, &models.UserWithDetails{User: *user, Address: address})
	}
}

// @Summary      Update user
// @Tags         Users
// @Accept       json
// @Param        id    path  string             true  "User ID"
// @Param        body  body  UpdateUserRequest  true  "Fields to change"
// @Success      204
// @Failure      400  {object}  map[string]interface{}  "Invalid request or unknown role/address"
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Failure      409  {object}  map[string]interface{}  "Username already exists"
// @Router       /api/users/{id} [put]
// UpdateUser changes a user's fields and role memberships. Inactive users can be updated,
// which is how a soft-deleted user is reactivated.
// PUT /api/users/:id
func (h *UsersHandler) UpdateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}

		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ctx := c.Request.Context()

		existing, err := h.userRepo.GetUser(ctx, id)
		if err != nil {
			slog.Error("failed to get user", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user"})
			return
		}
		if existing == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		user := existing.User
		if req.Username != nil {
			user.Username = strings.TrimSpace(*req.Username)
			if user.Username == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Username must not be empty."})
				return
			}
		}
		if req.FirstName != nil {
			user.FirstName = strings.TrimSpace(*req.FirstName)
		}
		if req.LastName != nil {
			user.LastName = strings.TrimSpace(*req.LastName)
		}
		if req.AddressID != nil {
			user.AddressID = trimmed(req.AddressID)
			if *user.AddressID == "" {
				user.AddressID = nil
			}
		}
		if req.Active != nil {
			user.Active = *req.Active
		}

		// Usernames are unique among active users only.
		renamed := !strings.EqualFold(user.Username, existing.Username)
		if user.Active && (renamed || !existing.Active) && !h.checkUsername(c, user.Username, id) {
			return
		}
		if !h.checkRoles(c, req.RoleIDs) {
			return
		}
		if req.AddressID != nil && !h.checkAddress(c, user.AddressID) {
			return
		}

		ok, err := h.userRepo.UpdateUser(ctx, &user, req.RoleIDs)
		if err != nil {
			h.writeFailed(c, "update", err)
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// @Summary      Delete user
// @Description  Soft delete: the user is marked inactive and disappears from listings
// @Tags         Users
// @Param        id  path  string  true  "User ID"
// @Success      204
// @Failure      404  {object}  map[string]interface{}  "User not found"
// @Router       /api/users/{id} [delete]
// DeleteUser deactivates a user
// DELETE /api/users/:id
func (h *UsersHandler) DeleteUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
			return
		}

		ok, err := h.userRepo.DeactivateUser(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to deactivate user", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete user"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// checkUsername answers 400/409/500 and returns false unless username is free among
// active users other than excludeID
func (h *UsersHandler) checkUsername(c *gin.Context, username, excludeID string) bool {
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username must not be empty."})
		return false
	}
	taken, err := h.userRepo.ActiveUsernameExists(c.Request.Context(), username, excludeID)
	if err != nil {
		slog.Error("failed to check username", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate user"})
		return false
	}
	if taken {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already exists."})
		return false
	}
	return true
}

// checkRoles answers 400 and returns false when a role id is malformed or not an active role
func (h *UsersHandler) checkRoles(c *gin.Context, roleIDs []string) bool {
	if id, bad := invalidID(roleIDs); bad {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Role with ID %s does not exist.", id)})
		return false
	}
	missing, err := h.roleRepo.MissingRoleIDs(c.Request.Context(), roleIDs)
	if err != nil {
		slog.Error("failed to check roles", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate roles"})
		return false
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Role with ID %s does not exist.", missing[0])})
		return false
	}
	return true
}

// checkAddress answers 400 and returns false when addressID is set but unknown
func (h *UsersHandler) checkAddress(c *gin.Context, addressID *string) bool {
	if addressID == nil {
		return true
	}
	if !isUUID(*addressID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Address with ID %s does not exist.", *addressID)})
		return false
	}
	exists, err := h.addressRepo.AddressExists(c.Request.Context(), *addressID)
	if err != nil {
		slog.Error("failed to check address", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate address"})
		return false
	}
	if !exists {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Address with ID %s does not exist.", *addressID)})
		return false
	}
	return true
}

func (h *UsersHandler) writeFailed(c *gin.Context, action string, err error) {
	if errors.Is(err, repositories.ErrDuplicate) {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already exists."})
		return
	}
	slog.Error("failed to "+action+" user", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to " + action + " user"})
}

func (h *UsersHandler) respondWithUser(c *gin.Context, status int, written *models.UserWithDetails) {
	id := written.ID
	c.Header("Location", "/api/users/"+id)

	created, err := h.userRepo.GetUser(c.Request.Context(), id)
	if err != nil || created == nil {
		// The write is committed; answer with what was written so the request still
		// succeeds and is audited.
		slog.Warn("failed to reload user after write", "id", id, "error", err)
		created = written
	}
	c.JSON(status, toUserResponse(created))
}
