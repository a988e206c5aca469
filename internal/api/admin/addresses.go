package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/usermanagement/usermanagement/internal/db/models"
	"github.com/usermanagement/usermanagement/internal/db/repositories"
)

// AddressesHandler handles postal address endpoints
type AddressesHandler struct {
	repo *repositories.AddressRepository
}

// NewAddressesHandler creates a new AddressesHandler
func NewAddressesHandler(db *sqlx.DB) *AddressesHandler {
	return &AddressesHandler{repo: repositories.NewAddressRepository(db)}
}

// AddressRequest is the body of POST and PUT /api/addresses
type AddressRequest struct {
	Street     string `json:"street" binding:"required"`
	PostalCode string `json:"postalCode" binding:"required"`
}

func (r AddressRequest) toModel(id string) *models.Address {
	return &models.Address{
		ID:         id,
		Street:     strings.TrimSpace(r.Street),
		PostalCode: strings.TrimSpace(r.PostalCode),
	}
}

// ListAddresses GET /api/addresses
func (h *AddressesHandler) ListAddresses() gin.HandlerFunc {
	return func(c *gin.Context) {
		addresses, err := h.repo.ListAddresses(c.Request.Context())
		if err != nil {
			slog.Error("failed to list addresses", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list addresses"})
			return
		}

		out := make([]*AddressResponse, 0, len(addresses))
		for _, a := range addresses {
			out = append(out, toAddressResponse(a))
		}
		c.JSON(http.StatusOK, out)
	}
}

// GetAddress GET /api/addresses/:id
func (h *AddressesHandler) GetAddress() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address ID"})
			return
		}

		address, err := h.repo.GetAddress(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to get address", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve address"})
			return
		}
		if address == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Address not found"})
			return
		}

		c.JSON(http.StatusOK, toAddressResponse(address))
	}
}

// CreateAddress POST /api/addresses
func (h *AddressesHandler) CreateAddress() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		address := req.toModel("")
		if err := h.repo.CreateAddress(c.Request.Context(), address); err != nil {
			slog.Error("failed to create address", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create address"})
			return
		}

		c.Header("Location", "/api/addresses/"+address.ID)
		c.JSON(http.StatusCreated, toAddressResponse(address))
	}
}

// UpdateAddress PUT /api/addresses/:id
func (h *AddressesHandler) UpdateAddress() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address ID"})
			return
		}

		var req AddressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ok, err := h.repo.UpdateAddress(c.Request.Context(), req.toModel(id))
		if err != nil {
			slog.Error("failed to update address", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update address"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Address not found"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

// DeleteAddress removes an address; users living there keep no address
// DELETE /api/addresses/:id
func (h *AddressesHandler) DeleteAddress() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if !isUUID(id) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address ID"})
			return
		}

		ok, err := h.repo.DeleteAddress(c.Request.Context(), id)
		if err != nil {
			slog.Error("failed to delete address", "id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete address"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Address not found"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}
