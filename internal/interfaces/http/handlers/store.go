// internal/interfaces/http/handlers/store.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/minishop/storefront-backend/internal/domain/store"
)

// StoreHandler handles the storefront open/closed switch
type StoreHandler struct {
	storeService *store.Service
}

// NewStoreHandler creates a new store handler
func NewStoreHandler(storeService *store.Service) *StoreHandler {
	return &StoreHandler{storeService: storeService}
}

// GetStatus handles GET /store/status
func (h *StoreHandler) GetStatus(c *gin.Context) {
	status := h.storeService.Status(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"data": status})
}

// UpdateStatus handles PUT /admin/store/status
func (h *StoreHandler) UpdateStatus(c *gin.Context) {
	var req store.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	status, err := h.storeService.Update(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Store status updated successfully",
		"data":    status,
	})
}
