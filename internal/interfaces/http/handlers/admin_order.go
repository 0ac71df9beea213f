// internal/interfaces/http/handlers/admin_order.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/minishop/storefront-backend/internal/domain/order"
	"github.com/minishop/storefront-backend/internal/infrastructure/blob"
)

// AdminOrderHandler handles admin order management
type AdminOrderHandler struct {
	orderService *order.Service
	blobs        blob.Store
}

// NewAdminOrderHandler creates a new admin order handler
func NewAdminOrderHandler(orderService *order.Service, blobs blob.Store) *AdminOrderHandler {
	return &AdminOrderHandler{
		orderService: orderService,
		blobs:        blobs,
	}
}

// ListOrders handles GET /admin/orders with cursor pagination
func (h *AdminOrderHandler) ListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	params := order.ListParams{
		Status: order.Status(c.Query("status")),
		Cursor: c.Query("cursor"),
		Limit:  limit,
	}

	summaries, nextCursor, err := h.orderService.List(c.Request.Context(), params)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":        summaries,
		"next_cursor": nextCursor,
	})
}

// GetOrder handles GET /admin/orders/:id
func (h *AdminOrderHandler) GetOrder(c *gin.Context) {
	o, err := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": o})
}

// GetReceipt handles GET /admin/orders/:id/receipt
func (h *AdminOrderHandler) GetReceipt(c *gin.Context) {
	o, err := h.orderService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if o.ReceiptID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "order has no receipt"})
		return
	}

	reader, meta, err := h.blobs.Open(c.Request.Context(), o.ReceiptID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "receipt not found"})
		return
	}
	defer reader.Close()

	c.DataFromReader(http.StatusOK, meta.Length, meta.ContentType, reader, nil)
}

// UpdateOrderStatus handles PATCH /admin/orders/:id/status
func (h *AdminOrderHandler) UpdateOrderStatus(c *gin.Context) {
	var req order.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	o, err := h.orderService.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order status updated successfully",
		"data":    o,
	})
}

// AcceptOrder handles POST /admin/orders/:id/accept
func (h *AdminOrderHandler) AcceptOrder(c *gin.Context) {
	o, err := h.orderService.QuickAccept(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order accepted successfully",
		"data":    o,
	})
}

// DeleteOrder handles DELETE /admin/orders/:id
func (h *AdminOrderHandler) DeleteOrder(c *gin.Context) {
	if err := h.orderService.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order deleted successfully"})
}
