// internal/interfaces/http/handlers/product.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/minishop/storefront-backend/internal/domain/catalog"
	"github.com/minishop/storefront-backend/internal/infrastructure/blob"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

const maxImageSize = 5 << 20

// ProductHandler handles admin product management
type ProductHandler struct {
	catalogService *catalog.Service
	blobs          blob.Store
}

// NewProductHandler creates a new product handler
func NewProductHandler(catalogService *catalog.Service, blobs blob.Store) *ProductHandler {
	return &ProductHandler{
		catalogService: catalogService,
		blobs:          blobs,
	}
}

// CreateProduct handles POST /admin/products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var input catalog.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	product, err := h.catalogService.CreateProduct(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Product created successfully",
		"data":    product,
	})
}

// UpdateProduct handles PUT /admin/products/:id
func (h *ProductHandler) UpdateProduct(c *gin.Context) {
	var input catalog.ProductInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := h.catalogService.UpdateProduct(c.Request.Context(), c.Param("id"), input); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Product updated successfully"})
}

// DeleteProduct handles DELETE /admin/products/:id
func (h *ProductHandler) DeleteProduct(c *gin.Context) {
	if err := h.catalogService.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Product deleted successfully"})
}

// UploadProductImage handles POST /admin/products/:id/image
func (h *ProductHandler) UploadProductImage(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	if fileHeader.Size > maxImageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image too large"})
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported image type"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read image"})
		return
	}
	defer file.Close()

	blobID, err := h.blobs.Put(c.Request.Context(), fileHeader.Filename, contentType, file)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.catalogService.AddProductImage(c.Request.Context(), c.Param("id"), blobID); err != nil {
		// Attach failed, the blob belongs to nobody.
		_ = h.blobs.Delete(c.Request.Context(), blobID)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Product image uploaded successfully",
		"data":    gin.H{"image_id": blobID},
	})
}

// RemoveProductImage handles DELETE /admin/products/:id/images/:imageID
func (h *ProductHandler) RemoveProductImage(c *gin.Context) {
	if err := h.catalogService.RemoveProductImage(c.Request.Context(), c.Param("id"), c.Param("imageID")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Product image removed successfully"})
}
