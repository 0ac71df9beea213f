// internal/interfaces/http/handlers/catalog.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/minishop/storefront-backend/internal/domain/catalog"
	"github.com/minishop/storefront-backend/internal/infrastructure/blob"
)

// CatalogHandler serves catalog snapshots
type CatalogHandler struct {
	cache          *catalog.Cache
	catalogService *catalog.Service
	blobs          blob.Store
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(cache *catalog.Cache, catalogService *catalog.Service, blobs blob.Store) *CatalogHandler {
	return &CatalogHandler{
		cache:          cache,
		catalogService: catalogService,
		blobs:          blobs,
	}
}

// GetCatalog handles GET /catalog. The snapshot hash is the ETag; a
// matching If-None-Match short-circuits to 304 without a body.
func (h *CatalogHandler) GetCatalog(c *gin.Context) {
	snapshot := h.cache.Get(c.Request.Context(), true)

	etag := `"` + snapshot.Hash + `"`
	c.Header("ETag", etag)
	c.Header("Cache-Control", "public, max-age=60")

	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": snapshot.Categories,
		"products":   snapshot.Products,
	})
}

// GetAdminCatalog handles GET /admin/catalog, unfiltered and uncached
// on the client side
func (h *CatalogHandler) GetAdminCatalog(c *gin.Context) {
	snapshot := h.cache.Get(c.Request.Context(), false)

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"categories": snapshot.Categories,
		"products":   snapshot.Products,
	})
}

// GetProductImage handles GET /products/:id/image
func (h *CatalogHandler) GetProductImage(c *gin.Context) {
	product, err := h.catalogService.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	imageID := product.PrimaryImage()
	if imageID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "product has no image"})
		return
	}

	reader, meta, err := h.blobs.Open(c.Request.Context(), imageID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	defer reader.Close()

	c.Header("Cache-Control", "public, max-age=86400")
	c.DataFromReader(http.StatusOK, meta.Length, meta.ContentType, reader, nil)
}
