// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/minishop/storefront-backend/internal/config"
	"github.com/minishop/storefront-backend/internal/domain/backup"
	"github.com/minishop/storefront-backend/internal/domain/cart"
	"github.com/minishop/storefront-backend/internal/domain/catalog"
	"github.com/minishop/storefront-backend/internal/domain/order"
	"github.com/minishop/storefront-backend/internal/domain/store"
	"github.com/minishop/storefront-backend/internal/infrastructure/blob"
	"github.com/minishop/storefront-backend/internal/interfaces/http/handlers"
	"github.com/minishop/storefront-backend/internal/interfaces/http/middleware"
)

// Deps are the wired services the routes expose
type Deps struct {
	Config         *config.Config
	CatalogCache   *catalog.Cache
	CatalogService *catalog.Service
	CartService    *cart.Service
	OrderService   *order.Service
	StoreService   *store.Service
	BackupService  *backup.Service
	Blobs          blob.Store
}

// SetupRoutes mounts every API route on the given group
func SetupRoutes(rg *gin.RouterGroup, deps *Deps) {
	catalogHandler := handlers.NewCatalogHandler(deps.CatalogCache, deps.CatalogService, deps.Blobs)
	categoryHandler := handlers.NewCategoryHandler(deps.CatalogService)
	productHandler := handlers.NewProductHandler(deps.CatalogService, deps.Blobs)
	cartHandler := handlers.NewCartHandler(deps.CartService)
	orderHandler := handlers.NewOrderHandler(deps.OrderService)
	adminOrderHandler := handlers.NewAdminOrderHandler(deps.OrderService, deps.Blobs)
	storeHandler := handlers.NewStoreHandler(deps.StoreService)
	backupHandler := handlers.NewBackupHandler(deps.BackupService)

	// Public endpoints
	rg.GET("/catalog", catalogHandler.GetCatalog)
	rg.GET("/store/status", storeHandler.GetStatus)
	rg.GET("/products/:id/image", catalogHandler.GetProductImage)

	// Customer endpoints resolve identity from the chat-client header
	user := rg.Group("")
	user.Use(middleware.IdentityMiddleware(deps.Config))
	{
		userCart := user.Group("/cart")
		{
			userCart.GET("", cartHandler.GetCart)
			userCart.POST("/items", cartHandler.AddToCart)
			userCart.PATCH("/items/:itemID", cartHandler.UpdateCartItem)
			userCart.DELETE("/items/:itemID", cartHandler.RemoveCartItem)
			userCart.DELETE("", cartHandler.ClearCart)
		}

		orders := user.Group("/orders")
		{
			orders.POST("", orderHandler.CreateOrder)
			orders.GET("", orderHandler.ListMyOrders)
		}
	}

	// Admin endpoints additionally require the allowlist
	admin := rg.Group("/admin")
	admin.Use(middleware.IdentityMiddleware(deps.Config))
	admin.Use(middleware.AdminMiddleware())
	{
		admin.GET("/catalog", catalogHandler.GetAdminCatalog)

		categories := admin.Group("/categories")
		{
			categories.POST("", categoryHandler.CreateCategory)
			categories.PUT("/:id", categoryHandler.UpdateCategory)
			categories.DELETE("/:id", categoryHandler.DeleteCategory)
		}

		products := admin.Group("/products")
		{
			products.POST("", productHandler.CreateProduct)
			products.PUT("/:id", productHandler.UpdateProduct)
			products.DELETE("/:id", productHandler.DeleteProduct)
			products.POST("/:id/image", productHandler.UploadProductImage)
			products.DELETE("/:id/images/:imageID", productHandler.RemoveProductImage)
		}

		orders := admin.Group("/orders")
		{
			orders.GET("", adminOrderHandler.ListOrders)
			orders.GET("/:id", adminOrderHandler.GetOrder)
			orders.GET("/:id/receipt", adminOrderHandler.GetReceipt)
			orders.PATCH("/:id/status", adminOrderHandler.UpdateOrderStatus)
			orders.POST("/:id/accept", adminOrderHandler.AcceptOrder)
			orders.DELETE("/:id", adminOrderHandler.DeleteOrder)
		}

		adminStore := admin.Group("/store")
		{
			adminStore.GET("/status", storeHandler.GetStatus)
			adminStore.PUT("/status", storeHandler.UpdateStatus)
		}

		adminBackup := admin.Group("/backup")
		{
			adminBackup.GET("/export", backupHandler.ExportBackup)
			adminBackup.POST("/import", backupHandler.ImportBackup)
			adminBackup.GET("/info", backupHandler.BackupInfo)
		}
	}
}
