// internal/interfaces/http/handlers/backup.go
package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/minishop/storefront-backend/internal/domain/backup"
)

// BackupHandler handles admin database export and import
type BackupHandler struct {
	backupService *backup.Service
}

// NewBackupHandler creates a new backup handler
func NewBackupHandler(backupService *backup.Service) *BackupHandler {
	return &BackupHandler{backupService: backupService}
}

// ExportBackup handles GET /admin/backup/export
func (h *BackupHandler) ExportBackup(c *gin.Context) {
	opts := backup.ExportOptions{
		IncludeCarts:  c.Query("include_carts") == "true",
		IncludeOrders: c.Query("include_orders") == "true",
	}
	if raw := c.Query("collections"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				opts.Collections = append(opts.Collections, name)
			}
		}
	}

	var buf bytes.Buffer
	filename, err := h.backupService.Export(c.Request.Context(), opts, &buf)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "application/gzip", buf.Bytes())
}

// ImportBackup handles POST /admin/backup/import
func (h *BackupHandler) ImportBackup(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Backup file is required"})
		return
	}

	src, err := file.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer src.Close()

	clearExisting := c.Query("clear_existing") == "true" || c.PostForm("clear_existing") == "true"

	report, err := h.backupService.Import(c.Request.Context(), file.Filename, src, clearExisting)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Backup imported successfully",
		"data":    report,
	})
}

// BackupInfo handles GET /admin/backup/info
func (h *BackupHandler) BackupInfo(c *gin.Context) {
	info, err := h.backupService.Info(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": info})
}
