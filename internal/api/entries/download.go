// download.go implements the public download endpoint. Archives live in the
// private bucket, so the response carries a time-limited signed URL rather than
// streaming bytes through the API.
package entries

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mvpmarket/mvpmarket/internal/catalog"
	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/safego"
	"github.com/mvpmarket/mvpmarket/internal/telemetry"
)

// @Summary      Download entry archive
// @Description  Returns a signed, time-limited download URL for an approved entry's current archive and increments its download counter.
// @Tags         Entries
// @Produce      json
// @Param        slug  path  string  true  "Entry slug"
// @Success      200  {object}  map[string]interface{}  "download_url, file_name, file_size, content_hash"
// @Failure      404  {object}  map[string]interface{}  "Entry not found or not approved"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /v1/entries/{slug}/download [get]
func (h *Handler) DownloadEntry(c *gin.Context) {
	entry, err := h.entries.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query entry"})
		return
	}
	if entry == nil || entry.Status != models.StatusApproved {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}

	storagePath, err := catalog.ArchivePath(entry)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve archive location"})
		return
	}

	downloadURL, err := h.store.ArchiveDownloadURL(c.Request.Context(), storagePath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate download URL"})
		return
	}

	category := "uncategorized"
	if entry.Category != nil && *entry.Category != "" {
		category = *entry.Category
	}
	telemetry.EntryDownloadsTotal.WithLabelValues(category).Inc()

	// Count the download without blocking the response.
	entryID := entry.ID
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.entries.IncrementDownloadCount(ctx, entryID)
	})

	c.JSON(http.StatusOK, gin.H{
		"download_url": downloadURL,
		"file_name":    entry.OriginalFileName,
		"file_size":    entry.FileSize,
		"content_hash": entry.ContentHash,
	})
}
