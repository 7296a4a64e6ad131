// versions.go implements version lifecycle endpoints: publishing a new version,
// retrying a failed pipeline run, and pulling new content from a linked GitHub
// repository.
package entries

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mvpmarket/mvpmarket/internal/safego"
	"github.com/mvpmarket/mvpmarket/internal/services"
	"github.com/mvpmarket/mvpmarket/internal/validation"
)

// @Summary      Publish new version
// @Description  Uploads a replacement archive as a new version. The outgoing version is snapshotted into the history and the entry re-enters the publication pipeline. Listing metadata and preview images may be patched in the same request; absent fields keep their current values.
// @Tags         Entries
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        id         path      string  true   "Entry ID"
// @Param        version    formData  string  false  "Explicit new version number; must exceed the current version"
// @Param        increment  formData  string  false  "Version increment when no explicit version is given: major, minor, or patch (default patch)"
// @Param        changelog  formData  string  false  "Changelog for the new version"
// @Param        archive    formData  file    true   "Replacement archive (1KB-100MB)"
// @Success      200  {object}  models.Entry
// @Failure      400  {object}  map[string]interface{}  "Rejected upload"
// @Failure      403  {object}  map[string]interface{}  "Entry belongs to another seller"
// @Failure      404  {object}  map[string]interface{}  "Entry not found"
// @Failure      409  {object}  map[string]interface{}  "Concurrent modification"
// @Router       /api/v1/entries/{id}/versions [post]
func (h *Handler) PublishVersion(c *gin.Context) {
	entry := h.requireOwned(c, c.Param("id"))
	if entry == nil {
		return
	}

	if err := c.Request.ParseMultipartForm(validation.MaxArchiveSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse multipart form"})
		return
	}

	archiveHeader, err := c.FormFile("archive")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid archive upload"})
		return
	}

	archive, archiveFile, err := uploadFromHeader(archiveHeader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded archive"})
		return
	}
	defer archiveFile.Close()

	in := services.PublishNewVersionInput{
		Version:   optionalForm(c, "version"),
		Increment: validation.IncrementKind(c.DefaultPostForm("increment", string(validation.IncrementPatch))),
		Changelog: optionalForm(c, "changelog"),
		Archive:   archive,
	}

	var closers []interface{ Close() error }
	defer func() {
		for _, f := range closers {
			_ = f.Close()
		}
	}()
	if !h.multipartMetadata(c, &in.Metadata, &closers) {
		return
	}

	updated, err := h.writer.PublishNewVersion(c.Request.Context(), entry.ID, in)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	entryID := updated.ID
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		_ = h.processor.Process(ctx, entryID)
	})

	c.JSON(http.StatusOK, updated)
}

// @Summary      Retry failed pipeline run
// @Description  Re-runs the publication pipeline for an entry stuck in scan_failed or ipfs_pin_failed. Runs synchronously and returns the entry in its final status.
// @Tags         Entries
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Entry ID"
// @Success      200  {object}  models.Entry
// @Failure      403  {object}  map[string]interface{}  "Entry belongs to another seller"
// @Failure      404  {object}  map[string]interface{}  "Entry not found"
// @Failure      409  {object}  map[string]interface{}  "Entry is not in a retryable status"
// @Router       /api/v1/entries/{id}/retry [post]
func (h *Handler) RetryProcessing(c *gin.Context) {
	entry := h.requireOwned(c, c.Param("id"))
	if entry == nil {
		return
	}

	if !entry.Status.Retryable() {
		c.JSON(http.StatusConflict, gin.H{"error": "Entry is not in a retryable status"})
		return
	}

	if err := h.processor.Retry(c.Request.Context(), entry.ID); err != nil {
		writeServiceError(c, err)
		return
	}

	refreshed, err := h.entries.GetByID(c.Request.Context(), entry.ID)
	if err != nil || refreshed == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reload entry"})
		return
	}
	c.JSON(http.StatusOK, refreshed)
}

// @Summary      Sync from linked repository
// @Description  Fetches the linked GitHub repository's latest release (or default-branch head) and, when new, publishes it as a new version through the pipeline. No-op when the repository has nothing new.
// @Tags         Entries
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Entry ID"
// @Success      200  {object}  services.SyncResult
// @Failure      400  {object}  map[string]interface{}  "Entry has no linked repository"
// @Failure      403  {object}  map[string]interface{}  "Entry belongs to another seller"
// @Failure      404  {object}  map[string]interface{}  "Entry not found"
// @Router       /api/v1/entries/{id}/sync [post]
func (h *Handler) SyncEntry(c *gin.Context) {
	if h.syncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "GitHub integration is not configured"})
		return
	}

	entry := h.requireOwned(c, c.Param("id"))
	if entry == nil {
		return
	}

	result, err := h.syncer.SyncFromGitHub(c.Request.Context(), entry.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
