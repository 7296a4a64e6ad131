// update.go implements metadata patches and soft deletion. Patches are partial:
// absent fields keep their current values, and preview_images distinguishes
// "not sent" (keep) from "sent empty" (clear).
package entries

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mvpmarket/mvpmarket/internal/services"
	"github.com/mvpmarket/mvpmarket/internal/validation"
)

// updateRequest is the JSON body for metadata-only patches.
type updateRequest struct {
	Title         *string   `json:"title"`
	Tagline       *string   `json:"tagline"`
	Description   *string   `json:"description"`
	Features      *[]string `json:"features"`
	TechStack     *[]string `json:"tech_stack"`
	Category      *string   `json:"category"`
	LicenseTerms  *string   `json:"license_terms"`
	AccessTier    *string   `json:"access_tier"`
	PriceCents    *int64    `json:"price_cents"`
	Changelog     *string   `json:"changelog"`
	PreviewImages *[]string `json:"preview_images"`
}

// @Summary      Update entry
// @Description  Partially updates listing metadata. Accepts a JSON body for metadata-only patches, or multipart/form-data to additionally attach new preview images or replace the current version's archive in place. Replacing the archive does not create a new version; use the versions endpoint for that.
// @Tags         Entries
// @Security     Bearer
// @Accept       json
// @Accept       multipart/form-data
// @Produce      json
// @Param        id  path  string  true  "Entry ID"
// @Success      200  {object}  models.Entry
// @Failure      400  {object}  map[string]interface{}  "Invalid patch or rejected upload"
// @Failure      403  {object}  map[string]interface{}  "Entry belongs to another seller"
// @Failure      404  {object}  map[string]interface{}  "Entry not found"
// @Failure      409  {object}  map[string]interface{}  "Concurrent modification"
// @Router       /api/v1/entries/{id} [patch]
func (h *Handler) UpdateEntry(c *gin.Context) {
	entry := h.requireOwned(c, c.Param("id"))
	if entry == nil {
		return
	}

	var in services.UpdateEntryInput
	var closers []interface{ Close() error }
	defer func() {
		for _, f := range closers {
			_ = f.Close()
		}
	}()

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.Request.ParseMultipartForm(validation.MaxArchiveSize); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse multipart form"})
			return
		}
		if !h.multipartPatch(c, &in, &closers) {
			return
		}
	} else {
		var req updateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		in = services.UpdateEntryInput{
			MetadataPatch: services.MetadataPatch{
				Title:         req.Title,
				Tagline:       req.Tagline,
				Description:   req.Description,
				Features:      req.Features,
				TechStack:     req.TechStack,
				Category:      req.Category,
				LicenseTerms:  req.LicenseTerms,
				AccessTier:    req.AccessTier,
				PriceCents:    req.PriceCents,
				Changelog:     req.Changelog,
				PreviewImages: req.PreviewImages,
			},
		}
	}

	updated, err := h.writer.UpdateEntry(c.Request.Context(), entry.ID, in)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// multipartPatch fills in from a multipart form: the metadata patch plus an
// optional in-place archive replacement. Returns false after writing an error
// response.
func (h *Handler) multipartPatch(c *gin.Context, in *services.UpdateEntryInput, closers *[]interface{ Close() error }) bool {
	if !h.multipartMetadata(c, &in.MetadataPatch, closers) {
		return false
	}

	if fhs := c.Request.MultipartForm.File["archive"]; len(fhs) > 0 {
		archive, f, err := uploadFromHeader(fhs[0])
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded archive"})
			return false
		}
		*closers = append(*closers, f)
		in.Archive = &archive
	}

	return true
}

// multipartMetadata fills a metadata patch from an already-parsed multipart
// form. Field presence, not value, decides whether a field is part of the
// patch. Returns false after writing an error response.
func (h *Handler) multipartMetadata(c *gin.Context, in *services.MetadataPatch, closers *[]interface{ Close() error }) bool {
	in.Title = optionalForm(c, "title")
	in.Tagline = optionalForm(c, "tagline")
	in.Description = optionalForm(c, "description")
	in.Category = optionalForm(c, "category")
	in.LicenseTerms = optionalForm(c, "license_terms")
	in.AccessTier = optionalForm(c, "access_tier")
	in.Changelog = optionalForm(c, "changelog")

	if raw, ok := c.GetPostForm("price_cents"); ok {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || price < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price_cents must be a non-negative integer"})
			return false
		}
		in.PriceCents = &price
	}

	form := c.Request.MultipartForm
	if vs, ok := form.Value["features"]; ok {
		features := vs
		in.Features = &features
	}
	if vs, ok := form.Value["tech_stack"]; ok {
		stack := vs
		in.TechStack = &stack
	}
	if vs, ok := form.Value["preview_images"]; ok {
		// A single empty value means "clear all images".
		images := vs
		if len(images) == 1 && images[0] == "" {
			images = []string{}
		}
		in.PreviewImages = &images
	}

	for _, fh := range form.File["previews"] {
		preview, f, err := uploadFromHeader(fh)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read preview image"})
			return false
		}
		*closers = append(*closers, f)
		in.NewPreviews = append(in.NewPreviews, preview)
	}

	return true
}

// @Summary      Archive entry
// @Description  Soft-deletes an entry by moving it to the terminal archived status. Archived entries disappear from public browsing and cannot be modified further.
// @Tags         Entries
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Entry ID"
// @Success      204  "No Content"
// @Failure      403  {object}  map[string]interface{}  "Entry belongs to another seller"
// @Failure      404  {object}  map[string]interface{}  "Entry not found"
// @Router       /api/v1/entries/{id} [delete]
func (h *Handler) ArchiveEntry(c *gin.Context) {
	entry := h.requireOwned(c, c.Param("id"))
	if entry == nil {
		return
	}

	if err := h.writer.Archive(c.Request.Context(), entry.ID); err != nil {
		writeServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
