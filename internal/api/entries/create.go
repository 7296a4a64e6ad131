// create.go implements the entry creation endpoint: multipart upload of the
// template archive and preview images plus listing metadata.
package entries

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mvpmarket/mvpmarket/internal/middleware"
	"github.com/mvpmarket/mvpmarket/internal/safego"
	"github.com/mvpmarket/mvpmarket/internal/services"
	"github.com/mvpmarket/mvpmarket/internal/validation"
)

// processTimeout bounds the detached pipeline run kicked off after an upload.
// Generous on purpose: it only exists so an unresponsive scanner or pinning
// service cannot leak the goroutine forever.
const processTimeout = 30 * time.Minute

// @Summary      Create catalog entry
// @Description  Upload a new template with its archive and preview images. The entry starts at version 1.0.0 in pending_review and is run through the publication pipeline in the background.
// @Tags         Entries
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        title        formData  string  true   "Listing title"
// @Param        tagline      formData  string  false  "Short tagline"
// @Param        description  formData  string  false  "Long description"
// @Param        features     formData  []string  false  "Feature bullet points (repeat the field)"
// @Param        tech_stack   formData  []string  false  "Technology names (repeat the field)"
// @Param        category     formData  string  false  "Category"
// @Param        license_terms formData string  false  "License terms"
// @Param        access_tier  formData  string  false  "Access tier"
// @Param        price_cents  formData  integer false  "Price in cents"
// @Param        changelog    formData  string  false  "Initial changelog"
// @Param        repo_owner   formData  string  false  "GitHub repository owner (links the entry)"
// @Param        repo_name    formData  string  false  "GitHub repository name"
// @Param        webhook_secret formData string false  "Shared secret for webhook signature verification"
// @Param        archive      formData  file    true   "Template archive (1KB-100MB)"
// @Param        previews     formData  file    false  "Preview images (repeat the field, max 10MB each)"
// @Success      201  {object}  models.Entry
// @Failure      400  {object}  map[string]interface{}  "Invalid metadata or rejected upload"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/entries [post]
func (h *Handler) CreateEntry(c *gin.Context) {
	sellerID, ok := middleware.SellerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	if err := c.Request.ParseMultipartForm(validation.MaxArchiveSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse multipart form"})
		return
	}

	title := c.PostForm("title")
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required field: title"})
		return
	}

	archiveHeader, err := c.FormFile("archive")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid archive upload"})
		return
	}

	in := services.CreateEntryInput{
		SellerID:      sellerID,
		Title:         title,
		Tagline:       optionalForm(c, "tagline"),
		Description:   optionalForm(c, "description"),
		Features:      c.PostFormArray("features"),
		TechStack:     c.PostFormArray("tech_stack"),
		Category:      optionalForm(c, "category"),
		LicenseTerms:  optionalForm(c, "license_terms"),
		AccessTier:    optionalForm(c, "access_tier"),
		Changelog:     optionalForm(c, "changelog"),
		RepoOwner:     optionalForm(c, "repo_owner"),
		RepoName:      optionalForm(c, "repo_name"),
		WebhookSecret: optionalForm(c, "webhook_secret"),
	}

	if raw, ok := c.GetPostForm("price_cents"); ok {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || price < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "price_cents must be a non-negative integer"})
			return
		}
		in.PriceCents = &price
	}

	archive, archiveFile, err := uploadFromHeader(archiveHeader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded archive"})
		return
	}
	defer archiveFile.Close()
	in.Archive = archive

	var previewFiles []interface{ Close() error }
	defer func() {
		for _, f := range previewFiles {
			_ = f.Close()
		}
	}()
	if c.Request.MultipartForm != nil {
		for _, fh := range c.Request.MultipartForm.File["previews"] {
			preview, f, err := uploadFromHeader(fh)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read preview image"})
				return
			}
			previewFiles = append(previewFiles, f)
			in.Previews = append(in.Previews, preview)
		}
	}

	entry, err := h.writer.CreateEntry(c.Request.Context(), in)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	// The pipeline talks to the scanner and pinning services; run it detached so
	// the upload response is not held hostage by their latency.
	entryID := entry.ID
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
		defer cancel()
		_ = h.processor.Process(ctx, entryID)
	})

	c.JSON(http.StatusCreated, entry)
}
