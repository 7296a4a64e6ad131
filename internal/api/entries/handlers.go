// Package entries implements the catalog entry HTTP handlers: seller-facing
// creation, versioning, and lifecycle endpoints under /api/v1/entries, and the
// public browse/download endpoints under /v1/entries. Public endpoints only ever
// expose approved entries; everything else requires the authenticated seller to
// own the entry it touches.
package entries

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/db/repositories"
	"github.com/mvpmarket/mvpmarket/internal/middleware"
	"github.com/mvpmarket/mvpmarket/internal/services"
	"github.com/mvpmarket/mvpmarket/internal/validation"
)

// Handler bundles the services the entry endpoints need.
type Handler struct {
	entries   *repositories.EntryRepository
	writer    *services.EntryWriter
	processor *services.Processor
	syncer    *services.Syncer
	store     *services.StoreWriter
}

// NewHandler creates the entry endpoint handler.
func NewHandler(entries *repositories.EntryRepository, writer *services.EntryWriter, processor *services.Processor, syncer *services.Syncer, store *services.StoreWriter) *Handler {
	return &Handler{
		entries:   entries,
		writer:    writer,
		processor: processor,
		syncer:    syncer,
		store:     store,
	}
}

// requireOwned loads the entry and verifies the authenticated seller owns it.
// Writes the error response and returns nil when the request must not proceed.
func (h *Handler) requireOwned(c *gin.Context, entryID string) *models.Entry {
	sellerID, ok := middleware.SellerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return nil
	}

	entry, err := h.entries.GetByID(c.Request.Context(), entryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query entry"})
		return nil
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return nil
	}
	if entry.SellerID != sellerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Entry belongs to another seller"})
		return nil
	}
	return entry
}

// writeServiceError maps service-layer errors onto HTTP status codes.
func writeServiceError(c *gin.Context, err error) {
	var vErr *services.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Reason})
	case errors.Is(err, services.ErrEntryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
	case errors.Is(err, services.ErrNotLinked):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Entry has no linked repository"})
	case errors.Is(err, repositories.ErrRevisionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Entry was modified concurrently, retry with fresh data"})
	case errors.Is(err, repositories.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// uploadFromHeader adapts a multipart file into the service upload type. The
// returned closer must be closed after the service call completes.
func uploadFromHeader(fh *multipart.FileHeader) (services.Upload, multipart.File, error) {
	f, err := fh.Open()
	if err != nil {
		return services.Upload{}, nil, err
	}
	return services.Upload{
		Meta: validation.FileMeta{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
		},
		Content: f,
	}, f, nil
}

func optionalForm(c *gin.Context, field string) *string {
	if v, ok := c.GetPostForm(field); ok {
		return &v
	}
	return nil
}
