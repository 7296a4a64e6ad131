// search.go implements the public browse endpoints and the seller's own listing
// view. Public endpoints only ever return approved entries; the seller view
// returns everything the seller owns regardless of status.
package entries

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/db/repositories"
	"github.com/mvpmarket/mvpmarket/internal/middleware"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func pagination(c *gin.Context) (limit, offset int) {
	limit = defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

// @Summary      Browse catalog
// @Description  Lists approved entries, newest first. Supports free-text search over title, tagline, and description, plus category filtering.
// @Tags         Entries
// @Produce      json
// @Param        q         query  string  false  "Free-text search"
// @Param        category  query  string  false  "Category filter"
// @Param        limit     query  integer false  "Page size (default 20, max 100)"
// @Param        offset    query  integer false  "Page offset"
// @Success      200  {object}  map[string]interface{}  "entries, total, limit, offset"
// @Router       /v1/entries [get]
func (h *Handler) ListEntries(c *gin.Context) {
	limit, offset := pagination(c)

	filter := repositories.SearchFilter{
		Query:        c.Query("q"),
		Category:     c.Query("category"),
		ApprovedOnly: true,
		Limit:        limit,
		Offset:       offset,
	}

	results, total, err := h.entries.Search(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": results,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// @Summary      Get entry by slug
// @Description  Returns one approved entry's full listing, including its version history.
// @Tags         Entries
// @Produce      json
// @Param        slug  path  string  true  "Entry slug"
// @Success      200  {object}  models.Entry
// @Failure      404  {object}  map[string]interface{}  "Entry not found"
// @Router       /v1/entries/{slug} [get]
func (h *Handler) GetEntry(c *gin.Context) {
	entry, err := h.entries.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query entry"})
		return
	}
	// Unapproved entries are invisible publicly; 404 rather than 403 so their
	// existence is not leaked.
	if entry == nil || entry.Status != models.StatusApproved {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}

	c.JSON(http.StatusOK, entry)
}

// @Summary      List own entries
// @Description  Lists the authenticated seller's entries in every status, newest first.
// @Tags         Entries
// @Security     Bearer
// @Produce      json
// @Param        limit   query  integer false  "Page size (default 20, max 100)"
// @Param        offset  query  integer false  "Page offset"
// @Success      200  {object}  map[string]interface{}  "entries, total, limit, offset"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /api/v1/entries [get]
func (h *Handler) ListOwnEntries(c *gin.Context) {
	sellerID, ok := middleware.SellerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	limit, offset := pagination(c)

	results, total, err := h.entries.Search(c.Request.Context(), repositories.SearchFilter{
		SellerID: sellerID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list entries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": results,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// @Summary      Get own entry
// @Description  Returns one of the authenticated seller's entries by ID, regardless of status. This is how sellers inspect pipeline failures via last_processing_error.
// @Tags         Entries
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Entry ID"
// @Success      200  {object}  models.Entry
// @Failure      403  {object}  map[string]interface{}  "Entry belongs to another seller"
// @Failure      404  {object}  map[string]interface{}  "Entry not found"
// @Router       /api/v1/entries/{id} [get]
func (h *Handler) GetOwnEntry(c *gin.Context) {
	entry := h.requireOwned(c, c.Param("id"))
	if entry == nil {
		return
	}

	c.JSON(http.StatusOK, entry)
}
