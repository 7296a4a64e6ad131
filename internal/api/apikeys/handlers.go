// Package apikeys implements self-service API key management for sellers.
// Sellers can mint additional keys, list their keys, and revoke them. The raw
// key is returned exactly once, at creation; afterwards only the bcrypt hash and
// a short display prefix exist server-side.
package apikeys

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mvpmarket/mvpmarket/internal/auth"
	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/db/repositories"
	"github.com/mvpmarket/mvpmarket/internal/middleware"
)

// Handler serves the API key management endpoints.
type Handler struct {
	keys   *repositories.APIKeyRepository
	prefix string
}

// NewHandler creates the API key handler. prefix is the configured key prefix
// (auth.api_keys.prefix, default "mvp").
func NewHandler(keys *repositories.APIKeyRepository, prefix string) *Handler {
	return &Handler{keys: keys, prefix: prefix}
}

// @Summary      List own API keys
// @Tags         APIKeys
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "keys"
// @Router       /api/v1/apikeys [get]
func (h *Handler) List(c *gin.Context) {
	sellerID, ok := middleware.SellerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	keys, err := h.keys.ListBySeller(c.Request.Context(), sellerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list API keys"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

type createKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

// @Summary      Create API key
// @Description  Mints a new API key for the authenticated seller. The full key appears only in this response; store it immediately.
// @Tags         APIKeys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}  "key (full, shown once), id, display_prefix, name"
// @Failure      400  {object}  map[string]interface{}  "Missing name"
// @Router       /api/v1/apikeys [post]
func (h *Handler) Create(c *gin.Context) {
	sellerID, ok := middleware.SellerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req createKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	fullKey, hash, displayPrefix, err := auth.GenerateAPIKey(h.prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate API key"})
		return
	}

	key := &models.APIKey{
		SellerID:      sellerID,
		Name:          req.Name,
		KeyHash:       hash,
		DisplayPrefix: displayPrefix,
	}
	if err := h.keys.Create(c.Request.Context(), key); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store API key"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":             key.ID,
		"name":           key.Name,
		"display_prefix": key.DisplayPrefix,
		"key":            fullKey,
	})
}

// @Summary      Revoke API key
// @Description  Deletes one of the authenticated seller's API keys. Requests using the revoked key fail immediately afterwards.
// @Tags         APIKeys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      204  "No Content"
// @Failure      404  {object}  map[string]interface{}  "Key not found or owned by another seller"
// @Router       /api/v1/apikeys/{id} [delete]
func (h *Handler) Revoke(c *gin.Context) {
	sellerID, ok := middleware.SellerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	keyID := c.Param("id")
	keys, err := h.keys.ListBySeller(c.Request.Context(), sellerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up API key"})
		return
	}

	owned := false
	for _, k := range keys {
		if k.ID == keyID {
			owned = true
			break
		}
	}
	if !owned {
		c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
		return
	}

	if err := h.keys.Revoke(c.Request.Context(), keyID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to revoke API key"})
		return
	}

	c.Status(http.StatusNoContent)
}
