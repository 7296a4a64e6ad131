// Package middleware provides Gin HTTP middleware for authentication, rate limiting,
// security headers, request IDs, and metrics.
//
// Middleware ordering matters and is enforced in router.go:
//
//	RequestID → Security → Metrics → RateLimit → Auth → Handler
//
// Security headers run early so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any DB work.
// Auth populates the seller identity that handlers read from the context.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mvpmarket/mvpmarket/internal/auth"
	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/db/repositories"
)

// Context keys set by AuthMiddleware.
const (
	ContextSellerID = "seller_id"
	ContextAPIKeyID = "api_key_id"
)

// AuthMiddleware authenticates requests with a seller API key carried as a
// bearer token. On success the seller's ID is available under ContextSellerID.
func AuthMiddleware(apiKeyRepo *repositories.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractAPIKeyFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
			})
			return
		}

		// We never store the raw key — only its bcrypt hash. The 10-character prefix
		// is stored plaintext alongside the hash so we can do a fast indexed DB query
		// to narrow the candidate set, then run the expensive bcrypt comparison only
		// on those few rows. Without the prefix, every request would require scanning
		// the entire api_keys table and running bcrypt on each row — O(n) bcrypt calls
		// per request, which is catastrophically slow at scale.
		keyPrefix := token
		if len(token) > auth.DisplayPrefixLength {
			keyPrefix = token[:auth.DisplayPrefixLength]
		}

		apiKey, err := authenticateAPIKey(c.Request.Context(), token, keyPrefix, apiKeyRepo)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authentication failed",
			})
			return
		}
		if apiKey == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
			return
		}

		// Update last-used timestamp asynchronously. This is intentionally fire-and-forget:
		// last-used tracking is best-effort — a failed update is not a correctness problem.
		// Making it synchronous would add a DB write to every authenticated request.
		// The 5-second timeout prevents leaked goroutines if the DB is temporarily unreachable.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = apiKeyRepo.UpdateLastUsed(ctx, apiKey.ID)
		}()

		c.Set(ContextSellerID, apiKey.SellerID)
		c.Set(ContextAPIKeyID, apiKey.ID)

		c.Next()
	}
}

// SellerID returns the authenticated seller's ID from the request context, or
// false when the request is unauthenticated.
func SellerID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextSellerID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// authenticateAPIKey attempts to authenticate an API key by prefix lookup and bcrypt validation
func authenticateAPIKey(ctx context.Context, providedKey, keyPrefix string, apiKeyRepo *repositories.APIKeyRepository) (*models.APIKey, error) {
	keys, err := apiKeyRepo.GetByDisplayPrefix(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}

	// Try to validate the provided key against each candidate
	for _, key := range keys {
		if auth.ValidateAPIKey(providedKey, key.KeyHash) {
			return key, nil
		}
	}

	return nil, nil
}
