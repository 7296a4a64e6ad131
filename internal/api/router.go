// Package api wires together all HTTP routes for the marketplace backend.
//
// Route grouping philosophy:
//   - Buyer-facing catalog routes (/v1/entries/) are public: browsing, entry
//     detail, and downloads need no credentials, and only approved entries are
//     ever visible through them.
//   - Seller routes (/api/v1/) always require an API key and only operate on
//     entries the authenticated seller owns.
//   - The GitHub webhook endpoint authenticates per delivery via HMAC signature
//     rather than an API key.
package api

import (
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mvpmarket/mvpmarket/internal/api/apikeys"
	"github.com/mvpmarket/mvpmarket/internal/api/entries"
	"github.com/mvpmarket/mvpmarket/internal/api/webhooks"
	"github.com/mvpmarket/mvpmarket/internal/config"
	"github.com/mvpmarket/mvpmarket/internal/db/repositories"
	"github.com/mvpmarket/mvpmarket/internal/middleware"
	"github.com/mvpmarket/mvpmarket/internal/pin"
	"github.com/mvpmarket/mvpmarket/internal/scan"
	"github.com/mvpmarket/mvpmarket/internal/scm/github"
	"github.com/mvpmarket/mvpmarket/internal/services"
	"github.com/mvpmarket/mvpmarket/internal/storage"

	// Import storage backends to register them
	_ "github.com/mvpmarket/mvpmarket/internal/storage/azure"
	_ "github.com/mvpmarket/mvpmarket/internal/storage/gcs"
	_ "github.com/mvpmarket/mvpmarket/internal/storage/local"
	_ "github.com/mvpmarket/mvpmarket/internal/storage/s3"
)

// BackgroundServices holds resources that must be stopped during graceful
// shutdown. The caller (cmd/server) is responsible for calling Shutdown() when
// the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Two buckets: private archives and public preview images.
	archiveStorage, err := storage.NewStorage(&cfg.Storage.Archives, cfg.Server.GetPublicURL())
	if err != nil {
		log.Fatalf("Failed to initialize archive storage backend: %v", err)
	}
	previewStorage, err := storage.NewStorage(&cfg.Storage.Previews, cfg.Server.GetPublicURL())
	if err != nil {
		log.Fatalf("Failed to initialize preview storage backend: %v", err)
	}
	slog.Info("storage backends initialized",
		"archives", cfg.Storage.Archives.Backend, "previews", cfg.Storage.Previews.Backend)

	// Repositories
	entryRepo := repositories.NewEntryRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)

	// Services
	store := services.NewStoreWriter(archiveStorage, previewStorage, cfg.Download.SignedURLTTL)
	writer := services.NewEntryWriter(entryRepo, store)

	scanner := scan.NewClient(cfg.Scanner.URL, cfg.Scanner.Token)
	pinner := pin.NewClient(cfg.Pinning.Endpoint, cfg.Pinning.Token)
	processor := services.NewProcessor(entryRepo, store, scanner, pinner,
		cfg.Scanner.Timeout, cfg.Pinning.Timeout, slog.Default())

	// GitHub sync is optional: without App credentials the sync and webhook
	// endpoints report the integration as unavailable.
	var syncer *services.Syncer
	if cfg.GitHub.AppID != "" && cfg.GitHub.PrivateKeyFile != "" {
		appAuth, err := github.NewAppAuth(cfg.GitHub.AppID, cfg.GitHub.PrivateKeyFile, cfg.GitHub.APIBaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize GitHub App credentials: %v", err)
		}
		connector := github.NewConnector(cfg.GitHub.APIBaseURL, appAuth)
		syncer = services.NewSyncer(entryRepo, store, connector, processor, cfg.GitHub.Timeout, slog.Default())
		slog.Info("GitHub sync enabled", "app_id", cfg.GitHub.AppID)
	} else {
		slog.Info("GitHub sync disabled: no App credentials configured")
	}

	// Handlers
	entryHandler := entries.NewHandler(entryRepo, writer, processor, syncer, store)
	apiKeyHandler := apikeys.NewHandler(apiKeyRepo, cfg.Auth.APIKeys.Prefix)

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint (includes storage backend probes)
	router.GET("/ready", readinessHandler(db, archiveStorage, previewStorage))

	// API version
	router.GET("/version", versionHandler())

	// Rate limiters
	generalRateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig())
	uploadRateLimiter := middleware.NewRateLimiter(middleware.UploadRateLimitConfig())

	// A shared Redis budget replaces the per-instance bucket for public traffic
	// when Redis is configured; seller endpoints keep the in-process limiters.
	var publicRateLimit gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled && cfg.Security.RateLimiting.RedisAddr != "" {
		redisLimiter := middleware.NewRedisRateLimiter(
			cfg.Security.RateLimiting.RedisAddr,
			cfg.Security.RateLimiting.RedisPassword,
			cfg.Security.RateLimiting.RequestsPerMinute,
			cfg.Security.RateLimiting.Burst,
		)
		publicRateLimit = middleware.RedisRateLimitMiddleware(redisLimiter)
		slog.Info("rate limiting via Redis", "addr", cfg.Security.RateLimiting.RedisAddr)
	} else {
		publicRateLimit = middleware.RateLimitMiddleware(generalRateLimiter)
	}

	// Public catalog endpoints (no auth; approved entries only)
	v1 := router.Group("/v1/entries")
	v1.Use(publicRateLimit)
	{
		v1.GET("", entryHandler.ListEntries)
		v1.GET("/:slug", entryHandler.GetEntry)
		v1.GET("/:slug/download", entryHandler.DownloadEntry)
	}

	// Seller endpoints (API key auth, ownership enforced per entry)
	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.RateLimitMiddleware(generalRateLimiter))
	apiV1.Use(middleware.AuthMiddleware(apiKeyRepo))
	{
		apiV1.GET("/entries", entryHandler.ListOwnEntries)
		apiV1.POST("/entries",
			middleware.RateLimitMiddleware(uploadRateLimiter), // Stricter rate limit for uploads
			entryHandler.CreateEntry)
		apiV1.GET("/entries/:id", entryHandler.GetOwnEntry)
		apiV1.PATCH("/entries/:id", entryHandler.UpdateEntry)
		apiV1.DELETE("/entries/:id", entryHandler.ArchiveEntry)

		apiV1.POST("/entries/:id/versions",
			middleware.RateLimitMiddleware(uploadRateLimiter),
			entryHandler.PublishVersion)
		apiV1.POST("/entries/:id/retry", entryHandler.RetryProcessing)
		apiV1.POST("/entries/:id/sync", entryHandler.SyncEntry)

		apiV1.GET("/apikeys", apiKeyHandler.List)
		apiV1.POST("/apikeys", apiKeyHandler.Create)
		apiV1.DELETE("/apikeys/:id", apiKeyHandler.Revoke)
	}

	// Webhook endpoint (public, authentication via HMAC signature validation)
	if syncer != nil {
		webhookHandler := webhooks.NewGitHubWebhookHandler(entryRepo, syncer, slog.Default())
		router.POST("/webhooks/github", webhookHandler.HandlePush)
	}

	bg := &BackgroundServices{
		rateLimiters: []*middleware.RateLimiter{generalRateLimiter, uploadRateLimiter},
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database and both storage buckets.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: dependency not ready"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage buckets so
// that a Kubernetes readiness gate fails when uploads/downloads would error.
func readinessHandler(db *sql.DB, archiveStorage, previewStorage storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		// Check database connection
		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Check storage buckets — probe with a known-absent sentinel path.
		// Exists() exercises authentication and network connectivity without
		// creating any state.
		buckets := map[string]storage.Storage{
			"archive_storage": archiveStorage,
			"preview_storage": previewStorage,
		}
		for name, backend := range buckets {
			if _, err := backend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
				checks[name] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  name + " not ready",
				})
				return
			}
			checks[name] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.Any("request_id", requestID),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
