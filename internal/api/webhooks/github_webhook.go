// Package webhooks handles inbound GitHub webhook deliveries. A push to the
// default branch of a repository linked to a catalog entry triggers an
// asynchronous sync: the new content is fetched, stored, published as a new
// version, and run through the publication pipeline. Deliveries are validated
// against the entry's per-repository HMAC secret before any processing.
package webhooks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mvpmarket/mvpmarket/internal/db/repositories"
	"github.com/mvpmarket/mvpmarket/internal/safego"
	"github.com/mvpmarket/mvpmarket/internal/scm"
	"github.com/mvpmarket/mvpmarket/internal/scm/github"
	"github.com/mvpmarket/mvpmarket/internal/services"
	"github.com/mvpmarket/mvpmarket/internal/telemetry"
)

// syncTimeout bounds one background sync run (GitHub fetch + storage write +
// pipeline).
const syncTimeout = 30 * time.Minute

// GitHubWebhookHandler processes push deliveries for linked repositories.
type GitHubWebhookHandler struct {
	entries *repositories.EntryRepository
	syncer  *services.Syncer
	logger  *slog.Logger
}

// NewGitHubWebhookHandler creates a webhook handler.
func NewGitHubWebhookHandler(entries *repositories.EntryRepository, syncer *services.Syncer, logger *slog.Logger) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{
		entries: entries,
		syncer:  syncer,
		logger:  logger,
	}
}

// @Summary      Receive GitHub webhook
// @Description  Receives push deliveries from GitHub. The payload's HMAC-SHA256 signature (X-Hub-Signature-256) is verified against the linked entry's webhook secret before anything else happens. Pushes to the default branch trigger an asynchronous repository sync; pushes to other refs and branch deletions are acknowledged and ignored.
// @Tags         Webhooks
// @Accept       json
// @Produce      json
// @Success      202  {object}  map[string]interface{}  "message: sync scheduled"
// @Success      200  {object}  map[string]interface{}  "message: ignored (non-default ref, deletion, or non-push event)"
// @Failure      400  {object}  map[string]interface{}  "Malformed payload"
// @Failure      401  {object}  map[string]interface{}  "Signature verification failed"
// @Failure      404  {object}  map[string]interface{}  "No entry linked to this repository"
// @Router       /webhooks/github [post]
func (h *GitHubWebhookHandler) HandlePush(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read payload"})
		return
	}

	// Only push events carry content changes; everything else (ping, star,
	// installation) is acknowledged without work.
	if event := c.GetHeader("X-GitHub-Event"); event != "" && event != "push" {
		c.JSON(http.StatusOK, gin.H{"message": "ignored", "event": event})
		return
	}

	push, err := github.ParsePushEvent(payload)
	if err != nil {
		if errors.Is(err, scm.ErrWebhookPayloadInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed push payload"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse payload"})
		return
	}

	entry, err := h.entries.GetByRepo(c.Request.Context(), push.RepoOwner, push.RepoName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up repository link"})
		return
	}
	if entry == nil || entry.WebhookSecret == nil || *entry.WebhookSecret == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no entry linked to this repository"})
		return
	}

	if !github.VerifySignature(payload, c.GetHeader("X-Hub-Signature-256"), *entry.WebhookSecret) {
		h.logger.Warn("webhook signature verification failed",
			"repo", push.RepoOwner+"/"+push.RepoName, "entry_id", entry.ID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		return
	}

	if push.Deleted || !push.DefaultRef {
		c.JSON(http.StatusOK, gin.H{"message": "ignored", "ref": push.Ref})
		return
	}

	owner, name := push.RepoOwner, push.RepoName
	logger := h.logger
	syncer := h.syncer
	safego.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()

		result, err := syncer.SyncByRepo(ctx, owner, name)
		switch {
		case err != nil:
			telemetry.WebhookSyncsTotal.WithLabelValues("failure").Inc()
			logger.Error("webhook sync failed", "repo", owner+"/"+name, "error", err)
		case result.Synced:
			telemetry.WebhookSyncsTotal.WithLabelValues("synced").Inc()
		default:
			telemetry.WebhookSyncsTotal.WithLabelValues("noop").Inc()
		}
	})

	c.JSON(http.StatusAccepted, gin.H{"message": "sync scheduled"})
}
