// processor.go drives the publication pipeline: security scan, then content
// pinning, then approval. Every failure mode lands the entry in a retryable
// failure status with the cause recorded, so no entry can get stuck in
// pending_review with nothing to show for it.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mvpmarket/mvpmarket/internal/catalog"
	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/telemetry"
	"github.com/mvpmarket/mvpmarket/pkg/checksum"
)

// Scanner is the security-scan client surface. Satisfied by *scan.Client.
type Scanner interface {
	Scan(ctx context.Context, entryID, storagePath string) (ok bool, reason string, err error)
}

// Pinner is the content-pinning client surface. Satisfied by *pin.Client.
type Pinner interface {
	Pin(ctx context.Context, fileName string, content io.Reader) (string, error)
}

// Processor runs entries through the scan-and-pin pipeline.
type Processor struct {
	entries EntryStore
	store   *StoreWriter
	scanner Scanner
	pinner  Pinner

	scanTimeout time.Duration
	pinTimeout  time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor creates a pipeline processor. Each remote step runs under its own
// deadline so a hung scanner or pinning service cannot park an entry in
// pending_review indefinitely.
func NewProcessor(entries EntryStore, store *StoreWriter, scanner Scanner, pinner Pinner, scanTimeout, pinTimeout time.Duration, logger *slog.Logger) *Processor {
	return &Processor{
		entries:     entries,
		store:       store,
		scanner:     scanner,
		pinner:      pinner,
		scanTimeout: scanTimeout,
		pinTimeout:  pinTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Process runs one entry through the pipeline. The entry must be in
// pending_review. Outcomes:
//
//   - scan rejects          → scan_failed, scanner's reason recorded
//   - pinning fails         → ipfs_pin_failed, cause recorded
//   - both succeed          → approved, content hash set to the pin identifier,
//     published_at stamped, error cleared
//
// Any error not attributable to the scan step (including a panic in this
// method) downgrades the entry to ipfs_pin_failed with the message recorded, so
// the seller can always retry.
func (p *Processor) Process(ctx context.Context, entryID string) (err error) {
	entry, err := p.entries.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrEntryNotFound
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic", "entry_id", entryID, "panic", r)
			err = p.fail(ctx, entry, models.StatusPinFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()

	storagePath, err := catalog.ArchivePath(entry)
	if err != nil {
		return p.fail(ctx, entry, models.StatusPinFailed, fmt.Sprintf("cannot resolve archive location: %v", err))
	}

	// Step 1: security scan
	scanCtx, cancel := context.WithTimeout(ctx, p.scanTimeout)
	scanStart := time.Now()
	ok, reason, err := p.scanner.Scan(scanCtx, entry.ID, storagePath)
	telemetry.PipelineStepDuration.WithLabelValues("scan").Observe(time.Since(scanStart).Seconds())
	cancel()
	if err != nil {
		telemetry.PipelineStepsTotal.WithLabelValues("scan", "failure").Inc()
		return p.fail(ctx, entry, models.StatusScanFailed, fmt.Sprintf("scan did not complete: %v", err))
	}
	if !ok {
		telemetry.PipelineStepsTotal.WithLabelValues("scan", "failure").Inc()
		return p.fail(ctx, entry, models.StatusScanFailed, reason)
	}
	telemetry.PipelineStepsTotal.WithLabelValues("scan", "success").Inc()

	// Step 2: verify the stored archive still matches the hash recorded at
	// upload time. Catches storage-side corruption before the bytes get pinned.
	if entry.ContentHash != nil && *entry.ContentHash != "" {
		archive, err := p.store.OpenArchive(ctx, storagePath)
		if err != nil {
			return p.fail(ctx, entry, models.StatusPinFailed, fmt.Sprintf("cannot read archive: %v", err))
		}
		match, err := checksum.VerifySHA256(archive, *entry.ContentHash)
		_ = archive.Close()
		if err != nil {
			return p.fail(ctx, entry, models.StatusPinFailed, fmt.Sprintf("cannot verify archive: %v", err))
		}
		if !match {
			return p.fail(ctx, entry, models.StatusPinFailed, "archive integrity check failed: stored content does not match recorded hash")
		}
	}

	// Step 3: pin the archive content
	archive, err := p.store.OpenArchive(ctx, storagePath)
	if err != nil {
		return p.fail(ctx, entry, models.StatusPinFailed, fmt.Sprintf("cannot read archive: %v", err))
	}

	pinCtx, cancel := context.WithTimeout(ctx, p.pinTimeout)
	pinStart := time.Now()
	identifier, err := p.pinner.Pin(pinCtx, fileNameOf(entry), archive)
	telemetry.PipelineStepDuration.WithLabelValues("pin").Observe(time.Since(pinStart).Seconds())
	cancel()
	_ = archive.Close()
	if err != nil {
		telemetry.PipelineStepsTotal.WithLabelValues("pin", "failure").Inc()
		return p.fail(ctx, entry, models.StatusPinFailed, err.Error())
	}
	telemetry.PipelineStepsTotal.WithLabelValues("pin", "success").Inc()

	// Success: the pin identifier becomes the durable content hash.
	now := p.now()
	entry.ContentHash = &identifier
	entry.LastProcessingError = nil
	entry.PublishedAt = &now
	entry.Status = models.StatusApproved
	if err := p.entries.Update(ctx, entry); err != nil {
		return err
	}

	p.logger.Info("entry approved", "entry_id", entry.ID, "slug", entry.Slug, "version", entry.VersionNumber, "content_hash", identifier)
	return nil
}

// Retry re-runs the pipeline for an entry stuck in a retryable failure status.
// The failure record is cleared and the entry re-enters pending_review before
// processing starts, so a fresh failure gets a fresh message.
func (p *Processor) Retry(ctx context.Context, entryID string) error {
	entry, err := p.entries.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrEntryNotFound
	}

	if !entry.Status.Retryable() {
		return fmt.Errorf("entry in status %q cannot be retried", entry.Status)
	}

	entry.LastProcessingError = nil
	if err := p.entries.SetStatus(ctx, entry, models.StatusPendingReview); err != nil {
		return err
	}

	return p.Process(ctx, entryID)
}

// fail records a pipeline failure: the entry moves to status with the message
// in last_processing_error. The remote service's message is stored verbatim so
// the seller sees exactly what the scanner or pinner said.
func (p *Processor) fail(ctx context.Context, entry *models.Entry, status models.EntryStatus, message string) error {
	p.logger.Warn("pipeline step failed", "entry_id", entry.ID, "status", status, "reason", message)

	entry.LastProcessingError = &message
	if err := p.entries.SetStatus(ctx, entry, status); err != nil {
		return fmt.Errorf("failed to record pipeline failure: %w", err)
	}
	return nil
}

func fileNameOf(e *models.Entry) string {
	if e.OriginalFileName != nil && *e.OriginalFileName != "" {
		return *e.OriginalFileName
	}
	return catalog.GitHubArchiveName
}
