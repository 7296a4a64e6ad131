// entry_writer.go implements catalog entry lifecycle operations: creation, new
// version publication, metadata updates, and soft deletion. All writes go through
// the repository's revision guard, so two concurrent edits of the same entry
// cannot silently overwrite each other.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mvpmarket/mvpmarket/internal/catalog"
	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/validation"
)

var (
	// ErrEntryNotFound is returned when the target entry does not exist.
	ErrEntryNotFound = errors.New("entry not found")

	// ErrNotLinked is returned when a GitHub operation targets an entry with no
	// linked repository.
	ErrNotLinked = errors.New("entry has no linked repository")
)

// ValidationError reports a rejected upload with a human-readable reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// EntryStore is the repository surface the services need. Satisfied by
// *repositories.EntryRepository.
type EntryStore interface {
	Create(ctx context.Context, e *models.Entry) error
	GetByID(ctx context.Context, id string) (*models.Entry, error)
	GetByRepo(ctx context.Context, owner, name string) (*models.Entry, error)
	Update(ctx context.Context, e *models.Entry) error
	SetStatus(ctx context.Context, e *models.Entry, next models.EntryStatus) error
}

// Upload pairs a file's declared metadata with its content stream.
type Upload struct {
	Meta    validation.FileMeta
	Content io.Reader
}

// EntryWriter owns catalog entry lifecycle operations.
type EntryWriter struct {
	entries EntryStore
	store   *StoreWriter
	now     func() time.Time
}

// NewEntryWriter creates an entry writer.
func NewEntryWriter(entries EntryStore, store *StoreWriter) *EntryWriter {
	return &EntryWriter{
		entries: entries,
		store:   store,
		now:     time.Now,
	}
}

// CreateEntryInput carries everything needed to create a new catalog entry.
type CreateEntryInput struct {
	SellerID     string
	Title        string
	Tagline      *string
	Description  *string
	Features     []string
	TechStack    []string
	Category     *string
	LicenseTerms *string
	AccessTier   *string
	PriceCents   *int64
	Changelog    *string

	Archive  Upload
	Previews []Upload

	// Optional GitHub linkage
	RepoOwner     *string
	RepoName      *string
	WebhookSecret *string
}

// CreateEntry validates the uploads, stores them, and creates the entry at
// version 1.0.0 in pending_review. The caller is responsible for kicking off
// pipeline processing afterwards.
func (w *EntryWriter) CreateEntry(ctx context.Context, in CreateEntryInput) (*models.Entry, error) {
	if r := validation.ValidateArchive(in.Archive.Meta); !r.Valid {
		return nil, &ValidationError{Reason: r.Reason}
	}
	for _, img := range in.Previews {
		if r := validation.ValidateImage(img.Meta); !r.Valid {
			return nil, &ValidationError{Reason: r.Reason}
		}
	}

	slug := catalog.Slug(in.Title, w.now())

	archiveDir := catalog.ArchiveDir(slug, "1.0.0", false)
	stored, err := w.store.StoreArchive(ctx, archiveDir, in.Archive.Meta.Name, in.Archive.Content, in.Archive.Meta.Size)
	if err != nil {
		return nil, err
	}

	previewURLs := make([]string, 0, len(in.Previews))
	for _, img := range in.Previews {
		p, err := w.store.StorePreview(ctx, catalog.PreviewDir(slug), img.Meta.Name, img.Content, img.Meta.Size)
		if err != nil {
			return nil, err
		}
		previewURLs = append(previewURLs, p.URL)
	}

	fileName := in.Archive.Meta.Name
	entry := &models.Entry{
		SellerID:         in.SellerID,
		Slug:             slug,
		Title:            in.Title,
		Tagline:          in.Tagline,
		Description:      in.Description,
		Features:         in.Features,
		TechStack:        in.TechStack,
		Category:         in.Category,
		PreviewImages:    previewURLs,
		LicenseTerms:     in.LicenseTerms,
		AccessTier:       in.AccessTier,
		PriceCents:       in.PriceCents,
		ContentHash:      &stored.Hash,
		OriginalFileName: &fileName,
		FileSize:         stored.Size,
		VersionNumber:    "1.0.0",
		VersionHistory:   models.VersionHistory{},
		Changelog:        in.Changelog,
		Status:           models.StatusPendingReview,
		RepoOwner:        in.RepoOwner,
		RepoName:         in.RepoName,
		WebhookSecret:    in.WebhookSecret,
	}

	if err := w.entries.Create(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// PublishNewVersionInput carries a replacement archive, how to version it, and
// an optional metadata patch applied in the same write.
type PublishNewVersionInput struct {
	// Version, when set, becomes the new version number verbatim. It must be a
	// valid semantic version strictly above the current one so the version
	// history stays ordered. When nil, the current version is bumped by
	// Increment instead.
	Version   *string
	Increment validation.IncrementKind
	Changelog *string
	Metadata  MetadataPatch
	Archive   Upload
}

// PublishNewVersion supersedes the current version: the outgoing version is
// snapshotted onto the front of the history, the content hash pair shuffles
// (current becomes previous), and the entry drops back to pending_review so the
// new archive goes through the pipeline again. Listing metadata and preview
// images can be patched in the same operation.
func (w *EntryWriter) PublishNewVersion(ctx context.Context, entryID string, in PublishNewVersionInput) (*models.Entry, error) {
	entry, err := w.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}

	if r := validation.ValidateArchive(in.Archive.Meta); !r.Valid {
		return nil, &ValidationError{Reason: r.Reason}
	}

	newVersion, err := w.nextVersion(entry.VersionNumber, in)
	if err != nil {
		return nil, err
	}

	dir := catalog.ArchiveDir(entry.Slug, newVersion, true)
	stored, err := w.store.StoreArchive(ctx, dir, in.Archive.Meta.Name, in.Archive.Content, in.Archive.Meta.Size)
	if err != nil {
		return nil, err
	}

	snapshot := models.VersionSnapshot{
		VersionNumber: entry.VersionNumber,
		ContentHash:   derefString(entry.ContentHash),
		Changelog:     derefString(entry.Changelog),
		UploadedAt:    w.now(),
		FileSize:      entry.FileSize,
	}
	entry.VersionHistory = entry.VersionHistory.Prepend(snapshot)

	fileName := in.Archive.Meta.Name
	entry.PreviousContentHash = entry.ContentHash
	entry.ContentHash = &stored.Hash
	entry.OriginalFileName = &fileName
	entry.FileSize = stored.Size
	entry.VersionNumber = newVersion
	entry.Changelog = in.Changelog
	entry.Status = models.StatusPendingReview
	entry.LastProcessingError = nil

	if err := w.applyMetadataPatch(ctx, entry, in.Metadata); err != nil {
		return nil, err
	}

	if err := w.entries.Update(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// nextVersion resolves the new version number for a publish: the caller's
// explicit version when given, otherwise an increment of the current one.
func (w *EntryWriter) nextVersion(current string, in PublishNewVersionInput) (string, error) {
	if in.Version == nil {
		v, err := validation.IncrementVersion(current, in.Increment)
		if err != nil {
			return "", fmt.Errorf("failed to increment version: %w", err)
		}
		return v, nil
	}

	if err := validation.ValidateSemver(*in.Version); err != nil {
		return "", &ValidationError{Reason: fmt.Sprintf("invalid version number %q", *in.Version)}
	}
	cmp, err := validation.CompareSemver(*in.Version, current)
	if err != nil {
		return "", &ValidationError{Reason: fmt.Sprintf("invalid version number %q", *in.Version)}
	}
	if cmp <= 0 {
		return "", &ValidationError{Reason: fmt.Sprintf("version %s does not supersede %s", *in.Version, current)}
	}
	return *in.Version, nil
}

// MetadataPatch is a partial listing update; nil fields are left unchanged.
// PreviewImages distinguishes nil (keep current images) from an empty slice
// (clear all images); NewPreviews are validated, stored, and appended.
type MetadataPatch struct {
	Title        *string
	Tagline      *string
	Description  *string
	Features     *[]string
	TechStack    *[]string
	Category     *string
	LicenseTerms *string
	AccessTier   *string
	PriceCents   *int64
	Changelog    *string

	PreviewImages *[]string
	NewPreviews   []Upload
}

// UpdateEntryInput is a metadata patch with an optional in-place archive swap.
type UpdateEntryInput struct {
	MetadataPatch

	// Archive, when set, replaces the current version's archive in place. This
	// does not snapshot the old version and does not reset status — republishing
	// under a new version number is PublishNewVersion's job.
	Archive *Upload
}

// applyMetadataPatch folds a patch into the entry, storing any new preview
// images as it goes.
func (w *EntryWriter) applyMetadataPatch(ctx context.Context, entry *models.Entry, in MetadataPatch) error {
	if in.Title != nil {
		entry.Title = *in.Title
	}
	if in.Tagline != nil {
		entry.Tagline = in.Tagline
	}
	if in.Description != nil {
		entry.Description = in.Description
	}
	if in.Features != nil {
		entry.Features = *in.Features
	}
	if in.TechStack != nil {
		entry.TechStack = *in.TechStack
	}
	if in.Category != nil {
		entry.Category = in.Category
	}
	if in.LicenseTerms != nil {
		entry.LicenseTerms = in.LicenseTerms
	}
	if in.AccessTier != nil {
		entry.AccessTier = in.AccessTier
	}
	if in.PriceCents != nil {
		entry.PriceCents = in.PriceCents
	}
	if in.Changelog != nil {
		entry.Changelog = in.Changelog
	}

	if in.PreviewImages != nil {
		entry.PreviewImages = *in.PreviewImages
	}
	for _, img := range in.NewPreviews {
		if r := validation.ValidateImage(img.Meta); !r.Valid {
			return &ValidationError{Reason: r.Reason}
		}
		p, err := w.store.StorePreview(ctx, catalog.PreviewDir(entry.Slug), img.Meta.Name, img.Content, img.Meta.Size)
		if err != nil {
			return err
		}
		entry.PreviewImages = append(entry.PreviewImages, p.URL)
	}
	return nil
}

// UpdateEntry applies a metadata patch. Identity, versioning, and pipeline
// fields (slug, seller, version number, history, status, revision, counters)
// are not patchable through this path.
func (w *EntryWriter) UpdateEntry(ctx context.Context, entryID string, in UpdateEntryInput) (*models.Entry, error) {
	entry, err := w.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}

	if err := w.applyMetadataPatch(ctx, entry, in.MetadataPatch); err != nil {
		return nil, err
	}

	if in.Archive != nil {
		if r := validation.ValidateArchive(in.Archive.Meta); !r.Valid {
			return nil, &ValidationError{Reason: r.Reason}
		}

		hasPrior := entry.PreviousContentHash != nil && *entry.PreviousContentHash != ""
		dir := catalog.ArchiveDir(entry.Slug, entry.VersionNumber, hasPrior)
		stored, err := w.store.StoreArchive(ctx, dir, in.Archive.Meta.Name, in.Archive.Content, in.Archive.Meta.Size)
		if err != nil {
			return nil, err
		}

		fileName := in.Archive.Meta.Name
		entry.ContentHash = &stored.Hash
		entry.OriginalFileName = &fileName
		entry.FileSize = stored.Size
	}

	if err := w.entries.Update(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// Archive soft-deletes an entry by moving it to the terminal archived status.
func (w *EntryWriter) Archive(ctx context.Context, entryID string) error {
	entry, err := w.entries.GetByID(ctx, entryID)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrEntryNotFound
	}

	return w.entries.SetStatus(ctx, entry, models.StatusArchived)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
