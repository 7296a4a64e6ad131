// entry_repository.go implements EntryRepository, providing database queries for catalog
// entry CRUD, status transitions, and public catalog search. All full-row writes are
// guarded by the entry revision so concurrent updates fail instead of silently
// overwriting each other.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/mvpmarket/mvpmarket/internal/db/models"
)

// ErrRevisionConflict is returned when an update carries a revision that no longer
// matches the stored row, meaning another writer got there first. Callers should
// re-read the entry and retry or surface a 409.
var ErrRevisionConflict = errors.New("entry was modified by another request")

// ErrInvalidTransition is returned when a status change is not allowed by the
// publication state machine.
var ErrInvalidTransition = errors.New("invalid status transition")

// entryColumns is the canonical SELECT column list; scanEntry must stay in sync.
const entryColumns = `
	id, seller_id, slug, title, tagline, description, features, tech_stack,
	category, preview_images, license_terms, access_tier, price_cents,
	content_hash, previous_content_hash, original_file_name, file_size,
	version_number, version_history, changelog, status, last_processing_error,
	repo_owner, repo_name, webhook_secret, last_synced_commit_sha,
	download_count, average_rating, revision, created_at, updated_at, published_at`

// EntryRepository handles database operations for catalog entries
type EntryRepository struct {
	db *sql.DB
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(db *sql.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner, e *models.Entry) error {
	return row.Scan(
		&e.ID,
		&e.SellerID,
		&e.Slug,
		&e.Title,
		&e.Tagline,
		&e.Description,
		&e.Features,
		&e.TechStack,
		&e.Category,
		&e.PreviewImages,
		&e.LicenseTerms,
		&e.AccessTier,
		&e.PriceCents,
		&e.ContentHash,
		&e.PreviousContentHash,
		&e.OriginalFileName,
		&e.FileSize,
		&e.VersionNumber,
		&e.VersionHistory,
		&e.Changelog,
		&e.Status,
		&e.LastProcessingError,
		&e.RepoOwner,
		&e.RepoName,
		&e.WebhookSecret,
		&e.LastSyncedCommitSHA,
		&e.DownloadCount,
		&e.AverageRating,
		&e.Revision,
		&e.CreatedAt,
		&e.UpdatedAt,
		&e.PublishedAt,
	)
}

// Create inserts a new catalog entry and populates its generated fields.
func (r *EntryRepository) Create(ctx context.Context, e *models.Entry) error {
	query := `
		INSERT INTO catalog_entries
		  (seller_id, slug, title, tagline, description, features, tech_stack,
		   category, preview_images, license_terms, access_tier, price_cents,
		   content_hash, previous_content_hash, original_file_name, file_size,
		   version_number, version_history, changelog, status, last_processing_error,
		   repo_owner, repo_name, webhook_secret, last_synced_commit_sha)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
		RETURNING id, revision, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		e.SellerID,
		e.Slug,
		e.Title,
		e.Tagline,
		e.Description,
		e.Features,
		e.TechStack,
		e.Category,
		e.PreviewImages,
		e.LicenseTerms,
		e.AccessTier,
		e.PriceCents,
		e.ContentHash,
		e.PreviousContentHash,
		e.OriginalFileName,
		e.FileSize,
		e.VersionNumber,
		e.VersionHistory,
		e.Changelog,
		e.Status,
		e.LastProcessingError,
		e.RepoOwner,
		e.RepoName,
		e.WebhookSecret,
		e.LastSyncedCommitSHA,
	).Scan(&e.ID, &e.Revision, &e.CreatedAt, &e.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}

	return nil
}

// GetByID retrieves an entry by its UUID
func (r *EntryRepository) GetByID(ctx context.Context, id string) (*models.Entry, error) {
	query := `SELECT` + entryColumns + ` FROM catalog_entries WHERE id = $1`

	e := &models.Entry{}
	err := scanEntry(r.db.QueryRowContext(ctx, query, id), e)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get entry by ID: %w", err)
	}

	return e, nil
}

// GetBySlug retrieves an entry by its slug
func (r *EntryRepository) GetBySlug(ctx context.Context, slug string) (*models.Entry, error) {
	query := `SELECT` + entryColumns + ` FROM catalog_entries WHERE slug = $1`

	e := &models.Entry{}
	err := scanEntry(r.db.QueryRowContext(ctx, query, slug), e)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get entry by slug: %w", err)
	}

	return e, nil
}

// GetByRepo retrieves the entry linked to a GitHub repository. Webhook delivery
// identifies entries this way.
func (r *EntryRepository) GetByRepo(ctx context.Context, owner, name string) (*models.Entry, error) {
	query := `SELECT` + entryColumns + ` FROM catalog_entries WHERE repo_owner = $1 AND repo_name = $2`

	e := &models.Entry{}
	err := scanEntry(r.db.QueryRowContext(ctx, query, owner, name), e)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get entry by repository: %w", err)
	}

	return e, nil
}

// Update writes the full mutable row. The WHERE clause matches the id and the
// revision the caller read, and additionally requires the stored status to have
// an edge to the incoming status; a full-row write can therefore never move an
// entry along an edge the machine does not define (in particular, archived rows
// cannot be resurrected by a republish). Zero rows matched is classified as a
// revision conflict, an invalid transition, or a deleted row. On success the
// entry's Revision and UpdatedAt are refreshed in place.
func (r *EntryRepository) Update(ctx context.Context, e *models.Entry) error {
	query := `
		UPDATE catalog_entries
		SET title = $1, tagline = $2, description = $3, features = $4, tech_stack = $5,
		    category = $6, preview_images = $7, license_terms = $8, access_tier = $9,
		    price_cents = $10, content_hash = $11, previous_content_hash = $12,
		    original_file_name = $13, file_size = $14, version_number = $15,
		    version_history = $16, changelog = $17, status = $18,
		    last_processing_error = $19, repo_owner = $20, repo_name = $21,
		    webhook_secret = $22, last_synced_commit_sha = $23, published_at = $24,
		    revision = revision + 1, updated_at = NOW()
		WHERE id = $25 AND revision = $26 AND status = ANY($27)
		RETURNING revision, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		e.Title,
		e.Tagline,
		e.Description,
		e.Features,
		e.TechStack,
		e.Category,
		e.PreviewImages,
		e.LicenseTerms,
		e.AccessTier,
		e.PriceCents,
		e.ContentHash,
		e.PreviousContentHash,
		e.OriginalFileName,
		e.FileSize,
		e.VersionNumber,
		e.VersionHistory,
		e.Changelog,
		e.Status,
		e.LastProcessingError,
		e.RepoOwner,
		e.RepoName,
		e.WebhookSecret,
		e.LastSyncedCommitSHA,
		e.PublishedAt,
		e.ID,
		e.Revision,
		pq.Array(statusStrings(models.TransitionsInto(e.Status))),
	).Scan(&e.Revision, &e.UpdatedAt)

	if err == sql.ErrNoRows {
		return r.classifyMissedWrite(ctx, e.ID, e.Revision, e.Status)
	}
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	return nil
}

func statusStrings(statuses []models.EntryStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// SetStatus transitions an entry's publication status, validating the move
// against the state machine and guarding on revision like Update. The
// processing error message and published timestamp travel with the status
// since they are only meaningful relative to it.
func (r *EntryRepository) SetStatus(ctx context.Context, e *models.Entry, next models.EntryStatus) error {
	if !e.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
	}

	query := `
		UPDATE catalog_entries
		SET status = $1, last_processing_error = $2, published_at = $3,
		    revision = revision + 1, updated_at = NOW()
		WHERE id = $4 AND revision = $5
		RETURNING revision, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		next,
		e.LastProcessingError,
		e.PublishedAt,
		e.ID,
		e.Revision,
	).Scan(&e.Revision, &e.UpdatedAt)

	if err == sql.ErrNoRows {
		return r.classifyMissedWrite(ctx, e.ID, e.Revision, next)
	}
	if err != nil {
		return fmt.Errorf("failed to set entry status: %w", err)
	}

	e.Status = next
	return nil
}

// classifyMissedWrite works out why a guarded UPDATE matched nothing: the row
// is gone, another writer bumped the revision first, or the stored status has
// no edge to the requested one.
func (r *EntryRepository) classifyMissedWrite(ctx context.Context, id string, revision int64, next models.EntryStatus) error {
	var status models.EntryStatus
	var storedRevision int64
	err := r.db.QueryRowContext(ctx,
		`SELECT status, revision FROM catalog_entries WHERE id = $1`, id,
	).Scan(&status, &storedRevision)
	if err == sql.ErrNoRows {
		return fmt.Errorf("entry not found")
	}
	if err != nil {
		return fmt.Errorf("failed to classify missed write: %w", err)
	}
	if storedRevision != revision {
		return ErrRevisionConflict
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, status, next)
}

// SearchFilter narrows a catalog search.
type SearchFilter struct {
	Query        string
	Category     string
	SellerID     string
	ApprovedOnly bool
	Limit        int
	Offset       int
}

// Search returns entries matching the filter plus the total match count.
// Public listings set ApprovedOnly so entries mid-pipeline stay invisible.
func (r *EntryRepository) Search(ctx context.Context, f SearchFilter) ([]*models.Entry, int, error) {
	whereClause := "WHERE 1=1"
	var args []interface{}
	argCount := 0

	if f.ApprovedOnly {
		argCount++
		whereClause += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, models.StatusApproved)
	}
	if f.SellerID != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND seller_id = $%d", argCount)
		args = append(args, f.SellerID)
	}
	if f.Query != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND (title ILIKE $%d OR tagline ILIKE $%d OR description ILIKE $%d)", argCount, argCount, argCount)
		args = append(args, "%"+f.Query+"%")
	}
	if f.Category != "" {
		argCount++
		whereClause += fmt.Sprintf(" AND category = $%d", argCount)
		args = append(args, f.Category)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM catalog_entries %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count entries: %w", err)
	}

	listQuery := fmt.Sprintf(`SELECT%s
		FROM catalog_entries
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, entryColumns, whereClause, argCount+1, argCount+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.Entry
	for rows.Next() {
		e := &models.Entry{}
		if err := scanEntry(rows, e); err != nil {
			return nil, 0, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating entries: %w", err)
	}

	return entries, total, nil
}

// IncrementDownloadCount increments the download counter for an entry. The
// counter sits outside the revision guard; it never participates in pipeline
// writes and losing an increment to a concurrent full-row update is acceptable.
func (r *EntryRepository) IncrementDownloadCount(ctx context.Context, id string) error {
	query := `
		UPDATE catalog_entries
		SET download_count = download_count + 1
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}

	return nil
}
