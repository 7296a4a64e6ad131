// Package models - entry.go defines the Entry model representing one sellable template
// in the marketplace catalog, together with its append-only version history.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Entry represents a catalog entry (an "MVP"): one sellable software template
// with its current archive pointers, presentation metadata, publication status,
// and optional GitHub linkage.
type Entry struct {
	ID       string `db:"id" json:"id"`
	SellerID string `db:"seller_id" json:"seller_id"`
	Slug     string `db:"slug" json:"slug"`

	// Presentation metadata
	Title         string         `db:"title" json:"title"`
	Tagline       *string        `db:"tagline" json:"tagline,omitempty"`
	Description   *string        `db:"description" json:"description,omitempty"`
	Features      pq.StringArray `db:"features" json:"features"`
	TechStack     pq.StringArray `db:"tech_stack" json:"tech_stack"`
	Category      *string        `db:"category" json:"category,omitempty"`
	PreviewImages pq.StringArray `db:"preview_images" json:"preview_images"`
	LicenseTerms  *string        `db:"license_terms" json:"license_terms,omitempty"`
	AccessTier    *string        `db:"access_tier" json:"access_tier,omitempty"`
	PriceCents    *int64         `db:"price_cents" json:"price_cents,omitempty"`

	// Content pointers for the currently published archive
	ContentHash         *string `db:"content_hash" json:"content_hash,omitempty"`
	PreviousContentHash *string `db:"previous_content_hash" json:"previous_content_hash,omitempty"`
	OriginalFileName    *string `db:"original_file_name" json:"original_file_name,omitempty"`
	FileSize            int64   `db:"file_size" json:"file_size"`

	// Versioning
	VersionNumber  string         `db:"version_number" json:"version_number"`
	VersionHistory VersionHistory `db:"version_history" json:"version_history"`
	Changelog      *string        `db:"changelog" json:"changelog,omitempty"`

	// Publication status
	Status              EntryStatus `db:"status" json:"status"`
	LastProcessingError *string     `db:"last_processing_error" json:"last_processing_error,omitempty"`

	// GitHub linkage (optional)
	RepoOwner           *string `db:"repo_owner" json:"repo_owner,omitempty"`
	RepoName            *string `db:"repo_name" json:"repo_name,omitempty"`
	WebhookSecret       *string `db:"webhook_secret" json:"-"`
	LastSyncedCommitSHA *string `db:"last_synced_commit_sha" json:"last_synced_commit_sha,omitempty"`

	// Read-only counters maintained outside the pipeline
	DownloadCount int64    `db:"download_count" json:"download_count"`
	AverageRating *float64 `db:"average_rating" json:"average_rating,omitempty"`

	// Revision increments on every write; updates carry the revision they read
	// and fail with a conflict when it has moved underneath them.
	Revision int64 `db:"revision" json:"revision"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
}

// GitHubLinked reports whether the entry has a source repository attached.
func (e *Entry) GitHubLinked() bool {
	return e.RepoOwner != nil && *e.RepoOwner != "" && e.RepoName != nil && *e.RepoName != ""
}

// VersionSnapshot is an immutable record of a superseded version, created exactly
// once per version transition and never mutated afterwards.
type VersionSnapshot struct {
	VersionNumber string    `json:"version_number"`
	ContentHash   string    `json:"content_hash"`
	Changelog     string    `json:"changelog"`
	UploadedAt    time.Time `json:"uploaded_at"`
	FileSize      int64     `json:"file_size"`
}

// VersionHistory is the append-only list of superseded version snapshots,
// ordered newest-superseded first. It is stored as a JSONB column.
type VersionHistory []VersionSnapshot

// Prepend returns a new history with snap at the front, preserving the
// newest-superseded-first ordering. The receiver is not modified.
func (h VersionHistory) Prepend(snap VersionSnapshot) VersionHistory {
	out := make(VersionHistory, 0, len(h)+1)
	out = append(out, snap)
	out = append(out, h...)
	return out
}

// Value implements driver.Valuer so the history can be written to a JSONB column.
func (h VersionHistory) Value() (driver.Value, error) {
	if h == nil {
		h = VersionHistory{}
	}
	return json.Marshal(h)
}

// Scan implements sql.Scanner for reading the JSONB column.
func (h *VersionHistory) Scan(src interface{}) error {
	if src == nil {
		*h = VersionHistory{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into VersionHistory", src)
	}
	return json.Unmarshal(data, h)
}
