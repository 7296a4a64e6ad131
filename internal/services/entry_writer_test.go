package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/db/repositories"
	"github.com/mvpmarket/mvpmarket/internal/validation"
)

func archiveUpload(name, content string) Upload {
	return Upload{
		Meta: validation.FileMeta{
			Name:        name,
			Size:        validation.MinArchiveSize,
			ContentType: "application/zip",
		},
		Content: strings.NewReader(content),
	}
}

func previewUpload(name, content string) Upload {
	return Upload{
		Meta: validation.FileMeta{
			Name:        name,
			Size:        int64(len(content)),
			ContentType: "image/png",
		},
		Content: strings.NewReader(content),
	}
}

func strp(s string) *string { return &s }

func TestCreateEntry(t *testing.T) {
	entries := newFakeEntryStore()
	archives := newMemStorage()
	previews := newMemStorage()
	w := NewEntryWriter(entries, newTestStoreWriter(archives, previews))

	entry, err := w.CreateEntry(context.Background(), CreateEntryInput{
		SellerID: "seller-1",
		Title:    "SaaS Starter Kit",
		Tagline:  strp("launch faster"),
		Archive:  archiveUpload("kit.zip", "zip-bytes"),
		Previews: []Upload{previewUpload("shot1.png", "png-1"), previewUpload("shot2.png", "png-2")},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "seller-1", entry.SellerID)
	assert.Equal(t, "1.0.0", entry.VersionNumber)
	assert.Equal(t, models.StatusPendingReview, entry.Status)
	assert.Empty(t, entry.VersionHistory)
	assert.True(t, strings.HasPrefix(entry.Slug, "saas-starter-kit-"), "slug = %s", entry.Slug)

	// The content hash is the SHA-256 of the bytes actually stored.
	require.NotNil(t, entry.ContentHash)
	assert.Equal(t, sha256Hex([]byte("zip-bytes")), *entry.ContentHash)
	require.NotNil(t, entry.OriginalFileName)
	assert.Equal(t, "kit.zip", *entry.OriginalFileName)

	// First publish lands directly under the entry base directory.
	_, stored := archives.files["mvps/"+entry.Slug+"/kit.zip"]
	assert.True(t, stored, "archive not at first-publish path; files: %v", keys(archives.files))

	// Previews land in the public bucket with resolvable URLs.
	require.Len(t, entry.PreviewImages, 2)
	assert.Equal(t, "https://cdn.test/mvps/"+entry.Slug+"/previews/shot1.png", entry.PreviewImages[0])
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestCreateEntry_InvalidArchive(t *testing.T) {
	w := NewEntryWriter(newFakeEntryStore(), newTestStoreWriter(newMemStorage(), newMemStorage()))

	up := archiveUpload("kit.exe", "bytes")
	up.Meta.ContentType = "application/x-msdownload"
	_, err := w.CreateEntry(context.Background(), CreateEntryInput{SellerID: "s", Title: "X", Archive: up})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateEntry_InvalidPreview(t *testing.T) {
	archives := newMemStorage()
	w := NewEntryWriter(newFakeEntryStore(), newTestStoreWriter(archives, newMemStorage()))

	bad := previewUpload("shot.pdf", "pdf")
	bad.Meta.ContentType = "application/pdf"
	_, err := w.CreateEntry(context.Background(), CreateEntryInput{
		SellerID: "s",
		Title:    "X",
		Archive:  archiveUpload("kit.zip", "bytes"),
		Previews: []Upload{bad},
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	// Validation rejects before anything is stored.
	assert.Empty(t, archives.files)
}

func seedApprovedEntry(entries *fakeEntryStore) *models.Entry {
	hash := "hash-v1"
	fileName := "kit.zip"
	changelog := "initial release"
	return entries.seed(&models.Entry{
		ID:               "entry-approved",
		SellerID:         "seller-1",
		Slug:             "saas-kit-x1",
		Title:            "SaaS Kit",
		VersionNumber:    "1.0.0",
		OriginalFileName: &fileName,
		ContentHash:      &hash,
		Changelog:        &changelog,
		FileSize:         4096,
		Status:           models.StatusApproved,
	})
}

func TestPublishNewVersion(t *testing.T) {
	entries := newFakeEntryStore()
	archives := newMemStorage()
	w := NewEntryWriter(entries, newTestStoreWriter(archives, newMemStorage()))
	seeded := seedApprovedEntry(entries)

	entry, err := w.PublishNewVersion(context.Background(), seeded.ID, PublishNewVersionInput{
		Increment: validation.IncrementMinor,
		Changelog: strp("adds billing module"),
		Archive:   archiveUpload("kit-v2.zip", "new-zip-bytes"),
	})
	require.NoError(t, err)

	assert.Equal(t, "1.1.0", entry.VersionNumber)
	assert.Equal(t, models.StatusPendingReview, entry.Status)
	assert.Nil(t, entry.LastProcessingError)

	// The outgoing version is snapshotted at the front of the history.
	require.Len(t, entry.VersionHistory, 1)
	snap := entry.VersionHistory[0]
	assert.Equal(t, "1.0.0", snap.VersionNumber)
	assert.Equal(t, "hash-v1", snap.ContentHash)
	assert.Equal(t, "initial release", snap.Changelog)
	assert.Equal(t, int64(4096), snap.FileSize)

	// Hash pair shuffles: current becomes previous.
	require.NotNil(t, entry.PreviousContentHash)
	assert.Equal(t, "hash-v1", *entry.PreviousContentHash)
	assert.Equal(t, sha256Hex([]byte("new-zip-bytes")), *entry.ContentHash)
	assert.Equal(t, "kit-v2.zip", *entry.OriginalFileName)
	assert.Equal(t, "adds billing module", *entry.Changelog)

	// The new archive lands under versions/<version>/.
	_, stored := archives.files["mvps/saas-kit-x1/versions/1.1.0/kit-v2.zip"]
	assert.True(t, stored)
}

func TestPublishNewVersion_NotFound(t *testing.T) {
	w := NewEntryWriter(newFakeEntryStore(), newTestStoreWriter(newMemStorage(), newMemStorage()))
	_, err := w.PublishNewVersion(context.Background(), "ghost", PublishNewVersionInput{
		Increment: validation.IncrementPatch,
		Archive:   archiveUpload("kit.zip", "bytes"),
	})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestPublishNewVersion_InvalidArchive(t *testing.T) {
	entries := newFakeEntryStore()
	w := NewEntryWriter(entries, newTestStoreWriter(newMemStorage(), newMemStorage()))
	seeded := seedApprovedEntry(entries)

	up := archiveUpload("kit.zip", "bytes")
	up.Meta.Size = validation.MaxArchiveSize + 1
	_, err := w.PublishNewVersion(context.Background(), seeded.ID, PublishNewVersionInput{
		Increment: validation.IncrementPatch,
		Archive:   up,
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// Nothing changed on the entry.
	got := entries.mustGet(seeded.ID)
	assert.Equal(t, "1.0.0", got.VersionNumber)
	assert.Empty(t, got.VersionHistory)
}

func TestPublishNewVersion_WithMetadataPatch(t *testing.T) {
	entries := newFakeEntryStore()
	w := NewEntryWriter(entries, newTestStoreWriter(newMemStorage(), newMemStorage()))
	seeded := seedApprovedEntry(entries)

	price := int64(9900)
	entry, err := w.PublishNewVersion(context.Background(), seeded.ID, PublishNewVersionInput{
		Increment: validation.IncrementMajor,
		Changelog: strp("v2 rewrite"),
		Archive:   archiveUpload("kit-v2.zip", "v2-bytes"),
		Metadata: MetadataPatch{
			Title:       strp("SaaS Kit v2"),
			PriceCents:  &price,
			NewPreviews: []Upload{previewUpload("v2.png", "png-bytes")},
		},
	})
	require.NoError(t, err)

	// Versioning and metadata land in one write.
	assert.Equal(t, "2.0.0", entry.VersionNumber)
	assert.Equal(t, models.StatusPendingReview, entry.Status)
	assert.Equal(t, "SaaS Kit v2", entry.Title)
	assert.Equal(t, int64(9900), *entry.PriceCents)
	require.Len(t, entry.PreviewImages, 1)
	assert.Equal(t, "https://cdn.test/mvps/saas-kit-x1/previews/v2.png", entry.PreviewImages[0])
	require.Len(t, entry.VersionHistory, 1)
	assert.Equal(t, "1.0.0", entry.VersionHistory[0].VersionNumber)
}

func TestPublishNewVersion_ExplicitVersion(t *testing.T) {
	entries := newFakeEntryStore()
	archives := newMemStorage()
	w := NewEntryWriter(entries, newTestStoreWriter(archives, newMemStorage()))
	seeded := seedApprovedEntry(entries)

	entry, err := w.PublishNewVersion(context.Background(), seeded.ID, PublishNewVersionInput{
		Version: strp("3.5.0"),
		Archive: archiveUpload("kit.zip", "bytes"),
	})
	require.NoError(t, err)

	assert.Equal(t, "3.5.0", entry.VersionNumber)
	_, stored := archives.files["mvps/saas-kit-x1/versions/3.5.0/kit.zip"]
	assert.True(t, stored)
}

func TestPublishNewVersion_ExplicitVersionRejected(t *testing.T) {
	tests := []struct {
		name    string
		version string
	}{
		{"not semver", "definitely-not-a-version"},
		{"equal to current", "1.0.0"},
		{"below current", "0.9.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := newFakeEntryStore()
			w := NewEntryWriter(entries, newTestStoreWriter(newMemStorage(), newMemStorage()))
			seeded := seedApprovedEntry(entries)

			_, err := w.PublishNewVersion(context.Background(), seeded.ID, PublishNewVersionInput{
				Version: strp(tt.version),
				Archive: archiveUpload("kit.zip", "bytes"),
			})

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "1.0.0", entries.mustGet(seeded.ID).VersionNumber)
		})
	}
}

func TestPublishNewVersion_ArchivedEntryRejected(t *testing.T) {
	entries := newFakeEntryStore()
	w := NewEntryWriter(entries, newTestStoreWriter(newMemStorage(), newMemStorage()))

	seeded := seedApprovedEntry(entries)
	seeded.Status = models.StatusArchived
	entries.seed(seeded)

	_, err := w.PublishNewVersion(context.Background(), seeded.ID, PublishNewVersionInput{
		Increment: validation.IncrementPatch,
		Archive:   archiveUpload("kit.zip", "bytes"),
	})
	require.ErrorIs(t, err, repositories.ErrInvalidTransition)

	// The soft delete stands: still archived, nothing republished.
	got := entries.mustGet(seeded.ID)
	assert.Equal(t, models.StatusArchived, got.Status)
	assert.Equal(t, "1.0.0", got.VersionNumber)
	assert.Empty(t, got.VersionHistory)
}

func TestUpdateEntry_MetadataPatch(t *testing.T) {
	entries := newFakeEntryStore()
	w := NewEntryWriter(entries, newTestStoreWriter(newMemStorage(), newMemStorage()))
	seeded := seedApprovedEntry(entries)

	price := int64(4900)
	entry, err := w.UpdateEntry(context.Background(), seeded.ID, UpdateEntryInput{
		MetadataPatch: MetadataPatch{
			Title:      strp("SaaS Kit Pro"),
			Tagline:    strp("now with billing"),
			PriceCents: &price,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "SaaS Kit Pro", entry.Title)
	assert.Equal(t, "now with billing", *entry.Tagline)
	assert.Equal(t, int64(4900), *entry.PriceCents)

	// Untouched fields keep their values; status and versioning are unaffected.
	assert.Equal(t, "1.0.0", entry.VersionNumber)
	assert.Equal(t, models.StatusApproved, entry.Status)
	assert.Equal(t, "hash-v1", *entry.ContentHash)
	assert.Equal(t, "initial release", *entry.Changelog)
}

func TestUpdateEntry_PreviewImageSemantics(t *testing.T) {
	entries := newFakeEntryStore()
	w := NewEntryWriter(entries, newTestStoreWriter(newMemStorage(), newMemStorage()))

	seeded := seedApprovedEntry(entries)
	seeded.PreviewImages = []string{"https://cdn.test/old1.png", "https://cdn.test/old2.png"}
	entries.seed(seeded)

	// nil keeps the current images.
	entry, err := w.UpdateEntry(context.Background(), seeded.ID, UpdateEntryInput{
		MetadataPatch: MetadataPatch{Title: strp("renamed")},
	})
	require.NoError(t, err)
	assert.Len(t, entry.PreviewImages, 2)

	// An empty slice clears them.
	empty := []string{}
	entry, err = w.UpdateEntry(context.Background(), seeded.ID, UpdateEntryInput{
		MetadataPatch: MetadataPatch{PreviewImages: &empty},
	})
	require.NoError(t, err)
	assert.Empty(t, entry.PreviewImages)
}

func TestUpdateEntry_AddPreviews(t *testing.T) {
	entries := newFakeEntryStore()
	previews := newMemStorage()
	w := NewEntryWriter(entries, newTestStoreWriter(newMemStorage(), previews))

	seeded := seedApprovedEntry(entries)
	seeded.PreviewImages = []string{"https://cdn.test/old.png"}
	entries.seed(seeded)

	entry, err := w.UpdateEntry(context.Background(), seeded.ID, UpdateEntryInput{
		MetadataPatch: MetadataPatch{NewPreviews: []Upload{previewUpload("new.png", "png-bytes")}},
	})
	require.NoError(t, err)

	require.Len(t, entry.PreviewImages, 2)
	assert.Equal(t, "https://cdn.test/old.png", entry.PreviewImages[0])
	assert.Equal(t, "https://cdn.test/mvps/saas-kit-x1/previews/new.png", entry.PreviewImages[1])
}

func TestUpdateEntry_ArchiveReplacement(t *testing.T) {
	entries := newFakeEntryStore()
	archives := newMemStorage()
	w := NewEntryWriter(entries, newTestStoreWriter(archives, newMemStorage()))
	seeded := seedApprovedEntry(entries)

	entry, err := w.UpdateEntry(context.Background(), seeded.ID, UpdateEntryInput{
		Archive: &Upload{
			Meta:    validation.FileMeta{Name: "kit-fixed.zip", Size: validation.MinArchiveSize, ContentType: "application/zip"},
			Content: strings.NewReader("fixed-bytes"),
		},
	})
	require.NoError(t, err)

	// In-place replacement: pointers move, but no snapshot, no version bump,
	// no status reset.
	assert.Equal(t, sha256Hex([]byte("fixed-bytes")), *entry.ContentHash)
	assert.Equal(t, "kit-fixed.zip", *entry.OriginalFileName)
	assert.Empty(t, entry.VersionHistory)
	assert.Equal(t, "1.0.0", entry.VersionNumber)
	assert.Equal(t, models.StatusApproved, entry.Status)
	assert.Nil(t, entry.PreviousContentHash)
}

func TestUpdateEntry_NotFound(t *testing.T) {
	w := NewEntryWriter(newFakeEntryStore(), newTestStoreWriter(newMemStorage(), newMemStorage()))
	_, err := w.UpdateEntry(context.Background(), "ghost", UpdateEntryInput{
		MetadataPatch: MetadataPatch{Title: strp("x")},
	})
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestArchive(t *testing.T) {
	entries := newFakeEntryStore()
	w := NewEntryWriter(entries, newTestStoreWriter(newMemStorage(), newMemStorage()))
	seeded := seedApprovedEntry(entries)

	require.NoError(t, w.Archive(context.Background(), seeded.ID))
	assert.Equal(t, models.StatusArchived, entries.mustGet(seeded.ID).Status)
}

func TestArchive_NotFound(t *testing.T) {
	w := NewEntryWriter(newFakeEntryStore(), newTestStoreWriter(newMemStorage(), newMemStorage()))
	assert.ErrorIs(t, w.Archive(context.Background(), "ghost"), ErrEntryNotFound)
}
