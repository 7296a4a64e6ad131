package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/db/repositories"
	"github.com/mvpmarket/mvpmarket/internal/scm"
)

// linkedEntry seeds an approved, GitHub-linked entry.
func linkedEntry(entries *fakeEntryStore) *models.Entry {
	hash := "hash-v1"
	fileName := "kit.zip"
	owner := "acme"
	name := "saas-starter"
	return entries.seed(&models.Entry{
		ID:               "entry-linked",
		SellerID:         "seller-1",
		Slug:             "saas-kit-x1",
		Title:            "SaaS Kit",
		VersionNumber:    "1.2.0",
		OriginalFileName: &fileName,
		ContentHash:      &hash,
		FileSize:         4096,
		Status:           models.StatusApproved,
		RepoOwner:        &owner,
		RepoName:         &name,
	})
}

func newTestSyncer(entries *fakeEntryStore, archives *memStorage, conn scm.Connector) *Syncer {
	store := newTestStoreWriter(archives, newMemStorage())
	processor := NewProcessor(entries, store, &fakeScanner{ok: true}, &fakePinner{id: "QmSynced"}, time.Second, time.Second, testLogger())
	return NewSyncer(entries, store, conn, processor, time.Second, testLogger())
}

func TestSyncFromGitHub_Release(t *testing.T) {
	entries := newFakeEntryStore()
	archives := newMemStorage()
	seeded := linkedEntry(entries)

	conn := &fakeConnector{
		release: &scm.Release{
			TagName:   "v2.0.0",
			Name:      "Release 2.0.0",
			Body:      "big rewrite",
			CommitSHA: "commit-abc",
		},
		zipContent: "zipball-bytes",
	}

	s := newTestSyncer(entries, archives, conn)
	result, err := s.SyncFromGitHub(context.Background(), seeded.ID)
	require.NoError(t, err)

	assert.True(t, result.Synced)
	assert.Equal(t, "commit-abc", result.CommitSHA)
	// The release tag (minus the v prefix) becomes the version.
	assert.Equal(t, "2.0.0", result.Version)

	got := entries.mustGet(seeded.ID)
	assert.Equal(t, "2.0.0", got.VersionNumber)
	assert.Equal(t, "commit-abc", *got.LastSyncedCommitSHA)
	assert.Equal(t, "big rewrite", *got.Changelog)
	assert.Equal(t, "hash-v1", *got.PreviousContentHash)

	// The pipeline ran to completion on the synced archive.
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, "QmSynced", *got.ContentHash)

	// Superseded version snapshotted.
	require.Len(t, got.VersionHistory, 1)
	assert.Equal(t, "1.2.0", got.VersionHistory[0].VersionNumber)
	assert.Equal(t, "hash-v1", got.VersionHistory[0].ContentHash)

	// Zipball stored at the commit-pinned path.
	_, stored := archives.files["mvps/saas-kit-x1/versions/github-commit-abc/source.zip"]
	assert.True(t, stored)
}

func TestSyncFromGitHub_NoOpWhenUpToDate(t *testing.T) {
	entries := newFakeEntryStore()
	archives := newMemStorage()

	seeded := linkedEntry(entries)
	sha := "commit-abc"
	seeded.LastSyncedCommitSHA = &sha
	entries.seed(seeded)

	conn := &fakeConnector{
		release:    &scm.Release{TagName: "v2.0.0", CommitSHA: "commit-abc"},
		zipContent: "zipball-bytes",
	}

	s := newTestSyncer(entries, archives, conn)
	result, err := s.SyncFromGitHub(context.Background(), seeded.ID)
	require.NoError(t, err)

	assert.False(t, result.Synced)
	assert.Equal(t, "commit-abc", result.CommitSHA)
	assert.Equal(t, "1.2.0", result.Version)

	// Nothing was downloaded or written.
	assert.Zero(t, conn.downloads)
	got := entries.mustGet(seeded.ID)
	assert.Equal(t, "1.2.0", got.VersionNumber)
	assert.Empty(t, got.VersionHistory)
}

func TestSyncFromGitHub_NonSemverTagFallsBackToPatchBump(t *testing.T) {
	entries := newFakeEntryStore()
	archives := newMemStorage()
	seeded := linkedEntry(entries)

	conn := &fakeConnector{
		release:    &scm.Release{TagName: "nightly-build", CommitSHA: "commit-x", Body: "nightly"},
		zipContent: "zipball-bytes",
	}

	s := newTestSyncer(entries, archives, conn)
	result, err := s.SyncFromGitHub(context.Background(), seeded.ID)
	require.NoError(t, err)

	// 1.2.0 with a patch bump.
	assert.Equal(t, "1.2.1", result.Version)
}

func TestSyncFromGitHub_NoReleasesUsesBranchHead(t *testing.T) {
	entries := newFakeEntryStore()
	archives := newMemStorage()
	seeded := linkedEntry(entries)

	conn := &fakeConnector{
		repo:       &scm.Repository{DefaultBranch: "main"},
		commit:     &scm.Commit{SHA: "head-123", Message: "fix checkout flow"},
		zipContent: "zipball-bytes",
	}

	s := newTestSyncer(entries, archives, conn)
	result, err := s.SyncFromGitHub(context.Background(), seeded.ID)
	require.NoError(t, err)

	assert.True(t, result.Synced)
	assert.Equal(t, "head-123", result.CommitSHA)
	assert.Equal(t, "1.2.1", result.Version)

	got := entries.mustGet(seeded.ID)
	// The head commit's message stands in for a changelog.
	assert.Equal(t, "fix checkout flow", *got.Changelog)
}

func TestSyncFromGitHub_ArchivedEntryRejected(t *testing.T) {
	entries := newFakeEntryStore()
	archives := newMemStorage()

	seeded := linkedEntry(entries)
	seeded.Status = models.StatusArchived
	entries.seed(seeded)

	conn := &fakeConnector{
		release:    &scm.Release{TagName: "v2.0.0", CommitSHA: "commit-new", Body: "notes"},
		zipContent: "zipball-bytes",
	}

	// A push to a linked repo must not republish a soft-deleted entry.
	s := newTestSyncer(entries, archives, conn)
	_, err := s.SyncFromGitHub(context.Background(), seeded.ID)
	require.ErrorIs(t, err, repositories.ErrInvalidTransition)

	got := entries.mustGet(seeded.ID)
	assert.Equal(t, models.StatusArchived, got.Status)
	assert.Equal(t, "1.2.0", got.VersionNumber)
}

func TestSyncFromGitHub_NotLinked(t *testing.T) {
	entries := newFakeEntryStore()
	seeded := entries.seed(&models.Entry{
		ID:            "entry-plain",
		Slug:          "plain-x1",
		VersionNumber: "1.0.0",
		Status:        models.StatusApproved,
	})

	s := newTestSyncer(entries, newMemStorage(), &fakeConnector{})
	_, err := s.SyncFromGitHub(context.Background(), seeded.ID)
	assert.ErrorIs(t, err, ErrNotLinked)
}

func TestSyncFromGitHub_EntryNotFound(t *testing.T) {
	s := newTestSyncer(newFakeEntryStore(), newMemStorage(), &fakeConnector{})
	_, err := s.SyncFromGitHub(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestSyncByRepo(t *testing.T) {
	entries := newFakeEntryStore()
	archives := newMemStorage()
	linkedEntry(entries)

	conn := &fakeConnector{
		release:    &scm.Release{TagName: "v1.3.0", CommitSHA: "commit-z", Body: "notes"},
		zipContent: "zipball-bytes",
	}

	s := newTestSyncer(entries, archives, conn)
	result, err := s.SyncByRepo(context.Background(), "acme", "saas-starter")
	require.NoError(t, err)
	assert.True(t, result.Synced)
	assert.Equal(t, "1.3.0", result.Version)
}

func TestSyncByRepo_UnknownRepository(t *testing.T) {
	s := newTestSyncer(newFakeEntryStore(), newMemStorage(), &fakeConnector{})
	_, err := s.SyncByRepo(context.Background(), "acme", "ghost")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}
