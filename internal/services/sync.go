// sync.go implements GitHub-driven publication: fetching the linked repository's
// latest release (or default-branch head when there are no releases), storing the
// source zipball, and running the result through the same publication pipeline as
// a direct upload.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mvpmarket/mvpmarket/internal/catalog"
	"github.com/mvpmarket/mvpmarket/internal/db/models"
	"github.com/mvpmarket/mvpmarket/internal/scm"
	"github.com/mvpmarket/mvpmarket/internal/validation"
)

// Syncer pulls new versions for GitHub-linked entries.
type Syncer struct {
	entries   EntryStore
	store     *StoreWriter
	connector scm.Connector
	processor *Processor

	fetchTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewSyncer creates a GitHub sync service.
func NewSyncer(entries EntryStore, store *StoreWriter, connector scm.Connector, processor *Processor, fetchTimeout time.Duration, logger *slog.Logger) *Syncer {
	return &Syncer{
		entries:      entries,
		store:        store,
		connector:    connector,
		processor:    processor,
		fetchTimeout: fetchTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// SyncResult reports what a sync did.
type SyncResult struct {
	// Synced is false when the repository had nothing new.
	Synced    bool
	CommitSHA string
	Version   string
}

// SyncFromGitHub checks the linked repository for new content and, when found,
// publishes it as a new version and runs the pipeline. Version numbering prefers
// the latest release's tag when it parses as semver; otherwise the current
// version gets a patch bump. Syncing is idempotent: when the fetched commit
// matches last_synced_commit_sha the call is a no-op.
func (s *Syncer) SyncFromGitHub(ctx context.Context, entryID string) (*SyncResult, error) {
	entry, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	if !entry.GitHubLinked() {
		return nil, ErrNotLinked
	}

	owner, name := *entry.RepoOwner, *entry.RepoName

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	sha, version, changelog, err := s.resolveTarget(fetchCtx, entry, owner, name)
	if err != nil {
		return nil, err
	}

	if entry.LastSyncedCommitSHA != nil && *entry.LastSyncedCommitSHA == sha {
		s.logger.Info("sync up to date", "entry_id", entry.ID, "commit", sha)
		return &SyncResult{Synced: false, CommitSHA: sha, Version: entry.VersionNumber}, nil
	}

	zipball, err := s.connector.DownloadZipball(fetchCtx, owner, name, sha)
	if err != nil {
		return nil, fmt.Errorf("failed to download repository archive: %w", err)
	}
	defer zipball.Close()

	// Size is unknown for streamed zipballs; backends treat a negative size as
	// "until EOF".
	dir := catalog.GitHubArchiveDir(entry.Slug, sha)
	stored, err := s.store.StoreArchive(ctx, dir, catalog.GitHubArchiveName, zipball, -1)
	if err != nil {
		return nil, err
	}

	snapshot := models.VersionSnapshot{
		VersionNumber: entry.VersionNumber,
		ContentHash:   derefString(entry.ContentHash),
		Changelog:     derefString(entry.Changelog),
		UploadedAt:    s.now(),
		FileSize:      entry.FileSize,
	}
	entry.VersionHistory = entry.VersionHistory.Prepend(snapshot)

	archiveName := catalog.GitHubArchiveName
	entry.PreviousContentHash = entry.ContentHash
	entry.ContentHash = &stored.Hash
	entry.OriginalFileName = &archiveName
	entry.FileSize = stored.Size
	entry.VersionNumber = version
	entry.Changelog = &changelog
	entry.LastSyncedCommitSHA = &sha
	entry.Status = models.StatusPendingReview
	entry.LastProcessingError = nil

	if err := s.entries.Update(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.Info("synced new version from repository",
		"entry_id", entry.ID, "repo", owner+"/"+name, "commit", sha, "version", version)

	if err := s.processor.Process(ctx, entry.ID); err != nil {
		return nil, err
	}

	return &SyncResult{Synced: true, CommitSHA: sha, Version: version}, nil
}

// SyncByRepo resolves the entry linked to a repository and syncs it. Webhook
// deliveries come in keyed by repository rather than entry ID.
func (s *Syncer) SyncByRepo(ctx context.Context, owner, name string) (*SyncResult, error) {
	entry, err := s.entries.GetByRepo(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}
	return s.SyncFromGitHub(ctx, entry.ID)
}

// resolveTarget picks the commit, next version number, and changelog for a sync.
// The latest release wins when one exists; a repository with no releases syncs
// its default branch head with a patch bump.
func (s *Syncer) resolveTarget(ctx context.Context, entry *models.Entry, owner, name string) (sha, version, changelog string, err error) {
	release, err := s.connector.FetchLatestRelease(ctx, owner, name)
	if err != nil && !errors.Is(err, scm.ErrNoReleases) {
		return "", "", "", fmt.Errorf("failed to fetch latest release: %w", err)
	}

	if release != nil {
		version = strings.TrimPrefix(release.TagName, "v")
		if validation.ValidateSemver(version) != nil {
			version, err = validation.IncrementVersion(entry.VersionNumber, validation.IncrementPatch)
			if err != nil {
				return "", "", "", err
			}
		}
		changelog = release.Body
		if changelog == "" {
			changelog = release.Name
		}
		return release.CommitSHA, version, changelog, nil
	}

	repo, err := s.connector.FetchRepository(ctx, owner, name)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to fetch repository: %w", err)
	}

	commit, err := s.connector.FetchLatestCommit(ctx, owner, name, repo.DefaultBranch)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to fetch latest commit: %w", err)
	}

	version, err = validation.IncrementVersion(entry.VersionNumber, validation.IncrementPatch)
	if err != nil {
		return "", "", "", err
	}

	return commit.SHA, version, commit.Message, nil
}
