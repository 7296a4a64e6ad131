// Package catalog holds the pure functions that define entry identity and archive
// placement: slug generation and the deterministic storage path rule. The path is
// never stored — every consumer (upload, download signing, retry, sync) re-derives
// it from entry state with these functions, so they must stay byte-compatible.
package catalog

import (
	"errors"
	"fmt"

	"github.com/mvpmarket/mvpmarket/internal/db/models"
)

// ErrPathUnresolvable is returned when an entry's fields cannot produce a storage
// path (e.g. no original file name recorded). This indicates a broken invariant,
// not a normal runtime condition.
var ErrPathUnresolvable = errors.New("storage path cannot be derived from entry state")

const (
	// basePrefix is the root directory for all entry archives in the private bucket.
	basePrefix = "mvps"

	// GitHubArchiveName is the fixed file name used for archives fetched from a
	// linked GitHub repository.
	GitHubArchiveName = "source.zip"

	// initialVersion is the version number of a first publish; its archive lives
	// directly under the entry base directory rather than a versions/ subdirectory.
	initialVersion = "1.0.0"
)

// ArchivePath returns the storage path of an entry's currently active archive.
//
// Selection rule, in priority order:
//  1. GitHub-synced entries: mvps/<slug>/versions/github-<sha>/source.zip
//  2. First publish (version 1.0.0, no previous hash): mvps/<slug>/<file>
//  3. Everything else: mvps/<slug>/versions/<version>/<file>
func ArchivePath(e *models.Entry) (string, error) {
	if e.Slug == "" {
		return "", ErrPathUnresolvable
	}

	if e.LastSyncedCommitSHA != nil && *e.LastSyncedCommitSHA != "" {
		return fmt.Sprintf("%s/%s/versions/github-%s/%s", basePrefix, e.Slug, *e.LastSyncedCommitSHA, GitHubArchiveName), nil
	}

	if e.OriginalFileName == nil || *e.OriginalFileName == "" {
		return "", ErrPathUnresolvable
	}

	noPriorHash := e.PreviousContentHash == nil || *e.PreviousContentHash == ""
	if e.VersionNumber == initialVersion && noPriorHash {
		return fmt.Sprintf("%s/%s/%s", basePrefix, e.Slug, *e.OriginalFileName), nil
	}

	return fmt.Sprintf("%s/%s/versions/%s/%s", basePrefix, e.Slug, e.VersionNumber, *e.OriginalFileName), nil
}

// ArchiveDir returns the directory an archive should be stored under at upload
// time, before the entry row exists or reflects the new version. The same three
// cases as ArchivePath apply; callers join the original file name themselves.
func ArchiveDir(slug, versionNumber string, hasPriorVersion bool) string {
	if versionNumber == initialVersion && !hasPriorVersion {
		return fmt.Sprintf("%s/%s", basePrefix, slug)
	}
	return fmt.Sprintf("%s/%s/versions/%s", basePrefix, slug, versionNumber)
}

// GitHubArchiveDir returns the directory for an archive fetched at a specific
// commit of a linked repository.
func GitHubArchiveDir(slug, commitSHA string) string {
	return fmt.Sprintf("%s/%s/versions/github-%s", basePrefix, slug, commitSHA)
}

// PreviewDir returns the public-bucket directory for an entry's preview images.
func PreviewDir(slug string) string {
	return fmt.Sprintf("%s/%s/previews", basePrefix, slug)
}
