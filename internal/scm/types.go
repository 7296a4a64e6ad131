// Package scm defines the types and errors shared by source-control integrations.
// The marketplace links entries to GitHub repositories; the github subpackage
// implements this interface with GitHub App authentication.
package scm

import (
	"context"
	"io"
	"time"
)

// Connector is the operations surface a source-control provider must expose for
// repository sync.
type Connector interface {
	// FetchRepository gets repository details, including the default branch.
	FetchRepository(ctx context.Context, owner, name string) (*Repository, error)

	// FetchLatestRelease gets the most recent published release, or
	// ErrNoReleases when the repository has none.
	FetchLatestRelease(ctx context.Context, owner, name string) (*Release, error)

	// FetchLatestCommit gets the head commit of a branch.
	FetchLatestCommit(ctx context.Context, owner, name, branch string) (*Commit, error)

	// DownloadZipball streams the repository contents at a ref as a zip archive.
	DownloadZipball(ctx context.Context, owner, name, ref string) (io.ReadCloser, error)
}

// Repository describes a linked source repository.
type Repository struct {
	Owner         string
	Name          string
	FullName      string
	Description   string
	DefaultBranch string
	Private       bool
	HTMLURL       string
	UpdatedAt     time.Time
}

// Release describes a published release.
type Release struct {
	TagName     string
	Name        string
	Body        string
	CommitSHA   string
	PublishedAt time.Time
}

// Commit describes a single commit.
type Commit struct {
	SHA         string
	Message     string
	AuthorName  string
	CommittedAt time.Time
}
