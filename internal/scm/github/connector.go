// Package github implements the scm.Connector interface for GitHub (both
// github.com and GitHub Enterprise Server) using the GitHub REST API v3 and
// GitHub App installation tokens for authentication.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mvpmarket/mvpmarket/internal/scm"
)

const defaultAPIURL = "https://api.github.com"

// tokenSource supplies an API token for a repository. Implemented by AppAuth;
// tests substitute a static token.
type tokenSource interface {
	InstallationToken(ctx context.Context, owner, repo string) (string, error)
}

// Connector implements scm.Connector for GitHub
type Connector struct {
	apiURL     string
	tokens     tokenSource
	httpClient *http.Client
}

// NewConnector creates a GitHub connector. apiURL may be empty for github.com;
// set it to "<host>/api/v3" for GitHub Enterprise Server.
func NewConnector(apiURL string, tokens tokenSource) *Connector {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Connector{
		apiURL:     apiURL,
		tokens:     tokens,
		httpClient: &http.Client{},
	}
}

// FetchRepository gets details for a specific repository
func (c *Connector) FetchRepository(ctx context.Context, owner, name string) (*scm.Repository, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", c.apiURL, owner, name)

	resp, err := c.get(ctx, endpoint, owner, name)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, scm.ErrRepositoryNotFound
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, scm.ErrRepositoryForbidden
	}
	if resp.StatusCode != http.StatusOK {
		return nil, scm.NewAPIError(resp.StatusCode, "failed to fetch repository", nil)
	}

	var ghRepo githubRepo
	if err := json.NewDecoder(resp.Body).Decode(&ghRepo); err != nil {
		return nil, fmt.Errorf("github: decode repository: %w", err)
	}

	return &scm.Repository{
		Owner:         ghRepo.Owner.Login,
		Name:          ghRepo.Name,
		FullName:      ghRepo.FullName,
		Description:   ghRepo.Description,
		DefaultBranch: ghRepo.DefaultBranch,
		Private:       ghRepo.Private,
		HTMLURL:       ghRepo.HTMLURL,
		UpdatedAt:     ghRepo.UpdatedAt,
	}, nil
}

// FetchLatestRelease gets the most recently published release. The release's
// tag is resolved to a commit SHA so callers can compare against the last
// synced commit.
func (c *Connector) FetchLatestRelease(ctx context.Context, owner, name string) (*scm.Release, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.apiURL, owner, name)

	resp, err := c.get(ctx, endpoint, owner, name)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, scm.ErrNoReleases
	}
	if resp.StatusCode != http.StatusOK {
		return nil, scm.NewAPIError(resp.StatusCode, "failed to fetch latest release", nil)
	}

	var ghRelease struct {
		TagName     string    `json:"tag_name"`
		Name        string    `json:"name"`
		Body        string    `json:"body"`
		PublishedAt time.Time `json:"published_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ghRelease); err != nil {
		return nil, fmt.Errorf("github: decode release: %w", err)
	}

	sha, err := c.resolveTag(ctx, owner, name, ghRelease.TagName)
	if err != nil {
		return nil, err
	}

	return &scm.Release{
		TagName:     ghRelease.TagName,
		Name:        ghRelease.Name,
		Body:        ghRelease.Body,
		CommitSHA:   sha,
		PublishedAt: ghRelease.PublishedAt,
	}, nil
}

// FetchLatestCommit gets the head commit of a branch
func (c *Connector) FetchLatestCommit(ctx context.Context, owner, name, branch string) (*scm.Commit, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/commits/%s", c.apiURL, owner, name, branch)

	resp, err := c.get(ctx, endpoint, owner, name)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, scm.ErrBranchNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, scm.NewAPIError(resp.StatusCode, "failed to fetch commit", nil)
	}

	var ghCommit struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
			Author  struct {
				Name string    `json:"name"`
				Date time.Time `json:"date"`
			} `json:"author"`
		} `json:"commit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ghCommit); err != nil {
		return nil, fmt.Errorf("github: decode commit: %w", err)
	}

	return &scm.Commit{
		SHA:         ghCommit.SHA,
		Message:     ghCommit.Commit.Message,
		AuthorName:  ghCommit.Commit.Author.Name,
		CommittedAt: ghCommit.Commit.Author.Date,
	}, nil
}

// DownloadZipball streams repository contents at a specific ref as a zip archive.
// The caller must close the returned reader.
func (c *Connector) DownloadZipball(ctx context.Context, owner, name, ref string) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/zipball/%s", c.apiURL, owner, name, ref)

	resp, err := c.get(ctx, endpoint, owner, name)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, scm.NewAPIError(resp.StatusCode, "failed to download archive", scm.ErrArchiveDownloadFailed)
	}

	return resp.Body, nil
}

// resolveTag resolves a tag name to the commit SHA it points at. Annotated tags
// point at a tag object, not a commit; the commit endpoint dereferences both.
func (c *Connector) resolveTag(ctx context.Context, owner, name, tag string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/commits/%s", c.apiURL, owner, name, tag)

	resp, err := c.get(ctx, endpoint, owner, name)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", scm.NewAPIError(resp.StatusCode, fmt.Sprintf("failed to resolve tag %s", tag), nil)
	}

	var ghCommit struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ghCommit); err != nil {
		return "", fmt.Errorf("github: decode tag commit: %w", err)
	}

	return ghCommit.SHA, nil
}

func (c *Connector) get(ctx context.Context, endpoint, owner, repo string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("github: create request: %w", err)
	}

	token, err := c.tokens.InstallationToken(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, scm.NewAPIError(0, "github request failed", err)
	}
	return resp, nil
}

type githubRepo struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	Private       bool      `json:"private"`
	HTMLURL       string    `json:"html_url"`
	DefaultBranch string    `json:"default_branch"`
	UpdatedAt     time.Time `json:"updated_at"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}
