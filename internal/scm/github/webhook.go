// webhook.go verifies and parses GitHub webhook deliveries. Signatures use
// HMAC-SHA256 over the raw request body with the per-entry shared secret,
// delivered in the X-Hub-Signature-256 header.
package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mvpmarket/mvpmarket/internal/scm"
)

// VerifySignature checks a delivery's X-Hub-Signature-256 header against the
// shared secret. Comparison is constant-time.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(signatureHeader, prefix) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(signatureHeader, prefix)))
}

// PushEvent is the subset of a GitHub push delivery the marketplace acts on.
type PushEvent struct {
	Ref        string
	AfterSHA   string
	RepoOwner  string
	RepoName   string
	Deleted    bool
	DefaultRef bool
}

// ParsePushEvent decodes a push delivery payload. DefaultRef is true when the
// push targets the repository's default branch; pushes to other refs are
// reported but typically ignored by the caller.
func ParsePushEvent(payload []byte) (*PushEvent, error) {
	var body struct {
		Ref     string `json:"ref"`
		After   string `json:"after"`
		Deleted bool   `json:"deleted"`
		Repo    struct {
			Name          string `json:"name"`
			DefaultBranch string `json:"default_branch"`
			Owner         struct {
				Login string `json:"login"`
				Name  string `json:"name"`
			} `json:"owner"`
		} `json:"repository"`
	}

	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", scm.ErrWebhookPayloadInvalid, err)
	}
	if body.Ref == "" || body.Repo.Name == "" {
		return nil, scm.ErrWebhookPayloadInvalid
	}

	owner := body.Repo.Owner.Login
	if owner == "" {
		owner = body.Repo.Owner.Name
	}

	return &PushEvent{
		Ref:        body.Ref,
		AfterSHA:   body.After,
		RepoOwner:  owner,
		RepoName:   body.Repo.Name,
		Deleted:    body.Deleted,
		DefaultRef: body.Ref == "refs/heads/"+body.Repo.DefaultBranch,
	}, nil
}
