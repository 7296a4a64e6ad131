// Package scan wraps the external security-scanning service. The scanner receives
// the entry's storage path (it has its own credentials for the archive bucket) and
// returns a verdict; the archive body never flows through this process.
package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client calls the remote security scanner over HTTP.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewClient creates a scanner client. url is the scan endpoint; token is sent as
// a bearer token when non-empty.
func NewClient(url, token string) *Client {
	return &Client{
		url:   url,
		token: token,
		// Timeouts are applied per call via context so the orchestrator's
		// step deadline is the single source of truth.
		httpClient: &http.Client{},
	}
}

// scanRequest is the JSON body sent to the scanner.
type scanRequest struct {
	EntryID     string `json:"entry_id"`
	StoragePath string `json:"storage_path"`
}

// scanResponse is the scanner's verdict.
type scanResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Scan submits an entry's archive for scanning and returns the verdict. A clean
// scan returns (true, "", nil); a failed scan returns (false, reason, nil) with
// the scanner's reason verbatim. A non-nil error means the scanner could not be
// reached or answered malformed — the caller decides how to classify that.
func (c *Client) Scan(ctx context.Context, entryID, storagePath string) (bool, string, error) {
	body, err := json.Marshal(scanRequest{EntryID: entryID, StoragePath: storagePath})
	if err != nil {
		return false, "", fmt.Errorf("failed to encode scan request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, "", fmt.Errorf("failed to create scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, "", fmt.Errorf("scan request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, "", fmt.Errorf("scanner returned status %d: %s", resp.StatusCode, string(data))
	}

	var result scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, "", fmt.Errorf("failed to decode scan response: %w", err)
	}

	return result.Success, result.Error, nil
}
