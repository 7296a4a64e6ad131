// Package pin wraps the external content-pinning service. The archive bytes are
// uploaded as a multipart form and the service answers with a content identifier,
// which becomes the entry's content hash once approved.
package pin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// Client calls the remote pinning service over HTTP.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient creates a pinning client. token is sent as a bearer token when non-empty.
func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{},
	}
}

// Pin streams the archive to the pinning service and returns the content
// identifier. The service's response shape has drifted across versions, so the
// identifier is accepted under any of the keys "requestid", "cid", or "hash";
// a response carrying none of them is an error.
func (c *Client) Pin(ctx context.Context, fileName string, content io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, content); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return "", fmt.Errorf("failed to create pin request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("pinning service returned status %d: %s", resp.StatusCode, string(data))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode pin response: %w", err)
	}

	id := extractIdentifier(result)
	if id == "" {
		return "", fmt.Errorf("pinning service response contained no content identifier")
	}

	return id, nil
}

// extractIdentifier pulls the content identifier out of a pin response,
// checking the known keys in a fixed priority order.
func extractIdentifier(result map[string]interface{}) string {
	for _, key := range []string{"requestid", "cid", "hash"} {
		if v, ok := result[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
