// app.go implements GitHub App authentication: a short-lived RS256-signed JWT
// identifies the App, and that JWT is exchanged for an installation access token
// scoped to the repositories the App is installed on. Installation tokens are
// cached until shortly before expiry.
package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mvpmarket/mvpmarket/internal/scm"
)

// expirySlack is how early a cached installation token is considered stale,
// so a token never expires mid-request.
const expirySlack = 2 * time.Minute

// AppAuth mints and caches GitHub App installation tokens.
type AppAuth struct {
	appID      string
	privateKey *rsa.PrivateKey
	apiURL     string
	httpClient *http.Client

	mu sync.Mutex
	// installation tokens keyed by installation ID
	tokens map[int64]cachedToken
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// NewAppAuth loads the App's RSA private key from keyPath and returns an
// authenticator for the given App ID.
func NewAppAuth(appID, keyPath, apiURL string) (*AppAuth, error) {
	pemBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read GitHub App private key: %w", err)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GitHub App private key: %w", err)
	}

	return &AppAuth{
		appID:      appID,
		privateKey: key,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     make(map[int64]cachedToken),
	}, nil
}

// appJWT signs a JWT identifying the App itself. GitHub rejects JWTs older than
// 10 minutes; the iat backdate absorbs clock skew between us and GitHub.
func (a *AppAuth) appJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    a.appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign App JWT: %w", err)
	}
	return signed, nil
}

// InstallationToken returns an access token for the App installation covering
// the given repository, minting a fresh one if the cache is empty or stale.
func (a *AppAuth) InstallationToken(ctx context.Context, owner, repo string) (string, error) {
	installationID, err := a.lookupInstallation(ctx, owner, repo)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	cached, ok := a.tokens[installationID]
	a.mu.Unlock()
	if ok && time.Until(cached.expiresAt) > expirySlack {
		return cached.token, nil
	}

	token, expiresAt, err := a.mintInstallationToken(ctx, installationID)
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	a.tokens[installationID] = cachedToken{token: token, expiresAt: expiresAt}
	a.mu.Unlock()

	return token, nil
}

// lookupInstallation resolves the App installation ID for a repository.
func (a *AppAuth) lookupInstallation(ctx context.Context, owner, repo string) (int64, error) {
	appToken, err := a.appJWT()
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/installation", a.apiURL, owner, repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create installation lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, scm.NewAPIError(0, "failed to look up App installation", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("GitHub App is not installed on %s/%s", owner, repo)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, scm.NewAPIError(resp.StatusCode, "failed to look up App installation", nil)
	}

	var installation struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&installation); err != nil {
		return 0, fmt.Errorf("failed to decode installation: %w", err)
	}

	return installation.ID, nil
}

// mintInstallationToken exchanges the App JWT for an installation access token.
func (a *AppAuth) mintInstallationToken(ctx context.Context, installationID int64) (string, time.Time, error) {
	appToken, err := a.appJWT()
	if err != nil {
		return "", time.Time{}, err
	}

	endpoint := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.apiURL, installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+appToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, scm.NewAPIError(0, "failed to mint installation token", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", time.Time{}, scm.NewAPIError(resp.StatusCode, fmt.Sprintf("failed to mint installation token: %s", data), nil)
	}

	var result struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode installation token: %w", err)
	}

	return result.Token, result.ExpiresAt, nil
}
