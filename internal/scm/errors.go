// errors.go defines sentinel error values shared across source-control integrations.
package scm

import "errors"

var (
	// Repository errors
	ErrRepositoryNotFound  = errors.New("repository not found")
	ErrRepositoryForbidden = errors.New("access to repository forbidden")
	ErrBranchNotFound      = errors.New("branch not found")
	ErrCommitNotFound      = errors.New("commit not found")
	ErrNoReleases          = errors.New("repository has no releases")

	// Webhook errors
	ErrWebhookSignatureInvalid = errors.New("webhook signature is invalid")
	ErrWebhookPayloadInvalid   = errors.New("webhook payload is invalid")

	// Archive errors
	ErrArchiveDownloadFailed = errors.New("failed to download repository archive")

	// Rate limiting
	ErrRateLimitExceeded = errors.New("API rate limit exceeded")
)

// APIError represents an error from the provider API
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewAPIError creates a new API error
func NewAPIError(statusCode int, message string, err error) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Err:        err,
	}
}
