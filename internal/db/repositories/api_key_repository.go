// api_key_repository.go implements APIKeyRepository, providing database queries for
// seller API key creation, prefix-based lookup, and last-used timestamp updates.
package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/mvpmarket/mvpmarket/internal/db/models"
)

// APIKeyRepository handles API key database operations
type APIKeyRepository struct {
	db *sql.DB
}

// NewAPIKeyRepository creates a new APIKeyRepository
func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Create inserts a new API key
func (r *APIKeyRepository) Create(ctx context.Context, apiKey *models.APIKey) error {
	query := `
		INSERT INTO api_keys (seller_id, name, key_hash, display_prefix)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	return r.db.QueryRowContext(ctx, query,
		apiKey.SellerID,
		apiKey.Name,
		apiKey.KeyHash,
		apiKey.DisplayPrefix,
	).Scan(&apiKey.ID, &apiKey.CreatedAt)
}

// GetByDisplayPrefix retrieves API keys matching a display prefix. The prefix is
// the short plaintext fragment shown to the seller; authentication bcrypt-compares
// the presented key against each candidate's hash.
func (r *APIKeyRepository) GetByDisplayPrefix(ctx context.Context, displayPrefix string) ([]*models.APIKey, error) {
	query := `
		SELECT id, seller_id, name, key_hash, display_prefix, created_at, last_used_at
		FROM api_keys
		WHERE display_prefix = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, displayPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)
	for rows.Next() {
		apiKey := &models.APIKey{}
		err := rows.Scan(
			&apiKey.ID,
			&apiKey.SellerID,
			&apiKey.Name,
			&apiKey.KeyHash,
			&apiKey.DisplayPrefix,
			&apiKey.CreatedAt,
			&apiKey.LastUsedAt,
		)
		if err != nil {
			return nil, err
		}
		apiKeys = append(apiKeys, apiKey)
	}

	return apiKeys, rows.Err()
}

// ListBySeller retrieves all API keys belonging to a seller
func (r *APIKeyRepository) ListBySeller(ctx context.Context, sellerID string) ([]*models.APIKey, error) {
	query := `
		SELECT id, seller_id, name, key_hash, display_prefix, created_at, last_used_at
		FROM api_keys
		WHERE seller_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apiKeys := make([]*models.APIKey, 0)
	for rows.Next() {
		apiKey := &models.APIKey{}
		err := rows.Scan(
			&apiKey.ID,
			&apiKey.SellerID,
			&apiKey.Name,
			&apiKey.KeyHash,
			&apiKey.DisplayPrefix,
			&apiKey.CreatedAt,
			&apiKey.LastUsedAt,
		)
		if err != nil {
			return nil, err
		}
		apiKeys = append(apiKeys, apiKey)
	}

	return apiKeys, rows.Err()
}

// UpdateLastUsed updates the last_used_at timestamp for an API key
func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, keyID string) error {
	query := `
		UPDATE api_keys
		SET last_used_at = $2
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, keyID, time.Now())
	return err
}

// Revoke deletes an API key
func (r *APIKeyRepository) Revoke(ctx context.Context, keyID string) error {
	query := `DELETE FROM api_keys WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, keyID)
	return err
}
