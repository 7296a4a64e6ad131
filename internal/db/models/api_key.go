// api_key.go defines the APIKey model used to authenticate sellers on mutating routes.
// Only the bcrypt hash of a key is stored; the raw key is shown once at creation time.
package models

import "time"

// APIKey represents a long-lived seller credential.
type APIKey struct {
	ID            string     `db:"id" json:"id"`
	SellerID      string     `db:"seller_id" json:"seller_id"`
	Name          string     `db:"name" json:"name"`
	KeyHash       string     `db:"key_hash" json:"-"`
	DisplayPrefix string     `db:"display_prefix" json:"display_prefix"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LastUsedAt    *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
}
