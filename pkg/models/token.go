package models

import "time"

// AccessToken is an opaque bearer token for the automation endpoints,
// stored as a sha256 digest.
type AccessToken struct {
	ID          string    `json:"id" db:"id"`
	APIClientID string    `json:"api_client_id" db:"api_client_id"`
	TokenSHA    string    `json:"-" db:"token_sha"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
}

// PasswordResetToken is a single-use token for the password reset flow.
type PasswordResetToken struct {
	ID          string     `json:"id" db:"id"`
	APIClientID string     `json:"api_client_id" db:"api_client_id"`
	TokenSHA    string     `json:"-" db:"token_sha"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at" db:"expires_at"`
	UsedAt      *time.Time `json:"used_at,omitempty" db:"used_at"`
}
