package models

import "time"

// ApiClient is a distributor organization with ingest access.
// The api key is never stored; only its sha256 digest is kept for lookup.
type ApiClient struct {
	ID                string     `json:"id" db:"id"`
	Email             string     `json:"email" db:"email"`
	OrgName           string     `json:"org_name" db:"org_name"`
	DistributorID     string     `json:"distributor_id" db:"distributor_id"`
	APIKeySHA         string     `json:"-" db:"api_key_sha"`
	PasswordHash      string     `json:"-" db:"password_hash"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	LastAPIKeyResetAt *time.Time `json:"last_api_key_reset_at,omitempty" db:"last_api_key_reset_at"`
}

// RegisterClientRequest is the request for registering an organization
type RegisterClientRequest struct {
	Email         string `json:"email" validate:"required,email"`
	OrgName       string `json:"org_name" validate:"required,min=2,max=255"`
	DistributorID string `json:"distributor_id" validate:"required,min=2,max=255"`
	Password      string `json:"password" validate:"required,min=8,max=128"`
}

// RegisterClientResponse returns the api key exactly once
type RegisterClientResponse struct {
	ClientID      string `json:"client_id"`
	APIKey        string `json:"api_key"`
	DistributorID string `json:"distributor_id"`
}

// TokenRequest exchanges credentials for a bearer token
type TokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ResetAPIKeyRequest regenerates the api key for an organization
type ResetAPIKeyRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ResetAPIKeyResponse struct {
	APIKey string `json:"api_key"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetResponse struct {
	Status string `json:"status"`
	// ResetToken is only populated when RESET_TOKEN_DEBUG is enabled
	ResetToken string `json:"reset_token,omitempty"`
}

type PasswordResetConfirmRequest struct {
	ResetToken  string `json:"reset_token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
}

type PasswordResetConfirmResponse struct {
	Status string `json:"status"`
}
