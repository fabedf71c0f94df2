// Package token persists opaque access tokens and password reset tokens.
package token

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Repository handles token persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new token repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateAccessToken stores the digest of a freshly issued bearer token.
func (r *Repository) CreateAccessToken(ctx context.Context, apiClientID, tokenSHA string, expiresAt time.Time) (*models.AccessToken, error) {
	ctx, span := tracing.StartSpan(ctx, "token.Repository.CreateAccessToken")
	defer span.End()

	token := models.AccessToken{
		ID:          uuid.New().String(),
		APIClientID: apiClientID,
		TokenSHA:    tokenSHA,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}

	query := `
		INSERT INTO access_tokens (id, api_client_id, token_sha, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		token.ID, token.APIClientID, token.TokenSHA, token.CreatedAt, token.ExpiresAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"client_id": apiClientID}).Error("Failed to create access token")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create access token")
	}

	return &token, nil
}

// GetAccessToken looks up a live token by digest. Expired tokens are treated
// as absent.
func (r *Repository) GetAccessToken(ctx context.Context, tokenSHA string) (*models.AccessToken, error) {
	ctx, span := tracing.StartSpan(ctx, "token.Repository.GetAccessToken")
	defer span.End()

	query := `
		SELECT id, api_client_id, token_sha, created_at, expires_at
		FROM access_tokens
		WHERE token_sha = $1 AND expires_at > $2
	`

	var token models.AccessToken
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &token, query, tokenSHA, time.Now().UTC()); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get access token")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get access token")
	}
	return &token, nil
}

// DeleteExpiredAccessTokens removes tokens past their expiry. Returns the
// number of rows removed.
func (r *Repository) DeleteExpiredAccessTokens(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "token.Repository.DeleteExpiredAccessTokens")
	defer span.End()

	query := `DELETE FROM access_tokens WHERE expires_at <= $1`

	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete expired access tokens")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete expired access tokens")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return rows, nil
}

// RevokeAccessTokens deletes every access token belonging to a client.
func (r *Repository) RevokeAccessTokens(ctx context.Context, apiClientID string) error {
	ctx, span := tracing.StartSpan(ctx, "token.Repository.RevokeAccessTokens")
	defer span.End()

	query := `DELETE FROM access_tokens WHERE api_client_id = $1`

	_, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, apiClientID)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"client_id": apiClientID}).Error("Failed to revoke access tokens")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to revoke access tokens")
	}

	return nil
}

// CreatePasswordResetToken stores the digest of a password reset token.
func (r *Repository) CreatePasswordResetToken(ctx context.Context, apiClientID, tokenSHA string, expiresAt time.Time) (*models.PasswordResetToken, error) {
	ctx, span := tracing.StartSpan(ctx, "token.Repository.CreatePasswordResetToken")
	defer span.End()

	token := models.PasswordResetToken{
		ID:          uuid.New().String(),
		APIClientID: apiClientID,
		TokenSHA:    tokenSHA,
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt,
	}

	query := `
		INSERT INTO password_reset_tokens (id, api_client_id, token_sha, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		token.ID, token.APIClientID, token.TokenSHA, token.CreatedAt, token.ExpiresAt,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"client_id": apiClientID}).Error("Failed to create password reset token")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create password reset token")
	}

	return &token, nil
}

// GetPasswordResetToken looks up an unused, unexpired reset token by digest.
func (r *Repository) GetPasswordResetToken(ctx context.Context, tokenSHA string) (*models.PasswordResetToken, error) {
	ctx, span := tracing.StartSpan(ctx, "token.Repository.GetPasswordResetToken")
	defer span.End()

	query := `
		SELECT id, api_client_id, token_sha, created_at, expires_at, used_at
		FROM password_reset_tokens
		WHERE token_sha = $1 AND used_at IS NULL AND expires_at > $2
	`

	var token models.PasswordResetToken
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &token, query, tokenSHA, time.Now().UTC()); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get password reset token")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get password reset token")
	}
	return &token, nil
}

// MarkResetTokenUsed consumes a reset token so it cannot be replayed.
func (r *Repository) MarkResetTokenUsed(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "token.Repository.MarkResetTokenUsed")
	defer span.End()

	query := `UPDATE password_reset_tokens SET used_at = $1 WHERE id = $2 AND used_at IS NULL`

	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"token_id": id}).Error("Failed to mark reset token used")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark reset token used")
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return httperror.NewHTTPError(http.StatusBadRequest, "reset token already used")
	}

	return nil
}
