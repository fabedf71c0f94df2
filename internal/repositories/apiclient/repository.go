// Package apiclient persists organization accounts and their credentials.
package apiclient

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const clientColumns = "id, email, org_name, distributor_id, api_key_sha, password_hash, created_at, last_api_key_reset_at"

// Repository handles api client persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new api client repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create registers a new organization account. Email and distributor id must
// both be unused.
func (r *Repository) Create(ctx context.Context, req models.RegisterClientRequest, apiKeySHA, passwordHash string) (*models.ApiClient, error) {
	ctx, span := tracing.StartSpan(ctx, "apiclient.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"email":          req.Email,
		"distributor_id": req.DistributorID,
	})

	client := models.ApiClient{
		ID:            uuid.New().String(),
		Email:         req.Email,
		OrgName:       req.OrgName,
		DistributorID: req.DistributorID,
		APIKeySHA:     apiKeySHA,
		PasswordHash:  passwordHash,
		CreatedAt:     time.Now().UTC(),
	}

	query := `
		INSERT INTO api_clients (id, email, org_name, distributor_id, api_key_sha, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		client.ID, client.Email, client.OrgName, client.DistributorID,
		client.APIKeySHA, client.PasswordHash, client.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return nil, httperror.NewHTTPError(http.StatusConflict, "organization already registered")
		}
		log.WithError(err).Error("Failed to create api client")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create api client")
	}

	log.WithFields(map[string]any{"client_id": client.ID}).Info("Registered api client")
	return &client, nil
}

// GetByID retrieves a client by id. Returns nil when not found.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.ApiClient, error) {
	ctx, span := tracing.StartSpan(ctx, "apiclient.Repository.GetByID")
	defer span.End()

	query := `SELECT ` + clientColumns + ` FROM api_clients WHERE id = $1`

	var client models.ApiClient
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &client, query, id); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"client_id": id}).Error("Failed to get api client")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get api client")
	}
	return &client, nil
}

// GetByEmail retrieves a client by email. Returns nil when not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.ApiClient, error) {
	ctx, span := tracing.StartSpan(ctx, "apiclient.Repository.GetByEmail")
	defer span.End()

	query := `SELECT ` + clientColumns + ` FROM api_clients WHERE email = $1`

	var client models.ApiClient
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &client, query, email); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get api client by email")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get api client")
	}
	return &client, nil
}

// GetByAPIKeySHA retrieves a client by the digest of its api key. Returns
// nil when no client holds the key.
func (r *Repository) GetByAPIKeySHA(ctx context.Context, apiKeySHA string) (*models.ApiClient, error) {
	ctx, span := tracing.StartSpan(ctx, "apiclient.Repository.GetByAPIKeySHA")
	defer span.End()

	query := `SELECT ` + clientColumns + ` FROM api_clients WHERE api_key_sha = $1`

	var client models.ApiClient
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &client, query, apiKeySHA); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get api client by api key")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get api client")
	}
	return &client, nil
}

// UpdateAPIKey replaces the stored api key digest and records the reset time.
func (r *Repository) UpdateAPIKey(ctx context.Context, clientID, apiKeySHA string, resetAt time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "apiclient.Repository.UpdateAPIKey")
	defer span.End()

	query := `UPDATE api_clients SET api_key_sha = $1, last_api_key_reset_at = $2 WHERE id = $3`

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, apiKeySHA, resetAt, clientID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"client_id": clientID}).Error("Failed to update api key")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update api key")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"client_id": clientID}).Info("Rotated api key")
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *Repository) UpdatePassword(ctx context.Context, clientID, passwordHash string) error {
	ctx, span := tracing.StartSpan(ctx, "apiclient.Repository.UpdatePassword")
	defer span.End()

	query := `UPDATE api_clients SET password_hash = $1 WHERE id = $2`

	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, passwordHash, clientID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"client_id": clientID}).Error("Failed to update password")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update password")
	}

	return nil
}
