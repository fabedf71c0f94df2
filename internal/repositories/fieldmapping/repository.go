// Package fieldmapping persists the per-organization quantity/price field
// mapping detected on first ingest.
package fieldmapping

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Repository handles field mapping persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new field mapping repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the mapping for an organization. Returns nil when the
// organization has never completed a first ingest.
func (r *Repository) Get(ctx context.Context, apiClientID string) (*models.FieldMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "fieldmapping.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "api_client_id", "quantity_field", "price_field", "raw_response", "detected_at")
	sb.From("field_mappings")
	sb.Where(sb.Equal("api_client_id", apiClientID))
	sb.Limit(1)

	query, args := sb.Build()
	var mapping models.FieldMapping
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &mapping, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"client_id": apiClientID}).Error("Failed to get field mapping")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get field mapping")
	}
	return &mapping, nil
}

// Create stores a detection result. The first writer for an organization
// wins: on a concurrent insert the existing row is returned unchanged, so a
// mapping, once stored, never changes.
func (r *Repository) Create(ctx context.Context, apiClientID string, quantityField, priceField *string, raw map[string]any) (*models.FieldMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "fieldmapping.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{"client_id": apiClientID})

	var rawResponse *database.JSONB[map[string]any]
	if raw != nil {
		jb := database.NewJSONB(raw)
		rawResponse = &jb
	}

	query := `
		INSERT INTO field_mappings (id, api_client_id, quantity_field, price_field, raw_response, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (api_client_id) DO NOTHING
	`

	result, err := database.FromContext(ctx, r.db).ExecContext(ctx, query,
		uuid.New().String(), apiClientID, quantityField, priceField, rawResponse, time.Now().UTC(),
	)
	if err != nil {
		log.WithError(err).Error("Failed to create field mapping")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create field mapping")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		log.WithError(err).Error("Failed to read field mapping insert result")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create field mapping")
	}

	mapping, err := r.Get(ctx, apiClientID)
	if err != nil {
		return nil, err
	}
	if mapping == nil {
		log.Error("Field mapping missing after insert")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create field mapping")
	}

	if rows == 0 {
		log.Debug("Field mapping already existed, using stored mapping")
	} else {
		log.WithFields(map[string]any{
			"quantity_field": mapping.QuantityField,
			"price_field":    mapping.PriceField,
		}).Info("Stored field mapping")
	}

	return mapping, nil
}
