// Package item persists store items, the deduplicated records produced by
// bulk ingest.
package item

import (
	"context"
	"encoding/json"
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

const itemColumns = "id, api_client_id, fingerprint, data, price, quantity, is_exported, exported_at, created_at, updated_at"

// Repository handles store item persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new item repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByFingerprint returns items matching (api_client_id, fingerprint),
// lowest id first. The table's unique constraint keeps this to one row; a
// second row means the constraint was violated out of band, so up to two
// rows are returned for the caller to observe.
func (r *Repository) FindByFingerprint(ctx context.Context, apiClientID, fp string) ([]models.StoreItem, error) {
	ctx, span := tracing.StartSpan(ctx, "item.Repository.FindByFingerprint")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "api_client_id", "fingerprint", "data", "price", "quantity", "is_exported", "exported_at", "created_at", "updated_at")
	sb.From("store_items")
	sb.Where(
		sb.Equal("api_client_id", apiClientID),
		sb.Equal("fingerprint", fp),
	)
	sb.OrderBy("id ASC")
	sb.Limit(2)

	query, args := sb.Build()
	var items []models.StoreItem
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"client_id": apiClientID}).Error("Failed to find items by fingerprint")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find items")
	}
	return items, nil
}

// Upsert inserts a new item, or replaces the row already holding the
// fingerprint when another writer got there first. The replaced row keeps
// its id and created_at but is otherwise overwritten and marked unexported.
func (r *Repository) Upsert(ctx context.Context, apiClientID, fp string, data json.RawMessage, price, quantity *float64) (*models.UpsertItemResult, error) {
	ctx, span := tracing.StartSpan(ctx, "item.Repository.Upsert")
	defer span.End()

	now := time.Now().UTC()
	id := uuid.New().String()

	query := `
		INSERT INTO store_items (
			id, api_client_id, fingerprint, data, price, quantity,
			is_exported, exported_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, false, NULL, $7, $7)
		ON CONFLICT (api_client_id, fingerprint)
		DO UPDATE SET
			data = EXCLUDED.data,
			price = EXCLUDED.price,
			quantity = EXCLUDED.quantity,
			is_exported = false,
			exported_at = NULL,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + itemColumns + `, (xmax = 0) AS inserted
	`

	var result struct {
		models.StoreItem
		Inserted bool `db:"inserted"`
	}

	err := database.FromContext(ctx, r.db).GetContext(ctx, &result, query,
		id, apiClientID, fp, data, price, quantity, now,
	)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"client_id": apiClientID}).Error("Failed to upsert item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert item")
	}

	return &models.UpsertItemResult{Item: &result.StoreItem, Inserted: result.Inserted}, nil
}

// Update replaces an existing item's payload and measures in place. The row
// keeps its id and created_at; it is marked unexported so automation picks
// up the new state.
func (r *Repository) Update(ctx context.Context, id string, data json.RawMessage, price, quantity *float64) (*models.StoreItem, error) {
	ctx, span := tracing.StartSpan(ctx, "item.Repository.Update")
	defer span.End()

	query := `
		UPDATE store_items
		SET data = $1, price = $2, quantity = $3,
			is_exported = false, exported_at = NULL, updated_at = $4
		WHERE id = $5
		RETURNING ` + itemColumns

	var item models.StoreItem
	err := database.FromContext(ctx, r.db).GetContext(ctx, &item, query,
		data, price, quantity, time.Now().UTC(), id,
	)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "item not found")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"item_id": id}).Error("Failed to update item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update item")
	}

	return &item, nil
}

// ListUnexportedForUpdate returns up to limit unexported items, oldest
// first, locking them against concurrent automation readers. Must run
// inside a transaction.
func (r *Repository) ListUnexportedForUpdate(ctx context.Context, apiClientID string, limit int) ([]models.StoreItem, error) {
	ctx, span := tracing.StartSpan(ctx, "item.Repository.ListUnexportedForUpdate")
	defer span.End()

	query := `
		SELECT ` + itemColumns + `
		FROM store_items
		WHERE api_client_id = $1 AND is_exported = false
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`

	var items []models.StoreItem
	if err := database.FromContext(ctx, r.db).SelectContext(ctx, &items, query, apiClientID, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"client_id": apiClientID}).Error("Failed to list unexported items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list unexported items")
	}
	return items, nil
}

// MarkExported flags the given items as handed off to automation.
func (r *Repository) MarkExported(ctx context.Context, ids []string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "item.Repository.MarkExported")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("store_items")
	sb.Set(
		sb.Assign("is_exported", true),
		sb.Assign("exported_at", at),
	)
	sb.Where(sb.In("id", sqlbuilder.Flatten(ids)...))

	query, args := sb.Build()
	if _, err := database.FromContext(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(ids)}).Error("Failed to mark items exported")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark items exported")
	}

	return nil
}

// CountUnexported returns how many items are waiting for automation.
func (r *Repository) CountUnexported(ctx context.Context, apiClientID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "item.Repository.CountUnexported")
	defer span.End()

	query := `SELECT COUNT(*) FROM store_items WHERE api_client_id = $1 AND is_exported = false`

	var count int
	if err := database.FromContext(ctx, r.db).GetContext(ctx, &count, query, apiClientID); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"client_id": apiClientID}).Error("Failed to count unexported items")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count unexported items")
	}
	return count, nil
}
