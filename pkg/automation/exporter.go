// Package automation drains unexported items to downstream sync consumers.
// Each batch is claimed exclusively: rows are selected FOR UPDATE SKIP LOCKED
// and marked exported in the same transaction, so concurrent pollers never
// receive the same item twice.
package automation

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ExportStore persists item export state.
type ExportStore interface {
	ListUnexportedForUpdate(ctx context.Context, apiClientID string, limit int) ([]models.StoreItem, error)
	MarkExported(ctx context.Context, ids []string, at time.Time) error
	CountUnexported(ctx context.Context, apiClientID string) (int, error)
}

// ExporterConfig holds configuration for the automation exporter
type ExporterConfig struct {
	// DefaultLimit is used when the caller does not ask for a batch size
	DefaultLimit int
	// MaxLimit caps the batch size a caller may request
	MaxLimit int
}

// DefaultExporterConfig returns the default automation configuration
func DefaultExporterConfig() ExporterConfig {
	return ExporterConfig{
		DefaultLimit: 100,
		MaxLimit:     1000,
	}
}

// Exporter hands unexported items to automation callers
type Exporter struct {
	logger ectologger.Logger
	db     database.DB
	items  ExportStore
	config ExporterConfig
}

// NewExporter creates a new automation exporter
func NewExporter(logger ectologger.Logger, db database.DB, items ExportStore, config ExporterConfig) *Exporter {
	return &Exporter{
		logger: logger,
		db:     db,
		items:  items,
		config: config,
	}
}

// ExportBatch claims up to limit unexported items for the organization and
// marks them exported. The claim and the mark happen in one transaction.
func (e *Exporter) ExportBatch(ctx context.Context, apiClientID string, limit int) (*models.AutomationBatchResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "automation.Exporter.ExportBatch")
	defer span.End()

	if limit <= 0 {
		limit = e.config.DefaultLimit
	}
	if limit > e.config.MaxLimit {
		limit = e.config.MaxLimit
	}

	txCtx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to begin export transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to export batch")
	}
	defer tx.Rollback(ctx)

	items, err := e.items.ListUnexportedForUpdate(txCtx, apiClientID, limit)
	if err != nil {
		metrics.AutomationExportsTotal.WithLabelValues("failure").Inc()
		return nil, err
	}

	if len(items) > 0 {
		ids := ectolinq.Map(items, func(item models.StoreItem) string { return item.ID })

		if err := e.items.MarkExported(txCtx, ids, time.Now().UTC()); err != nil {
			metrics.AutomationExportsTotal.WithLabelValues("failure").Inc()
			return nil, err
		}
	}

	if err := tx.Commit(txCtx); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": apiClientID,
			"items":     len(items),
		}).Error("Failed to commit export batch")
		metrics.AutomationExportsTotal.WithLabelValues("failure").Inc()
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to export batch")
	}

	metrics.AutomationExportsTotal.WithLabelValues("success").Add(float64(len(items)))

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"client_id": apiClientID,
		"items":     len(items),
	}).Info("Exported automation batch")

	response := &models.AutomationBatchResponse{Items: make([]models.AutomationItem, len(items))}
	for i, item := range items {
		response.Items[i] = models.AutomationItem{
			ID:        item.ID,
			Data:      item.Data,
			Price:     item.Price,
			Quantity:  item.Quantity,
			CreatedAt: item.CreatedAt,
			UpdatedAt: item.UpdatedAt,
		}
	}

	return response, nil
}

// Pending reports how many items are waiting for export.
func (e *Exporter) Pending(ctx context.Context, apiClientID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "automation.Exporter.Pending")
	defer span.End()

	return e.items.CountUnexported(ctx, apiClientID)
}
