package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/extractor"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/locks"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ItemStore persists deduplicated items.
type ItemStore interface {
	FindByFingerprint(ctx context.Context, apiClientID, fp string) ([]models.StoreItem, error)
	Upsert(ctx context.Context, apiClientID, fp string, data json.RawMessage, price, quantity *float64) (*models.UpsertItemResult, error)
	Update(ctx context.Context, id string, data json.RawMessage, price, quantity *float64) (*models.StoreItem, error)
}

// EngineConfig holds configuration for the ingest engine
type EngineConfig struct {
	// MaxBatchSize is the largest accepted batch; bigger batches are
	// rejected before any work happens
	MaxBatchSize int
}

// DefaultEngineConfig returns the default ingest configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxBatchSize: 1000,
	}
}

// Engine implements batch deduplication and upsert logic
type Engine struct {
	logger    ectologger.Logger
	db        database.DB
	resolver  *Resolver
	extractor *extractor.Extractor
	items     ItemStore
	locker    locks.Locker
	emitter   *events.Emitter
	config    EngineConfig
}

// NewEngine creates a new ingest engine
func NewEngine(
	logger ectologger.Logger,
	db database.DB,
	resolver *Resolver,
	items ItemStore,
	locker locks.Locker,
	emitter *events.Emitter,
	config EngineConfig,
) *Engine {
	return &Engine{
		logger:    logger,
		db:        db,
		resolver:  resolver,
		extractor: extractor.New(),
		items:     items,
		locker:    locker,
		emitter:   emitter,
		config:    config,
	}
}

// IngestBatch deduplicates and upserts a batch of records for one
// organization. Item writes are all-or-nothing: a failure on any record rolls
// back the whole batch. The organization's field mapping is resolved and
// persisted before the batch transaction opens, so a failed batch never
// re-triggers detection.
func (e *Engine) IngestBatch(ctx context.Context, client *models.ApiClient, records []map[string]any) (*models.BulkIngestResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Engine.IngestBatch")
	defer span.End()

	start := time.Now()

	if len(records) > e.config.MaxBatchSize {
		metrics.RecordBatch("rejected", len(records), time.Since(start).Seconds())
		return nil, httperror.NewHTTPError(http.StatusRequestEntityTooLarge, "Batch size exceeds limit")
	}

	if len(records) == 0 {
		metrics.RecordBatch("success", 0, time.Since(start).Seconds())
		return &models.BulkIngestResponse{Processed: 0}, nil
	}

	// Batches for the same organization run one at a time so two concurrent
	// batches cannot both miss on the same fingerprint and double-insert.
	release, err := e.locker.Acquire(ctx, client.ID)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": client.ID,
		}).Error("Failed to acquire ingest lock")
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "ingest is busy, retry shortly")
	}
	defer release()

	mapping, err := e.resolver.Resolve(ctx, client.ID, records[0])
	if err != nil {
		metrics.RecordBatch("failed", len(records), time.Since(start).Seconds())
		return nil, err
	}

	txCtx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to begin ingest transaction")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to process batch")
	}
	defer tx.Rollback(ctx)

	results := make([]*models.UpsertItemResult, 0, len(records))
	for _, record := range records {
		result, err := e.processRecord(txCtx, client.ID, record, mapping)
		if err != nil {
			metrics.RecordBatch("failed", len(records), time.Since(start).Seconds())
			return nil, err
		}
		results = append(results, result)
	}

	if err := tx.Commit(txCtx); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": client.ID,
			"records":   len(records),
		}).Error("Failed to commit ingest batch")
		metrics.RecordBatch("failed", len(records), time.Since(start).Seconds())
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to process batch")
	}

	inserted, updated := 0, 0
	for _, result := range results {
		if result.Inserted {
			inserted++
			metrics.RecordRecord("inserted")
		} else {
			updated++
			metrics.RecordRecord("updated")
		}
	}

	duration := time.Since(start)
	metrics.RecordBatch("success", len(records), duration.Seconds())

	e.emitter.EmitItemsUpserted(ctx, client.ID, results)
	e.emitter.EmitBatchCompleted(ctx, client.ID, len(records), inserted, updated, duration)

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"client_id":   client.ID,
		"processed":   len(records),
		"inserted":    inserted,
		"updated":     updated,
		"duration_ms": duration.Milliseconds(),
	}).Info("Processed ingest batch")

	return &models.BulkIngestResponse{Processed: len(records)}, nil
}

// processRecord fingerprints one record and routes it to an insert or an
// update of its duplicate.
func (e *Engine) processRecord(ctx context.Context, apiClientID string, record map[string]any, mapping *models.FieldMapping) (*models.UpsertItemResult, error) {
	if record == nil {
		record = map[string]any{}
	}

	ext := e.extractor.Extract(record, mapping)
	fp := fingerprint.Generate(ext.Comparable)

	data, err := json.Marshal(record)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to serialize record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to process batch")
	}

	matches, err := e.items.FindByFingerprint(ctx, apiClientID, fp)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		return e.items.Upsert(ctx, apiClientID, fp, data, ext.Price, ext.Quantity)
	}

	if len(matches) > 1 {
		metrics.IntegrityViolationsTotal.Inc()
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"client_id":   apiClientID,
			"fingerprint": fp,
		}).Warn("Multiple items share a fingerprint, updating the oldest")
	}

	item, err := e.items.Update(ctx, matches[0].ID, data, ext.Price, ext.Quantity)
	if err != nil {
		return nil, err
	}

	return &models.UpsertItemResult{Item: item, Inserted: false}, nil
}
