// Package events publishes item and batch lifecycle events after ingest
// work commits. Emission is best-effort: a failed publish never fails the
// batch that produced it.
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes ingest lifecycle events. A nil producer disables
// emission entirely.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter.
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// Enabled reports whether events will actually be published.
func (e *Emitter) Enabled() bool {
	return e != nil && e.producer != nil
}

// EmitItemsUpserted publishes one event per upserted item.
func (e *Emitter) EmitItemsUpserted(ctx context.Context, clientID string, results []*models.UpsertItemResult) {
	if !e.Enabled() || len(results) == 0 {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitItemsUpserted")
	defer span.End()

	events := make([]*kafka.ItemEvent, 0, len(results))
	for _, result := range results {
		eventType := "item.updated"
		if result.Inserted {
			eventType = "item.created"
		}

		events = append(events, &kafka.ItemEvent{
			EventType:   eventType,
			ClientID:    clientID,
			ItemID:      result.Item.ID,
			Fingerprint: result.Item.Fingerprint,
			Data:        result.Item.Data,
			Price:       result.Item.Price,
			Quantity:    result.Item.Quantity,
		})
	}

	if err := e.producer.PublishItemEvents(ctx, events); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit item events")
	}
}

// EmitBatchCompleted publishes a summary event for a committed batch.
func (e *Emitter) EmitBatchCompleted(ctx context.Context, clientID string, processed, inserted, updated int, duration time.Duration) {
	if !e.Enabled() {
		return
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBatchCompleted")
	defer span.End()

	event := &kafka.BatchEvent{
		EventType:  "batch.completed",
		ClientID:   clientID,
		Processed:  processed,
		Inserted:   inserted,
		Updated:    updated,
		DurationMS: duration.Milliseconds(),
	}

	if err := e.producer.PublishBatchEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit batch event")
	}
}
