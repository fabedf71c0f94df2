package ingest

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/detection"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MappingStore loads and persists field mappings.
type MappingStore interface {
	Get(ctx context.Context, apiClientID string) (*models.FieldMapping, error)
	Create(ctx context.Context, apiClientID string, quantityField, priceField *string, raw map[string]any) (*models.FieldMapping, error)
}

// Resolver produces the field mapping for an organization, detecting one on
// the organization's first ever record. Whatever detection yields, including
// nothing at all, is stored permanently; the detector is never consulted
// again for that organization.
type Resolver struct {
	store    MappingStore
	cache    *MappingCache
	detector detection.Detector
	timeout  time.Duration
	logger   ectologger.Logger
}

// NewResolver creates a Resolver. The timeout bounds each detector call.
func NewResolver(store MappingStore, cache *MappingCache, detector detection.Detector, timeout time.Duration, logger ectologger.Logger) *Resolver {
	return &Resolver{
		store:    store,
		cache:    cache,
		detector: detector,
		timeout:  timeout,
		logger:   logger,
	}
}

// Resolve returns the organization's mapping, creating it from the sample
// record if this is the first ingest. Detection failures degrade to a stored
// null mapping rather than failing the caller.
func (r *Resolver) Resolve(ctx context.Context, apiClientID string, sample map[string]any) (*models.FieldMapping, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Resolver.Resolve")
	defer span.End()

	if mapping := r.cache.Get(apiClientID); mapping != nil {
		return mapping, nil
	}

	mapping, err := r.store.Get(ctx, apiClientID)
	if err != nil {
		return nil, err
	}
	if mapping != nil {
		r.cache.Put(apiClientID, mapping)
		return mapping, nil
	}

	result := r.detect(ctx, apiClientID, sample)

	// The first writer wins; a concurrent first ingest elsewhere may have
	// stored its own result, in which case that one is returned.
	mapping, err = r.store.Create(ctx, apiClientID, result.QuantityField, result.PriceField, result.Raw)
	if err != nil {
		return nil, err
	}

	r.cache.Put(apiClientID, mapping)
	return mapping, nil
}

// detect runs the detector under the resolver's timeout. Any failure is
// absorbed into an empty result.
func (r *Resolver) detect(ctx context.Context, apiClientID string, sample map[string]any) *detection.Result {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	result, err := r.detector.DetectFields(ctx, sample)
	if err != nil {
		metrics.RecordDetection("failure", time.Since(start).Seconds())
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"client_id": apiClientID,
		}).Warn("Field detection failed, storing null mapping")
		return &detection.Result{}
	}

	metrics.RecordDetection("success", time.Since(start).Seconds())
	return result
}
