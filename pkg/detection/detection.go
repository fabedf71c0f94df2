// Package detection identifies which fields of an ingest record carry
// quantity and price. Detection runs once per organization, on the first
// record it ever sends, and the result is kept whatever it is.
package detection

import (
	"context"
)

// Result is the outcome of a detection attempt. A nil field means the
// detector could not identify one, which is a valid, cacheable answer.
type Result struct {
	QuantityField *string
	PriceField    *string
	// Raw is the provider response as returned, kept for later inspection.
	Raw map[string]any
}

// Detector inspects a sample record and names its quantity and price fields.
// Implementations must respect the context deadline; the caller treats any
// error as "nothing detected".
type Detector interface {
	DetectFields(ctx context.Context, sample map[string]any) (*Result, error)
}

// Disabled is a Detector that never detects anything. It is used when no
// provider is configured so that first ingests still record a mapping.
type Disabled struct{}

// NewDisabled creates a Disabled detector.
func NewDisabled() *Disabled {
	return &Disabled{}
}

// DetectFields always reports no detected fields.
func (d *Disabled) DetectFields(_ context.Context, _ map[string]any) (*Result, error) {
	return &Result{}, nil
}
