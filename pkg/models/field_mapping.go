package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// FieldMapping records which payload keys carry quantity and price for one
// organization. Detected once on the organization's first batch and never
// re-detected, even when later batches arrive with a different shape. Both
// fields stay null when detection failed or found nothing.
type FieldMapping struct {
	ID            string                          `json:"id" db:"id"`
	APIClientID   string                          `json:"api_client_id" db:"api_client_id"`
	QuantityField *string                         `json:"quantity_field" db:"quantity_field"`
	PriceField    *string                         `json:"price_field" db:"price_field"`
	RawResponse   *database.JSONB[map[string]any] `json:"raw_response,omitempty" db:"raw_response"`
	DetectedAt    time.Time                       `json:"detected_at" db:"detected_at"`
}

// Excludes returns the payload keys removed before fingerprinting.
func (m *FieldMapping) Excludes() []string {
	var keys []string
	if m.QuantityField != nil && *m.QuantityField != "" {
		keys = append(keys, *m.QuantityField)
	}
	if m.PriceField != nil && *m.PriceField != "" {
		keys = append(keys, *m.PriceField)
	}
	return keys
}
