// Package extractor pulls quantity and price out of ingest records using an
// organization's field mapping and builds the comparable view of the record.
package extractor

import (
	"encoding/json"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Extraction is the result of applying a field mapping to a single record.
type Extraction struct {
	// Quantity is the numeric value of the mapped quantity field, nil when
	// the field is unmapped, absent, or non-numeric.
	Quantity *float64
	// Price is the numeric value of the mapped price field, nil when the
	// field is unmapped, absent, or non-numeric.
	Price *float64
	// Comparable is the record with the mapped keys removed. It is the view
	// of the record that participates in fingerprinting and matching.
	Comparable map[string]any
}

// Extractor applies field mappings to raw records.
type Extractor struct{}

// New creates a new Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract separates a record into its numeric measures and its comparable
// payload. A nil mapping (or a mapping with both fields null) leaves the
// record fully comparable with nil measures. Mapped values that are not
// numeric are treated as absent; no string parsing is attempted.
func (e *Extractor) Extract(record map[string]any, mapping *models.FieldMapping) Extraction {
	result := Extraction{
		Comparable: make(map[string]any, len(record)),
	}

	excluded := make(map[string]bool, 2)
	if mapping != nil {
		if mapping.QuantityField != nil && *mapping.QuantityField != "" {
			excluded[*mapping.QuantityField] = true
			if raw, ok := record[*mapping.QuantityField]; ok {
				result.Quantity = toNumber(raw)
			}
		}
		if mapping.PriceField != nil && *mapping.PriceField != "" {
			excluded[*mapping.PriceField] = true
			if raw, ok := record[*mapping.PriceField]; ok {
				result.Price = toNumber(raw)
			}
		}
	}

	for key, value := range record {
		if excluded[key] {
			continue
		}
		result.Comparable[key] = value
	}

	return result
}

// toNumber converts a decoded JSON value to a float64 if it is numeric.
// Strings, booleans, nulls, and composites yield nil.
func toNumber(v any) *float64 {
	switch val := v.(type) {
	case float64:
		return &val
	case float32:
		f := float64(val)
		return &f
	case int:
		f := float64(val)
		return &f
	case int64:
		f := float64(val)
		return &f
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// FromJSON parses a raw JSON object into a map.
func FromJSON(data json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
