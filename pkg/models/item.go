package models

import (
	"encoding/json"
	"time"
)

// StoreItem is one deduplicated record for an organization. The fingerprint
// is the sha256 of the canonical payload minus the organization's mapped
// quantity/price keys; (api_client_id, fingerprint) is unique. Data keeps the
// payload exactly as received, mapped keys included; price and quantity are
// denormalized copies of the extracted values.
type StoreItem struct {
	ID          string          `json:"id" db:"id"`
	APIClientID string          `json:"api_client_id" db:"api_client_id"`
	Fingerprint string          `json:"fingerprint" db:"fingerprint"`
	Data        json.RawMessage `json:"data" db:"data"`
	Price       *float64        `json:"price" db:"price"`
	Quantity    *float64        `json:"quantity" db:"quantity"`
	IsExported  bool            `json:"is_exported" db:"is_exported"`
	ExportedAt  *time.Time      `json:"exported_at,omitempty" db:"exported_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// UpsertItemResult reports which terminal state a record reached.
type UpsertItemResult struct {
	Item     *StoreItem
	Inserted bool
}

// BulkIngestResponse is the ingest success body.
type BulkIngestResponse struct {
	Processed int `json:"processed"`
}

// AutomationItem is one exported record in an automation batch.
type AutomationItem struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Price     *float64        `json:"price"`
	Quantity  *float64        `json:"quantity"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// AutomationBatchResponse is the automation export body.
type AutomationBatchResponse struct {
	Items []AutomationItem `json:"items"`
}
