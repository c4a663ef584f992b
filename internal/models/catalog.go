package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VariantStatus mirrors the remote product status. The set of values is
// owned by the remote system; values outside the known constants are
// passed through unchanged.
type VariantStatus string

const (
	VariantStatusActive   VariantStatus = "active"
	VariantStatusDraft    VariantStatus = "draft"
	VariantStatusArchived VariantStatus = "archived"
)

// CatalogVariant is one sellable unit of the remote catalog, flattened from
// the product/variant nesting the remote API returns. It is materialized
// fresh on every fetch and never mutated locally.
type CatalogVariant struct {
	ProductID       int64           `json:"productId"`
	VariantID       int64           `json:"variantId"`
	InventoryItemID int64           `json:"inventoryItemId"`
	Title           string          `json:"title"`
	SKU             string          `json:"sku"`
	Price           decimal.Decimal `json:"price"`
	InventoryQty    int             `json:"inventoryQuantity"`
	Status          VariantStatus   `json:"status"`
	CreatedAt       *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt       *time.Time      `json:"updatedAt,omitempty"`
}

// ExternalRecord is one row of desired state parsed from the uploaded
// spreadsheet. Immutable once parsed; lives for a single sync run.
type ExternalRecord struct {
	SearchKey        string          `json:"searchKey"`
	DesiredPrice     decimal.Decimal `json:"desiredPrice"`
	DesiredInventory decimal.Decimal `json:"desiredInventory"`
	Title            string          `json:"title"`
	Brand            string          `json:"brand"`
}

// MatchedPair joins a catalog variant with the external record that shares
// its normalized SKU.
type MatchedPair struct {
	Variant CatalogVariant `json:"variant"`
	Record  ExternalRecord `json:"record"`
}

// ReconciliationPlan partitions the external records into update and create
// candidates. Every external record appears either paired in Matched or in
// Unmatched. A catalog side with duplicate SKUs fans out into multiple
// pairs for the same record.
type ReconciliationPlan struct {
	Matched   []MatchedPair    `json:"matched"`
	Unmatched []ExternalRecord `json:"unmatched"`
}

// TotalOperations is the number of mutations the apply phase will attempt.
func (p *ReconciliationPlan) TotalOperations() int {
	return len(p.Matched) + len(p.Unmatched)
}

// ApplyOp distinguishes the two kinds of mutation.
type ApplyOp string

const (
	ApplyOpUpdate ApplyOp = "UPDATE"
	ApplyOpCreate ApplyOp = "CREATE"
)

// ApplyOutcome reports the result of a single update or create.
type ApplyOutcome struct {
	Op        ApplyOp `json:"op"`
	SearchKey string  `json:"searchKey"`
	VariantID int64   `json:"variantId,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Failed reports whether the record's mutation failed.
func (o ApplyOutcome) Failed() bool {
	return o.Error != ""
}

// ApplyResult aggregates the per-record outcomes of an apply phase.
type ApplyResult struct {
	UpdatedCount int            `json:"updatedCount"`
	CreatedCount int            `json:"createdCount"`
	FailedCount  int            `json:"failedCount"`
	Failures     []ApplyOutcome `json:"failures,omitempty"`
}
