package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/clients/shopify"
	"catalog-sync-service/internal/models"
)

// ProgressFunc receives a monotonically non-decreasing fraction in [0,1]
// after each processed record. It reaches exactly 1.0 after the last one.
type ProgressFunc func(fraction float64)

// OutcomeFunc receives the per-record outcome of each mutation as it
// completes, in processing order.
type OutcomeFunc func(outcome models.ApplyOutcome)

// Mutator applies a reconciliation plan against the remote catalog:
// price-then-inventory updates for matched pairs, draft product creation
// for unmatched records.
type Mutator struct {
	client     *shopify.Client
	locationID int64
	callDelay  time.Duration
	log        *logrus.Entry
}

// NewMutator creates a mutator. callDelay is the fixed pause between
// successive mutation calls, applied on top of the client's own pacing.
func NewMutator(client *shopify.Client, locationID int64, callDelay time.Duration, log *logrus.Entry) *Mutator {
	return &Mutator{
		client:     client,
		locationID: locationID,
		callDelay:  callDelay,
		log:        log,
	}
}

// Apply processes all updates, then all creates. A failed record is
// reported and skipped; the batch continues. onProgress and onOutcome may
// be nil. Returns early with the partial result when ctx is cancelled.
func (m *Mutator) Apply(ctx context.Context, plan models.ReconciliationPlan, onProgress ProgressFunc, onOutcome OutcomeFunc) (*models.ApplyResult, error) {
	result := &models.ApplyResult{}
	total := plan.TotalOperations()
	processed := 0

	report := func() {
		if onProgress == nil {
			return
		}
		fraction := 1.0
		if total > 0 {
			fraction = float64(processed) / float64(total)
		}
		if fraction > 1 {
			fraction = 1
		}
		if fraction < 0 {
			fraction = 0
		}
		onProgress(fraction)
	}

	record := func(outcome models.ApplyOutcome) {
		processed++
		if outcome.Failed() {
			result.FailedCount++
			result.Failures = append(result.Failures, outcome)
		} else if outcome.Op == models.ApplyOpUpdate {
			result.UpdatedCount++
		} else {
			result.CreatedCount++
		}
		if onOutcome != nil {
			onOutcome(outcome)
		}
		report()
	}

	for _, pair := range plan.Matched {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome := models.ApplyOutcome{
			Op:        models.ApplyOpUpdate,
			SearchKey: pair.Record.SearchKey,
			VariantID: pair.Variant.VariantID,
		}
		if err := m.applyUpdate(ctx, pair.Variant, pair.Record); err != nil {
			outcome.Error = err.Error()
			m.log.WithFields(logrus.Fields{
				"sku":       pair.Variant.SKU,
				"variantId": pair.Variant.VariantID,
			}).WithError(err).Warn("Failed to update variant")
		}
		record(outcome)

		if err := m.pace(ctx); err != nil {
			return result, err
		}
	}

	for _, rec := range plan.Unmatched {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome := models.ApplyOutcome{
			Op:        models.ApplyOpCreate,
			SearchKey: rec.SearchKey,
		}
		if err := m.applyCreate(ctx, rec); err != nil {
			outcome.Error = err.Error()
			m.log.WithField("searchKey", rec.SearchKey).WithError(err).Warn("Failed to create product")
		}
		record(outcome)

		if err := m.pace(ctx); err != nil {
			return result, err
		}
	}

	if total == 0 {
		report()
	}

	return result, nil
}

// applyUpdate pushes the desired price and then the desired inventory to
// the remote variant. The two writes are not atomic; a failure between
// them leaves the variant half-updated until the next run reconciles it.
func (m *Mutator) applyUpdate(ctx context.Context, variant models.CatalogVariant, rec models.ExternalRecord) error {
	inventoryItemID := variant.InventoryItemID
	if inventoryItemID == 0 {
		v, err := m.client.GetVariant(ctx, variant.VariantID)
		if err != nil {
			return fmt.Errorf("resolving inventory item id: %w", err)
		}
		inventoryItemID = v.InventoryItemID
	}

	if err := m.client.UpdateVariantPrice(ctx, variant.VariantID, rec.DesiredPrice); err != nil {
		return fmt.Errorf("updating price: %w", err)
	}

	qty := int(rec.DesiredInventory.IntPart())
	if err := m.client.SetInventoryLevel(ctx, m.locationID, inventoryItemID, qty); err != nil {
		return fmt.Errorf("setting inventory level: %w", err)
	}
	return nil
}

// applyCreate creates a draft product for a record with no catalog
// counterpart. Fractional desired inventory is truncated; a fraction of a
// unit is not meaningful for a new item.
func (m *Mutator) applyCreate(ctx context.Context, rec models.ExternalRecord) error {
	_, err := m.client.CreateProduct(ctx, shopify.CreateProductRequest{
		Title:             rec.Title,
		Vendor:            rec.Brand,
		SKU:               rec.SearchKey,
		Price:             rec.DesiredPrice,
		InventoryQuantity: int(rec.DesiredInventory.IntPart()),
	})
	return err
}

func (m *Mutator) pace(ctx context.Context) error {
	if m.callDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.callDelay):
		return nil
	}
}
