package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/clients/shopify"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/normalize"
)

// RetrievalError is a non-recoverable failure during catalog retrieval.
// The fetch is all-or-nothing: pages accumulated before the failure are
// discarded.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("catalog retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// CatalogFetcher retrieves the full remote catalog, page by page, and
// flattens it into variant records.
type CatalogFetcher struct {
	client     *shopify.Client
	locationID int64
	pageSize   int
	pageDelay  time.Duration
	log        *logrus.Entry
}

// NewCatalogFetcher creates a catalog fetcher. pageDelay is the fixed
// pause between successful page requests, distinct from the reactive 429
// backoff inside the client.
func NewCatalogFetcher(client *shopify.Client, locationID int64, pageSize int, pageDelay time.Duration, log *logrus.Entry) *CatalogFetcher {
	if pageSize <= 0 {
		pageSize = 250
	}
	return &CatalogFetcher{
		client:     client,
		locationID: locationID,
		pageSize:   pageSize,
		pageDelay:  pageDelay,
		log:        log,
	}
}

// FetchAll retrieves every page of the remote catalog and returns one
// record per variant, in server order. Rate-limit responses are absorbed by
// the client; any other failure aborts the fetch with *RetrievalError.
//
// Retrieval carries one business rule: a variant whose price normalizes to
// exactly zero is corrected remotely (inventory forced to 0, product set to
// draft) before its record is returned. Zero-priced items must never be
// sellable, so the correction happens here rather than waiting for an
// apply phase that may never run.
func (f *CatalogFetcher) FetchAll(ctx context.Context) ([]models.CatalogVariant, error) {
	var variants []models.CatalogVariant
	var pageInfo string

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page, err := f.client.ListProducts(ctx, f.pageSize, pageInfo)
		if err != nil {
			return nil, &RetrievalError{Err: err}
		}

		for _, product := range page.Products {
			for _, v := range product.Variants {
				record := f.flattenVariant(product, v)
				if record.Price.IsZero() {
					f.quarantineZeroPriced(ctx, &record)
				}
				variants = append(variants, record)
			}
		}

		if !page.HasMore {
			break
		}
		pageInfo = page.NextPageInfo

		if f.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.pageDelay):
			}
		}
	}

	f.log.WithField("variants", len(variants)).Info("Catalog fetch completed")
	return variants, nil
}

// flattenVariant carries the parent product's id, title, status and
// timestamps down onto the variant record.
func (f *CatalogFetcher) flattenVariant(product shopify.Product, v shopify.Variant) models.CatalogVariant {
	return models.CatalogVariant{
		ProductID:       product.ID,
		VariantID:       v.ID,
		InventoryItemID: v.InventoryItemID,
		Title:           product.Title,
		SKU:             v.SKU,
		Price:           normalize.Number(v.Price, decimal.Zero),
		InventoryQty:    v.InventoryQuantity,
		Status:          models.VariantStatus(product.Status),
		CreatedAt:       product.CreatedAt.Ptr(),
		UpdatedAt:       product.UpdatedAt.Ptr(),
	}
}

// quarantineZeroPriced zeroes the remote inventory and drafts the product,
// then updates the local record to match. Correction failures are logged
// and do not abort the fetch.
func (f *CatalogFetcher) quarantineZeroPriced(ctx context.Context, record *models.CatalogVariant) {
	log := f.log.WithFields(logrus.Fields{
		"sku":       record.SKU,
		"variantId": record.VariantID,
	})

	if err := f.client.SetInventoryLevel(ctx, f.locationID, record.InventoryItemID, 0); err != nil {
		log.WithError(err).Warn("Failed to zero inventory for zero-priced variant")
	}
	if err := f.client.SetProductStatus(ctx, record.ProductID, string(models.VariantStatusDraft)); err != nil {
		log.WithError(err).Warn("Failed to draft zero-priced product")
	}

	record.InventoryQty = 0
	record.Status = models.VariantStatusDraft
	log.Info("Quarantined zero-priced variant")
}
