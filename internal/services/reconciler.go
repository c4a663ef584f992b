package services

import (
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/normalize"
)

// Reconcile joins the fetched catalog against the external record set on
// normalized identifier. External records whose key matches one or more
// catalog SKUs become update candidates; the rest become create candidates.
//
// The partition is exhaustive and stable: every external record lands in
// exactly one of the two sets, in input order. Duplicate catalog SKUs fan
// out into one pair per matching variant; the source data does not
// guarantee SKU uniqueness and collapsing the duplicates would silently
// skip updates.
func Reconcile(catalog []models.CatalogVariant, records []models.ExternalRecord, opts normalize.KeyOptions) models.ReconciliationPlan {
	bySKU := make(map[string][]models.CatalogVariant, len(catalog))
	for _, v := range catalog {
		key := normalize.Key(v.SKU, opts)
		if key == "" {
			continue
		}
		bySKU[key] = append(bySKU[key], v)
	}

	plan := models.ReconciliationPlan{}
	for _, record := range records {
		key := normalize.Key(record.SearchKey, opts)
		variants, ok := bySKU[key]
		if !ok {
			plan.Unmatched = append(plan.Unmatched, record)
			continue
		}
		for _, v := range variants {
			plan.Matched = append(plan.Matched, models.MatchedPair{Variant: v, Record: record})
		}
	}
	return plan
}
