// Package importer parses uploaded spreadsheets into the normalized record
// shape the sync engine operates on. It is presentation glue around the
// engine, not part of it.
package importer

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/normalize"
)

// ColumnMap names the spreadsheet columns to read. SearchKey, Price and
// Inventory are required; Title and Brand are optional and default to the
// empty string when their column is absent.
type ColumnMap struct {
	SearchKey string
	Price     string
	Inventory string
	Title     string
	Brand     string
}

// ParseXLSX reads the first sheet of an xlsx workbook into external
// records. The first row is the header; rows with a blank search key are
// skipped. Numeric cells go through the normalizer, so malformed values
// degrade to zero instead of failing the import.
func ParseXLSX(r io.Reader, cols ColumnMap, keyOpts normalize.KeyOptions) ([]models.ExternalRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, required := range []string{cols.SearchKey, cols.Price, cols.Inventory} {
		if _, ok := index[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("file must contain the following columns: %s", strings.Join(missing, ", "))
	}

	records := make([]models.ExternalRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		key := normalize.Key(cell(row, index, cols.SearchKey), keyOpts)
		if key == "" {
			continue
		}
		records = append(records, models.ExternalRecord{
			SearchKey:        key,
			DesiredPrice:     normalize.Number(cell(row, index, cols.Price), decimal.Zero),
			DesiredInventory: normalize.Number(cell(row, index, cols.Inventory), decimal.Zero),
			Title:            strings.TrimSpace(cell(row, index, cols.Title)),
			Brand:            strings.TrimSpace(cell(row, index, cols.Brand)),
		})
	}
	return records, nil
}

// cell returns the named column's value for a row, empty when the column
// is absent or the row is short.
func cell(row []string, index map[string]int, column string) string {
	i, ok := index[column]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}
