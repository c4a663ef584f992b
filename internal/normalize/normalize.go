// Package normalize converts loosely formatted spreadsheet and catalog
// values into the canonical forms used for matching and mutation.
package normalize

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// KeyOptions controls identifier normalization. Whitespace is always
// trimmed and internal whitespace removed; case folding is opt-in because
// the remote system treats SKUs as case-sensitive.
type KeyOptions struct {
	CaseInsensitive bool
}

// Number parses a loosely formatted numeric value. Thousands separators
// and surrounding whitespace are stripped before parsing. Blank input,
// NaN-like markers and anything unparsable yield def; Number never fails.
func Number(value string, def decimal.Decimal) decimal.Decimal {
	s := strings.TrimSpace(value)
	if s == "" {
		return def
	}
	switch strings.ToLower(s) {
	case "nan", "none", "null", "n/a":
		return def
	}
	s = strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return def
	}
	return d
}

// Key normalizes an identifier for matching: trims, removes internal
// whitespace, and optionally lowercases.
func Key(value string, opts KeyOptions) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value)
	if opts.CaseInsensitive {
		s = strings.ToLower(s)
	}
	return s
}
