package extract

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Separator is the decimal separator declared for a supplier's locale.
// It is fixed per extractor variant, never guessed from the document.
type Separator int

const (
	// SeparatorPeriod reads "1,234.56" style amounts
	SeparatorPeriod Separator = iota
	// SeparatorComma reads "1.234,56" style amounts
	SeparatorComma
)

var currencyRunes = regexp.MustCompile(`[£€$\s]`)

// parseAmount parses a monetary or quantity string using the supplier's
// declared decimal separator. Currency symbols and whitespace are stripped
// first.
func parseAmount(value string, sep Separator) (decimal.Decimal, error) {
	cleaned := currencyRunes.ReplaceAllString(value, "")

	switch sep {
	case SeparatorComma:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	return decimal.NewFromString(cleaned)
}

// mustAmount parses like parseAmount but returns zero on failure. Used where
// the surrounding heuristic has already validated the shape of the field.
func mustAmount(value string, sep Separator) decimal.Decimal {
	d, err := parseAmount(value, sep)
	if err != nil {
		return decimal.Zero
	}
	return d
}

var skuNormalizer = regexp.MustCompile(`[^a-z0-9]+`)

// synthesizeSKU derives a deterministic SKU from a description, for suppliers
// that do not print one. The same description always yields the same SKU, so
// repeated extraction of the same invoice is reproducible.
func synthesizeSKU(description string) string {
	normalized := skuNormalizer.ReplaceAllString(strings.ToLower(description), " ")
	normalized = strings.TrimSpace(normalized)
	sum := sha1.Sum([]byte(normalized))
	return "GEN-" + strings.ToUpper(hex.EncodeToString(sum[:6]))
}
