package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stockline/invoice-ingest/internal/pdfcontent"
)

// ApexExtractor handles Apex Accessories order confirmations. Apex lays each
// product out over five consecutive text lines:
//
//	product name
//	numeric SKU (4-6 digits)
//	Excl. VAT: £unit-price
//	quantity
//	Excl. VAT: £line-total
//
// so extraction walks the line sequence rather than matching rows.
type ApexExtractor struct{}

// NewApexExtractor creates the Apex Accessories extractor
func NewApexExtractor() *ApexExtractor {
	return &ApexExtractor{}
}

// Supplier returns the supplier identity
func (e *ApexExtractor) Supplier() string {
	return "Apex Accessories"
}

var (
	apexOrderPattern    = regexp.MustCompile(`Order\s*#\s*(\d+)`)
	apexDatePattern     = regexp.MustCompile(`(?i)Order Date:\s*(\d+\s+\w+\s+\d{4})`)
	apexGrossPattern    = regexp.MustCompile(`Grand Total \(Incl\.Tax\)\s*£([\d.,]+)`)
	apexTaxPattern      = regexp.MustCompile(`Tax\s*£([\d.,]+)`)
	apexNetPattern      = regexp.MustCompile(`Grand Total \(Excl\.Tax\)\s*£([\d.,]+)`)
	apexSKUPattern      = regexp.MustCompile(`^\d{4,6}$`)
	apexAmountPattern   = regexp.MustCompile(`£([\d.,]+)`)
	apexSkipLinePrefix  = []string{"Excl.", "£", "Shipping", "Grand", "Subtotal", "Product Name"}
)

// Extract parses an Apex Accessories invoice
func (e *ApexExtractor) Extract(content *pdfcontent.Content) (*Result, error) {
	result := &Result{
		Metadata: Metadata{Currency: "GBP"},
	}

	e.extractMetadata(content.Text, &result.Metadata)
	e.extractItems(content.Lines, result)

	if len(result.Items) == 0 {
		return nil, NewExtractionError(e.Supplier(), ReasonNoStructure, nil)
	}
	if result.Metadata.GrossTotal.IsZero() {
		return nil, NewExtractionError(e.Supplier(), ReasonPartialData, nil)
	}

	return result, nil
}

func (e *ApexExtractor) extractMetadata(text string, meta *Metadata) {
	if m := apexOrderPattern.FindStringSubmatch(text); m != nil {
		meta.InvoiceNo = m[1]
		meta.OrderNo = m[1]
	}
	if m := apexDatePattern.FindStringSubmatch(text); m != nil {
		meta.InvoiceDate = m[1]
	}
	if m := apexGrossPattern.FindStringSubmatch(text); m != nil {
		meta.GrossTotal = mustAmount(m[1], SeparatorPeriod)
	}
	if m := apexTaxPattern.FindStringSubmatch(text); m != nil {
		meta.TaxTotal = mustAmount(m[1], SeparatorPeriod)
	}
	if m := apexNetPattern.FindStringSubmatch(text); m != nil {
		meta.NetTotal = mustAmount(m[1], SeparatorPeriod)
	}
}

func (e *ApexExtractor) extractItems(lines []string, result *Result) {
	i := 0
	for i < len(lines)-4 {
		line := lines[i]
		next := lines[i+1]

		if line == "" || e.skippable(line) || !apexSKUPattern.MatchString(next) {
			i++
			continue
		}

		priceMatch := apexAmountPattern.FindStringSubmatch(lines[i+2])
		qtyLine := lines[i+3]
		totalMatch := apexAmountPattern.FindStringSubmatch(lines[i+4])

		if priceMatch == nil || totalMatch == nil || !isDigits(qtyLine) {
			i++
			continue
		}

		quantity := mustAmount(qtyLine, SeparatorPeriod)
		if quantity.IsPositive() {
			result.Items = append(result.Items, RawItem{
				Description: line,
				SupplierSKU: next,
				Quantity:    quantity,
				UnitPrice:   mustAmount(priceMatch[1], SeparatorPeriod),
				TotalPrice:  mustAmount(totalMatch[1], SeparatorPeriod),
				TaxRate:     decimal.NewFromInt(20),
			})
		}
		i += 5
	}
}

func (e *ApexExtractor) skippable(line string) bool {
	for _, prefix := range apexSkipLinePrefix {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
