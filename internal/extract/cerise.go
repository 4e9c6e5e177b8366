package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stockline/invoice-ingest/internal/pdfcontent"
)

// CeriseExtractor handles Cerise Cosmetics invoices. Cerise sells in packs:
// each product name spans two lines, the second ending in a pack-size suffix
// like "X 6", followed by pack quantity, pack price, line total and
// VAT-inclusive total on their own lines. The extracted quantity is the unit
// count, pack quantity times pack size, so stock receipts count sellable
// units rather than packs.
type CeriseExtractor struct{}

// NewCeriseExtractor creates the Cerise Cosmetics extractor
func NewCeriseExtractor() *CeriseExtractor {
	return &CeriseExtractor{}
}

// Supplier returns the supplier identity
func (e *CeriseExtractor) Supplier() string {
	return "Cerise Cosmetics"
}

var (
	ceriseInvoicePattern  = regexp.MustCompile(`Invoice No\.\s*([\d-]+)`)
	ceriseOrderPattern    = regexp.MustCompile(`Order No\.\s*(\d+)`)
	ceriseDatePattern     = regexp.MustCompile(`Date:\s*([\d/]+)`)
	ceriseGrossPattern    = regexp.MustCompile(`Amount:\s*£([\d.,]+)`)
	cerisePackSizePattern = regexp.MustCompile(`X\s*(\d+)$`)
)

// Extract parses a Cerise Cosmetics invoice
func (e *CeriseExtractor) Extract(content *pdfcontent.Content) (*Result, error) {
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

func (e *CeriseExtractor) extractMetadata(text string, meta *Metadata) {
	if m := ceriseInvoicePattern.FindStringSubmatch(text); m != nil {
		meta.InvoiceNo = m[1]
	}
	if m := ceriseOrderPattern.FindStringSubmatch(text); m != nil {
		meta.OrderNo = m[1]
	}
	if m := ceriseDatePattern.FindStringSubmatch(text); m != nil {
		meta.InvoiceDate = m[1]
	}
	if m := ceriseGrossPattern.FindStringSubmatch(text); m != nil {
		meta.GrossTotal = mustAmount(m[1], SeparatorPeriod)
	}
}

func (e *CeriseExtractor) extractItems(lines []string, result *Result) {
	i := 0
	for i < len(lines)-5 {
		line := lines[i]
		next := lines[i+1]

		packMatch := cerisePackSizePattern.FindStringSubmatch(next)
		if line == "" || packMatch == nil {
			i++
			continue
		}

		qtyLine := lines[i+2]
		if !isDigits(qtyLine) {
			i++
			continue
		}

		packSize := mustAmount(packMatch[1], SeparatorPeriod)
		packs := mustAmount(qtyLine, SeparatorPeriod)
		description := strings.TrimSpace(cerisePackSizePattern.ReplaceAllString(line+" "+next, ""))

		if packs.IsPositive() && description != "" {
			result.Items = append(result.Items, RawItem{
				Description: description,
				Quantity:    packs.Mul(packSize),
				UnitPrice:   mustAmount(lines[i+3], SeparatorPeriod),
				TotalPrice:  mustAmount(lines[i+4], SeparatorPeriod),
				TaxRate:     decimal.NewFromInt(20),
				Note:        "Quantity expanded from " + packs.String() + " packs of " + packSize.String(),
			})
		}
		i += 6
	}
}
