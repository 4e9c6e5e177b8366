package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stockline/invoice-ingest/internal/pdfcontent"
)

// AlbaExtractor handles Alba Cosmetics invoices. Alba prints a proper item
// table with a SKU / Product / Price / Qty / Total column signature; rows are
// read positionally. Amounts are GBP with a period decimal separator and a
// flat 20% VAT rate.
type AlbaExtractor struct{}

// NewAlbaExtractor creates the Alba Cosmetics extractor
func NewAlbaExtractor() *AlbaExtractor {
	return &AlbaExtractor{}
}

// Supplier returns the supplier identity
func (e *AlbaExtractor) Supplier() string {
	return "Alba Cosmetics"
}

var (
	albaDatePattern  = regexp.MustCompile(`Date:\s*(\d{1,2}/\d{1,2}/\d{4})`)
	albaOrderPattern = regexp.MustCompile(`Order id:\s*#(\w+)`)
	albaTotalPattern = regexp.MustCompile(`Total:\s*£\s*([\d.,]+)`)

	// A table row: SKU, description, unit price, quantity, line total.
	// Columns are separated by runs of two or more spaces once the PDF text
	// layer is flattened.
	albaRowPattern = regexp.MustCompile(`^(\S+)\s{2,}(.+?)\s{2,}£?\s*([\d.,]+)\s{2,}(\d+)\s{2,}£?\s*([\d.,]+)$`)
)

// Extract parses an Alba Cosmetics invoice
func (e *AlbaExtractor) Extract(content *pdfcontent.Content) (*Result, error) {
	result := &Result{
		Metadata: Metadata{Currency: "GBP"},
	}

	e.extractMetadata(content.Text, &result.Metadata)

	for _, line := range content.Lines {
		if e.isHeaderRow(line) || strings.HasPrefix(line, "Total") {
			continue
		}

		m := albaRowPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		quantity := mustAmount(m[4], SeparatorPeriod)
		if !quantity.IsPositive() {
			continue
		}

		description := m[2]
		if idx := strings.IndexByte(description, '\n'); idx >= 0 {
			description = description[:idx]
		}

		result.Items = append(result.Items, RawItem{
			Description: strings.TrimSpace(description),
			SupplierSKU: m[1],
			Quantity:    quantity,
			UnitPrice:   mustAmount(m[3], SeparatorPeriod),
			TotalPrice:  mustAmount(m[5], SeparatorPeriod),
			TaxRate:     decimal.NewFromInt(20),
		})
	}

	if len(result.Items) == 0 {
		return nil, NewExtractionError(e.Supplier(), ReasonNoStructure, nil)
	}
	if result.Metadata.GrossTotal.IsZero() {
		return nil, NewExtractionError(e.Supplier(), ReasonPartialData, nil)
	}

	return result, nil
}

func (e *AlbaExtractor) extractMetadata(text string, meta *Metadata) {
	if m := albaOrderPattern.FindStringSubmatch(text); m != nil {
		meta.InvoiceNo = m[1]
	}
	if m := albaDatePattern.FindStringSubmatch(text); m != nil {
		meta.InvoiceDate = m[1]
	}
	if m := albaTotalPattern.FindStringSubmatch(text); m != nil {
		meta.GrossTotal = mustAmount(m[1], SeparatorPeriod)
	}
}

func (e *AlbaExtractor) isHeaderRow(line string) bool {
	return strings.HasPrefix(line, "SKU") && strings.Contains(line, "Product")
}
