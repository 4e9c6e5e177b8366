package extract

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
	"github.com/stockline/invoice-ingest/internal/pdfcontent"
)

// CrownTradingExtractor handles Crown Trading Supplies (CTS) invoices. CTS
// prints free-flowing paragraphs rather than a table: each item line carries a
// case number, description and a net/VAT/qty triplet. Amounts use a comma
// decimal separator. CTS does not print SKUs, so one is synthesized
// deterministically from the description.
type CrownTradingExtractor struct{}

// NewCrownTradingExtractor creates the Crown Trading Supplies extractor
func NewCrownTradingExtractor() *CrownTradingExtractor {
	return &CrownTradingExtractor{}
}

// Supplier returns the supplier identity
func (e *CrownTradingExtractor) Supplier() string {
	return "Crown Trading Supplies"
}

var (
	// Case#, description, unit price, net price, VAT percent, quantity
	ctsItemPattern = regexp.MustCompile(`(?:Case#\s*)?(\d+)\s+(.+?)\s+([\d.,]+)\s+([\d.,]+)\s+([\d.,]+)\s+(\d+)\s*$`)

	ctsInvoiceNoPattern = regexp.MustCompile(`(?i)Invoice\s*No\.?:?\s*(\d+)`)
	ctsDatePattern      = regexp.MustCompile(`(?i)Invoice\s*Date\.?:?\s*([\d./-]+)`)
	ctsOrderNoPattern   = regexp.MustCompile(`(?i)Order\s*No\.?:?\s*(\d+)`)
)

// Extract parses a Crown Trading Supplies invoice
func (e *CrownTradingExtractor) Extract(content *pdfcontent.Content) (*Result, error) {
	result := &Result{
		Metadata: Metadata{Currency: "EUR"},
	}

	for _, line := range content.Lines {
		m := ctsItemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		quantity := mustAmount(m[6], SeparatorComma)
		if !quantity.IsPositive() {
			continue
		}

		description := m[2]
		result.Items = append(result.Items, RawItem{
			Description: description,
			SupplierSKU: synthesizeSKU(description),
			Quantity:    quantity,
			UnitPrice:   mustAmount(m[3], SeparatorComma),
			TotalPrice:  mustAmount(m[4], SeparatorComma),
			TaxRate:     mustAmount(m[5], SeparatorComma),
		})
	}

	if len(result.Items) == 0 {
		return nil, NewExtractionError(e.Supplier(), ReasonNoStructure, nil)
	}

	e.extractMetadata(content.Text, &result.Metadata)
	if result.Metadata.InvoiceNo == "" {
		return nil, NewExtractionError(e.Supplier(), ReasonPartialData,
			fmt.Errorf("invoice number not found"))
	}

	e.computeTotals(result)
	return result, nil
}

func (e *CrownTradingExtractor) extractMetadata(text string, meta *Metadata) {
	if m := ctsInvoiceNoPattern.FindStringSubmatch(text); m != nil {
		meta.InvoiceNo = m[1]
	}
	if m := ctsDatePattern.FindStringSubmatch(text); m != nil {
		meta.InvoiceDate = m[1]
	}
	if m := ctsOrderNoPattern.FindStringSubmatch(text); m != nil {
		meta.OrderNo = m[1]
	}
}

// computeTotals derives invoice totals from the line items, since CTS does
// not print a summary block. The gross total is rounded half-up to 2 places.
func (e *CrownTradingExtractor) computeTotals(result *Result) {
	net := decimal.Zero
	vat := decimal.Zero
	hundred := decimal.NewFromInt(100)

	for _, item := range result.Items {
		net = net.Add(item.TotalPrice)
		vat = vat.Add(item.TotalPrice.Mul(item.TaxRate).Div(hundred))
	}

	result.Metadata.NetTotal = net.Round(2)
	result.Metadata.TaxTotal = vat.Round(2)
	result.Metadata.GrossTotal = net.Add(vat).Round(2)
}
