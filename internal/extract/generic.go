package extract

import (
	"regexp"

	"github.com/shopspring/decimal"
	"github.com/stockline/invoice-ingest/internal/pdfcontent"
)

// ManualReviewNote is stamped on every line item the generic extractor
// produces; its output is best-effort and must be reviewed by an operator.
const ManualReviewNote = "generic extraction; manual review advised"

// GenericExtractor is the fallback applied when no supplier-specific variant
// matches. It looks for common labelled fields and a loose
// description/qty/price/total row shape. All output is flagged low
// confidence.
type GenericExtractor struct{}

// NewGenericExtractor creates the fallback extractor
func NewGenericExtractor() *GenericExtractor {
	return &GenericExtractor{}
}

// Supplier returns the supplier identity
func (e *GenericExtractor) Supplier() string {
	return "generic"
}

var (
	genericInvoiceNoPattern = regexp.MustCompile(`(?i)Invoice\s*(?:No\.?|Number|#)[:\s]*([A-Za-z0-9-]+)`)
	genericDatePattern      = regexp.MustCompile(`(?i)(?:Invoice\s*)?Date[:\s]*([\d./-]+)`)
	genericTotalPattern     = regexp.MustCompile(`(?i)(?:Grand\s*)?Total[^\d£€$]*[£€$]?\s*([\d.,]+)`)

	// description, quantity, unit price, line total
	genericRowPattern = regexp.MustCompile(`^(.+?)\s+(\d+)\s+[£€$]?\s*([\d.,]+)\s+[£€$]?\s*([\d.,]+)$`)
)

// Extract applies the best-effort generic heuristic
func (e *GenericExtractor) Extract(content *pdfcontent.Content) (*Result, error) {
	result := &Result{
		Metadata:      Metadata{Currency: "GBP"},
		LowConfidence: true,
	}

	if m := genericInvoiceNoPattern.FindStringSubmatch(content.Text); m != nil {
		result.Metadata.InvoiceNo = m[1]
	}
	if m := genericDatePattern.FindStringSubmatch(content.Text); m != nil {
		result.Metadata.InvoiceDate = m[1]
	}
	if m := genericTotalPattern.FindStringSubmatch(content.Text); m != nil {
		result.Metadata.GrossTotal = mustAmount(m[1], SeparatorPeriod)
	}

	for _, line := range content.Lines {
		m := genericRowPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		quantity := mustAmount(m[2], SeparatorPeriod)
		unitPrice := mustAmount(m[3], SeparatorPeriod)
		total := mustAmount(m[4], SeparatorPeriod)

		// Sanity check: qty * unit must be in the neighbourhood of the
		// total, otherwise the row shape matched by accident.
		if !quantity.IsPositive() || unitPrice.IsZero() {
			continue
		}
		expected := quantity.Mul(unitPrice)
		if expected.Sub(total).Abs().GreaterThan(expected.Mul(decimal.NewFromFloat(0.5))) {
			continue
		}

		result.Items = append(result.Items, RawItem{
			Description: m[1],
			Quantity:    quantity,
			UnitPrice:   unitPrice,
			TotalPrice:  total,
			TaxRate:     decimal.NewFromInt(20),
			Note:        ManualReviewNote,
		})
	}

	if len(result.Items) == 0 {
		return nil, NewExtractionError(e.Supplier(), ReasonNoStructure, nil)
	}

	return result, nil
}
