// Package extract holds the supplier-specific invoice extractors. Each
// supplier gets a hand-tuned heuristic parser sharing a common contract;
// the registry resolves a supplier name to its extractor variant.
package extract

import (
	"github.com/shopspring/decimal"
	"github.com/stockline/invoice-ingest/internal/pdfcontent"
)

// Extractor converts flattened PDF content into a structured extraction
// result. Implementations are stateless and safe for concurrent use.
type Extractor interface {
	// Supplier returns the supplier identity this extractor handles
	Supplier() string

	// Extract parses the PDF content and returns structured invoice data.
	// Quantities and prices in the result are always numeric, never text.
	Extract(content *pdfcontent.Content) (*Result, error)
}

// Metadata holds invoice-level fields recovered from the document
type Metadata struct {
	InvoiceNo   string          `json:"invoice_no"`
	OrderNo     string          `json:"order_no,omitempty"`
	InvoiceDate string          `json:"invoice_date,omitempty"`
	NetTotal    decimal.Decimal `json:"net_total"`
	TaxTotal    decimal.Decimal `json:"tax_total"`
	GrossTotal  decimal.Decimal `json:"gross_total"`
	Currency    string          `json:"currency"`
}

// RawItem is one product record recovered from the document
type RawItem struct {
	Description string          `json:"description"`
	SupplierSKU string          `json:"supplier_sku,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	Note        string          `json:"note,omitempty"`
}

// Result pairs invoice metadata with the recovered product records. It is
// transient: produced fresh on every extraction run and superseded, not
// merged, by re-extraction.
type Result struct {
	Metadata Metadata  `json:"metadata"`
	Items    []RawItem `json:"items"`

	// LowConfidence marks output of the generic fallback extractor; every
	// such item needs manual review before matching is trusted.
	LowConfidence bool `json:"low_confidence,omitempty"`
}
