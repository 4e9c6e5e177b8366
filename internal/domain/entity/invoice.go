package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice represents a supplier invoice uploaded for processing. The supplier
// assigned invoice number is unique and immutable after creation.
type Invoice struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	InvoiceDate   time.Time       `json:"invoice_date"`
	Supplier      string          `json:"supplier"`
	FilePath      string          `json:"file_path"`
	ExtractedData string          `json:"extracted_data"`
	TotalNet      decimal.Decimal `json:"total_net"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	TotalGross    decimal.Decimal `json:"total_gross"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status"`
	ErrorMessage  string          `json:"error_message"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}

// LineItem represents a single line on an invoice. An item is matched exactly
// when ProductID is non-nil.
type LineItem struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoice_id"`
	Description string          `json:"description"`
	SupplierSKU string          `json:"supplier_sku,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	ProductID   *int64          `json:"product_id,omitempty"`
	Matched     bool            `json:"matched"`
	Notes       string          `json:"notes,omitempty"`
}

// ProcessingLogEntry is one append-only audit record attached to an invoice.
// Entries are never mutated or deleted.
type ProcessingLogEntry struct {
	ID        int64     `json:"id"`
	InvoiceID int64     `json:"invoice_id"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
