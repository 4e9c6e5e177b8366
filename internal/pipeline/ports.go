package pipeline

import (
	"context"
	"time"

	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"github.com/stockline/invoice-ingest/internal/extract"
	"github.com/stockline/invoice-ingest/internal/pdfcontent"
)

// InvoiceStore persists invoices
type InvoiceStore interface {
	Create(ctx context.Context, invoice *entity.Invoice) error
	GetByID(ctx context.Context, id int64) (*entity.Invoice, error)
	GetByNumber(ctx context.Context, invoiceNumber string) (*entity.Invoice, error)
	ListByStatus(ctx context.Context, status string) ([]entity.Invoice, error)
	UpdateExtraction(ctx context.Context, invoice *entity.Invoice) error
	UpdateStatus(ctx context.Context, id int64, status, errorMessage string, processedAt *time.Time) error
}

// LineItemStore persists invoice line items
type LineItemStore interface {
	ReplaceForInvoice(ctx context.Context, invoiceID int64, items []entity.LineItem) error
	DeleteForInvoice(ctx context.Context, invoiceID int64) error
	ListByInvoice(ctx context.Context, invoiceID int64) ([]entity.LineItem, error)
	SetMatch(ctx context.Context, itemID, productID int64) error
	ClearMatch(ctx context.Context, itemID int64) error
	CountUnmatched(ctx context.Context, invoiceID int64) (int, error)
}

// LogStore persists the append-only processing log
type LogStore interface {
	Append(ctx context.Context, invoiceID int64, action, message string) error
	ListByInvoice(ctx context.Context, invoiceID int64) ([]entity.ProcessingLogEntry, error)
}

// TxRunner runs a function within a store transaction
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ContentReader turns a PDF file into flattened text content
type ContentReader interface {
	ReadFile(path string) (*pdfcontent.Content, error)
}

// ExtractorResolver resolves a supplier name to its extractor variant
type ExtractorResolver interface {
	Resolve(supplierName string) extract.Extractor
}

// Matcher maps a line item to a catalog product
type Matcher interface {
	Match(ctx context.Context, item *entity.LineItem) (*entity.Product, error)
}

// ReceiptCommitter creates stock receipts for matched line items
type ReceiptCommitter interface {
	Commit(ctx context.Context, invoice *entity.Invoice, items []entity.LineItem) (int, error)
}
