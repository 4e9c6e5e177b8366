package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"github.com/stockline/invoice-ingest/pkg/database"
	"go.uber.org/zap"
)

// InvoiceRepository persists invoices
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) *InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

func (r *InvoiceRepository) executor(ctx context.Context) database.Executor {
	return database.ExecutorFrom(ctx, r.db)
}

// Create inserts a new invoice in PENDING state. The invoice number is unique
// and immutable after creation.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		INSERT INTO invoices (
			invoice_number, invoice_date, supplier, file_path, extracted_data,
			total_net, total_tax, total_gross, currency, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.executor(ctx).ExecContext(ctx, query,
		invoice.InvoiceNumber,
		invoice.InvoiceDate,
		invoice.Supplier,
		invoice.FilePath,
		invoice.ExtractedData,
		invoice.TotalNet.String(),
		invoice.TotalTax.String(),
		invoice.TotalGross.String(),
		invoice.Currency,
		invoice.Status,
		invoice.ErrorMessage,
	)
	if err != nil {
		r.logger.Error("Failed to create invoice", zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	invoice.ID = id
	return nil
}

const invoiceColumns = `
	id, invoice_number, invoice_date, supplier, file_path, extracted_data,
	total_net, total_tax, total_gross, currency, status, error_message,
	created_at, updated_at, processed_at
`

// GetByID retrieves an invoice by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`
	return r.scanOne(r.executor(ctx).QueryRowContext(ctx, query, id))
}

// GetByNumber retrieves an invoice by its supplier assigned number
func (r *InvoiceRepository) GetByNumber(ctx context.Context, invoiceNumber string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_number = ?`
	return r.scanOne(r.executor(ctx).QueryRowContext(ctx, query, invoiceNumber))
}

// ListByStatus retrieves all invoices with the given status, oldest first
func (r *InvoiceRepository) ListByStatus(ctx context.Context, status string) ([]entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE status = ? ORDER BY created_at ASC, id ASC`

	rows, err := r.executor(ctx).QueryContext(ctx, query, status)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.String("status", status), zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []entity.Invoice
	for rows.Next() {
		invoice, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
	}
	return invoices, rows.Err()
}

// UpdateExtraction stores the raw extracted payload and computed totals
func (r *InvoiceRepository) UpdateExtraction(ctx context.Context, invoice *entity.Invoice) error {
	query := `
		UPDATE invoices
		SET extracted_data = ?, total_net = ?, total_tax = ?, total_gross = ?,
			currency = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	_, err := r.executor(ctx).ExecContext(ctx, query,
		invoice.ExtractedData,
		invoice.TotalNet.String(),
		invoice.TotalTax.String(),
		invoice.TotalGross.String(),
		invoice.Currency,
		invoice.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update invoice extraction", zap.Int64("id", invoice.ID), zap.Error(err))
		return fmt.Errorf("failed to update invoice extraction: %w", err)
	}
	return nil
}

// UpdateStatus records a state transition. processedAt is set for terminal
// processing outcomes and left untouched when nil.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, id int64, status, errorMessage string, processedAt *time.Time) error {
	query := `
		UPDATE invoices
		SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP,
			processed_at = COALESCE(?, processed_at)
		WHERE id = ?
	`

	_, err := r.executor(ctx).ExecContext(ctx, query, status, errorMessage, processedAt, id)
	if err != nil {
		r.logger.Error("Failed to update invoice status",
			zap.Int64("id", id),
			zap.String("status", status),
			zap.Error(err))
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *InvoiceRepository) scanOne(row *sql.Row) (*entity.Invoice, error) {
	invoice, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return invoice, err
}

func (r *InvoiceRepository) scan(row scanner) (*entity.Invoice, error) {
	var invoice entity.Invoice
	var totalNet, totalTax, totalGross string
	var processedAt sql.NullTime

	err := row.Scan(
		&invoice.ID,
		&invoice.InvoiceNumber,
		&invoice.InvoiceDate,
		&invoice.Supplier,
		&invoice.FilePath,
		&invoice.ExtractedData,
		&totalNet,
		&totalTax,
		&totalGross,
		&invoice.Currency,
		&invoice.Status,
		&invoice.ErrorMessage,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
		&processedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		r.logger.Error("Failed to scan invoice", zap.Error(err))
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}

	if invoice.TotalNet, err = decimal.NewFromString(totalNet); err != nil {
		return nil, fmt.Errorf("invalid total_net %q: %w", totalNet, err)
	}
	if invoice.TotalTax, err = decimal.NewFromString(totalTax); err != nil {
		return nil, fmt.Errorf("invalid total_tax %q: %w", totalTax, err)
	}
	if invoice.TotalGross, err = decimal.NewFromString(totalGross); err != nil {
		return nil, fmt.Errorf("invalid total_gross %q: %w", totalGross, err)
	}
	if processedAt.Valid {
		invoice.ProcessedAt = &processedAt.Time
	}

	return &invoice, nil
}
