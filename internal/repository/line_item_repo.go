package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"github.com/stockline/invoice-ingest/pkg/database"
	"go.uber.org/zap"
)

// LineItemRepository persists invoice line items
type LineItemRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLineItemRepository creates a new line item repository
func NewLineItemRepository(db *sql.DB, logger *zap.Logger) *LineItemRepository {
	return &LineItemRepository{
		db:     db,
		logger: logger,
	}
}

func (r *LineItemRepository) executor(ctx context.Context) database.Executor {
	return database.ExecutorFrom(ctx, r.db)
}

// ReplaceForInvoice deletes the invoice's prior line items and inserts the
// given ones, so re-extraction replaces rather than appends. Items are
// assigned their new IDs.
func (r *LineItemRepository) ReplaceForInvoice(ctx context.Context, invoiceID int64, items []entity.LineItem) error {
	if err := r.DeleteForInvoice(ctx, invoiceID); err != nil {
		return err
	}

	query := `
		INSERT INTO line_items (
			invoice_id, description, supplier_sku, quantity, unit_price,
			total_price, tax_rate, product_id, matched, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i := range items {
		item := &items[i]
		item.InvoiceID = invoiceID

		result, err := r.executor(ctx).ExecContext(ctx, query,
			item.InvoiceID,
			item.Description,
			nullString(item.SupplierSKU),
			item.Quantity.String(),
			item.UnitPrice.String(),
			item.TotalPrice.String(),
			item.TaxRate.String(),
			item.ProductID,
			item.Matched,
			item.Notes,
		)
		if err != nil {
			r.logger.Error("Failed to insert line item",
				zap.Int64("invoice_id", invoiceID),
				zap.Error(err))
			return fmt.Errorf("failed to insert line item: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		item.ID = id
	}

	return nil
}

// DeleteForInvoice removes all line items of an invoice
func (r *LineItemRepository) DeleteForInvoice(ctx context.Context, invoiceID int64) error {
	_, err := r.executor(ctx).ExecContext(ctx,
		"DELETE FROM line_items WHERE invoice_id = ?", invoiceID)
	if err != nil {
		r.logger.Error("Failed to delete line items",
			zap.Int64("invoice_id", invoiceID),
			zap.Error(err))
		return fmt.Errorf("failed to delete line items: %w", err)
	}
	return nil
}

// ListByInvoice retrieves the invoice's line items in insertion order
func (r *LineItemRepository) ListByInvoice(ctx context.Context, invoiceID int64) ([]entity.LineItem, error) {
	query := `
		SELECT id, invoice_id, description, supplier_sku, quantity, unit_price,
			total_price, tax_rate, product_id, matched, notes
		FROM line_items
		WHERE invoice_id = ?
		ORDER BY id ASC
	`

	rows, err := r.executor(ctx).QueryContext(ctx, query, invoiceID)
	if err != nil {
		r.logger.Error("Failed to list line items", zap.Int64("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	defer rows.Close()

	var items []entity.LineItem
	for rows.Next() {
		var item entity.LineItem
		var sku sql.NullString
		var productID sql.NullInt64
		var quantity, unitPrice, totalPrice, taxRate string

		err := rows.Scan(
			&item.ID,
			&item.InvoiceID,
			&item.Description,
			&sku,
			&quantity,
			&unitPrice,
			&totalPrice,
			&taxRate,
			&productID,
			&item.Matched,
			&item.Notes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}

		if sku.Valid {
			item.SupplierSKU = sku.String
		}
		if productID.Valid {
			item.ProductID = &productID.Int64
		}
		if item.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("invalid quantity %q: %w", quantity, err)
		}
		if item.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("invalid unit_price %q: %w", unitPrice, err)
		}
		if item.TotalPrice, err = decimal.NewFromString(totalPrice); err != nil {
			return nil, fmt.Errorf("invalid total_price %q: %w", totalPrice, err)
		}
		if item.TaxRate, err = decimal.NewFromString(taxRate); err != nil {
			return nil, fmt.Errorf("invalid tax_rate %q: %w", taxRate, err)
		}

		items = append(items, item)
	}
	return items, rows.Err()
}

// SetMatch records a product match on a line item
func (r *LineItemRepository) SetMatch(ctx context.Context, itemID, productID int64) error {
	_, err := r.executor(ctx).ExecContext(ctx,
		"UPDATE line_items SET product_id = ?, matched = 1 WHERE id = ?",
		productID, itemID)
	if err != nil {
		r.logger.Error("Failed to set match", zap.Int64("item_id", itemID), zap.Error(err))
		return fmt.Errorf("failed to set match: %w", err)
	}
	return nil
}

// ClearMatch resets a line item to unmatched
func (r *LineItemRepository) ClearMatch(ctx context.Context, itemID int64) error {
	_, err := r.executor(ctx).ExecContext(ctx,
		"UPDATE line_items SET product_id = NULL, matched = 0 WHERE id = ?", itemID)
	if err != nil {
		return fmt.Errorf("failed to clear match: %w", err)
	}
	return nil
}

// CountUnmatched returns how many of the invoice's line items have no product
func (r *LineItemRepository) CountUnmatched(ctx context.Context, invoiceID int64) (int, error) {
	var count int
	err := r.executor(ctx).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM line_items WHERE invoice_id = ? AND matched = 0",
		invoiceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unmatched items: %w", err)
	}
	return count, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
