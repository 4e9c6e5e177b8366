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

// ReceiptRepository is the stock-write adapter. A unique index on
// (batch_tag, line_item_id) enforces the commit idempotency key at the store
// level as well.
type ReceiptRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *sql.DB, logger *zap.Logger) *ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ReceiptRepository) executor(ctx context.Context) database.Executor {
	return database.ExecutorFrom(ctx, r.db)
}

// CreateReceipt inserts one stock receipt
func (r *ReceiptRepository) CreateReceipt(ctx context.Context, receipt *entity.StockReceipt) error {
	query := `
		INSERT INTO stock_receipts (id, product_id, quantity, batch_tag, line_item_id, note)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.executor(ctx).ExecContext(ctx, query,
		receipt.ID,
		receipt.ProductID,
		receipt.Quantity.String(),
		receipt.BatchTag,
		receipt.LineItemID,
		receipt.Note,
	)
	if err != nil {
		r.logger.Error("Failed to create stock receipt",
			zap.String("batch_tag", receipt.BatchTag),
			zap.Error(err))
		return fmt.Errorf("failed to create stock receipt: %w", err)
	}
	return nil
}

// ExistsForLineItem reports whether a receipt exists for the idempotency key
func (r *ReceiptRepository) ExistsForLineItem(ctx context.Context, batchTag string, lineItemID int64) (bool, error) {
	var count int
	err := r.executor(ctx).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM stock_receipts WHERE batch_tag = ? AND line_item_id = ?",
		batchTag, lineItemID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check receipt existence: %w", err)
	}
	return count > 0, nil
}

// ListByBatch returns all receipts created for an invoice batch tag
func (r *ReceiptRepository) ListByBatch(ctx context.Context, batchTag string) ([]entity.StockReceipt, error) {
	query := `
		SELECT id, product_id, quantity, batch_tag, line_item_id, note, created_at
		FROM stock_receipts
		WHERE batch_tag = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.executor(ctx).QueryContext(ctx, query, batchTag)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []entity.StockReceipt
	for rows.Next() {
		var receipt entity.StockReceipt
		var quantity string

		err := rows.Scan(
			&receipt.ID,
			&receipt.ProductID,
			&quantity,
			&receipt.BatchTag,
			&receipt.LineItemID,
			&receipt.Note,
			&receipt.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		if receipt.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("invalid quantity %q: %w", quantity, err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}
