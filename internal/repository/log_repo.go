package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"github.com/stockline/invoice-ingest/pkg/database"
	"go.uber.org/zap"
)

// ProcessingLogRepository persists the append-only processing log. Entries
// are never updated or deleted.
type ProcessingLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProcessingLogRepository creates a new processing log repository
func NewProcessingLogRepository(db *sql.DB, logger *zap.Logger) *ProcessingLogRepository {
	return &ProcessingLogRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ProcessingLogRepository) executor(ctx context.Context) database.Executor {
	return database.ExecutorFrom(ctx, r.db)
}

// Append writes one log entry for an invoice
func (r *ProcessingLogRepository) Append(ctx context.Context, invoiceID int64, action, message string) error {
	_, err := r.executor(ctx).ExecContext(ctx,
		"INSERT INTO processing_log (invoice_id, action, message) VALUES (?, ?, ?)",
		invoiceID, action, message)
	if err != nil {
		r.logger.Error("Failed to append log entry",
			zap.Int64("invoice_id", invoiceID),
			zap.String("action", action),
			zap.Error(err))
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

// ListByInvoice returns the invoice's full log in chronological order
func (r *ProcessingLogRepository) ListByInvoice(ctx context.Context, invoiceID int64) ([]entity.ProcessingLogEntry, error) {
	query := `
		SELECT id, invoice_id, action, message, created_at
		FROM processing_log
		WHERE invoice_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.executor(ctx).QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	var entries []entity.ProcessingLogEntry
	for rows.Next() {
		var entry entity.ProcessingLogEntry
		if err := rows.Scan(&entry.ID, &entry.InvoiceID, &entry.Action, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
