// Package stock creates inventory receipts for fully matched invoices.
package stock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"go.uber.org/zap"
)

// CommitError reports an atomic failure of the write stage
type CommitError struct {
	InvoiceNumber string
	Reason        string
	Err           error
}

func (e *CommitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("commit failed for invoice %s: %s: %v", e.InvoiceNumber, e.Reason, e.Err)
	}
	return fmt.Sprintf("commit failed for invoice %s: %s", e.InvoiceNumber, e.Reason)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// ReceiptWriter is the stock-write capability this pipeline consumes. It must
// be invocable within the same transaction boundary as the invoice's state
// update; implementations read any in-flight transaction from the context.
type ReceiptWriter interface {
	CreateReceipt(ctx context.Context, receipt *entity.StockReceipt) error

	// ExistsForLineItem reports whether a receipt already exists for the
	// (batch tag, line item) idempotency key.
	ExistsForLineItem(ctx context.Context, batchTag string, lineItemID int64) (bool, error)
}

// Committer turns matched line items into stock receipts, all-or-nothing per
// invoice. The caller wraps Commit in the invoice transaction so that a
// partial write rolls back together with the state change.
type Committer struct {
	receipts ReceiptWriter
	logger   *zap.Logger
}

// NewCommitter creates a commit stage
func NewCommitter(receipts ReceiptWriter, logger *zap.Logger) *Committer {
	return &Committer{
		receipts: receipts,
		logger:   logger,
	}
}

// Commit creates one receipt per line item, tagged with the source invoice
// number. It returns the number of receipts created. Items that already have
// a receipt for this invoice are skipped, so re-invoking commit on an already
// committed invoice creates zero receipts. Any unmatched item fails the whole
// commit with a CommitError before anything is written.
func (c *Committer) Commit(ctx context.Context, invoice *entity.Invoice, items []entity.LineItem) (int, error) {
	if len(items) == 0 {
		return 0, &CommitError{
			InvoiceNumber: invoice.InvoiceNumber,
			Reason:        "no line items to commit",
		}
	}

	for _, item := range items {
		if !item.Matched || item.ProductID == nil {
			return 0, &CommitError{
				InvoiceNumber: invoice.InvoiceNumber,
				Reason:        fmt.Sprintf("line item %q is not matched to a product", item.Description),
			}
		}
	}

	created := 0
	for _, item := range items {
		exists, err := c.receipts.ExistsForLineItem(ctx, invoice.InvoiceNumber, item.ID)
		if err != nil {
			return 0, &CommitError{
				InvoiceNumber: invoice.InvoiceNumber,
				Reason:        "receipt lookup failed",
				Err:           err,
			}
		}
		if exists {
			continue
		}

		receipt := &entity.StockReceipt{
			ID:         uuid.NewString(),
			ProductID:  *item.ProductID,
			Quantity:   item.Quantity,
			BatchTag:   invoice.InvoiceNumber,
			LineItemID: item.ID,
			Note:       fmt.Sprintf("Added from invoice %s", invoice.InvoiceNumber),
		}

		if err := c.receipts.CreateReceipt(ctx, receipt); err != nil {
			return 0, &CommitError{
				InvoiceNumber: invoice.InvoiceNumber,
				Reason:        fmt.Sprintf("failed to create receipt for %q", item.Description),
				Err:           err,
			}
		}
		created++
	}

	c.logger.Info("Stock receipts created",
		zap.String("invoice", invoice.InvoiceNumber),
		zap.Int("count", created))
	return created, nil
}
