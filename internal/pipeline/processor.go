// Package pipeline orchestrates the extraction, matching and commit stages
// for an invoice, gated by the lifecycle state machine. Runs for different
// invoices may execute concurrently; the per-invoice lock serializes runs,
// cancellations and resets for the same invoice.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"github.com/stockline/invoice-ingest/internal/domain/workflow"
	"github.com/stockline/invoice-ingest/internal/extract"
	"github.com/stockline/invoice-ingest/internal/match"
	"github.com/stockline/invoice-ingest/internal/normalize"
	"github.com/stockline/invoice-ingest/internal/pdfcontent"
	"github.com/stockline/invoice-ingest/internal/stock"
	"go.uber.org/zap"
)

// Options selects which stages run after extraction
type Options struct {
	RunMatching bool
	RunCommit   bool
}

// Summary aggregates the outcome of a batch run
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Inspection is the full read-only view of an invoice
type Inspection struct {
	Invoice *entity.Invoice
	Items   []entity.LineItem
	Log     []entity.ProcessingLogEntry
}

// Deps bundles the processor's collaborators
type Deps struct {
	Tx         TxRunner
	Invoices   InvoiceStore
	Items      LineItemStore
	Logs       LogStore
	Reader     ContentReader
	Extractors ExtractorResolver
	Normalizer *normalize.Normalizer
	Matcher    Matcher
	Committer  ReceiptCommitter
	Logger     *zap.Logger
}

// Processor drives a single invoice through the pipeline
type Processor struct {
	deps  Deps
	locks *invoiceLocks
}

// NewProcessor creates a pipeline processor
func NewProcessor(deps Deps) *Processor {
	return &Processor{
		deps:  deps,
		locks: newInvoiceLocks(),
	}
}

// Upload registers a new invoice in PENDING state. The supplier identity and
// invoice number/date are operator supplied, not derived from the document.
func (p *Processor) Upload(ctx context.Context, invoiceNumber, supplier string, invoiceDate time.Time, filePath string) (*entity.Invoice, error) {
	existing, err := p.deps.Invoices.GetByNumber(ctx, invoiceNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("invoice %s already exists", invoiceNumber)
	}

	invoice := &entity.Invoice{
		InvoiceNumber: invoiceNumber,
		InvoiceDate:   invoiceDate,
		Supplier:      supplier,
		FilePath:      filePath,
		Status:        entity.StatusPending,
	}

	err = p.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := p.deps.Invoices.Create(ctx, invoice); err != nil {
			return err
		}
		return p.deps.Logs.Append(ctx, invoice.ID, entity.ActionUpload,
			fmt.Sprintf("Invoice uploaded from %s", filePath))
	})
	if err != nil {
		return nil, err
	}

	p.deps.Logger.Info("Invoice registered",
		zap.String("invoice", invoiceNumber),
		zap.String("supplier", supplier))
	return invoice, nil
}

// ProcessInvoice runs the pipeline for one invoice. Extraction always runs;
// matching and commit run per opts. Stage failures set the invoice to FAILED
// and are returned; the invoice stays inspectable with its partial data.
func (p *Processor) ProcessInvoice(ctx context.Context, invoiceID int64, opts Options) error {
	release := p.locks.Acquire(invoiceID)
	defer release()

	invoice, err := p.deps.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return fmt.Errorf("invoice %d not found", invoiceID)
	}

	machine := workflow.NewInvoiceMachine(workflow.State(invoice.Status))
	if machine.State().IsTerminal() {
		p.deps.Logger.Info("Invoice is in a terminal state, nothing to do",
			zap.String("invoice", invoice.InvoiceNumber),
			zap.String("status", invoice.Status))
		return nil
	}

	switch invoice.Status {
	case entity.StatusPending:
		if err := p.transition(ctx, invoice, machine, workflow.TriggerStartProcessing,
			entity.ActionExtract, "Extraction started"); err != nil {
			return err
		}
	case entity.StatusProcessing:
		// Resuming after an interruption; the machine is already in
		// PROCESSING and no transition is needed.
	default:
		// FAILED requires an explicit Reset before the pipeline may run
		// again.
		return fmt.Errorf("invoice %s is %s and cannot be processed: %w",
			invoice.InvoiceNumber, invoice.Status, workflow.ErrInvalidTransition)
	}

	if err := p.runExtraction(ctx, invoice); err != nil {
		p.fail(ctx, invoice, "extraction", entity.ActionError, err)
		return err
	}

	if opts.RunMatching {
		if err := p.runMatching(ctx, invoice); err != nil {
			p.fail(ctx, invoice, "matching", entity.ActionError, err)
			return err
		}
	}

	if opts.RunCommit {
		if err := p.runCommit(ctx, invoice, machine); err != nil {
			return err
		}
	}

	return nil
}

// ProcessPending sweeps all pending invoices. Each invoice succeeds or fails
// independently; one invoice's failure never aborts the rest of the batch.
func (p *Processor) ProcessPending(ctx context.Context, opts Options) (Summary, error) {
	pending, err := p.deps.Invoices.ListByStatus(ctx, entity.StatusPending)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Total: len(pending)}
	for _, invoice := range pending {
		if err := p.ProcessInvoice(ctx, invoice.ID, opts); err != nil {
			p.deps.Logger.Error("Invoice processing failed",
				zap.String("invoice", invoice.InvoiceNumber),
				zap.Error(err))
			summary.Failed++
			continue
		}
		summary.Succeeded++
	}

	p.deps.Logger.Info("Pending sweep finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// Cancel applies an operator-issued cancellation. The per-invoice lock defers
// it until any in-flight stage completes.
func (p *Processor) Cancel(ctx context.Context, invoiceID int64) error {
	release := p.locks.Acquire(invoiceID)
	defer release()

	invoice, err := p.deps.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return fmt.Errorf("invoice %d not found", invoiceID)
	}

	machine := workflow.NewInvoiceMachine(workflow.State(invoice.Status))
	return p.transition(ctx, invoice, machine, workflow.TriggerCancel,
		entity.ActionCancel, "Cancelled by operator")
}

// Reset returns a FAILED invoice to PENDING for retry. Prior line items are
// cleared; the processing log is preserved.
func (p *Processor) Reset(ctx context.Context, invoiceID int64) error {
	release := p.locks.Acquire(invoiceID)
	defer release()

	invoice, err := p.deps.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return fmt.Errorf("invoice %d not found", invoiceID)
	}

	machine := workflow.NewInvoiceMachine(workflow.State(invoice.Status))
	if err := machine.Fire(ctx, workflow.TriggerReset); err != nil {
		return fmt.Errorf("cannot reset invoice %s from %s: %w",
			invoice.InvoiceNumber, invoice.Status, err)
	}

	err = p.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := p.deps.Items.DeleteForInvoice(ctx, invoice.ID); err != nil {
			return err
		}
		if err := p.deps.Invoices.UpdateStatus(ctx, invoice.ID, entity.StatusPending, "", nil); err != nil {
			return err
		}
		return p.deps.Logs.Append(ctx, invoice.ID, entity.ActionReset,
			"Reset to pending; prior line items cleared")
	})
	if err != nil {
		return err
	}

	invoice.Status = entity.StatusPending
	return nil
}

// OverrideMatch sets a line item's product reference manually. The override
// always takes precedence over the automatic outcome.
func (p *Processor) OverrideMatch(ctx context.Context, invoiceID, itemID, productID int64) error {
	release := p.locks.Acquire(invoiceID)
	defer release()

	invoice, err := p.deps.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if invoice == nil {
		return fmt.Errorf("invoice %d not found", invoiceID)
	}
	if workflow.State(invoice.Status).IsTerminal() {
		return fmt.Errorf("invoice %s is %s: %w",
			invoice.InvoiceNumber, invoice.Status, workflow.ErrInvalidTransition)
	}

	return p.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := p.deps.Items.SetMatch(ctx, itemID, productID); err != nil {
			return err
		}
		return p.deps.Logs.Append(ctx, invoice.ID, entity.ActionMatch,
			fmt.Sprintf("Manual override: line item %d matched to product %d", itemID, productID))
	})
}

// ResetMatch clears a line item's match so automatic matching may run again
func (p *Processor) ResetMatch(ctx context.Context, invoiceID, itemID int64) error {
	release := p.locks.Acquire(invoiceID)
	defer release()

	return p.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := p.deps.Items.ClearMatch(ctx, itemID); err != nil {
			return err
		}
		return p.deps.Logs.Append(ctx, invoiceID, entity.ActionMatch,
			fmt.Sprintf("Match reset for line item %d", itemID))
	})
}

// Inspect returns the invoice's status, extracted payload, per-item match
// state and full chronological log.
func (p *Processor) Inspect(ctx context.Context, invoiceID int64) (*Inspection, error) {
	invoice, err := p.deps.Invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, fmt.Errorf("invoice %d not found", invoiceID)
	}

	items, err := p.deps.Items.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	log, err := p.deps.Logs.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	return &Inspection{Invoice: invoice, Items: items, Log: log}, nil
}

// runExtraction extracts and normalizes line items, replacing any prior ones.
// Existing matches are preserved for items whose (SKU, description) identity
// survives re-extraction, so operator overrides are not silently discarded.
func (p *Processor) runExtraction(ctx context.Context, invoice *entity.Invoice) error {
	content, err := p.deps.Reader.ReadFile(invoice.FilePath)
	if err != nil {
		reason := extract.ReasonUnreadable
		if errors.Is(err, pdfcontent.ErrNoTextLayer) {
			reason = extract.ReasonNoStructure
		}
		return extract.NewExtractionError(invoice.Supplier, reason, err)
	}

	extractor := p.deps.Extractors.Resolve(invoice.Supplier)
	result, err := extractor.Extract(content)
	if err != nil {
		return err
	}

	normalized := p.deps.Normalizer.Normalize(result)

	existing, err := p.deps.Items.ListByInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}
	preserveMatches(existing, normalized.Items)

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode extraction payload: %w", err)
	}

	invoice.ExtractedData = string(payload)
	invoice.TotalNet = normalized.NetTotal
	invoice.TotalTax = normalized.TaxTotal
	invoice.TotalGross = normalized.GrossTotal
	invoice.Currency = normalized.Currency

	return p.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := p.deps.Invoices.UpdateExtraction(ctx, invoice); err != nil {
			return err
		}
		if err := p.deps.Items.ReplaceForInvoice(ctx, invoice.ID, normalized.Items); err != nil {
			return err
		}

		message := fmt.Sprintf("Extracted %d line items", len(normalized.Items))
		if len(normalized.Rejected) > 0 {
			message += fmt.Sprintf(" (%d rejected)", len(normalized.Rejected))
		}
		if err := p.deps.Logs.Append(ctx, invoice.ID, entity.ActionExtract, message); err != nil {
			return err
		}

		for _, rejected := range normalized.Rejected {
			if err := p.deps.Logs.Append(ctx, invoice.ID, entity.ActionError,
				fmt.Sprintf("line item rejected: %v", rejected.Err)); err != nil {
				return err
			}
		}
		for _, warning := range normalized.Warnings {
			if err := p.deps.Logs.Append(ctx, invoice.ID, entity.ActionError,
				"warning: "+warning); err != nil {
				return err
			}
		}
		return nil
	})
}

// runMatching matches every unmatched line item independently. Ambiguous
// items stay unmatched for manual resolution and never fail the stage.
func (p *Processor) runMatching(ctx context.Context, invoice *entity.Invoice) error {
	items, err := p.deps.Items.ListByInvoice(ctx, invoice.ID)
	if err != nil {
		return err
	}

	type matchResult struct {
		itemID    int64
		productID int64
	}
	var matches []matchResult
	var ambiguous []string

	alreadyMatched := 0
	for i := range items {
		item := &items[i]
		if item.Matched {
			alreadyMatched++
			continue
		}

		product, err := p.deps.Matcher.Match(ctx, item)
		if err != nil {
			var ambErr *match.AmbiguityError
			if errors.As(err, &ambErr) {
				ambiguous = append(ambiguous, ambErr.Error())
				continue
			}
			return err
		}
		if product != nil {
			matches = append(matches, matchResult{itemID: item.ID, productID: product.ID})
		}
	}

	return p.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, m := range matches {
			if err := p.deps.Items.SetMatch(ctx, m.itemID, m.productID); err != nil {
				return err
			}
		}

		message := fmt.Sprintf("Matched %d of %d line items", len(matches)+alreadyMatched, len(items))
		if err := p.deps.Logs.Append(ctx, invoice.ID, entity.ActionMatch, message); err != nil {
			return err
		}
		for _, detail := range ambiguous {
			if err := p.deps.Logs.Append(ctx, invoice.ID, entity.ActionMatch,
				"left unmatched: "+detail); err != nil {
				return err
			}
		}
		return nil
	})
}

// runCommit creates stock receipts for a fully matched invoice, all within
// the same transaction as the COMPLETED state change. The COMPLETE trigger
// fires before anything is persisted, so the machine gates the write.
func (p *Processor) runCommit(ctx context.Context, invoice *entity.Invoice, machine workflow.StateMachine) error {
	items, err := p.deps.Items.ListByInvoice(ctx, invoice.ID)
	if err != nil {
		p.fail(ctx, invoice, "commit", entity.ActionStockError, err)
		return err
	}

	unmatched, err := p.deps.Items.CountUnmatched(ctx, invoice.ID)
	if err != nil {
		p.fail(ctx, invoice, "commit", entity.ActionStockError, err)
		return err
	}
	if len(items) == 0 || unmatched > 0 {
		reason := "no line items to commit"
		if unmatched > 0 {
			reason = fmt.Sprintf("%d of %d line items are not matched", unmatched, len(items))
		}
		cerr := &stock.CommitError{InvoiceNumber: invoice.InvoiceNumber, Reason: reason}
		p.fail(ctx, invoice, "commit", entity.ActionStockError, cerr)
		return cerr
	}

	if err := machine.Fire(ctx, workflow.TriggerComplete); err != nil {
		return fmt.Errorf("invoice %s: %w", invoice.InvoiceNumber, err)
	}

	var created int
	err = p.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		created, err = p.deps.Committer.Commit(ctx, invoice, items)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := p.deps.Invoices.UpdateStatus(ctx, invoice.ID, entity.StatusCompleted, "", &now); err != nil {
			return err
		}
		return p.deps.Logs.Append(ctx, invoice.ID, entity.ActionStockCreate,
			fmt.Sprintf("Created %d stock receipts for batch %s", created, invoice.InvoiceNumber))
	})
	if err != nil {
		p.fail(ctx, invoice, "commit", entity.ActionStockError, err)
		return err
	}

	invoice.Status = entity.StatusCompleted
	p.deps.Logger.Info("Invoice committed",
		zap.String("invoice", invoice.InvoiceNumber),
		zap.Int("receipts", created))
	return nil
}

// transition fires a trigger and persists the resulting state together with
// exactly one log entry.
func (p *Processor) transition(ctx context.Context, invoice *entity.Invoice, machine workflow.StateMachine, trigger workflow.Trigger, action, message string) error {
	if err := machine.Fire(ctx, trigger); err != nil {
		return fmt.Errorf("invoice %s: %w", invoice.InvoiceNumber, err)
	}

	newStatus := machine.State().String()
	err := p.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := p.deps.Invoices.UpdateStatus(ctx, invoice.ID, newStatus, invoice.ErrorMessage, nil); err != nil {
			return err
		}
		return p.deps.Logs.Append(ctx, invoice.ID, action, message)
	})
	if err != nil {
		return err
	}

	invoice.Status = newStatus
	return nil
}

// fail records an unrecoverable stage error: the invoice transitions to
// FAILED and the failure is logged with its stage and reason. Partial
// extracted data stays intact for inspection and retry. The machine is
// rebuilt from the last persisted status, which is still authoritative when
// a later transition's transaction rolled back.
func (p *Processor) fail(ctx context.Context, invoice *entity.Invoice, stage, action string, cause error) {
	machine := workflow.NewInvoiceMachine(workflow.State(invoice.Status))
	if err := machine.Fire(ctx, workflow.TriggerFail); err != nil {
		p.deps.Logger.Error("Cannot transition invoice to FAILED",
			zap.String("invoice", invoice.InvoiceNumber),
			zap.Error(err))
		return
	}

	now := time.Now()
	err := p.deps.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := p.deps.Invoices.UpdateStatus(ctx, invoice.ID, entity.StatusFailed, cause.Error(), &now); err != nil {
			return err
		}
		return p.deps.Logs.Append(ctx, invoice.ID, action,
			fmt.Sprintf("%s failed: %v", stage, cause))
	})
	if err != nil {
		p.deps.Logger.Error("Failed to record invoice failure",
			zap.String("invoice", invoice.InvoiceNumber),
			zap.Error(err))
		return
	}

	invoice.Status = entity.StatusFailed
	invoice.ErrorMessage = cause.Error()
	p.deps.Logger.Warn("Invoice failed",
		zap.String("invoice", invoice.InvoiceNumber),
		zap.String("stage", stage),
		zap.Error(cause))
}

// preserveMatches carries existing product references over to freshly
// extracted items with the same (supplier SKU, description) identity.
func preserveMatches(existing, fresh []entity.LineItem) {
	if len(existing) == 0 {
		return
	}

	matched := make(map[string]*int64, len(existing))
	for _, item := range existing {
		if item.Matched && item.ProductID != nil {
			matched[item.SupplierSKU+"\x00"+item.Description] = item.ProductID
		}
	}

	for i := range fresh {
		if productID, ok := matched[fresh[i].SupplierSKU+"\x00"+fresh[i].Description]; ok {
			fresh[i].ProductID = productID
			fresh[i].Matched = true
		}
	}
}
