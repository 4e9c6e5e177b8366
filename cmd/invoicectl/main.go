// invoicectl is the operator command line for the invoice ingest pipeline.
// It registers invoices, drives processing stages, inspects state and
// exports reconciliation reports against the same database as the daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stockline/invoice-ingest/internal/app"
	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"github.com/stockline/invoice-ingest/internal/pipeline"
	"github.com/subosito/gotenv"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "path to configuration file")

		register = flag.Bool("register", false, "register a new invoice")
		number   = flag.String("number", "", "supplier invoice number")
		supplier = flag.String("supplier", "", "supplier name")
		date     = flag.String("date", "", "invoice date (YYYY-MM-DD)")
		file     = flag.String("file", "", "path to the invoice PDF")

		process     = flag.Bool("process", false, "run the pipeline for one invoice")
		allPending  = flag.Bool("all-pending", false, "run the pipeline for every pending invoice")
		autoMatch   = flag.Bool("auto-match", true, "run catalog matching after extraction")
		createStock = flag.Bool("create-stock", false, "commit stock receipts after matching")

		inspect  = flag.Bool("inspect", false, "print invoice state, items and log")
		cancel   = flag.Bool("cancel", false, "cancel an invoice")
		reset    = flag.Bool("reset", false, "reset a failed invoice to pending")
		export   = flag.Bool("export", false, "write the reconciliation workbook")
		override = flag.Int64("override-product", 0, "manually match a line item to this product")
		item     = flag.Int64("item", 0, "line item id for -override-product")
	)
	flag.Parse()

	gotenv.Load(".env")

	application, err := app.New(*configPath)
	if err != nil {
		fatal("failed to start: %v", err)
	}
	defer application.Close()

	ctx := context.Background()
	opts := pipeline.Options{RunMatching: *autoMatch, RunCommit: *createStock}

	switch {
	case *register:
		runRegister(ctx, application, *number, *supplier, *date, *file)
	case *allPending:
		runAllPending(ctx, application, opts)
	case *process:
		invoice := mustResolve(ctx, application, *number)
		if err := application.Processor.ProcessInvoice(ctx, invoice.ID, opts); err != nil {
			fatal("processing failed: %v", err)
		}
		fmt.Printf("Invoice %s processed\n", invoice.InvoiceNumber)
	case *cancel:
		invoice := mustResolve(ctx, application, *number)
		if err := application.Processor.Cancel(ctx, invoice.ID); err != nil {
			fatal("cancel failed: %v", err)
		}
		fmt.Printf("Invoice %s cancelled\n", invoice.InvoiceNumber)
	case *reset:
		invoice := mustResolve(ctx, application, *number)
		if err := application.Processor.Reset(ctx, invoice.ID); err != nil {
			fatal("reset failed: %v", err)
		}
		fmt.Printf("Invoice %s reset to pending\n", invoice.InvoiceNumber)
	case *override > 0:
		if *item <= 0 {
			fatal("-override-product requires -item")
		}
		invoice := mustResolve(ctx, application, *number)
		if err := application.Processor.OverrideMatch(ctx, invoice.ID, *item, *override); err != nil {
			fatal("override failed: %v", err)
		}
		fmt.Printf("Line item %d matched to product %d\n", *item, *override)
	case *inspect:
		invoice := mustResolve(ctx, application, *number)
		runInspect(ctx, application, invoice)
	case *export:
		invoice := mustResolve(ctx, application, *number)
		runExport(ctx, application, invoice)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func runRegister(ctx context.Context, application *app.App, number, supplier, date, file string) {
	if number == "" || supplier == "" || file == "" {
		fatal("-register requires -number, -supplier and -file")
	}
	invoiceDate := time.Now()
	if date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			fatal("invalid -date %q: %v", date, err)
		}
		invoiceDate = parsed
	}
	if _, err := os.Stat(file); err != nil {
		fatal("cannot read invoice file: %v", err)
	}

	invoice, err := application.Processor.Upload(ctx, number, supplier, invoiceDate, file)
	if err != nil {
		fatal("register failed: %v", err)
	}
	fmt.Printf("Invoice %s registered with id %d\n", invoice.InvoiceNumber, invoice.ID)
}

func runAllPending(ctx context.Context, application *app.App, opts pipeline.Options) {
	summary, err := application.Processor.ProcessPending(ctx, opts)
	if err != nil {
		fatal("sweep failed: %v", err)
	}
	fmt.Printf("Processed %d invoices: %d succeeded, %d failed\n",
		summary.Total, summary.Succeeded, summary.Failed)
	if summary.Failed > 0 {
		os.Exit(1)
	}
}

func runInspect(ctx context.Context, application *app.App, invoice *entity.Invoice) {
	view, err := application.Processor.Inspect(ctx, invoice.ID)
	if err != nil {
		fatal("inspect failed: %v", err)
	}

	inv := view.Invoice
	fmt.Printf("Invoice %s (%s)\n", inv.InvoiceNumber, inv.Supplier)
	fmt.Printf("  Status:   %s\n", inv.Status)
	fmt.Printf("  Date:     %s\n", inv.InvoiceDate.Format("2006-01-02"))
	fmt.Printf("  Totals:   net %s, tax %s, gross %s %s\n",
		inv.TotalNet.StringFixed(2), inv.TotalTax.StringFixed(2),
		inv.TotalGross.StringFixed(2), inv.Currency)
	if inv.ErrorMessage != "" {
		fmt.Printf("  Error:    %s\n", inv.ErrorMessage)
	}
	if inv.ProcessedAt != nil {
		fmt.Printf("  Processed: %s\n", inv.ProcessedAt.Format(time.RFC3339))
	}

	fmt.Printf("\nLine items (%d):\n", len(view.Items))
	for _, li := range view.Items {
		matched := "unmatched"
		if li.Matched && li.ProductID != nil {
			matched = fmt.Sprintf("product %d", *li.ProductID)
		}
		fmt.Printf("  [%d] %s x%s @ %s = %s (%s) %s\n",
			li.ID, li.Description, li.Quantity.String(),
			li.UnitPrice.StringFixed(2), li.TotalPrice.StringFixed(2),
			li.SupplierSKU, matched)
		if li.Notes != "" {
			fmt.Printf("      note: %s\n", li.Notes)
		}
	}

	fmt.Printf("\nProcessing log (%d):\n", len(view.Log))
	for _, entry := range view.Log {
		fmt.Printf("  %s %-12s %s\n",
			entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Action, entry.Message)
	}
}

func runExport(ctx context.Context, application *app.App, invoice *entity.Invoice) {
	view, err := application.Processor.Inspect(ctx, invoice.ID)
	if err != nil {
		fatal("export failed: %v", err)
	}
	path, err := application.Reporter.Write(view.Invoice, view.Items, view.Log)
	if err != nil {
		fatal("export failed: %v", err)
	}
	fmt.Printf("Report written to %s\n", path)
}

func mustResolve(ctx context.Context, application *app.App, number string) *entity.Invoice {
	if number == "" {
		fatal("-number is required")
	}
	invoice, err := application.Invoices.GetByNumber(ctx, number)
	if err != nil {
		fatal("lookup failed: %v", err)
	}
	if invoice == nil {
		fatal("invoice %s not found", number)
	}
	return invoice
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
