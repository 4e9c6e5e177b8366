// Package export writes per-invoice reconciliation workbooks so operators
// can review extraction, matching and stock outcomes outside the system.
package export

import (
	"fmt"
	"path/filepath"

	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	summarySheet = "Summary"
	itemsSheet   = "Line Items"
	logSheet     = "Processing Log"
)

// ReportWriter renders invoice reconciliation workbooks
type ReportWriter struct {
	outputDir string
	logger    *zap.Logger
}

// NewReportWriter creates a report writer that saves workbooks under outputDir
func NewReportWriter(outputDir string, logger *zap.Logger) *ReportWriter {
	return &ReportWriter{
		outputDir: outputDir,
		logger:    logger,
	}
}

// Write renders one workbook for the invoice and returns the saved path
func (w *ReportWriter) Write(invoice *entity.Invoice, items []entity.LineItem, log []entity.ProcessingLogEntry) (string, error) {
	w.logger.Info("Writing reconciliation report",
		zap.String("invoice", invoice.InvoiceNumber),
		zap.Int("items", len(items)))

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName(f.GetSheetName(0), summarySheet)
	w.fillSummary(f, invoice, items)

	if _, err := f.NewSheet(itemsSheet); err != nil {
		return "", fmt.Errorf("failed to create items sheet: %w", err)
	}
	w.fillItems(f, items)

	if _, err := f.NewSheet(logSheet); err != nil {
		return "", fmt.Errorf("failed to create log sheet: %w", err)
	}
	w.fillLog(f, log)

	outputPath := filepath.Join(w.outputDir,
		fmt.Sprintf("invoice-%s.xlsx", sanitizeFilename(invoice.InvoiceNumber)))
	if err := f.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	w.logger.Info("Report saved", zap.String("path", outputPath))
	return outputPath, nil
}

func (w *ReportWriter) fillSummary(f *excelize.File, invoice *entity.Invoice, items []entity.LineItem) {
	matched := 0
	for _, item := range items {
		if item.Matched {
			matched++
		}
	}

	rows := [][2]interface{}{
		{"Invoice Number", invoice.InvoiceNumber},
		{"Supplier", invoice.Supplier},
		{"Invoice Date", invoice.InvoiceDate.Format("2006-01-02")},
		{"Status", invoice.Status},
		{"Currency", invoice.Currency},
		{"Net Total", invoice.TotalNet.StringFixed(2)},
		{"Tax Total", invoice.TotalTax.StringFixed(2)},
		{"Gross Total", invoice.TotalGross.StringFixed(2)},
		{"Line Items", len(items)},
		{"Matched Items", matched},
	}
	if invoice.ErrorMessage != "" {
		rows = append(rows, [2]interface{}{"Error", invoice.ErrorMessage})
	}
	if invoice.ProcessedAt != nil {
		rows = append(rows, [2]interface{}{"Processed At", invoice.ProcessedAt.Format("2006-01-02 15:04:05")})
	}

	for i, row := range rows {
		w.setCell(f, summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		w.setCell(f, summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}
}

func (w *ReportWriter) fillItems(f *excelize.File, items []entity.LineItem) {
	headers := []string{"SKU", "Description", "Quantity", "Unit Price", "Total Price", "Tax Rate", "Product ID", "Matched", "Notes"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		w.setCell(f, itemsSheet, cell, header)
	}

	for row, item := range items {
		productID := ""
		if item.ProductID != nil {
			productID = fmt.Sprintf("%d", *item.ProductID)
		}
		values := []interface{}{
			item.SupplierSKU,
			item.Description,
			item.Quantity.String(),
			item.UnitPrice.StringFixed(2),
			item.TotalPrice.StringFixed(2),
			item.TaxRate.String(),
			productID,
			item.Matched,
			item.Notes,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			w.setCell(f, itemsSheet, cell, value)
		}
	}
}

func (w *ReportWriter) fillLog(f *excelize.File, log []entity.ProcessingLogEntry) {
	headers := []string{"Timestamp", "Action", "Message"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		w.setCell(f, logSheet, cell, header)
	}

	for row, entry := range log {
		w.setCell(f, logSheet, fmt.Sprintf("A%d", row+2), entry.CreatedAt.Format("2006-01-02 15:04:05"))
		w.setCell(f, logSheet, fmt.Sprintf("B%d", row+2), entry.Action)
		w.setCell(f, logSheet, fmt.Sprintf("C%d", row+2), entry.Message)
	}
}

// setCell sets a cell value, logging rather than failing on bad coordinates
func (w *ReportWriter) setCell(f *excelize.File, sheet, cell string, value interface{}) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		w.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

// sanitizeFilename replaces path separators so invoice numbers like
// "INV/2024/001" produce a single flat file.
func sanitizeFilename(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
