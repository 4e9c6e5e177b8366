// Package normalize validates and coerces raw extraction output into the
// canonical line item shape.
package normalize

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"github.com/stockline/invoice-ingest/internal/extract"
	"go.uber.org/zap"
)

// ValidationError reports a malformed line item
type ValidationError struct {
	Description string
	Field       string
	Value       string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid line item %q: %s = %s", e.Description, e.Field, e.Value)
}

// RejectedItem pairs a rejected raw item with the validation error
type RejectedItem struct {
	Item extract.RawItem
	Err  *ValidationError
}

// Invoice is the validated output of normalization. Every surviving line item
// starts unmatched with no product reference, regardless of any matching
// hints extraction may have produced.
type Invoice struct {
	Items      []entity.LineItem
	Rejected   []RejectedItem
	Warnings   []string
	NetTotal   decimal.Decimal
	TaxTotal   decimal.Decimal
	GrossTotal decimal.Decimal
	Currency   string
}

// Normalizer validates extraction results
type Normalizer struct {
	tolerance decimal.Decimal
	logger    *zap.Logger
}

// New creates a normalizer. tolerance is the accepted absolute difference
// between declared and computed invoice totals; PDFs vary in rounding, so a
// mismatch within tolerance is a warning rather than a failure.
func New(tolerance float64, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		tolerance: decimal.NewFromFloat(tolerance),
		logger:    logger,
	}
}

// Normalize validates the raw extraction result and produces canonical line
// items. Per-item validation failures are recorded and skipped; they never
// abort the whole invoice.
func (n *Normalizer) Normalize(result *extract.Result) *Invoice {
	inv := &Invoice{
		NetTotal:   result.Metadata.NetTotal,
		TaxTotal:   result.Metadata.TaxTotal,
		GrossTotal: result.Metadata.GrossTotal,
		Currency:   result.Metadata.Currency,
	}

	computed := decimal.Zero
	for _, raw := range result.Items {
		if verr := validateItem(raw); verr != nil {
			n.logger.Warn("Rejecting invalid line item",
				zap.String("description", raw.Description),
				zap.String("reason", verr.Error()))
			inv.Rejected = append(inv.Rejected, RejectedItem{Item: raw, Err: verr})
			continue
		}

		notes := raw.Note
		if result.LowConfidence && notes == "" {
			notes = extract.ManualReviewNote
		}

		inv.Items = append(inv.Items, entity.LineItem{
			Description: raw.Description,
			SupplierSKU: raw.SupplierSKU,
			Quantity:    raw.Quantity,
			UnitPrice:   raw.UnitPrice,
			TotalPrice:  raw.TotalPrice,
			TaxRate:     raw.TaxRate,
			Matched:     false,
			ProductID:   nil,
			Notes:       notes,
		})
		computed = computed.Add(raw.TotalPrice)
	}

	n.reconcileTotals(inv, computed)
	return inv
}

func validateItem(raw extract.RawItem) *ValidationError {
	if raw.Description == "" {
		return &ValidationError{Description: raw.Description, Field: "description", Value: "(empty)"}
	}
	if !raw.Quantity.IsPositive() {
		return &ValidationError{Description: raw.Description, Field: "quantity", Value: raw.Quantity.String()}
	}
	if raw.UnitPrice.IsNegative() {
		return &ValidationError{Description: raw.Description, Field: "unit_price", Value: raw.UnitPrice.String()}
	}
	if raw.TotalPrice.IsNegative() {
		return &ValidationError{Description: raw.Description, Field: "total_price", Value: raw.TotalPrice.String()}
	}
	return nil
}

// reconcileTotals compares the summed line totals against the declared
// invoice total. The net total is preferred when the supplier declared one;
// line totals are net of VAT for those suppliers.
func (n *Normalizer) reconcileTotals(inv *Invoice, computed decimal.Decimal) {
	declared := inv.NetTotal
	if declared.IsZero() {
		declared = inv.GrossTotal
	}
	if declared.IsZero() {
		return
	}

	diff := declared.Sub(computed).Abs()
	if diff.IsZero() {
		return
	}

	warning := fmt.Sprintf("declared total %s differs from summed line totals %s by %s",
		declared.StringFixed(2), computed.StringFixed(2), diff.StringFixed(2))
	if diff.GreaterThan(n.tolerance) {
		warning += fmt.Sprintf(" (exceeds tolerance %s)", n.tolerance.String())
	}
	inv.Warnings = append(inv.Warnings, warning)
	n.logger.Warn("Invoice totals do not reconcile",
		zap.String("declared", declared.StringFixed(2)),
		zap.String("computed", computed.StringFixed(2)),
		zap.Bool("within_tolerance", !diff.GreaterThan(n.tolerance)))
}
