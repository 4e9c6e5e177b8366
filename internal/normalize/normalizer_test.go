package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stockline/invoice-ingest/internal/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func amount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func rawItem(desc, qty, unit, total string) extract.RawItem {
	return extract.RawItem{
		Description: desc,
		SupplierSKU: "SKU-" + desc,
		Quantity:    amount(qty),
		UnitPrice:   amount(unit),
		TotalPrice:  amount(total),
		TaxRate:     amount("20"),
	}
}

func TestNormalize_ValidItems(t *testing.T) {
	n := New(0.05, zap.NewNop())

	result := &extract.Result{
		Metadata: extract.Metadata{
			NetTotal: amount("91.38"),
			Currency: "GBP",
		},
		Items: []extract.RawItem{
			rawItem("Shampoo", "12", "4.99", "59.88"),
			rawItem("Conditioner", "6", "5.25", "31.50"),
		},
	}

	inv := n.Normalize(result)
	require.Len(t, inv.Items, 2)
	assert.Empty(t, inv.Rejected)
	assert.Empty(t, inv.Warnings)
	assert.Equal(t, "GBP", inv.Currency)

	for _, item := range inv.Items {
		assert.False(t, item.Matched)
		assert.Nil(t, item.ProductID)
	}
}

func TestNormalize_RejectsInvalidItems(t *testing.T) {
	n := New(0.05, zap.NewNop())

	tests := []struct {
		name  string
		item  extract.RawItem
		field string
	}{
		{"empty description", rawItem("", "1", "1.00", "1.00"), "description"},
		{"zero quantity", rawItem("Gloves", "0", "1.00", "0"), "quantity"},
		{"negative quantity", rawItem("Gloves", "-2", "1.00", "-2.00"), "quantity"},
		{"negative unit price", rawItem("Gloves", "1", "-1.00", "1.00"), "unit_price"},
		{"negative total", rawItem("Gloves", "1", "1.00", "-1.00"), "total_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := n.Normalize(&extract.Result{
				Items: []extract.RawItem{tt.item, rawItem("Survivor", "2", "3.00", "6.00")},
			})

			// The invalid item is skipped, the valid one survives
			require.Len(t, inv.Items, 1)
			assert.Equal(t, "Survivor", inv.Items[0].Description)
			require.Len(t, inv.Rejected, 1)
			assert.Equal(t, tt.field, inv.Rejected[0].Err.Field)
		})
	}
}

func TestNormalize_TotalMismatchWithinTolerance(t *testing.T) {
	n := New(0.05, zap.NewNop())

	inv := n.Normalize(&extract.Result{
		Metadata: extract.Metadata{NetTotal: amount("100.00")},
		Items:    []extract.RawItem{rawItem("Widget", "1", "99.98", "99.98")},
	})

	// Accepted, but the discrepancy is surfaced
	require.Len(t, inv.Items, 1)
	require.Len(t, inv.Warnings, 1)
	assert.Contains(t, inv.Warnings[0], "differs from summed line totals")
	assert.NotContains(t, inv.Warnings[0], "exceeds tolerance")
}

func TestNormalize_TotalMismatchBeyondTolerance(t *testing.T) {
	n := New(0.05, zap.NewNop())

	inv := n.Normalize(&extract.Result{
		Metadata: extract.Metadata{NetTotal: amount("100.00")},
		Items:    []extract.RawItem{rawItem("Widget", "1", "90.00", "90.00")},
	})

	require.Len(t, inv.Warnings, 1)
	assert.Contains(t, inv.Warnings[0], "exceeds tolerance")
}

func TestNormalize_FallsBackToGrossTotal(t *testing.T) {
	n := New(0.05, zap.NewNop())

	inv := n.Normalize(&extract.Result{
		Metadata: extract.Metadata{GrossTotal: amount("50.00")},
		Items:    []extract.RawItem{rawItem("Widget", "1", "50.00", "50.00")},
	})

	assert.Empty(t, inv.Warnings)
}

func TestNormalize_NoDeclaredTotals(t *testing.T) {
	n := New(0.05, zap.NewNop())

	inv := n.Normalize(&extract.Result{
		Items: []extract.RawItem{rawItem("Widget", "1", "10.00", "10.00")},
	})

	assert.Empty(t, inv.Warnings)
}

func TestNormalize_LowConfidenceCarriesReviewNote(t *testing.T) {
	n := New(0.05, zap.NewNop())

	inv := n.Normalize(&extract.Result{
		LowConfidence: true,
		Items:         []extract.RawItem{rawItem("Widget", "1", "10.00", "10.00")},
	})

	require.Len(t, inv.Items, 1)
	assert.Equal(t, extract.ManualReviewNote, inv.Items[0].Notes)
}
