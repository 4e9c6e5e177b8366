package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	tests := []struct {
		supplier string
		want     string
	}{
		{"Alba Cosmetics", "Alba Cosmetics"},
		{"ALBA COSMETICS LTD", "Alba Cosmetics"},
		{"Crown Trading Supplies", "Crown Trading Supplies"},
		{"CTS GmbH", "Crown Trading Supplies"},
		{"Apex Accessories", "Apex Accessories"},
		{"Beaumont Beauty Ltd", "Beaumont Beauty"},
		{"Cerise Cosmetics", "Cerise Cosmetics"},
		{"Some Unknown Wholesaler", "generic"},
		{"", "generic"},
	}

	for _, tt := range tests {
		t.Run(tt.supplier, func(t *testing.T) {
			got := r.Resolve(tt.supplier)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Supplier())
		})
	}
}

func TestRegistry_RegisterNewSupplier(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	custom := NewAlbaExtractor()
	r.Register("northstar", custom)

	assert.Same(t, custom, r.Resolve("Northstar Beauty"))

	// Existing registrations are unaffected
	assert.Equal(t, "Apex Accessories", r.Resolve("Apex Accessories").Supplier())
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		value string
		sep   Separator
		want  string
	}{
		{"plain period", "4.99", SeparatorPeriod, "4.99"},
		{"currency prefix", "£1,234.56", SeparatorPeriod, "1234.56"},
		{"comma decimal", "28,80", SeparatorComma, "28.8"},
		{"comma with thousands", "1.234,56", SeparatorComma, "1234.56"},
		{"euro prefix", "€30,00", SeparatorComma, "30"},
		{"embedded space", "£ 59.88", SeparatorPeriod, "59.88"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAmount(tt.value, tt.sep)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	_, err := parseAmount("abc", SeparatorPeriod)
	assert.Error(t, err)
}

func TestSynthesizeSKU(t *testing.T) {
	a := synthesizeSKU("Pro Nail File 100/180 Grit")
	b := synthesizeSKU("pro nail file 100/180 grit")
	c := synthesizeSKU("Cuticle Oil Pen")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^GEN-[0-9A-F]{12}$`, a)
}
