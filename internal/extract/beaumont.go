package extract

import (
	"regexp"
	"strings"

	"github.com/stockline/invoice-ingest/internal/pdfcontent"
)

// BeaumontExtractor handles Beaumont Beauty invoices. Beaumont prints each
// product as a block of description lines followed by a "SKU:" marker line,
// then the SKU value, quantity, unit price, VAT percentage and line total on
// their own lines. Page breaks can cut a block in half, stranding the SKU
// value at the top of the next page, so extraction first indexes those
// orphaned SKU values and then stitches split blocks back together.
type BeaumontExtractor struct{}

// NewBeaumontExtractor creates the Beaumont Beauty extractor
func NewBeaumontExtractor() *BeaumontExtractor {
	return &BeaumontExtractor{}
}

// Supplier returns the supplier identity
func (e *BeaumontExtractor) Supplier() string {
	return "Beaumont Beauty"
}

var (
	beaumontInvoicePattern = regexp.MustCompile(`Invoice\s+(BM\d+)`)
	beaumontOrderPattern   = regexp.MustCompile(`Order Number:\s*(BM\d+)`)
	beaumontDatePattern    = regexp.MustCompile(`(?i)Issue Date:\s*(\w+\s+\d+,?\s*\d{4})`)
	beaumontGrossPattern   = regexp.MustCompile(`Total incl\. VAT\s*£([\d.,]+)`)
	beaumontTaxPattern     = regexp.MustCompile(`VAT\s*\([^)]+\)\s*\d+%\s*£([\d.,]+)`)
	beaumontNetPattern     = regexp.MustCompile(`Total excl\. VAT\s*£([\d.,]+)`)

	// A bare SKU value: a run of uppercase letters then alphanumerics
	// ending in digits, e.g. NYXEYEEPI007.
	beaumontSKUPattern = regexp.MustCompile(`^[A-Z]{3,}[A-Z0-9]*\d{2,}$`)
)

// beaumontStopLines terminate the backward walk collecting a product's
// description: table headers, totals labels and the previous block's fields.
var beaumontStopLines = map[string]struct{}{
	"Item":            {},
	"Description":     {},
	"Quantity":        {},
	"Unit Price":      {},
	"VAT":             {},
	"Total":           {},
	"Total excl. VAT": {},
	"Total incl. VAT": {},
	"Amount Paid":     {},
}

// beaumontOrphan is a SKU value stranded after a page break, with the
// description fragment printed above it on the new page.
type beaumontOrphan struct {
	sku  string
	desc string
	used bool
}

// Extract parses a Beaumont Beauty invoice
func (e *BeaumontExtractor) Extract(content *pdfcontent.Content) (*Result, error) {
	result := &Result{
		Metadata: Metadata{Currency: "GBP"},
	}

	e.extractMetadata(content.Text, &result.Metadata)
	e.extractItems(content.Lines, result)

	if len(result.Items) == 0 {
		return nil, NewExtractionError(e.Supplier(), ReasonNoStructure, nil)
	}
	if result.Metadata.GrossTotal.IsZero() {
		return nil, NewExtractionError(e.Supplier(), ReasonPartialData, nil)
	}

	return result, nil
}

func (e *BeaumontExtractor) extractMetadata(text string, meta *Metadata) {
	if m := beaumontInvoicePattern.FindStringSubmatch(text); m != nil {
		meta.InvoiceNo = m[1]
	}
	if m := beaumontOrderPattern.FindStringSubmatch(text); m != nil {
		meta.OrderNo = m[1]
	}
	if m := beaumontDatePattern.FindStringSubmatch(text); m != nil {
		meta.InvoiceDate = m[1]
	}
	if m := beaumontGrossPattern.FindStringSubmatch(text); m != nil {
		meta.GrossTotal = mustAmount(m[1], SeparatorPeriod)
	}
	if m := beaumontTaxPattern.FindStringSubmatch(text); m != nil {
		meta.TaxTotal = mustAmount(m[1], SeparatorPeriod)
	}
	if m := beaumontNetPattern.FindStringSubmatch(text); m != nil {
		meta.NetTotal = mustAmount(m[1], SeparatorPeriod)
	}
}

func (e *BeaumontExtractor) extractItems(lines []string, result *Result) {
	orphans := e.orphanSKUs(lines)

	i := 0
	for i < len(lines) {
		switch lines[i] {
		case "SKU:":
			if i+1 < len(lines) && isDigits(lines[i+1]) {
				// The SKU value fell onto the next page; the digits
				// here are already the quantity.
				if item, ok := e.splitItem(lines, i, orphans); ok {
					result.Items = append(result.Items, item)
				}
				i += 5
			} else {
				if item, ok := e.itemAtMarker(lines, i, false); ok {
					result.Items = append(result.Items, item)
				}
				i += 6
			}
		case "SKU: O-":
			if item, ok := e.itemAtMarker(lines, i, true); ok {
				result.Items = append(result.Items, item)
			}
			i += 6
		default:
			i++
		}
	}
}

// orphanSKUs indexes bare SKU values whose preceding line is not a SKU
// marker, in document order.
func (e *BeaumontExtractor) orphanSKUs(lines []string) []*beaumontOrphan {
	var orphans []*beaumontOrphan
	for i, line := range lines {
		if len(line) < 6 || !beaumontSKUPattern.MatchString(line) {
			continue
		}
		if i > 0 && strings.HasPrefix(lines[i-1], "SKU:") {
			continue
		}
		orphans = append(orphans, &beaumontOrphan{
			sku:  line,
			desc: strings.Join(e.descriptionBefore(lines, i), " "),
		})
	}
	return orphans
}

// descriptionBefore walks backward from idx collecting the product's
// description lines until a header, amount or footer line.
func (e *BeaumontExtractor) descriptionBefore(lines []string, idx int) []string {
	var desc []string
	for j := idx - 1; j >= 0; j-- {
		line := lines[j]
		if _, stop := beaumontStopLines[line]; stop {
			break
		}
		if strings.HasPrefix(line, "£") || strings.HasSuffix(line, "%") {
			break
		}
		if strings.Contains(strings.ToLower(line), "beaumont") {
			break
		}
		if line != "" {
			desc = append([]string{line}, desc...)
		}
	}
	return desc
}

// itemAtMarker extracts a product whose SKU value follows its marker line.
// With stripPrefix the value carries Beaumont's own-brand "O-" prefix, which
// is not part of the catalog SKU.
func (e *BeaumontExtractor) itemAtMarker(lines []string, markerIdx int, stripPrefix bool) (RawItem, bool) {
	if markerIdx+5 >= len(lines) {
		return RawItem{}, false
	}

	sku := lines[markerIdx+1]
	if stripPrefix {
		sku = strings.TrimPrefix(sku, "O-")
	}
	description := strings.Join(e.descriptionBefore(lines, markerIdx), " ")

	return e.buildItem(description, sku,
		lines[markerIdx+2], lines[markerIdx+3], lines[markerIdx+4], lines[markerIdx+5])
}

// splitItem extracts a product whose block was cut by a page break: the
// description head sits before the marker, the SKU value and description
// tail at the top of the next page. The first unused orphan that yields a
// plausible item claims the block.
func (e *BeaumontExtractor) splitItem(lines []string, markerIdx int, orphans []*beaumontOrphan) (RawItem, bool) {
	if markerIdx+4 >= len(lines) {
		return RawItem{}, false
	}

	head := strings.Join(e.descriptionBefore(lines, markerIdx), " ")
	for _, orphan := range orphans {
		if orphan.used || orphan.desc == "" {
			continue
		}
		item, ok := e.buildItem(head+" "+orphan.desc, orphan.sku,
			lines[markerIdx+1], lines[markerIdx+2], lines[markerIdx+3], lines[markerIdx+4])
		if ok {
			orphan.used = true
			return item, true
		}
	}
	return RawItem{}, false
}

func (e *BeaumontExtractor) buildItem(description, sku, qtyLine, priceLine, vatLine, totalLine string) (RawItem, bool) {
	if !isDigits(qtyLine) || !strings.HasSuffix(vatLine, "%") {
		return RawItem{}, false
	}

	quantity := mustAmount(qtyLine, SeparatorPeriod)
	description = strings.TrimSpace(description)
	if !quantity.IsPositive() || description == "" {
		return RawItem{}, false
	}

	return RawItem{
		Description: description,
		SupplierSKU: sku,
		Quantity:    quantity,
		UnitPrice:   mustAmount(priceLine, SeparatorPeriod),
		TotalPrice:  mustAmount(totalLine, SeparatorPeriod),
		TaxRate:     mustAmount(strings.TrimSuffix(vatLine, "%"), SeparatorPeriod),
	}, true
}
