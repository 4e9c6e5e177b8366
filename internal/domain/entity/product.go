package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog product. The catalog is an external collaborator: this
// pipeline reads product definitions but never mutates them.
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Keywords    string `json:"keywords"`
	SupplierSKU string `json:"supplier_sku,omitempty"`
}

// StockReceipt is one inventory receipt created by the commit stage. BatchTag
// carries the source invoice number for traceability; the (batch_tag,
// line_item_id) pair is the idempotency key.
type StockReceipt struct {
	ID         string          `json:"id"`
	ProductID  int64           `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	BatchTag   string          `json:"batch_tag"`
	LineItemID int64           `json:"line_item_id"`
	Note       string          `json:"note"`
	CreatedAt  time.Time       `json:"created_at"`
}
