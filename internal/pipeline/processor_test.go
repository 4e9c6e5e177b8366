package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"github.com/stockline/invoice-ingest/internal/domain/workflow"
	"github.com/stockline/invoice-ingest/internal/extract"
	"github.com/stockline/invoice-ingest/internal/match"
	"github.com/stockline/invoice-ingest/internal/normalize"
	"github.com/stockline/invoice-ingest/internal/pdfcontent"
	"github.com/stockline/invoice-ingest/internal/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is an in-memory stand-in for the sqlite repositories. It backs
// all three store interfaces so tests can assert on the combined state.
type memStore struct {
	mu            sync.Mutex
	invoices      map[int64]*entity.Invoice
	nextInvoiceID int64
	items         map[int64][]entity.LineItem
	nextItemID    int64
	log           []entity.ProcessingLogEntry
	nextLogID     int64
}

func newMemStore() *memStore {
	return &memStore{
		invoices: make(map[int64]*entity.Invoice),
		items:    make(map[int64][]entity.LineItem),
	}
}

func (s *memStore) Create(ctx context.Context, invoice *entity.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextInvoiceID++
	invoice.ID = s.nextInvoiceID
	clone := *invoice
	s.invoices[invoice.ID] = &clone
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*entity.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	invoice, ok := s.invoices[id]
	if !ok {
		return nil, nil
	}
	clone := *invoice
	return &clone, nil
}

func (s *memStore) GetByNumber(ctx context.Context, invoiceNumber string) (*entity.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, invoice := range s.invoices {
		if invoice.InvoiceNumber == invoiceNumber {
			clone := *invoice
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *memStore) ListByStatus(ctx context.Context, status string) ([]entity.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Invoice
	for id := int64(1); id <= s.nextInvoiceID; id++ {
		if invoice, ok := s.invoices[id]; ok && invoice.Status == status {
			out = append(out, *invoice)
		}
	}
	return out, nil
}

func (s *memStore) UpdateExtraction(ctx context.Context, invoice *entity.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.invoices[invoice.ID]
	if !ok {
		return fmt.Errorf("invoice %d not found", invoice.ID)
	}
	stored.ExtractedData = invoice.ExtractedData
	stored.TotalNet = invoice.TotalNet
	stored.TotalTax = invoice.TotalTax
	stored.TotalGross = invoice.TotalGross
	stored.Currency = invoice.Currency
	return nil
}

func (s *memStore) UpdateStatus(ctx context.Context, id int64, status, errorMessage string, processedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.invoices[id]
	if !ok {
		return fmt.Errorf("invoice %d not found", id)
	}
	stored.Status = status
	stored.ErrorMessage = errorMessage
	stored.ProcessedAt = processedAt
	return nil
}

func (s *memStore) ReplaceForInvoice(ctx context.Context, invoiceID int64, items []entity.LineItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := make([]entity.LineItem, len(items))
	for i, item := range items {
		s.nextItemID++
		item.ID = s.nextItemID
		item.InvoiceID = invoiceID
		replaced[i] = item
	}
	s.items[invoiceID] = replaced
	return nil
}

func (s *memStore) DeleteForInvoice(ctx context.Context, invoiceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, invoiceID)
	return nil
}

func (s *memStore) ListByInvoice(ctx context.Context, invoiceID int64) ([]entity.LineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.LineItem(nil), s.items[invoiceID]...), nil
}

func (s *memStore) SetMatch(ctx context.Context, itemID, productID int64) error {
	return s.setProduct(itemID, &productID, true)
}

func (s *memStore) ClearMatch(ctx context.Context, itemID int64) error {
	return s.setProduct(itemID, nil, false)
}

func (s *memStore) setProduct(itemID int64, productID *int64, matched bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for invoiceID, items := range s.items {
		for i := range items {
			if items[i].ID == itemID {
				items[i].ProductID = productID
				items[i].Matched = matched
				s.items[invoiceID] = items
				return nil
			}
		}
	}
	return fmt.Errorf("line item %d not found", itemID)
}

func (s *memStore) CountUnmatched(ctx context.Context, invoiceID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, item := range s.items[invoiceID] {
		if !item.Matched {
			count++
		}
	}
	return count, nil
}

func (s *memStore) Append(ctx context.Context, invoiceID int64, action, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextLogID++
	s.log = append(s.log, entity.ProcessingLogEntry{
		ID:        s.nextLogID,
		InvoiceID: invoiceID,
		Action:    action,
		Message:   message,
		CreatedAt: time.Now(),
	})
	return nil
}

func (s *memStore) logEntries(invoiceID int64) []entity.ProcessingLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.ProcessingLogEntry
	for _, entry := range s.log {
		if entry.InvoiceID == invoiceID {
			out = append(out, entry)
		}
	}
	return out
}

func (s *memStore) actions(invoiceID int64) []string {
	var out []string
	for _, entry := range s.logEntries(invoiceID) {
		out = append(out, entry.Action)
	}
	return out
}

// logStoreView adapts memStore to the LogStore interface without colliding
// with the line item ListByInvoice method.
type logStoreView struct{ s *memStore }

func (v logStoreView) Append(ctx context.Context, invoiceID int64, action, message string) error {
	return v.s.Append(ctx, invoiceID, action, message)
}

func (v logStoreView) ListByInvoice(ctx context.Context, invoiceID int64) ([]entity.ProcessingLogEntry, error) {
	return v.s.logEntries(invoiceID), nil
}

type passthroughTx struct{}

func (passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeReader struct {
	content *pdfcontent.Content
	err     error
}

func (r *fakeReader) ReadFile(path string) (*pdfcontent.Content, error) {
	return r.content, r.err
}

type fakeExtractor struct {
	result *extract.Result
	err    error
}

func (e *fakeExtractor) Supplier() string { return "Test Supplier" }

func (e *fakeExtractor) Extract(content *pdfcontent.Content) (*extract.Result, error) {
	return e.result, e.err
}

type fakeResolver struct{ extractor extract.Extractor }

func (r *fakeResolver) Resolve(supplierName string) extract.Extractor { return r.extractor }

// fakeMatcher matches by supplier SKU against a fixed product set and can
// report configured descriptions as ambiguous.
type fakeMatcher struct {
	bySKU     map[string]*entity.Product
	ambiguous map[string]bool
	err       error
}

func (m *fakeMatcher) Match(ctx context.Context, item *entity.LineItem) (*entity.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	if item.Matched {
		return nil, nil
	}
	if m.ambiguous[item.Description] {
		return nil, &match.AmbiguityError{
			Description: item.Description,
			Best:        match.Candidate{Product: entity.Product{ID: 1, Name: "A"}, Score: 1},
		}
	}
	return m.bySKU[item.SupplierSKU], nil
}

// memReceipts is an in-memory stock.ReceiptWriter
type memReceipts struct {
	mu       sync.Mutex
	receipts map[string]entity.StockReceipt
}

func newMemReceipts() *memReceipts {
	return &memReceipts{receipts: make(map[string]entity.StockReceipt)}
}

func (r *memReceipts) CreateReceipt(ctx context.Context, receipt *entity.StockReceipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts[fmt.Sprintf("%s#%d", receipt.BatchTag, receipt.LineItemID)] = *receipt
	return nil
}

func (r *memReceipts) ExistsForLineItem(ctx context.Context, batchTag string, lineItemID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.receipts[fmt.Sprintf("%s#%d", batchTag, lineItemID)]
	return ok, nil
}

func (r *memReceipts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.receipts)
}

type rig struct {
	processor *Processor
	store     *memStore
	reader    *fakeReader
	matcher   *fakeMatcher
	receipts  *memReceipts
}

func amount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func defaultResult() *extract.Result {
	return &extract.Result{
		Metadata: extract.Metadata{
			InvoiceNo: "INV-1",
			NetTotal:  amount("41.50"),
			Currency:  "GBP",
		},
		Items: []extract.RawItem{
			{Description: "Nitrile Gloves", SupplierSKU: "W-1", Quantity: amount("2"), UnitPrice: amount("5.00"), TotalPrice: amount("10.00"), TaxRate: amount("20")},
			{Description: "Cuticle Oil", SupplierSKU: "W-2", Quantity: amount("3"), UnitPrice: amount("10.50"), TotalPrice: amount("31.50"), TaxRate: amount("20")},
		},
	}
}

func newRig(result *extract.Result, extractErr error) *rig {
	store := newMemStore()
	reader := &fakeReader{content: pdfcontent.NewContent("some text", nil)}
	matcher := &fakeMatcher{
		bySKU: map[string]*entity.Product{
			"W-1": {ID: 10, Name: "Nitrile Gloves"},
			"W-2": {ID: 11, Name: "Cuticle Oil"},
		},
		ambiguous: map[string]bool{},
	}
	receipts := newMemReceipts()
	logger := zap.NewNop()

	processor := NewProcessor(Deps{
		Tx:         passthroughTx{},
		Invoices:   store,
		Items:      store,
		Logs:       logStoreView{store},
		Reader:     reader,
		Extractors: &fakeResolver{extractor: &fakeExtractor{result: result, err: extractErr}},
		Normalizer: normalize.New(0.05, logger),
		Matcher:    matcher,
		Committer:  stock.NewCommitter(receipts, logger),
		Logger:     logger,
	})

	return &rig{
		processor: processor,
		store:     store,
		reader:    reader,
		matcher:   matcher,
		receipts:  receipts,
	}
}

func (r *rig) seedInvoice(t *testing.T, status string) *entity.Invoice {
	t.Helper()
	invoice := &entity.Invoice{
		InvoiceNumber: "INV-1",
		InvoiceDate:   time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
		Supplier:      "Test Supplier",
		FilePath:      "/tmp/inv-1.pdf",
		Status:        status,
	}
	require.NoError(t, r.store.Create(context.Background(), invoice))
	return invoice
}

func TestProcessor_FullRun(t *testing.T) {
	r := newRig(defaultResult(), nil)
	invoice := r.seedInvoice(t, entity.StatusPending)

	err := r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{RunMatching: true, RunCommit: true})
	require.NoError(t, err)

	stored, _ := r.store.GetByID(context.Background(), invoice.ID)
	assert.Equal(t, entity.StatusCompleted, stored.Status)
	assert.NotNil(t, stored.ProcessedAt)
	assert.Empty(t, stored.ErrorMessage)
	assert.Equal(t, "41.5", stored.TotalNet.String())
	assert.Equal(t, "GBP", stored.Currency)
	assert.NotEmpty(t, stored.ExtractedData)

	items, _ := r.store.ListByInvoice(context.Background(), invoice.ID)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.True(t, item.Matched)
		require.NotNil(t, item.ProductID)
	}

	assert.Equal(t, 2, r.receipts.count())
	assert.Equal(t, []string{
		entity.ActionExtract,
		entity.ActionExtract,
		entity.ActionMatch,
		entity.ActionStockCreate,
	}, r.store.actions(invoice.ID))
}

func TestProcessor_ExtractionFailure(t *testing.T) {
	r := newRig(nil, extract.NewExtractionError("Test Supplier", extract.ReasonNoStructure, nil))
	invoice := r.seedInvoice(t, entity.StatusPending)

	err := r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{})

	var extractErr *extract.ExtractionError
	require.ErrorAs(t, err, &extractErr)

	stored, _ := r.store.GetByID(context.Background(), invoice.ID)
	assert.Equal(t, entity.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "NO_STRUCTURE")

	actions := r.store.actions(invoice.ID)
	assert.Equal(t, entity.ActionError, actions[len(actions)-1])
}

func TestProcessor_UnreadableDocument(t *testing.T) {
	r := newRig(defaultResult(), nil)
	r.reader.content = nil
	r.reader.err = pdfcontent.ErrNoTextLayer
	invoice := r.seedInvoice(t, entity.StatusPending)

	err := r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{})

	var extractErr *extract.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, extract.ReasonNoStructure, extractErr.Reason)

	stored, _ := r.store.GetByID(context.Background(), invoice.ID)
	assert.Equal(t, entity.StatusFailed, stored.Status)
}

func TestProcessor_CommitRejectsUnmatchedItems(t *testing.T) {
	r := newRig(defaultResult(), nil)
	r.matcher.bySKU = map[string]*entity.Product{"W-1": {ID: 10}}
	invoice := r.seedInvoice(t, entity.StatusPending)

	err := r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{RunMatching: true, RunCommit: true})

	var commitErr *stock.CommitError
	require.ErrorAs(t, err, &commitErr)

	stored, _ := r.store.GetByID(context.Background(), invoice.ID)
	assert.Equal(t, entity.StatusFailed, stored.Status)
	assert.Equal(t, 0, r.receipts.count())

	actions := r.store.actions(invoice.ID)
	assert.Equal(t, entity.ActionStockError, actions[len(actions)-1])
}

func TestProcessor_AmbiguityLeavesItemUnmatched(t *testing.T) {
	r := newRig(defaultResult(), nil)
	r.matcher.ambiguous["Cuticle Oil"] = true
	invoice := r.seedInvoice(t, entity.StatusPending)

	err := r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{RunMatching: true})
	require.NoError(t, err)

	stored, _ := r.store.GetByID(context.Background(), invoice.ID)
	assert.Equal(t, entity.StatusProcessing, stored.Status)

	items, _ := r.store.ListByInvoice(context.Background(), invoice.ID)
	matched := 0
	for _, item := range items {
		if item.Matched {
			matched++
		}
	}
	assert.Equal(t, 1, matched)
}

func TestProcessor_TerminalStateIsNoOp(t *testing.T) {
	for _, status := range []string{entity.StatusCompleted, entity.StatusCancelled} {
		t.Run(status, func(t *testing.T) {
			r := newRig(defaultResult(), nil)
			invoice := r.seedInvoice(t, status)

			err := r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{RunMatching: true, RunCommit: true})
			require.NoError(t, err)

			stored, _ := r.store.GetByID(context.Background(), invoice.ID)
			assert.Equal(t, status, stored.Status)
			assert.Empty(t, r.store.actions(invoice.ID))
		})
	}
}

func TestProcessor_FailedInvoiceRequiresReset(t *testing.T) {
	r := newRig(defaultResult(), nil)
	invoice := r.seedInvoice(t, entity.StatusFailed)

	err := r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{RunMatching: true, RunCommit: true})
	require.ErrorIs(t, err, workflow.ErrInvalidTransition)

	stored, _ := r.store.GetByID(context.Background(), invoice.ID)
	assert.Equal(t, entity.StatusFailed, stored.Status)
	assert.Equal(t, 0, r.receipts.count())
	assert.Empty(t, r.store.actions(invoice.ID))
}

func TestProcessor_ReExtractionPreservesMatches(t *testing.T) {
	r := newRig(defaultResult(), nil)
	invoice := r.seedInvoice(t, entity.StatusPending)

	require.NoError(t, r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{RunMatching: true}))

	// Re-extract without matching: replaced items keep their product links
	require.NoError(t, r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{}))

	items, _ := r.store.ListByInvoice(context.Background(), invoice.ID)
	require.Len(t, items, 2)
	for _, item := range items {
		assert.True(t, item.Matched)
		require.NotNil(t, item.ProductID)
	}
}

func TestProcessor_Upload(t *testing.T) {
	r := newRig(defaultResult(), nil)

	invoice, err := r.processor.Upload(context.Background(), "INV-9", "Test Supplier",
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), "/tmp/inv-9.pdf")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, invoice.Status)
	assert.Equal(t, []string{entity.ActionUpload}, r.store.actions(invoice.ID))

	_, err = r.processor.Upload(context.Background(), "INV-9", "Other Supplier", time.Now(), "/tmp/other.pdf")
	assert.ErrorContains(t, err, "already exists")
}

func TestProcessor_Cancel(t *testing.T) {
	r := newRig(defaultResult(), nil)
	invoice := r.seedInvoice(t, entity.StatusPending)

	require.NoError(t, r.processor.Cancel(context.Background(), invoice.ID))

	stored, _ := r.store.GetByID(context.Background(), invoice.ID)
	assert.Equal(t, entity.StatusCancelled, stored.Status)
	assert.Equal(t, []string{entity.ActionCancel}, r.store.actions(invoice.ID))

	// Terminal states reject cancellation
	err := r.processor.Cancel(context.Background(), invoice.ID)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestProcessor_Reset(t *testing.T) {
	r := newRig(nil, extract.NewExtractionError("Test Supplier", extract.ReasonNoStructure, nil))
	invoice := r.seedInvoice(t, entity.StatusPending)

	require.Error(t, r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{}))
	logBefore := len(r.store.actions(invoice.ID))

	require.NoError(t, r.processor.Reset(context.Background(), invoice.ID))

	stored, _ := r.store.GetByID(context.Background(), invoice.ID)
	assert.Equal(t, entity.StatusPending, stored.Status)
	assert.Empty(t, stored.ErrorMessage)

	items, _ := r.store.ListByInvoice(context.Background(), invoice.ID)
	assert.Empty(t, items)

	// History survives the reset and gains the reset entry
	actions := r.store.actions(invoice.ID)
	assert.Len(t, actions, logBefore+1)
	assert.Equal(t, entity.ActionReset, actions[len(actions)-1])
}

func TestProcessor_ResetRequiresFailedState(t *testing.T) {
	r := newRig(defaultResult(), nil)
	invoice := r.seedInvoice(t, entity.StatusPending)

	err := r.processor.Reset(context.Background(), invoice.ID)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestProcessor_OverrideMatch(t *testing.T) {
	r := newRig(defaultResult(), nil)
	r.matcher.bySKU = map[string]*entity.Product{}
	invoice := r.seedInvoice(t, entity.StatusPending)

	require.NoError(t, r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{RunMatching: true}))

	items, _ := r.store.ListByInvoice(context.Background(), invoice.ID)
	require.Len(t, items, 2)

	for _, item := range items {
		require.NoError(t, r.processor.OverrideMatch(context.Background(), invoice.ID, item.ID, 42))
	}

	items, _ = r.store.ListByInvoice(context.Background(), invoice.ID)
	for _, item := range items {
		assert.True(t, item.Matched)
		require.NotNil(t, item.ProductID)
		assert.Equal(t, int64(42), *item.ProductID)
	}
}

func TestProcessor_ProcessPendingContinuesPastFailures(t *testing.T) {
	r := newRig(defaultResult(), nil)
	first := r.seedInvoice(t, entity.StatusPending)

	second := &entity.Invoice{
		InvoiceNumber: "INV-2",
		InvoiceDate:   time.Now(),
		Supplier:      "Test Supplier",
		FilePath:      "/tmp/inv-2.pdf",
		Status:        entity.StatusPending,
	}
	require.NoError(t, r.store.Create(context.Background(), second))

	// Every item is ambiguous, so both invoices fail at commit while the
	// sweep itself keeps going.
	r.matcher.ambiguous["Nitrile Gloves"] = true
	r.matcher.ambiguous["Cuticle Oil"] = true

	summary, err := r.processor.ProcessPending(context.Background(), Options{RunMatching: true, RunCommit: true})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 0, summary.Succeeded)
	assert.Equal(t, 2, summary.Failed)

	storedFirst, _ := r.store.GetByID(context.Background(), first.ID)
	storedSecond, _ := r.store.GetByID(context.Background(), second.ID)
	assert.Equal(t, entity.StatusFailed, storedFirst.Status)
	assert.Equal(t, entity.StatusFailed, storedSecond.Status)
}

func TestProcessor_Inspect(t *testing.T) {
	r := newRig(defaultResult(), nil)
	invoice := r.seedInvoice(t, entity.StatusPending)

	require.NoError(t, r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{RunMatching: true}))

	view, err := r.processor.Inspect(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessing, view.Invoice.Status)
	assert.Len(t, view.Items, 2)
	assert.NotEmpty(t, view.Log)

	_, err = r.processor.Inspect(context.Background(), 999)
	assert.ErrorContains(t, err, "not found")
}

func TestProcessor_MatcherInfrastructureErrorFailsInvoice(t *testing.T) {
	r := newRig(defaultResult(), nil)
	r.matcher.err = errors.New("catalog down")
	invoice := r.seedInvoice(t, entity.StatusPending)

	err := r.processor.ProcessInvoice(context.Background(), invoice.ID, Options{RunMatching: true})
	require.Error(t, err)

	stored, _ := r.store.GetByID(context.Background(), invoice.ID)
	assert.Equal(t, entity.StatusFailed, stored.Status)
}
