package pipeline

import "sync"

// invoiceLocks serializes pipeline runs per invoice. Runs for different
// invoices may proceed concurrently; two runs for the same invoice must not
// overlap, or they could double-extract or double-commit it.
type invoiceLocks struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newInvoiceLocks() *invoiceLocks {
	return &invoiceLocks{
		locks: make(map[int64]*lockEntry),
	}
}

// Acquire blocks until the invoice lock is held and returns the release
// function. Entries are reference counted so the map does not grow without
// bound.
func (l *invoiceLocks) Acquire(invoiceID int64) func() {
	l.mu.Lock()
	entry, ok := l.locks[invoiceID]
	if !ok {
		entry = &lockEntry{}
		l.locks[invoiceID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, invoiceID)
		}
		l.mu.Unlock()
	}
}
