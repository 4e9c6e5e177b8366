package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceLocks_MutualExclusion(t *testing.T) {
	locks := newInvoiceLocks()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire(1)
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestInvoiceLocks_IndependentInvoices(t *testing.T) {
	locks := newInvoiceLocks()

	releaseA := locks.Acquire(1)
	// A different invoice is not blocked by the held lock
	releaseB := locks.Acquire(2)
	releaseB()
	releaseA()
}

func TestInvoiceLocks_EntriesAreReclaimed(t *testing.T) {
	locks := newInvoiceLocks()

	release := locks.Acquire(7)
	release()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks)
}
