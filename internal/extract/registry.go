package extract

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

type registration struct {
	key       string
	extractor Extractor
}

// Registry resolves a supplier name to its extractor variant. Matching is
// case-insensitive substring matching against the registered keys; when no
// entry matches the generic fallback is returned. Registering a new supplier
// never changes existing variants.
type Registry struct {
	mu       sync.RWMutex
	entries  []registration
	fallback Extractor
	logger   *zap.Logger
}

// NewRegistry creates a registry pre-populated with the known suppliers
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		fallback: NewGenericExtractor(),
		logger:   logger,
	}

	r.Register("alba", NewAlbaExtractor())
	r.Register("crown trading", NewCrownTradingExtractor())
	r.Register("cts", NewCrownTradingExtractor())
	r.Register("apex", NewApexExtractor())
	r.Register("beaumont", NewBeaumontExtractor())
	r.Register("cerise", NewCeriseExtractor())

	return r
}

// Register adds a supplier key. Keys are matched as lowercase substrings of
// the supplier name.
func (r *Registry) Register(key string, extractor Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, registration{
		key:       strings.ToLower(key),
		extractor: extractor,
	})
}

// Resolve returns the extractor for the given supplier name, falling back to
// the generic variant when no registration matches.
func (r *Registry) Resolve(supplierName string) Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(supplierName)
	for _, entry := range r.entries {
		if strings.Contains(lower, entry.key) {
			return entry.extractor
		}
	}

	r.logger.Warn("No extractor registered for supplier, using generic fallback",
		zap.String("supplier", supplierName))
	return r.fallback
}
