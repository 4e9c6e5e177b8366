// Package match maps normalized line items to catalog products. Matching is
// applied independently per line item with a first-good-match policy; it
// never optimizes assignments globally and never creates catalog products.
package match

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"go.uber.org/zap"
)

// Candidate is a catalog product with its keyword relevance score
type Candidate struct {
	Product entity.Product
	Score   int
}

// CatalogLookup is the read-only catalog capability this engine consumes.
// The catalog itself is an external collaborator; this pipeline never mutates
// product definitions.
type CatalogLookup interface {
	// FindBySupplierSKU returns the product whose recorded supplier SKU
	// mapping equals the given SKU exactly (case-sensitive), or nil.
	FindBySupplierSKU(ctx context.Context, sku string) (*entity.Product, error)

	// SearchByKeywords returns candidate products for the given tokens,
	// ordered by descending relevance.
	SearchByKeywords(ctx context.Context, tokens []string) ([]Candidate, error)
}

// Config tunes the keyword matching stage
type Config struct {
	// MinScore is the minimum token-overlap score for a keyword match
	MinScore int
	// ScoreGap is how far ahead of the runner-up the best candidate must be
	ScoreGap int
	// MaxKeywords caps how many description tokens are used
	MaxKeywords int
}

// AmbiguityError reports a keyword match that could not be decided. It is
// not fatal: the item stays unmatched for manual resolution and the pipeline
// continues with the next item.
type AmbiguityError struct {
	Description string
	Best        Candidate
	RunnerUp    *Candidate
}

func (e *AmbiguityError) Error() string {
	if e.RunnerUp != nil {
		return fmt.Sprintf("ambiguous match for %q: %q (score %d) vs %q (score %d)",
			e.Description, e.Best.Product.Name, e.Best.Score,
			e.RunnerUp.Product.Name, e.RunnerUp.Score)
	}
	return fmt.Sprintf("no confident match for %q: best %q scored %d",
		e.Description, e.Best.Product.Name, e.Best.Score)
}

// Engine implements the layered matching strategy: exact SKU first, then
// keyword overlap with an ambiguity threshold.
type Engine struct {
	catalog CatalogLookup
	cfg     Config
	logger  *zap.Logger
}

// NewEngine creates a matching engine
func NewEngine(catalog CatalogLookup, cfg Config, logger *zap.Logger) *Engine {
	if cfg.MaxKeywords <= 0 {
		cfg.MaxKeywords = 5
	}
	return &Engine{
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
	}
}

// Match finds the catalog product for a line item. It returns (nil, nil) when
// the item is already matched (re-running is a no-op without explicit reset)
// and (nil, *AmbiguityError) when no confident keyword match exists. The
// result is deterministic for a given catalog state and description.
func (e *Engine) Match(ctx context.Context, item *entity.LineItem) (*entity.Product, error) {
	if item.Matched {
		return nil, nil
	}

	// Strategy 1: exact supplier SKU. When a SKU mapping exists the engine
	// never falls through to keyword matching.
	if item.SupplierSKU != "" {
		product, err := e.catalog.FindBySupplierSKU(ctx, item.SupplierSKU)
		if err != nil {
			return nil, fmt.Errorf("sku lookup failed: %w", err)
		}
		if product != nil {
			e.logger.Debug("Matched by supplier SKU",
				zap.String("sku", item.SupplierSKU),
				zap.String("product", product.Name))
			return product, nil
		}
	}

	// Strategy 2: keyword overlap against product name and keywords.
	tokens := Tokenize(item.Description, e.cfg.MaxKeywords)
	if len(tokens) == 0 {
		return nil, nil
	}

	candidates, err := e.catalog.SearchByKeywords(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	scored := e.rescore(tokens, candidates)

	best := scored[0]
	if best.Score < e.cfg.MinScore {
		return nil, &AmbiguityError{Description: item.Description, Best: best}
	}
	if len(scored) > 1 {
		runnerUp := scored[1]
		if best.Score-runnerUp.Score < e.cfg.ScoreGap {
			return nil, &AmbiguityError{
				Description: item.Description,
				Best:        best,
				RunnerUp:    &runnerUp,
			}
		}
	}

	e.logger.Debug("Matched by keywords",
		zap.String("description", item.Description),
		zap.String("product", best.Product.Name),
		zap.Int("score", best.Score))
	return &best.Product, nil
}

// rescore recomputes token-overlap scores locally so that the decision does
// not depend on store-specific ranking, then orders candidates by score with
// product ID as the deterministic tie-break.
func (e *Engine) rescore(tokens []string, candidates []Candidate) []Candidate {
	scored := make([]Candidate, len(candidates))
	for i, c := range candidates {
		scored[i] = Candidate{
			Product: c.Product,
			Score:   overlapScore(tokens, c.Product),
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Product.ID < scored[j].Product.ID
	})
	return scored
}

// overlapScore counts how many description tokens appear in the product name
// or keywords. Token comparison is normalized case folding with subsequence
// tolerance, so "moistur" still hits "moisturiser".
func overlapScore(tokens []string, product entity.Product) int {
	productTokens := Tokenize(product.Name+" "+product.Keywords, 0)

	score := 0
	for _, token := range tokens {
		for _, pt := range productTokens {
			if token == pt || fuzzy.MatchNormalizedFold(token, pt) {
				score++
				break
			}
		}
	}
	return score
}

var punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"for": true, "with": true, "in": true, "on": true, "at": true,
	"by": true, "of": true, "to": true,
}

// Tokenize lower-cases a description, strips punctuation and stop words, and
// returns at most limit tokens (0 means no limit).
func Tokenize(text string, limit int) []string {
	cleaned := punctuation.ReplaceAllString(strings.ToLower(text), " ")

	var tokens []string
	for _, field := range strings.Fields(cleaned) {
		if stopWords[field] {
			continue
		}
		tokens = append(tokens, field)
		if limit > 0 && len(tokens) >= limit {
			break
		}
	}
	return tokens
}
