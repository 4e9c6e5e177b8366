package match

import (
	"context"
	"errors"
	"testing"

	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCatalog struct {
	bySKU      map[string]*entity.Product
	candidates []Candidate
	skuErr     error
	searchErr  error

	skuCalls    int
	searchCalls int
}

func (f *fakeCatalog) FindBySupplierSKU(ctx context.Context, sku string) (*entity.Product, error) {
	f.skuCalls++
	if f.skuErr != nil {
		return nil, f.skuErr
	}
	return f.bySKU[sku], nil
}

func (f *fakeCatalog) SearchByKeywords(ctx context.Context, tokens []string) ([]Candidate, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.candidates, nil
}

func newEngine(catalog *fakeCatalog) *Engine {
	return NewEngine(catalog, Config{MinScore: 2, ScoreGap: 1, MaxKeywords: 5}, zap.NewNop())
}

func TestEngine_MatchBySKU(t *testing.T) {
	product := &entity.Product{ID: 7, Name: "Argan Repair Shampoo", SupplierSKU: "ALB-001"}
	catalog := &fakeCatalog{bySKU: map[string]*entity.Product{"ALB-001": product}}
	engine := newEngine(catalog)

	item := &entity.LineItem{Description: "Argan Repair Shampoo 250ml", SupplierSKU: "ALB-001"}
	got, err := engine.Match(context.Background(), item)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.ID)

	// SKU hit short-circuits the keyword stage entirely
	assert.Equal(t, 0, catalog.searchCalls)
}

func TestEngine_SKULookupIsCaseSensitive(t *testing.T) {
	catalog := &fakeCatalog{bySKU: map[string]*entity.Product{"ALB-001": {ID: 7}}}
	engine := newEngine(catalog)

	item := &entity.LineItem{Description: "anything else", SupplierSKU: "alb-001"}
	got, err := engine.Match(context.Background(), item)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEngine_AlreadyMatchedIsNoOp(t *testing.T) {
	catalog := &fakeCatalog{}
	engine := newEngine(catalog)

	productID := int64(3)
	item := &entity.LineItem{SupplierSKU: "X", Matched: true, ProductID: &productID}
	got, err := engine.Match(context.Background(), item)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, catalog.skuCalls)
	assert.Equal(t, 0, catalog.searchCalls)
}

func TestEngine_MatchByKeywords(t *testing.T) {
	catalog := &fakeCatalog{
		candidates: []Candidate{
			{Product: entity.Product{ID: 1, Name: "Nitrile Gloves Black", Keywords: "gloves nitrile"}},
			{Product: entity.Product{ID: 2, Name: "Latex Gloves", Keywords: "gloves latex"}},
		},
	}
	engine := newEngine(catalog)

	item := &entity.LineItem{Description: "Nitrile Gloves Black M"}
	got, err := engine.Match(context.Background(), item)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.ID)
}

func TestEngine_AmbiguousWhenScoresTie(t *testing.T) {
	catalog := &fakeCatalog{
		candidates: []Candidate{
			{Product: entity.Product{ID: 1, Name: "Nitrile Gloves M"}},
			{Product: entity.Product{ID: 2, Name: "Nitrile Gloves L"}},
		},
	}
	engine := newEngine(catalog)

	item := &entity.LineItem{Description: "Nitrile Gloves"}
	got, err := engine.Match(context.Background(), item)
	assert.Nil(t, got)

	var ambErr *AmbiguityError
	require.ErrorAs(t, err, &ambErr)
	require.NotNil(t, ambErr.RunnerUp)
	// Candidates tie, so the deterministic ordering puts the lower ID first
	assert.Equal(t, int64(1), ambErr.Best.Product.ID)
}

func TestEngine_AmbiguousWhenBelowMinScore(t *testing.T) {
	catalog := &fakeCatalog{
		candidates: []Candidate{
			{Product: entity.Product{ID: 1, Name: "Cuticle Oil"}},
		},
	}
	engine := newEngine(catalog)

	item := &entity.LineItem{Description: "Buffer Block"}
	got, err := engine.Match(context.Background(), item)
	assert.Nil(t, got)

	var ambErr *AmbiguityError
	require.ErrorAs(t, err, &ambErr)
	assert.Nil(t, ambErr.RunnerUp)
}

func TestEngine_NoCandidates(t *testing.T) {
	engine := newEngine(&fakeCatalog{})

	item := &entity.LineItem{Description: "Mystery Item"}
	got, err := engine.Match(context.Background(), item)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEngine_DeterministicAcrossRuns(t *testing.T) {
	catalog := &fakeCatalog{
		candidates: []Candidate{
			{Product: entity.Product{ID: 9, Name: "Glass Nail File Large", Keywords: "nail file glass"}},
			{Product: entity.Product{ID: 4, Name: "Glass Nail File", Keywords: "nail file glass"}},
		},
	}
	engine := newEngine(catalog)
	item := &entity.LineItem{Description: "Glass Nail File"}

	for i := 0; i < 5; i++ {
		got, err := engine.Match(context.Background(), item)
		if err != nil {
			var ambErr *AmbiguityError
			require.ErrorAs(t, err, &ambErr)
			assert.Equal(t, int64(4), ambErr.Best.Product.ID)
			continue
		}
		require.NotNil(t, got)
		assert.Equal(t, int64(4), got.ID)
	}
}

func TestEngine_LookupErrors(t *testing.T) {
	boom := errors.New("catalog down")

	engine := newEngine(&fakeCatalog{skuErr: boom})
	_, err := engine.Match(context.Background(), &entity.LineItem{SupplierSKU: "X", Description: "y"})
	assert.ErrorIs(t, err, boom)

	engine = newEngine(&fakeCatalog{searchErr: boom})
	_, err = engine.Match(context.Background(), &entity.LineItem{Description: "nitrile gloves"})
	assert.ErrorIs(t, err, boom)
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"lowercases and strips punctuation", "Pro Nail-File, 100/180!", 0, []string{"pro", "nail", "file", "100", "180"}},
		{"drops stop words", "Oil for the Cuticles", 0, []string{"oil", "cuticles"}},
		{"applies limit", "one two three four", 2, []string{"one", "two"}},
		{"empty", "  ", 0, nil},
		{"only stop words", "of the and", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text, tt.limit))
		})
	}
}
