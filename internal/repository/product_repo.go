package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/stockline/invoice-ingest/internal/domain/entity"
	"github.com/stockline/invoice-ingest/internal/match"
	"github.com/stockline/invoice-ingest/pkg/database"
	"go.uber.org/zap"
)

// ProductRepository is the catalog lookup adapter. The catalog is read-only
// from the pipeline's perspective; this repository implements
// match.CatalogLookup and nothing that mutates product definitions.
type ProductRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *sql.DB, logger *zap.Logger) *ProductRepository {
	return &ProductRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ProductRepository) executor(ctx context.Context) database.Executor {
	return database.ExecutorFrom(ctx, r.db)
}

// FindBySupplierSKU returns the product with the exact supplier SKU mapping.
// The comparison is case-sensitive.
func (r *ProductRepository) FindBySupplierSKU(ctx context.Context, sku string) (*entity.Product, error) {
	query := `
		SELECT id, name, keywords, supplier_sku
		FROM products
		WHERE supplier_sku = ?
	`

	var product entity.Product
	var keywords, supplierSKU sql.NullString

	err := r.executor(ctx).QueryRowContext(ctx, query, sku).Scan(
		&product.ID,
		&product.Name,
		&keywords,
		&supplierSKU,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find product by SKU", zap.String("sku", sku), zap.Error(err))
		return nil, fmt.Errorf("failed to find product by sku: %w", err)
	}

	product.Keywords = keywords.String
	product.SupplierSKU = supplierSKU.String
	return &product, nil
}

// SearchByKeywords returns products whose name or keywords contain any of the
// given tokens, scored by how many tokens hit, best first.
func (r *ProductRepository) SearchByKeywords(ctx context.Context, tokens []string) ([]match.Candidate, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	conditions := make([]string, 0, len(tokens))
	scoreTerms := make([]string, 0, len(tokens))

	for range tokens {
		scoreTerms = append(scoreTerms,
			"(CASE WHEN LOWER(name || ' ' || COALESCE(keywords, '')) LIKE ? THEN 1 ELSE 0 END)")
		conditions = append(conditions,
			"LOWER(name || ' ' || COALESCE(keywords, '')) LIKE ?")
	}

	// Score placeholders bind first (SELECT list), then the WHERE clause.
	args := make([]interface{}, 0, len(tokens)*2)
	for i := 0; i < 2; i++ {
		for _, token := range tokens {
			args = append(args, "%"+strings.ToLower(token)+"%")
		}
	}

	query := fmt.Sprintf(`
		SELECT id, name, keywords, supplier_sku, (%s) AS score
		FROM products
		WHERE %s
		ORDER BY score DESC, id ASC
	`, strings.Join(scoreTerms, " + "), strings.Join(conditions, " OR "))

	rows, err := r.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to search products", zap.Strings("tokens", tokens), zap.Error(err))
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	var candidates []match.Candidate
	for rows.Next() {
		var c match.Candidate
		var keywords, supplierSKU sql.NullString

		if err := rows.Scan(&c.Product.ID, &c.Product.Name, &keywords, &supplierSKU, &c.Score); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		c.Product.Keywords = keywords.String
		c.Product.SupplierSKU = supplierSKU.String
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}
