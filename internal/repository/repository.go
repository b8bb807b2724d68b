package repository

import (
	"context"

	"github.com/Dev-Corgi/Calobite/internal/domain"
	"github.com/Dev-Corgi/Calobite/internal/query"
)

// ProductRepository defines the interface for product persistence operations.
type ProductRepository interface {
	// GetByCode retrieves a product by its barcode. Products without any
	// energy value in their nutriments are treated as absent.
	GetByCode(ctx context.Context, code string) (*domain.Product, error)

	// Search returns products matching the compiled query along with the
	// total match count before pagination.
	Search(ctx context.Context, q *query.Query) ([]domain.Product, int, error)

	// ListByBrand returns up to limit products whose brands field contains
	// the given brand name, excluding products without energy data. A
	// non-empty excludeCode omits that barcode from the result, so a
	// product page can list related items without repeating itself.
	ListByBrand(ctx context.Context, brand, excludeCode string, limit int) ([]domain.Product, error)

	// TopViewed returns the most viewed products, highest first.
	TopViewed(ctx context.Context) ([]domain.Product, error)

	// Create inserts a new product keyed by its barcode.
	Create(ctx context.Context, product *domain.Product) error

	// IncrementViewCount bumps the view counter of a product.
	IncrementViewCount(ctx context.Context, code string) error
}
