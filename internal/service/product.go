package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Dev-Corgi/Calobite/internal/domain"
	"github.com/Dev-Corgi/Calobite/internal/event"
	"github.com/Dev-Corgi/Calobite/internal/query"
	"github.com/Dev-Corgi/Calobite/internal/repository"
	apperrors "github.com/Dev-Corgi/Calobite/pkg/errors"
)

const (
	// brandListLimit caps brand listings.
	brandListLimit = 5

	// viewRecordTimeout bounds the detached view-count side effect.
	viewRecordTimeout = 5 * time.Second

	topProductsCacheKey = "calobite:top_products"
	topProductsCacheTTL = 5 * time.Minute
)

// ProductService implements the business logic for product queries.
type ProductService struct {
	repo     repository.ProductRepository
	producer *event.Producer
	cache    *redis.Client
	logger   *slog.Logger
}

// NewProductService creates a new product service. The cache client may be
// nil, in which case the top-products list is read from the database on
// every request.
func NewProductService(repo repository.ProductRepository, producer *event.Producer, cache *redis.Client, logger *slog.Logger) *ProductService {
	return &ProductService{
		repo:     repo,
		producer: producer,
		cache:    cache,
		logger:   logger,
	}
}

// GetProduct retrieves a product by barcode and records the view as a
// detached side effect. A failed view increment never fails the read.
func (s *ProductService) GetProduct(ctx context.Context, code string) (*domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.InvalidInput("barcode (code) is required")
	}

	product, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("get product by code: %w", err)
	}

	go s.recordView(context.WithoutCancel(ctx), code)

	return product.Normalized(), nil
}

// recordView increments the view counter and emits a product.viewed event.
// It runs detached from the request; failures are logged and swallowed.
func (s *ProductService) recordView(ctx context.Context, code string) {
	ctx, cancel := context.WithTimeout(ctx, viewRecordTimeout)
	defer cancel()

	if err := s.repo.IncrementViewCount(ctx, code); err != nil {
		s.logger.ErrorContext(ctx, "failed to increment view count",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.producer.PublishProductViewed(ctx, code); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.viewed event",
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
	}
}

// SearchProducts runs a compiled query and returns normalized products plus
// the total match count.
func (s *ProductService) SearchProducts(ctx context.Context, q *query.Query) ([]domain.Product, int, error) {
	q.Pagination.Clamp()

	products, total, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("search products: %w", err)
	}

	normalizeAll(products)
	return products, total, nil
}

// ProductsByBrand returns up to five normalized products for a brand name.
// A non-empty excludeCode keeps that barcode out of the list.
func (s *ProductService) ProductsByBrand(ctx context.Context, brand, excludeCode string) ([]domain.Product, error) {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return nil, apperrors.InvalidInput("brand name is required")
	}

	products, err := s.repo.ListByBrand(ctx, brand, strings.TrimSpace(excludeCode), brandListLimit)
	if err != nil {
		return nil, fmt.Errorf("list products by brand: %w", err)
	}

	normalizeAll(products)
	return products, nil
}

// TopProducts returns the most viewed products, served from a short-lived
// cache when available. Cache failures degrade to a database read.
func (s *ProductService) TopProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, ok := s.cachedTopProducts(ctx); ok {
		return cached, nil
	}

	products, err := s.repo.TopViewed(ctx)
	if err != nil {
		return nil, fmt.Errorf("top viewed products: %w", err)
	}

	normalizeAll(products)
	s.storeTopProducts(ctx, products)
	return products, nil
}

func (s *ProductService) cachedTopProducts(ctx context.Context) ([]domain.Product, bool) {
	if s.cache == nil {
		return nil, false
	}

	raw, err := s.cache.Get(ctx, topProductsCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.WarnContext(ctx, "top products cache read failed",
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}

	var products []domain.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		s.logger.WarnContext(ctx, "top products cache entry corrupt",
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	return products, true
}

func (s *ProductService) storeTopProducts(ctx context.Context, products []domain.Product) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(products)
	if err != nil {
		s.logger.WarnContext(ctx, "top products cache encode failed",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.cache.Set(ctx, topProductsCacheKey, raw, topProductsCacheTTL).Err(); err != nil {
		s.logger.WarnContext(ctx, "top products cache write failed",
			slog.String("error", err.Error()),
		)
	}
}

// CreateProduct inserts a new product keyed by its barcode.
func (s *ProductService) CreateProduct(ctx context.Context, product *domain.Product) error {
	product.Code = strings.TrimSpace(product.Code)
	if product.Code == "" {
		return apperrors.InvalidInput("barcode (code) is required")
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}

	if err := s.producer.PublishProductCreated(ctx, product); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish product.created event",
			slog.String("code", product.Code),
			slog.String("error", err.Error()),
		)
		// Do not fail the operation if event publishing fails.
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("code", product.Code),
	)

	return nil
}

func normalizeAll(products []domain.Product) {
	for i := range products {
		products[i].Nutriments = domain.NormalizeNutriments(products[i].Nutriments)
	}
}
