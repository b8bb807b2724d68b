package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Dev-Corgi/Calobite/internal/domain"
	"github.com/Dev-Corgi/Calobite/internal/event"
	"github.com/Dev-Corgi/Calobite/internal/query"
	apperrors "github.com/Dev-Corgi/Calobite/pkg/errors"
	pkgkafka "github.com/Dev-Corgi/Calobite/pkg/kafka"
)

// --- Mock Repository ---

type mockProductRepository struct {
	mock.Mock
}

func (m *mockProductRepository) GetByCode(ctx context.Context, code string) (*domain.Product, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Product), args.Error(1)
}

func (m *mockProductRepository) Search(ctx context.Context, q *query.Query) ([]domain.Product, int, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Product), args.Int(1), args.Error(2)
}

func (m *mockProductRepository) ListByBrand(ctx context.Context, brand, excludeCode string, limit int) ([]domain.Product, error) {
	args := m.Called(ctx, brand, excludeCode, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) TopViewed(ctx context.Context) ([]domain.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *mockProductRepository) Create(ctx context.Context, product *domain.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *mockProductRepository) IncrementViewCount(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(repo *mockProductRepository) *ProductService {
	logger := newTestLogger()
	// Kafka publishes fail silently in tests; the service treats them as
	// non-fatal anyway.
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	producer := event.NewProducer(kafkaProducer, logger)
	return NewProductService(repo, producer, nil, logger)
}

func strPtr(s string) *string { return &s }

func sampleProduct() *domain.Product {
	return &domain.Product{
		Code:        "3017620422003",
		ProductName: strPtr("Nutella"),
		Brands:      strPtr("Ferrero"),
		Nutriments: domain.Nutriments{
			"energy_100g": 2255.0,
			"sugars_100g": 56.3,
		},
	}
}

// --- Tests ---

func TestGetProduct_NormalizesAndRecordsView(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	viewed := make(chan string, 1)
	repo.On("GetByCode", mock.Anything, "3017620422003").Return(sampleProduct(), nil)
	repo.On("IncrementViewCount", mock.Anything, "3017620422003").
		Run(func(args mock.Arguments) { viewed <- args.String(1) }).
		Return(nil)

	product, err := svc.GetProduct(context.Background(), "3017620422003")
	require.NoError(t, err)

	// kcal derived from the kJ energy value.
	kcal, ok := product.Nutriments["energy-kcal_100g"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 2255.0/4.184, kcal, 0.01)

	select {
	case code := <-viewed:
		assert.Equal(t, "3017620422003", code)
	case <-time.After(2 * time.Second):
		t.Fatal("view increment was never recorded")
	}
}

func TestGetProduct_NotFound(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	repo.On("GetByCode", mock.Anything, "0000000000000").Return(nil, apperrors.ErrNotFound)

	product, err := svc.GetProduct(context.Background(), "0000000000000")
	assert.Nil(t, product)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	repo.AssertNotCalled(t, "IncrementViewCount", mock.Anything, mock.Anything)
}

func TestGetProduct_EmptyCode(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	_, err := svc.GetProduct(context.Background(), "  ")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestGetProduct_ViewIncrementFailureDoesNotFailRead(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	done := make(chan struct{}, 1)
	repo.On("GetByCode", mock.Anything, "3017620422003").Return(sampleProduct(), nil)
	repo.On("IncrementViewCount", mock.Anything, "3017620422003").
		Run(func(mock.Arguments) { done <- struct{}{} }).
		Return(errors.New("connection reset"))

	product, err := svc.GetProduct(context.Background(), "3017620422003")
	require.NoError(t, err)
	assert.NotNil(t, product)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("view increment was never attempted")
	}
}

func TestSearchProducts_ClampsPaginationAndNormalizes(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	q := query.Parse(url.Values{"page_size": {"5000"}})
	rows := []domain.Product{*sampleProduct()}
	repo.On("Search", mock.Anything, q).Return(rows, 1, nil)

	products, total, err := svc.SearchProducts(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, products, 1)

	assert.LessOrEqual(t, q.Pagination.PageSize, 100)
	_, ok := products[0].Nutriments["energy-kcal_100g"]
	assert.True(t, ok)
}

func TestSearchProducts_RepositoryError(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	q := query.Parse(url.Values{})
	repo.On("Search", mock.Anything, q).Return(nil, 0, errors.New("boom"))

	_, _, err := svc.SearchProducts(context.Background(), q)
	require.Error(t, err)
}

func TestProductsByBrand(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	rows := []domain.Product{*sampleProduct()}
	repo.On("ListByBrand", mock.Anything, "ferrero", "", 5).Return(rows, nil)

	products, err := svc.ProductsByBrand(context.Background(), "ferrero", "")
	require.NoError(t, err)
	require.Len(t, products, 1)
	_, ok := products[0].Nutriments["energy-kcal_100g"]
	assert.True(t, ok)
}

func TestProductsByBrand_PassesExcludedCode(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	repo.On("ListByBrand", mock.Anything, "ferrero", "3017620422003", 5).
		Return([]domain.Product{}, nil)

	_, err := svc.ProductsByBrand(context.Background(), "ferrero", " 3017620422003 ")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProductsByBrand_EmptyName(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	_, err := svc.ProductsByBrand(context.Background(), "", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestTopProducts_NoCacheFallsThroughToRepository(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	rows := []domain.Product{*sampleProduct()}
	repo.On("TopViewed", mock.Anything).Return(rows, nil)

	products, err := svc.TopProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	repo.AssertExpectations(t)
}

func TestCreateProduct_Success(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	p := sampleProduct()
	repo.On("Create", mock.Anything, p).Return(nil)

	err := svc.CreateProduct(context.Background(), p)
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestCreateProduct_MissingCode(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	err := svc.CreateProduct(context.Background(), &domain.Product{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateProduct_Duplicate(t *testing.T) {
	repo := new(mockProductRepository)
	svc := newTestService(repo)

	p := sampleProduct()
	repo.On("Create", mock.Anything, p).Return(apperrors.AlreadyExists("product", "code", p.Code))

	err := svc.CreateProduct(context.Background(), p)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
}
