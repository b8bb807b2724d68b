package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Dev-Corgi/Calobite/internal/domain"
	"github.com/Dev-Corgi/Calobite/internal/query"
)

func TestSearch_Envelope(t *testing.T) {
	repo := new(mockProductRepo)
	repo.On("Search", mock.Anything, mock.AnythingOfType("*query.Query")).
		Return([]domain.Product{*sampleProduct()}, 42, nil)
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet, "/api/v2/search?categories_tags=en:spreads&page=2&page_size=10", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(42), body["count"])
	assert.Equal(t, float64(2), body["page"])
	assert.Equal(t, float64(10), body["page_size"])
	assert.Equal(t, float64(1), body["status"])
	assert.Equal(t, "search results found", body["status_verbose"])

	products, ok := body["products"].([]any)
	require.True(t, ok)
	require.Len(t, products, 1)
}

func TestSearch_FreeTextDefaultProjection(t *testing.T) {
	repo := new(mockProductRepo)
	var compiled *query.Query
	repo.On("Search", mock.Anything, mock.AnythingOfType("*query.Query")).
		Run(func(args mock.Arguments) { compiled = args.Get(1).(*query.Query) }).
		Return([]domain.Product{*sampleProduct()}, 1, nil)
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet, "/api/v2/search?search_terms=nutella", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, compiled)
	assert.Equal(t, "nutella", compiled.SearchTerms)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	products := body["products"].([]any)
	product := products[0].(map[string]any)
	assert.Contains(t, product, "code")
	assert.Contains(t, product, "product_name")
	assert.Contains(t, product, "nutriments")
	// Full rows are trimmed down for free-text results.
	assert.NotContains(t, product, "categories_tags")
}

func TestSearch_ExplicitFieldsWinOverDefault(t *testing.T) {
	repo := new(mockProductRepo)
	repo.On("Search", mock.Anything, mock.AnythingOfType("*query.Query")).
		Return([]domain.Product{*sampleProduct()}, 1, nil)
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet, "/api/v2/search?search_terms=nutella&fields=code", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	product := body["products"].([]any)[0].(map[string]any)
	assert.Contains(t, product, "code")
	assert.NotContains(t, product, "product_name")
}

func TestSearch_MalformedFilterIsDroppedNotFatal(t *testing.T) {
	repo := new(mockProductRepo)
	var compiled *query.Query
	repo.On("Search", mock.Anything, mock.AnythingOfType("*query.Query")).
		Run(func(args mock.Arguments) { compiled = args.Get(1).(*query.Query) }).
		Return([]domain.Product{}, 0, nil)
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet, "/api/v2/search?sugars_100g_lt=abc", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, compiled)
	assert.Empty(t, compiled.Nutrients)
	require.Len(t, compiled.Dropped, 1)
	assert.Equal(t, "sugars_100g_lt", compiled.Dropped[0].Key)
}

func TestSearch_EmptyResultKeepsArray(t *testing.T) {
	repo := new(mockProductRepo)
	repo.On("Search", mock.Anything, mock.AnythingOfType("*query.Query")).
		Return([]domain.Product{}, 0, nil)
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet, "/api/v2/search?brands_tags=unknown", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	products, ok := body["products"].([]any)
	require.True(t, ok)
	assert.Empty(t, products)
}

func TestSearch_RepositoryFailure(t *testing.T) {
	repo := new(mockProductRepo)
	repo.On("Search", mock.Anything, mock.AnythingOfType("*query.Query")).
		Return(nil, 0, assert.AnError)
	router := newTestRouter(repo)

	rec := doRequest(t, router, http.MethodGet, "/api/v2/search", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "search failed", body["error"])
}
