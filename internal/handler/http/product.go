package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Dev-Corgi/Calobite/internal/domain"
	"github.com/Dev-Corgi/Calobite/internal/query"
	"github.com/Dev-Corgi/Calobite/internal/service"
	apperrors "github.com/Dev-Corgi/Calobite/pkg/errors"
	"github.com/Dev-Corgi/Calobite/pkg/httputil"
	"github.com/Dev-Corgi/Calobite/pkg/validator"
)

// nutrimentPrefix marks form fields that feed the nutriments map.
const nutrimentPrefix = "nutriment_"

// createProductForm carries the form fields with a constrained value space.
// The code requirement itself is enforced by the service.
type createProductForm struct {
	NutriscoreGrade *string  `validate:"omitempty,oneof=a b c d e"`
	EcoscoreGrade   *string  `validate:"omitempty,oneof=a b c d e"`
	NovaGroup       *float64 `validate:"omitempty,gte=1,lte=4"`
	ImageURL        *string  `validate:"omitempty,url"`
	ImageSmallURL   *string  `validate:"omitempty,url"`
}

// ProductHandler handles HTTP requests for product endpoints.
type ProductHandler struct {
	service *service.ProductService
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(svc *service.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		logger:  logger,
	}
}

// GetProduct handles GET /api/v2/product/{barcode}.
// Returns the product wrapped in a status envelope. The optional fields
// parameter projects the product down to the named JSON fields.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")

	product, err := h.service.GetProduct(r.Context(), barcode)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			writeProductNotFound(w, barcode)
		case errors.Is(err, apperrors.ErrInvalidInput):
			writeStatus(w, http.StatusBadRequest, "barcode (code) is required", "")
		default:
			httputil.WriteServerError(w, r, "failed to fetch product", err, h.logger)
		}
		return
	}

	q := query.Parse(r.URL.Query())
	writeProductFound(w, r, product, q.Fields)
}

// GetProductMacros handles GET /api/v2/product/{barcode}/macros.
// Returns the macronutrient breakdown of the product as gram amounts and
// their share of the carb/protein/fat total.
func (h *ProductHandler) GetProductMacros(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")

	product, err := h.service.GetProduct(r.Context(), barcode)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			writeProductNotFound(w, barcode)
		case errors.Is(err, apperrors.ErrInvalidInput):
			writeStatus(w, http.StatusBadRequest, "barcode (code) is required", "")
		default:
			httputil.WriteServerError(w, r, "failed to fetch product", err, h.logger)
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"code":           product.Code,
		"macros":         product.Nutriments.MacroRatio(),
		"status":         1,
		"status_verbose": "macros computed",
	})
}

// CreateProduct handles POST /api/v2/product.
// Accepts a form-encoded body; the code field is required. Nutriment values
// arrive as nutriment_* fields and are stored numerically when they parse.
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	if err := r.ParseForm(); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid form body", "")
		return
	}

	product := productFromForm(r.PostForm)

	if err := validator.Validate(createProductForm{
		NutriscoreGrade: product.NutriscoreGrade,
		EcoscoreGrade:   product.EcoscoreGrade,
		NovaGroup:       product.NovaGroup,
		ImageURL:        product.ImageURL,
		ImageSmallURL:   product.ImageSmallURL,
	}); err != nil {
		writeStatus(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	if err := h.service.CreateProduct(r.Context(), product); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidInput):
			writeStatus(w, http.StatusBadRequest, "barcode (code) is required", "")
		case errors.Is(err, apperrors.ErrAlreadyExists):
			writeStatus(w, http.StatusConflict, "product already exists", product.Code)
		default:
			httputil.WriteServerError(w, r, "failed to create product", err, h.logger)
		}
		return
	}

	writeStatus(w, http.StatusCreated, "product created successfully", product.Code)
}

// ListByBrand handles GET /api/v2/products/brand/{brandName}.
// Returns a bare array of up to five products for the brand. The optional
// exclude parameter names a barcode to omit, typically the product whose
// page the related list is rendered on.
func (h *ProductHandler) ListByBrand(w http.ResponseWriter, r *http.Request) {
	brand := chi.URLParam(r, "brandName")
	excludeCode := r.URL.Query().Get("exclude")

	products, err := h.service.ProductsByBrand(r.Context(), brand, excludeCode)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			writeStatus(w, http.StatusBadRequest, "brand name is required", "")
			return
		}
		httputil.WriteServerError(w, r, "failed to fetch brand products", err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, products)
}

// TopProducts handles GET /api/v2/top-10.
// Returns a bare array of the most viewed products.
func (h *ProductHandler) TopProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.TopProducts(r.Context())
	if err != nil {
		httputil.WriteServerError(w, r, "failed to fetch top products", err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, products)
}

// --- form decoding ---

var formStringFields = map[string]func(*domain.Product, *string){
	"product_name":     func(p *domain.Product, v *string) { p.ProductName = v },
	"brands":           func(p *domain.Product, v *string) { p.Brands = v },
	"quantity":         func(p *domain.Product, v *string) { p.Quantity = v },
	"packaging":        func(p *domain.Product, v *string) { p.Packaging = v },
	"categories":       func(p *domain.Product, v *string) { p.Categories = v },
	"labels":           func(p *domain.Product, v *string) { p.Labels = v },
	"stores":           func(p *domain.Product, v *string) { p.Stores = v },
	"countries":        func(p *domain.Product, v *string) { p.Countries = v },
	"ingredients_text": func(p *domain.Product, v *string) { p.IngredientsText = v },
	"traces":           func(p *domain.Product, v *string) { p.Traces = v },
	"serving_size":     func(p *domain.Product, v *string) { p.ServingSize = v },
	"nutriscore_grade": func(p *domain.Product, v *string) { p.NutriscoreGrade = v },
	"ecoscore_grade":   func(p *domain.Product, v *string) { p.EcoscoreGrade = v },
	"image_url":        func(p *domain.Product, v *string) { p.ImageURL = v },
	"image_small_url":  func(p *domain.Product, v *string) { p.ImageSmallURL = v },
}

var formFloatFields = map[string]func(*domain.Product, *float64){
	"serving_quantity": func(p *domain.Product, v *float64) { p.ServingQuantity = v },
	"nutriscore_score": func(p *domain.Product, v *float64) { p.NutriscoreScore = v },
	"ecoscore_score":   func(p *domain.Product, v *float64) { p.EcoscoreScore = v },
	"nova_group":       func(p *domain.Product, v *float64) { p.NovaGroup = v },
}

var formTagFields = map[string]func(*domain.Product, []string){
	"categories_tags": func(p *domain.Product, v []string) { p.CategoriesTags = v },
	"labels_tags":     func(p *domain.Product, v []string) { p.LabelsTags = v },
	"brands_tags":     func(p *domain.Product, v []string) { p.BrandsTags = v },
	"countries_tags":  func(p *domain.Product, v []string) { p.CountriesTags = v },
}

// productFromForm builds a product from form fields. Only known columns are
// copied; unknown fields are silently ignored so that upstream clients can
// submit their full payloads.
func productFromForm(form map[string][]string) *domain.Product {
	product := &domain.Product{}

	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		value := strings.TrimSpace(values[len(values)-1])
		if value == "" {
			continue
		}

		switch {
		case key == "code":
			product.Code = value
		case strings.HasPrefix(key, nutrimentPrefix):
			name := strings.TrimPrefix(key, nutrimentPrefix)
			if name == "" {
				continue
			}
			if product.Nutriments == nil {
				product.Nutriments = domain.Nutriments{}
			}
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				product.Nutriments[name] = f
			} else {
				product.Nutriments[name] = value
			}
		default:
			if set, ok := formStringFields[key]; ok {
				v := value
				set(product, &v)
				continue
			}
			if set, ok := formFloatFields[key]; ok {
				if f, err := strconv.ParseFloat(value, 64); err == nil {
					set(product, &f)
				}
				continue
			}
			if set, ok := formTagFields[key]; ok {
				set(product, splitTags(value))
			}
		}
	}

	return product
}

func splitTags(value string) []string {
	var tags []string
	for _, t := range strings.Split(value, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
