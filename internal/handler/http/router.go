package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dev-Corgi/Calobite/internal/service"
	"github.com/Dev-Corgi/Calobite/pkg/health"
	"github.com/Dev-Corgi/Calobite/pkg/middleware"
)

const serviceName = "calobite"

// RouterConfig carries the router-level knobs.
type RouterConfig struct {
	Environment    string
	RateLimitRPS   int
	RateLimitBurst int
}

// NewRouter creates a chi router with all product query routes registered.
func NewRouter(
	productService *service.ProductService,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.Environment = cfg.Environment

	// Global middleware
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
	}

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	productHandler := NewProductHandler(productService, logger)
	searchHandler := NewSearchHandler(productService, logger)

	r.Route("/api/v2", func(r chi.Router) {
		r.Get("/product/{barcode}", productHandler.GetProduct)
		r.Get("/product/{barcode}/macros", productHandler.GetProductMacros)
		r.Post("/product", productHandler.CreateProduct)

		r.Get("/search", searchHandler.Search)
		r.Get("/products/brand/{brandName}", productHandler.ListByBrand)

		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheControl(60))
			r.Get("/top-10", productHandler.TopProducts)
		})
	})

	return r
}
