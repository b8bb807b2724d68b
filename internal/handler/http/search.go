package http

import (
	"log/slog"
	"net/http"

	"github.com/Dev-Corgi/Calobite/internal/query"
	"github.com/Dev-Corgi/Calobite/internal/service"
	"github.com/Dev-Corgi/Calobite/pkg/httputil"
	"github.com/Dev-Corgi/Calobite/pkg/logger"
)

// freeTextDefaultFields is the projection applied to free-text search
// results when the caller does not request specific fields. It keeps the
// payload small for autocomplete-style consumers.
var freeTextDefaultFields = []string{"code", "product_name", "brands", "nutriments"}

// SearchHandler handles HTTP requests for the search endpoint.
type SearchHandler struct {
	service *service.ProductService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.ProductService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// Search handles GET /api/v2/search.
// Compiles the query string into filter predicates, runs the search and
// returns a paginated envelope. Unrecognized or malformed filters are
// dropped and logged, never fatal.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := query.Parse(r.URL.Query())

	if len(q.Dropped) > 0 {
		l := logger.FromContext(r.Context())
		for _, d := range q.Dropped {
			l.WarnContext(r.Context(), "dropped query parameter",
				slog.String("key", d.Key),
				slog.String("value", d.Value),
				slog.String("reason", d.Reason),
			)
		}
	}

	products, total, err := h.service.SearchProducts(r.Context(), q)
	if err != nil {
		httputil.WriteServerError(w, r, "search failed", err, h.logger)
		return
	}

	fields := q.Fields
	if len(fields) == 0 && q.SearchTerms != "" {
		fields = freeTextDefaultFields
	}

	projected, err := projectProducts(r, products, fields)
	if err != nil {
		httputil.WriteServerError(w, r, "failed to encode search results", err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, searchEnvelope{
		Count:         total,
		Page:          q.Pagination.Page,
		PageSize:      q.Pagination.PageSize,
		Products:      projected,
		Status:        1,
		StatusVerbose: "search results found",
	})
}
