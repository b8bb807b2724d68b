package http

import (
	"net/http"

	"github.com/Dev-Corgi/Calobite/internal/domain"
	"github.com/Dev-Corgi/Calobite/pkg/httputil"
	"github.com/Dev-Corgi/Calobite/pkg/logger"
)

// The response envelopes follow the Open Food Facts conventions: single
// product lookups wrap the product with a status pair, searches add count
// and paging, and failures mirror the HTTP status in the body.

// productEnvelope always carries the product key so a miss serializes as
// "product": null rather than dropping the field.
type productEnvelope struct {
	Code          string         `json:"code"`
	Product       map[string]any `json:"product"`
	Status        int            `json:"status"`
	StatusVerbose string         `json:"status_verbose"`
}

type searchEnvelope struct {
	Count         int              `json:"count"`
	Page          int              `json:"page"`
	PageSize      int              `json:"page_size"`
	Products      []map[string]any `json:"products"`
	Status        int              `json:"status"`
	StatusVerbose string           `json:"status_verbose"`
}

type statusEnvelope struct {
	Status        int    `json:"status"`
	StatusVerbose string `json:"status_verbose"`
	Code          string `json:"code,omitempty"`
}

func writeProductFound(w http.ResponseWriter, r *http.Request, product *domain.Product, fields []string) {
	projected, err := product.Project(fields)
	if err != nil {
		httputil.WriteServerError(w, r, "failed to encode product", err, nil)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, productEnvelope{
		Code:          product.Code,
		Product:       projected,
		Status:        1,
		StatusVerbose: "product found",
	})
}

func writeProductNotFound(w http.ResponseWriter, code string) {
	httputil.WriteJSON(w, http.StatusNotFound, productEnvelope{
		Code:          code,
		Status:        0,
		StatusVerbose: "product not found",
	})
}

func writeStatus(w http.ResponseWriter, httpStatus int, verbose, code string) {
	status := httpStatus
	if httpStatus == http.StatusOK || httpStatus == http.StatusCreated {
		status = 1
	}
	httputil.WriteJSON(w, httpStatus, statusEnvelope{
		Status:        status,
		StatusVerbose: verbose,
		Code:          code,
	})
}

// projectProducts applies the field projection to a result page. An empty
// field list keeps every populated field.
func projectProducts(r *http.Request, products []domain.Product, fields []string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(products))
	for i := range products {
		projected, err := products[i].Project(fields)
		if err != nil {
			logger.FromContext(r.Context()).ErrorContext(r.Context(), "failed to project product",
				"code", products[i].Code, "error", err.Error())
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}
