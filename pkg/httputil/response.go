package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "github.com/Dev-Corgi/Calobite/pkg/errors"
	"github.com/Dev-Corgi/Calobite/pkg/logger"
)

// ErrorBody is the JSON body returned for datastore and internal failures.
// Callers never see a raw stack trace or an empty body.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encode failure here cannot be reported
	// to the client.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteServerError writes a 500-class ErrorBody for the given error and logs
// it through the request-scoped logger when one is present.
func WriteServerError(w http.ResponseWriter, r *http.Request, message string, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	l.ErrorContext(r.Context(), message,
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	status := apperrors.HTTPStatus(err)
	if status < http.StatusInternalServerError {
		status = http.StatusInternalServerError
	}

	WriteJSON(w, status, ErrorBody{Error: message, Details: err.Error()})
}
