// This file implements the Builder Pattern for JSON responses and the
// single mapping from domain errors to HTTP statuses.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"taxdesk/internal/auth"
	"taxdesk/internal/core"
	"taxdesk/internal/log"
	"taxdesk/internal/taxcalc"
)

var errForbidden = errors.New("forbidden")

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body. A nil body writes
// only the status.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	ID    string `json:"id,omitempty"`
}

func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(ErrorBody{Error: message})
}

// respondError maps err to a status and body. Anything unrecognised is an
// infrastructure failure: logged with its cause, answered with a generic
// 500.
func respondError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	var (
		verr *core.ValidationError
		cerr *core.ConflictError
	)
	switch {
	case errors.As(err, &verr):
		NewJSONResponse().Status(http.StatusBadRequest).
			Body(ErrorBody{Error: verr.Error(), Field: verr.Field}).Write(w)
	case errors.Is(err, errBadRequest):
		ErrorResponse(http.StatusBadRequest, err.Error()).Write(w)
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrPasswordTooLong):
		NewJSONResponse().Status(http.StatusBadRequest).
			Body(ErrorBody{Error: err.Error(), Field: "password"}).Write(w)
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken):
		ErrorResponse(http.StatusUnauthorized, err.Error()).Write(w)
	case errors.Is(err, errForbidden):
		ErrorResponse(http.StatusForbidden, "userId does not match the authenticated user").Write(w)
	case errors.Is(err, core.ErrUnknownCategory):
		ErrorResponse(http.StatusNotFound, "Unknown income category").Write(w)
	case errors.Is(err, taxcalc.ErrUnknownTaxYear):
		ErrorResponse(http.StatusNotFound, err.Error()).Write(w)
	case errors.Is(err, core.ErrNotFound):
		ErrorResponse(http.StatusNotFound, "Not found").Write(w)
	case errors.As(err, &cerr):
		NewJSONResponse().Status(http.StatusConflict).
			Body(ErrorBody{Error: "Already exists", ID: cerr.ExistingID}).Write(w)
	case errors.Is(err, auth.ErrEmailExists), errors.Is(err, core.ErrConflict):
		ErrorResponse(http.StatusConflict, err.Error()).Write(w)
	default:
		fields := log.LogFields{
			log.FieldMethod:    r.Method,
			log.FieldPath:      r.URL.Path,
			log.FieldErrorType: log.ErrorTypeInternal,
		}
		if c := mux.Vars(r)["category"]; c != "" {
			fields.WithCategory(c)
		}
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, log.ComponentHTTP, operation, fields)
		ErrorResponse(http.StatusInternalServerError, "Server error").Write(w)
	}
}
