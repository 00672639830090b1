package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/chris/neighborhood-packs/pkg/api"
	"github.com/chris/neighborhood-packs/pkg/apperr"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// maxBodyBytes bounds request bodies; every body in this API is a small JSON object.
const maxBodyBytes = 64 << 10

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindInvalidCode:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON encodes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", slog.Any("error", err))
	}
}

// WriteError writes the error envelope for err. Internal errors are logged and
// reported without detail.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	body := api.Error{Error: apperr.Message(err), Code: string(kind)}
	switch kind {
	case apperr.KindInternal:
		slog.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	case apperr.KindConsistency:
		body.Retryable = true
	}
	WriteJSON(w, StatusFor(kind), body)
}

// BadRequest writes a 400 for malformed input.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, api.Error{Error: msg, Code: "bad_request"})
}

// DecodeJSON reads the request body into v. It writes a 400 and returns false
// when the body is not valid JSON.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			BadRequest(w, "request body too large")
			return false
		}
		BadRequest(w, fmt.Sprintf("Invalid request body: %v", err))
		return false
	}
	return true
}

// PathID binds a UUID path parameter. It writes a 400 and returns false when
// the parameter is malformed.
func PathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		BadRequest(w, fmt.Sprintf("Invalid format for parameter %s: %v", name, err))
		return "", false
	}
	return id.String(), true
}

// PathString binds a free-form path parameter.
func PathString(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var s string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &s,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil || s == "" {
		BadRequest(w, fmt.Sprintf("Invalid format for parameter %s", name))
		return "", false
	}
	return s, true
}

// QueryParam binds an optional query parameter into dest, leaving it untouched
// when absent.
func QueryParam(w http.ResponseWriter, r *http.Request, name string, dest any) bool {
	query := r.URL.Query()
	if !query.Has(name) {
		return true
	}
	if err := runtime.BindQueryParameter("form", true, true, name, query, dest); err != nil {
		BadRequest(w, fmt.Sprintf("Invalid format for parameter %s: %v", name, err))
		return false
	}
	return true
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
