package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/stockledger/internal/apperr"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			zap.L().Warn("encoding response", zap.Error(err))
		}
	}
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message})
}

var kindStatus = map[apperr.Kind]int{
	apperr.Unauthorized:              http.StatusUnauthorized,
	apperr.Forbidden:                 http.StatusForbidden,
	apperr.NotFound:                  http.StatusNotFound,
	apperr.Validation:                http.StatusBadRequest,
	apperr.InvalidIdentifier:         http.StatusBadRequest,
	apperr.DuplicateSKU:              http.StatusConflict,
	apperr.InsufficientStock:         http.StatusConflict,
	apperr.ProductReferenced:         http.StatusConflict,
	apperr.LastWarehouse:             http.StatusConflict,
	apperr.DefaultWarehouseProtected: http.StatusConflict,
	apperr.WarehouseHasStock:         http.StatusConflict,
	apperr.OrganizationNotEmpty:      http.StatusConflict,
	apperr.InviteConsumed:            http.StatusConflict,
	apperr.Conflict:                  http.StatusConflict,
	apperr.InviteExpired:             http.StatusGone,
	apperr.TransactionTimeout:        http.StatusServiceUnavailable,
	apperr.CacheUnavailable:          http.StatusServiceUnavailable,
	apperr.DataIntegrity:             http.StatusInternalServerError,
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	if s, ok := kindStatus[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError translates an engine error into a JSON error response.
// Internal details are logged, not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}
	if kind.Retryable() {
		w.Header().Set("Retry-After", "1")
	}

	msg := apperr.Message(err)
	if kind == apperr.Internal {
		msg = "internal error"
	}
	jsonResponse(w, status, errorBody{Error: msg, Kind: kind.String()})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.E(apperr.Validation, "request body required")
		}
		return apperr.Wrap(apperr.Validation, err, "invalid request body")
	}
	return nil
}
