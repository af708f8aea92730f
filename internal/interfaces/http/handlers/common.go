// Package handlers implements the HTTP endpoints: JSON for management,
// server-sent events for query and evaluation streams.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "ragcore/internal/errors"
)

type errorBody struct {
	Error   bool   `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON sends v with the given status. Encode failures are only
// logged; the status line is already on the wire.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError maps a pipeline error onto an HTTP status and the standard
// error body.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	code, message := clientFacing(err)
	writeJSON(w, logger, status, errorBody{Error: true, Code: code, Message: message})
}

func statusFor(err error) int {
	switch {
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsExhaustion(err):
		return http.StatusTooManyRequests
	case apperrors.IsTransient(err), apperrors.IsDegraded(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientFacing extracts the code and message safe to show a client.
// Foreign errors stay behind a generic message so internals never leak.
func clientFacing(err error) (code, message string) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Message
	}
	return "INTERNAL", "internal server error"
}

// decodeBody parses a JSON request body, folding malformed input into a
// validation error the client sees as a 400.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Validation("BAD_JSON", "invalid request body")
	}
	return nil
}
