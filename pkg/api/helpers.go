// Package api provides standardized helper functions for HTTP API responses.
package api

import (
	"encoding/json"
	"net/http"

	appErrors "graphrag-backend/pkg/errors"
)

// ErrorResponse is the wire shape of every error body served by the API.
type ErrorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind"`
}

// Success sends a standardized successful HTTP response with optional JSON data.
func Success(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Error sends a standardized error response with consistent JSON format.
func Error(w http.ResponseWriter, statusCode int, detail string, kind appErrors.ErrorType) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Detail: detail, Kind: string(kind)})
}

// StatusFor maps an error type to its HTTP status code.
func StatusFor(kind appErrors.ErrorType) int {
	switch kind {
	case appErrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case appErrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case appErrors.ErrorTypeConflict:
		return http.StatusConflict
	case appErrors.ErrorTypeNotReady:
		return http.StatusServiceUnavailable
	case appErrors.ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// HandleError translates a service error into the standard error response.
func HandleError(w http.ResponseWriter, err error) {
	kind := appErrors.KindOf(err)
	Error(w, StatusFor(kind), appErrors.DetailOf(err), kind)
}
