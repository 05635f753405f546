package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	jobsvc "github.com/avasko/dray/internal/services/jobs"
)

// orgHeader carries the caller's organization id. Authentication itself
// happens upstream; the header is that layer's contract.
const orgHeader = "X-Org-ID"

// Helper functions for common HTTP responses

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeStatusJSON writes a JSON response with an explicit status code.
func writeStatusJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError maps service sentinels onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobsvc.ErrUnknownQueue), errors.Is(err, jobsvc.ErrEmptyPayload):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobsvc.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobsvc.ErrForbidden):
		writeError(w, http.StatusForbidden, "access denied")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// callerOrg extracts the organization id set by the upstream auth layer.
func callerOrg(r *http.Request) string {
	return r.Header.Get(orgHeader)
}
