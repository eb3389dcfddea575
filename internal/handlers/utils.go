package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"photo-library/internal/liberr"
	"photo-library/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Encoding errors are logged since we cannot recover mid-response.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logging.Error("failed to encode JSON error response: %v", err)
	}
}

// writeDomainError maps library errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var dedup *liberr.DedupError
	switch {
	case errors.Is(err, liberr.ErrNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &dedup):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, liberr.ErrConstraint):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, liberr.ErrCanceled):
		// Client went away; nothing useful to write.
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

// decodeBody decodes a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
