package handlers

import (
	"net/http"

	"photo-library/internal/importer"
	"photo-library/internal/logging"
)

// ImportResponse summarizes one import batch for the API.
type ImportResponse struct {
	Imported int      `json:"imported"`
	Errors   []string `json:"errors,omitempty"`
	Duration string   `json:"duration"`
}

// Import runs an import batch for the requested paths. The request blocks
// until the batch finishes; dropping the connection cancels the batch and
// keeps whatever was already committed.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paths []string `json:"paths"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if len(body.Paths) == 0 {
		writeJSONError(w, "no paths given", http.StatusBadRequest)
		return
	}

	opts := importer.Options{
		CopyIntoLibrary: h.config.CopyOnImport,
		OriginalsDir:    h.originalsDir,
	}

	result, err := h.importer.Import(r.Context(), body.Paths, opts)
	if err != nil {
		logging.Warn("Import request failed: %v", err)
		writeDomainError(w, err)
		return
	}

	response := ImportResponse{
		Imported: len(result.Imported),
		Duration: result.Duration.String(),
	}
	for _, e := range result.Errors {
		response.Errors = append(response.Errors, e.Error())
	}
	writeJSON(w, response)
}
