package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"photo-library/internal/sidecar"
)

// ExportSidecar writes an XML sidecar for one image into the bundle's
// Sidecars directory, carrying its metadata and latest edit state.
func (h *Handlers) ExportSidecar(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	img, err := h.lib.Image(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	edit, err := h.lib.LatestEdit(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	path, err := sidecar.Write(h.sidecarsDir, img, edit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]string{"path": path})
}
