package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"photo-library/internal/store"
	"photo-library/internal/thumbcache"
)

// ListImages returns every image in the catalog, newest capture first.
func (h *Handlers) ListImages(w http.ResponseWriter, _ *http.Request) {
	images := h.lib.Images()
	writeJSON(w, map[string]interface{}{
		"images": images,
		"count":  len(images),
	})
}

// GetImage returns one image record.
func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	img, err := h.lib.Image(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, img)
}

// DeleteImage removes an image from the catalog. The source file stays on
// disk.
func (h *Handlers) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if err := h.lib.DeleteImage(mux.Vars(r)["id"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetRating sets the star rating (0 to 5).
func (h *Handlers) SetRating(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rating int `json:"rating"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.lib.SetRating(mux.Vars(r)["id"], body.Rating); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetFlag sets the pick/reject flag.
func (h *Handlers) SetFlag(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Flag string `json:"flag"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.lib.SetFlag(mux.Vars(r)["id"], store.Flag(body.Flag)); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetColorLabel sets or clears the color label.
func (h *Handlers) SetColorLabel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Label string `json:"label"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.lib.SetColorLabel(mux.Vars(r)["id"], body.Label); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddKeyword tags an image.
func (h *Handlers) AddKeyword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Keyword string `json:"keyword"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.lib.AddKeyword(mux.Vars(r)["id"], body.Keyword); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveKeyword untags an image.
func (h *Handlers) RemoveKeyword(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.lib.RemoveKeyword(vars["id"], vars["word"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyAdjustments appends a new edit version.
func (h *Handlers) ApplyAdjustments(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Adjustments []store.Adjustment `json:"adjustments"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	version, err := h.lib.ApplyAdjustments(mux.Vars(r)["id"], body.Adjustments)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]int{"version": version})
}

// EditHistory returns every edit version, oldest first.
func (h *Handlers) EditHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.lib.EditHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"edits": history,
		"count": len(history),
	})
}

// Thumbnail serves a cached thumbnail. size selects the tier and defaults
// to the smallest one.
func (h *Handlers) Thumbnail(w http.ResponseWriter, r *http.Request) {
	img, err := h.lib.Image(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}

	size := thumbcache.Tiers[0]
	if s := r.URL.Query().Get("size"); s != "" {
		size, err = strconv.Atoi(s)
		if err != nil || !thumbcache.ValidTier(size) {
			writeJSONError(w, "unsupported thumbnail size", http.StatusBadRequest)
			return
		}
	}

	data, err := h.cache.Thumbnail(r.Context(), img, size)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := w.Write(data); err != nil {
		// Client disconnects are routine here.
		return
	}
}
