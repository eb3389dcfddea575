package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// ListAlbums returns every album, sorted by name.
func (h *Handlers) ListAlbums(w http.ResponseWriter, _ *http.Request) {
	albums := h.lib.Albums()
	writeJSON(w, map[string]interface{}{
		"albums": albums,
		"count":  len(albums),
	})
}

// CreateAlbum creates a manual or smart album.
func (h *Handlers) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		ParentID string `json:"parentId"`
		Smart    bool   `json:"smart"`
		Criteria string `json:"criteria"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	var err error
	var album interface{}
	if body.Smart {
		album, err = h.lib.CreateSmartAlbum(body.Name, body.ParentID, body.Criteria)
	} else {
		album, err = h.lib.CreateAlbum(body.Name, body.ParentID)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, album)
}

// GetAlbum returns one album record.
func (h *Handlers) GetAlbum(w http.ResponseWriter, r *http.Request) {
	album, err := h.lib.Album(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, album)
}

// DeleteAlbum removes an album; its images stay in the library.
func (h *Handlers) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	if err := h.lib.DeleteAlbum(mux.Vars(r)["id"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameAlbum changes an album's display name.
func (h *Handlers) RenameAlbum(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.lib.RenameAlbum(mux.Vars(r)["id"], body.Name); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetSmartCriteria replaces a smart album's criteria.
func (h *Handlers) SetSmartCriteria(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Criteria string `json:"criteria"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.lib.SetSmartCriteria(mux.Vars(r)["id"], body.Criteria); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AlbumImages resolves album membership, manual or smart.
func (h *Handlers) AlbumImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.lib.AlbumImages(mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"images": images,
		"count":  len(images),
	})
}

// AddToAlbum appends an image to a manual album.
func (h *Handlers) AddToAlbum(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ImageID string `json:"imageId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := h.lib.AddToAlbum(mux.Vars(r)["id"], body.ImageID); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveFromAlbum drops an image from a manual album.
func (h *Handlers) RemoveFromAlbum(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.lib.RemoveFromAlbum(vars["id"], vars["imageId"]); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
