// Package handlers provides the HTTP API over the library facade: image
// browsing and rating, album management, thumbnail serving, and import
// control.
package handlers

import (
	"time"

	"github.com/gorilla/mux"

	"photo-library/internal/bundle"
	"photo-library/internal/importer"
	"photo-library/internal/library"
	"photo-library/internal/startup"
	"photo-library/internal/thumbcache"
)

type Handlers struct {
	lib          *library.Library
	cache        *thumbcache.Cache
	importer     *importer.Importer
	config       *startup.Config
	originalsDir string
	sidecarsDir  string
	startTime    time.Time
}

func New(lib *library.Library, cache *thumbcache.Cache, imp *importer.Importer, b *bundle.Bundle, config *startup.Config) *Handlers {
	return &Handlers{
		lib:          lib,
		cache:        cache,
		importer:     imp,
		config:       config,
		originalsDir: b.OriginalsDir(),
		sidecarsDir:  b.SidecarsDir(),
		startTime:    time.Now(),
	}
}

// RegisterRoutes attaches every API route to the router.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadyCheck).Methods("GET")
	r.HandleFunc("/api/version", h.Version).Methods("GET")
	r.HandleFunc("/api/stats", h.Stats).Methods("GET")

	r.HandleFunc("/api/images", h.ListImages).Methods("GET")
	r.HandleFunc("/api/images/{id}", h.GetImage).Methods("GET")
	r.HandleFunc("/api/images/{id}", h.DeleteImage).Methods("DELETE")
	r.HandleFunc("/api/images/{id}/rating", h.SetRating).Methods("PUT")
	r.HandleFunc("/api/images/{id}/flag", h.SetFlag).Methods("PUT")
	r.HandleFunc("/api/images/{id}/label", h.SetColorLabel).Methods("PUT")
	r.HandleFunc("/api/images/{id}/keywords", h.AddKeyword).Methods("POST")
	r.HandleFunc("/api/images/{id}/keywords/{word}", h.RemoveKeyword).Methods("DELETE")
	r.HandleFunc("/api/images/{id}/edits", h.ApplyAdjustments).Methods("POST")
	r.HandleFunc("/api/images/{id}/edits", h.EditHistory).Methods("GET")
	r.HandleFunc("/api/images/{id}/thumbnail", h.Thumbnail).Methods("GET")
	r.HandleFunc("/api/images/{id}/sidecar", h.ExportSidecar).Methods("POST")

	r.HandleFunc("/api/albums", h.ListAlbums).Methods("GET")
	r.HandleFunc("/api/albums", h.CreateAlbum).Methods("POST")
	r.HandleFunc("/api/albums/{id}", h.GetAlbum).Methods("GET")
	r.HandleFunc("/api/albums/{id}", h.DeleteAlbum).Methods("DELETE")
	r.HandleFunc("/api/albums/{id}/name", h.RenameAlbum).Methods("PUT")
	r.HandleFunc("/api/albums/{id}/criteria", h.SetSmartCriteria).Methods("PUT")
	r.HandleFunc("/api/albums/{id}/images", h.AlbumImages).Methods("GET")
	r.HandleFunc("/api/albums/{id}/images", h.AddToAlbum).Methods("POST")
	r.HandleFunc("/api/albums/{id}/images/{imageId}", h.RemoveFromAlbum).Methods("DELETE")

	r.HandleFunc("/api/import", h.Import).Methods("POST")
}
