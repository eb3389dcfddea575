package handlers

import (
	"net/http"
	"runtime"
	"time"

	"photo-library/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	PersistError string `json:"persistError,omitempty"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	TotalImages int `json:"totalImages"`
	TotalAlbums int `json:"totalAlbums"`
}

// HealthCheck reports service health. A pending background persist
// failure degrades the status but keeps the service serving.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	stats := h.lib.Stats()

	response := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		TotalImages:  stats.TotalImages,
		TotalAlbums:  stats.TotalAlbums,
	}

	if err := h.lib.LastPersistError(); err != nil {
		response.Status = statusDegraded
		response.PersistError = err.Error()
	}

	writeJSON(w, response)
}

// ReadyCheck reports readiness. The library loads before the server
// starts, so a running server is a ready server.
func (h *Handlers) ReadyCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]bool{"ready": true})
}

// Version returns build information
func (h *Handlers) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, startup.GetBuildInfo())
}

// Stats returns catalog statistics
func (h *Handlers) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.lib.Stats())
}
