package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photo-library/internal/bundle"
	"photo-library/internal/handlers"
	"photo-library/internal/importer"
	"photo-library/internal/library"
	"photo-library/internal/logging"
	"photo-library/internal/metadata"
	"photo-library/internal/middleware"
	"photo-library/internal/render"
	"photo-library/internal/startup"
	"photo-library/internal/store"
	"photo-library/internal/thumbcache"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	// Initialize the library bundle and catalog
	catalogStart := time.Now()
	b, err := bundle.Create(config.LibraryDir)
	if err != nil {
		logging.Fatal("Failed to initialize library bundle: %v", err)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, b.CatalogPath(), config.LibraryName)
	if err != nil {
		logging.Fatal("Failed to open catalog: %v", err)
	}
	defer st.Close()
	startup.LogCatalogInit(time.Since(catalogStart))

	// Initialize the renderer; without libvips the pure-Go path is used.
	if err := render.InitVips(); err != nil {
		logging.Warn("libvips unavailable, falling back to pure-Go decoding: %v", err)
	}
	defer render.ShutdownVips()
	renderer := render.New()

	// Thumbnail cache over the renderer, with the facade as edit source
	// once it is up.
	cache := thumbcache.New(b.ThumbnailsDir(), renderer, nil)
	cache.SetMemoryBound(config.ThumbMemoryEntries)

	// Load the whole catalog into memory
	loadStart := time.Now()
	lib, err := library.Open(ctx, st, cache)
	if err != nil {
		logging.Fatal("Failed to load library: %v", err)
	}
	defer lib.Close()
	stats := lib.Stats()
	startup.LogLibraryLoaded(stats.TotalImages, stats.TotalAlbums, time.Since(loadStart))

	// Thumbnails honor the latest edit state now that the facade is up.
	cache.SetEditSource(lib.LatestEdit)

	// Import pipeline, rendering thumbnails through the cache eagerly
	imp := importer.New(lib, metadata.NewExifExtractor(), cache)

	// Refresh store connection metrics periodically
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		for range ticker.C {
			st.UpdateConnMetrics()
		}
	}()

	// Initialize handlers and router
	h := handlers.New(lib, cache, imp, b, config)
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply metrics and logging middleware
	handler := middleware.Metrics(middleware.DefaultMetricsConfig())(router)
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler = middleware.Logger(loggingConfig)(handler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Metrics are served on their own port so they never mix with the API
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:        ":" + config.MetricsPort,
			Handler:     metricsMux,
			ReadTimeout: 15 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, metricsSrv, lib)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("Server error: %v", err)
	}
}

func handleShutdown(srv, metricsSrv *http.Server, lib *library.Library) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	// Draining the persister flushes every pending catalog write.
	startup.LogShutdownStep("Flushing pending catalog writes")
	if err := lib.Close(); err != nil {
		logging.Warn("Library close reported: %v", err)
	} else {
		startup.LogShutdownStepComplete("Catalog writes flushed")
	}

	startup.LogShutdownComplete()
}
