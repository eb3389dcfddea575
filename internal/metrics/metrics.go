package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Catalog store metrics
var (
	StoreQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_store_queries_total",
			Help: "Total number of catalog store queries",
		},
		[]string{"operation", "status"},
	)

	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_library_store_query_duration_seconds",
			Help:    "Catalog store query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	StoreConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_store_connections_open",
			Help: "Number of open catalog store connections",
		},
	)
)

// Thumbnail cache metrics
var (
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_thumbnail_requests_total",
			Help: "Total number of thumbnail requests by outcome",
		},
		[]string{"outcome"}, // "memory_hit", "disk_hit", "generated", "failed"
	)

	CacheMemoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_thumbnail_memory_entries",
			Help: "Number of thumbnails held in the memory tier",
		},
	)

	CacheEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_library_thumbnail_evictions_total",
			Help: "Total number of memory-tier evictions",
		},
	)

	CacheGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_library_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier"},
	)
)

// Import pipeline metrics
var (
	ImportFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_import_files_total",
			Help: "Total number of files processed by the import pipeline",
		},
		[]string{"result"}, // "imported", "duplicate", "failed"
	)

	ImportBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "photo_library_import_batch_duration_seconds",
			Help:    "Duration of import batches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)

	ImportInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_import_running",
			Help: "Whether an import batch is currently running (1 = running, 0 = idle)",
		},
	)
)

// Facade metrics
var (
	FacadeMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_facade_mutations_total",
			Help: "Total number of facade mutations",
		},
		[]string{"operation"},
	)

	FacadePersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "photo_library_facade_persist_failures_total",
			Help: "Total number of background persistence failures",
		},
	)

	FacadePersistQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_facade_persist_queue_depth",
			Help: "Number of mutations waiting on the background writer",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "photo_library_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "photo_library_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "photo_library_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
