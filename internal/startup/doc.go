// Package startup handles application initialization: configuration
// loading from environment variables, directory validation, and the
// structured startup/shutdown log output.
//
// Configuration is environment-driven:
//
//	LIBRARY_DIR       library bundle directory (default /library)
//	LIBRARY_NAME      display name used when creating a new catalog
//	PORT              application HTTP port (default 8080)
//	METRICS_PORT      Prometheus metrics port (default 9090)
//	METRICS_ENABLED   serve /metrics (default true)
//	COPY_ON_IMPORT    copy imported files into the bundle (default true)
//	THUMBNAIL_MEMORY_ENTRIES  memory-tier cache bound (default 500)
//	LOG_HEALTH_CHECKS log health endpoint hits (default true)
//	LOG_LEVEL / DEBUG logging verbosity
package startup
