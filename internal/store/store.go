package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"photo-library/internal/liberr"
	"photo-library/internal/logging"
	"photo-library/internal/metrics"
)

// SchemaVersion is the newest catalog schema this build understands.
// Opening a catalog written by a newer build fails with liberr.ErrSchema.
const SchemaVersion = 1

// Default timeout for store operations
const defaultTimeout = 5 * time.Second

// Store is the durable catalog of a library bundle. It allows concurrent
// readers but serializes all writes through a single logical writer.
//
// Durability: the connection runs WAL with synchronous=NORMAL. Commits are
// safe against process crash, but the most recent transaction can be lost if
// the machine loses power before the WAL is checkpointed. This is a
// deliberate latency/durability tradeoff; upgrade to synchronous=FULL if the
// window is unacceptable.
type Store struct {
	db      *sql.DB
	dbPath  string
	writeMu sync.Mutex // single logical writer
}

// Open opens (or creates) the catalog at dbPath and ensures the schema is
// current. Schema creation is idempotent. A catalog whose schema version
// exceeds SchemaVersion is refused.
func Open(ctx context.Context, dbPath, libraryName string) (*Store, error) {
	logging.Info("Catalog path: %s", dbPath)

	// busy_timeout helps prevent "database is locked" errors when a reader
	// races the writer on WAL checkpoints.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close catalog after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to catalog: %w", err)
	}

	// Multiple readers alongside the single writer.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initialize(ctx, libraryName); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close catalog after initialization failure: %v", closeErr)
		}
		return nil, err
	}

	logging.Info("Catalog initialized successfully at %s", dbPath)
	return s, nil
}

func (s *Store) initialize(ctx context.Context, libraryName string) error {
	schema := `
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	-- Root record, exactly one per bundle
	CREATE TABLE IF NOT EXISTS library (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		file_name TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		fingerprint TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		capture_date INTEGER,
		import_date INTEGER NOT NULL,
		rating INTEGER NOT NULL DEFAULT 0 CHECK (rating BETWEEN 0 AND 5),
		flag TEXT NOT NULL DEFAULT 'none',
		color_label TEXT NOT NULL DEFAULT '',
		camera TEXT NOT NULL DEFAULT '',
		lens TEXT NOT NULL DEFAULT '',
		iso INTEGER NOT NULL DEFAULT 0,
		aperture REAL NOT NULL DEFAULT 0,
		shutter_speed TEXT NOT NULL DEFAULT '',
		focal_length TEXT NOT NULL DEFAULT '',
		edit_version INTEGER NOT NULL DEFAULT 0
	);

	-- The browse queries sort and filter on these; they must hold up at
	-- tens of thousands of rows.
	CREATE INDEX IF NOT EXISTS idx_images_capture_date ON images(capture_date);
	CREATE INDEX IF NOT EXISTS idx_images_import_date ON images(import_date);
	CREATE INDEX IF NOT EXISTS idx_images_rating ON images(rating);
	CREATE INDEX IF NOT EXISTS idx_images_flag ON images(flag);
	CREATE INDEX IF NOT EXISTS idx_images_fingerprint ON images(fingerprint);

	-- Append-only edit history; one row per version
	CREATE TABLE IF NOT EXISTS edits (
		id TEXT PRIMARY KEY,
		image_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		adjustments TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(image_id, version),
		FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_edits_image ON edits(image_id, version);

	CREATE TABLE IF NOT EXISTS albums (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id TEXT,
		is_smart INTEGER NOT NULL DEFAULT 0,
		criteria TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS album_images (
		album_id TEXT NOT NULL,
		image_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (album_id, image_id),
		FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE CASCADE,
		FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_album_images_image ON album_images(image_id);

	CREATE TABLE IF NOT EXISTS keywords (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		word TEXT NOT NULL UNIQUE COLLATE NOCASE
	);

	CREATE TABLE IF NOT EXISTS image_keywords (
		image_id TEXT NOT NULL,
		keyword_id INTEGER NOT NULL,
		PRIMARY KEY (image_id, keyword_id),
		FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE,
		FOREIGN KEY (keyword_id) REFERENCES keywords(id) ON DELETE CASCADE
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", liberr.ErrSchema, err)
	}

	if err := s.checkSchemaVersion(ctx); err != nil {
		return err
	}

	return s.ensureLibraryRow(ctx, libraryName)
}

// checkSchemaVersion compares the on-disk schema version with what this
// build supports, recording the version on first open.
func (s *Store) checkSchemaVersion(ctx context.Context) error {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&value)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO metadata (key, value) VALUES ('schema_version', ?)",
			strconv.Itoa(SchemaVersion))
		if err != nil {
			return fmt.Errorf("%w: failed to record schema version: %v", liberr.ErrSchema, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: failed to read schema version: %v", liberr.ErrSchema, err)
	}

	onDisk, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: malformed schema version %q", liberr.ErrSchema, value)
	}

	if onDisk > SchemaVersion {
		return fmt.Errorf("%w: catalog schema version %d exceeds supported version %d",
			liberr.ErrSchema, onDisk, SchemaVersion)
	}

	return nil
}

// ensureLibraryRow creates the library root record on first open.
func (s *Store) ensureLibraryRow(ctx context.Context, name string) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM library").Scan(&count); err != nil {
		return fmt.Errorf("failed to check library record: %w", err)
	}
	if count > 0 {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO library (id, name, created_at) VALUES (?, ?, ?)",
		uuid.NewString(), name, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to create library record: %w", err)
	}

	logging.Info("Created library record %q", name)
	return nil
}

// Library returns the root library record.
func (s *Store) Library(ctx context.Context) (*Library, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var lib Library
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM library LIMIT 1").
		Scan(&lib.ID, &lib.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("library record: %w", liberr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	lib.CreatedAt = time.Unix(createdAt, 0)
	lib.SchemaVersion = SchemaVersion
	return &lib, nil
}

// Close closes the catalog connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpdateConnMetrics refreshes the open-connection gauge.
func (s *Store) UpdateConnMetrics() {
	metrics.StoreConnectionsOpen.Set(float64(s.db.Stats().OpenConnections))
}

// recordQuery records store query metrics.
func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.StoreQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// mapSQLiteError translates driver constraint violations into the engine's
// error taxonomy so callers can use errors.Is.
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", liberr.ErrConstraint, err)
	}
	return err
}
