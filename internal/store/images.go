package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"photo-library/internal/liberr"
)

const imageColumns = `id, path, file_name, size, fingerprint, width, height,
	capture_date, import_date, rating, flag, color_label,
	camera, lens, iso, aperture, shutter_speed, focal_length, edit_version`

// InsertImage persists a new image record. Inserting an id that already
// exists fails with liberr.ErrConstraint; image ids are never reused.
func (s *Store) InsertImage(ctx context.Context, img *Image) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("insert_image", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO images (`+imageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.Path, img.FileName, img.Size, img.Fingerprint,
		img.Width, img.Height, captureDateArg(img.CaptureDate),
		img.ImportDate.Unix(), img.Rating, string(img.Flag), img.ColorLabel,
		img.Camera, img.Lens, img.ISO, img.Aperture,
		img.ShutterSpeed, img.FocalLength, img.EditVersion,
	)
	err = mapSQLiteError(err)
	return err
}

// UpdateImage overwrites an existing image record. Last writer wins; there
// is no optimistic-concurrency token because the process is the only writer.
func (s *Store) UpdateImage(ctx context.Context, img *Image) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_image", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var result sql.Result
	result, err = s.db.ExecContext(ctx, `
		UPDATE images SET
			path = ?, file_name = ?, size = ?, fingerprint = ?,
			width = ?, height = ?, capture_date = ?, import_date = ?,
			rating = ?, flag = ?, color_label = ?, camera = ?, lens = ?,
			iso = ?, aperture = ?, shutter_speed = ?, focal_length = ?,
			edit_version = ?
		WHERE id = ?`,
		img.Path, img.FileName, img.Size, img.Fingerprint,
		img.Width, img.Height, captureDateArg(img.CaptureDate),
		img.ImportDate.Unix(), img.Rating, string(img.Flag), img.ColorLabel,
		img.Camera, img.Lens, img.ISO, img.Aperture,
		img.ShutterSpeed, img.FocalLength, img.EditVersion, img.ID,
	)
	if err != nil {
		err = mapSQLiteError(err)
		return err
	}

	if rows, raErr := result.RowsAffected(); raErr == nil && rows == 0 {
		err = fmt.Errorf("image %s: %w", img.ID, liberr.ErrNotFound)
		return err
	}
	return nil
}

// FetchImage returns a single image by id, without keywords.
func (s *Store) FetchImage(ctx context.Context, id string) (*Image, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("fetch_image", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE id = ?", id)

	img, scanErr := scanImage(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		err = fmt.Errorf("image %s: %w", id, liberr.ErrNotFound)
		return nil, err
	}
	if scanErr != nil {
		err = scanErr
		return nil, err
	}
	return img, nil
}

// FetchAllImages returns every image ordered by capture date then import
// date, newest first. Images without a capture date sort last.
func (s *Store) FetchAllImages(ctx context.Context) ([]*Image, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("fetch_all_images", start, err) }()

	// Loading tens of thousands of rows can exceed the default timeout
	// budget on cold caches; give the full load a wider window.
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+imageColumns+` FROM images
		ORDER BY capture_date DESC, import_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []*Image
	for rows.Next() {
		img, scanErr := scanImage(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		images = append(images, img)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return images, nil
}

// FindImageByFingerprint returns the image whose fingerprint matches, or
// liberr.ErrNotFound. Used by the import pipeline's duplicate pre-filter.
func (s *Store) FindImageByFingerprint(ctx context.Context, fingerprint string) (*Image, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("find_by_fingerprint", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+imageColumns+" FROM images WHERE fingerprint = ? LIMIT 1",
		fingerprint)

	img, scanErr := scanImage(row)
	if errors.Is(scanErr, sql.ErrNoRows) {
		err = fmt.Errorf("fingerprint %s: %w", fingerprint, liberr.ErrNotFound)
		return nil, err
	}
	if scanErr != nil {
		err = scanErr
		return nil, err
	}
	return img, nil
}

// DeleteImage removes an image row. Edits, keyword links and manual album
// memberships cascade. The underlying file is deliberately left on disk.
func (s *Store) DeleteImage(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_image", start, err) }()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var result sql.Result
	result, err = s.db.ExecContext(ctx, "DELETE FROM images WHERE id = ?", id)
	if err != nil {
		return err
	}

	if rows, raErr := result.RowsAffected(); raErr == nil && rows == 0 {
		err = fmt.Errorf("image %s: %w", id, liberr.ErrNotFound)
		return err
	}
	return nil
}

// Stats returns catalog-wide counts.
func (s *Store) Stats(ctx context.Context) (LibraryStats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var stats LibraryStats
	var lastImport sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(*) FROM albums),
			(SELECT COUNT(*) FROM keywords),
			(SELECT COUNT(*) FROM edits),
			(SELECT MAX(import_date) FROM images)`).
		Scan(&stats.TotalImages, &stats.TotalAlbums, &stats.TotalKeywords,
			&stats.TotalEdits, &lastImport)
	if err != nil {
		return LibraryStats{}, err
	}

	if lastImport.Valid {
		stats.LastImport = time.Unix(lastImport.Int64, 0)
	}
	return stats, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanImage(row scanner) (*Image, error) {
	var img Image
	var captureDate sql.NullInt64
	var importDate int64
	var flag string

	err := row.Scan(
		&img.ID, &img.Path, &img.FileName, &img.Size, &img.Fingerprint,
		&img.Width, &img.Height, &captureDate, &importDate,
		&img.Rating, &flag, &img.ColorLabel,
		&img.Camera, &img.Lens, &img.ISO, &img.Aperture,
		&img.ShutterSpeed, &img.FocalLength, &img.EditVersion,
	)
	if err != nil {
		return nil, err
	}

	if captureDate.Valid {
		t := time.Unix(captureDate.Int64, 0)
		img.CaptureDate = &t
	}
	img.ImportDate = time.Unix(importDate, 0)
	img.Flag = Flag(flag)
	return &img, nil
}

func captureDateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
