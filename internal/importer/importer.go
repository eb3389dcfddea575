// Package importer brings photo files into a library: expansion of the
// requested paths, duplicate detection by content fingerprint, optional
// copying into the bundle's Originals tree, metadata extraction, and
// catalog registration. Thumbnail generation is kicked off in the
// background so import completion never waits on rendering.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"photo-library/internal/fingerprint"
	"photo-library/internal/liberr"
	"photo-library/internal/logging"
	"photo-library/internal/mediatypes"
	"photo-library/internal/metadata"
	"photo-library/internal/metrics"
	"photo-library/internal/store"
	"photo-library/internal/workers"
)

// Catalog is the registration surface the pipeline needs from the library.
type Catalog interface {
	// FindByFingerprint returns the already-imported image with the given
	// fingerprint, or liberr.ErrNotFound.
	FindByFingerprint(ctx context.Context, fp string) (*store.Image, error)
	// Insert registers a newly imported image.
	Insert(ctx context.Context, img *store.Image) error
}

// Thumbnailer eagerly generates thumbnails for an imported image.
type Thumbnailer interface {
	GenerateAll(ctx context.Context, img *store.Image) error
}

// Progress is invoked before each file is processed, with done files so
// far, the total file count, and the path about to be processed. done is
// monotonically non-decreasing across calls.
type Progress func(done, total int, path string)

// Options control one import batch.
type Options struct {
	// CopyIntoLibrary copies source files into OriginalsDir, organized by
	// capture date. When false, images reference their original location.
	CopyIntoLibrary bool
	OriginalsDir    string
	Progress        Progress
}

// Result is the outcome of one import batch. Errors holds one entry per
// file that failed or was rejected as a duplicate; a failed file never
// aborts the batch.
type Result struct {
	Imported []*store.Image
	Errors   []error
	Duration time.Duration
}

// Importer is the import pipeline. Construct once per library.
type Importer struct {
	catalog   Catalog
	extractor metadata.Extractor
	thumbs    Thumbnailer
}

// New creates an import pipeline. thumbs may be nil to skip eager
// thumbnail generation.
func New(catalog Catalog, extractor metadata.Extractor, thumbs Thumbnailer) *Importer {
	return &Importer{catalog: catalog, extractor: extractor, thumbs: thumbs}
}

// Import processes the given files and directories. Directories are
// expanded recursively; unsupported files are skipped silently. Files are
// processed in lexicographic path order so repeated imports of the same
// tree behave identically.
//
// Cancellation stops the batch between files; images already registered
// stay in the library. The partial Result is returned alongside the
// cancellation error.
func (imp *Importer) Import(ctx context.Context, paths []string, opts Options) (*Result, error) {
	start := time.Now()
	metrics.ImportInProgress.Inc()
	defer metrics.ImportInProgress.Dec()
	defer func() {
		metrics.ImportBatchDuration.Observe(time.Since(start).Seconds())
	}()

	result := &Result{}
	files, err := expand(paths)
	if err != nil {
		result.Duration = time.Since(start)
		return result, err
	}

	logging.Info("Importing %d files", len(files))

	// Thumbnail generation runs behind the batch on a bounded pool.
	sem := make(chan struct{}, workers.ForIO(8))

	for i, path := range files {
		if opts.Progress != nil {
			opts.Progress(i, len(files), path)
		}
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("%w: %v", liberr.ErrCanceled, err)
		}

		img, err := imp.importOne(ctx, path, opts)
		if err != nil {
			switch {
			case isDedup(err):
				metrics.ImportFilesTotal.WithLabelValues("duplicate").Inc()
			default:
				metrics.ImportFilesTotal.WithLabelValues("failed").Inc()
			}
			logging.Warn("Import of %s failed: %v", path, err)
			result.Errors = append(result.Errors, err)
			continue
		}

		metrics.ImportFilesTotal.WithLabelValues("imported").Inc()
		result.Imported = append(result.Imported, img)

		if imp.thumbs != nil {
			go func(img *store.Image) {
				sem <- struct{}{}
				defer func() { <-sem }()
				if err := imp.thumbs.GenerateAll(context.Background(), img); err != nil {
					logging.Debug("Eager thumbnails for %s: %v", img.ID, err)
				}
			}(img.Clone())
		}
	}

	if opts.Progress != nil {
		opts.Progress(len(files), len(files), "")
	}

	result.Duration = time.Since(start)
	logging.Info("Import finished: %d imported, %d errors in %v",
		len(result.Imported), len(result.Errors), result.Duration.Round(time.Millisecond))
	return result, nil
}

func (imp *Importer) importOne(ctx context.Context, path string, opts Options) (*store.Image, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, liberr.NewIOError("import", path, err)
	}

	fp, err := fingerprint.File(path)
	if err != nil {
		return nil, err
	}

	existing, err := imp.catalog.FindByFingerprint(ctx, fp)
	if err == nil {
		return nil, &liberr.DedupError{Path: path, Fingerprint: fp, ExistingID: existing.ID}
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("fingerprint lookup for %s: %w", path, err)
	}

	info, err := imp.extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("metadata for %s: %w", path, err)
	}

	finalPath := path
	if opts.CopyIntoLibrary {
		finalPath, err = copyIntoOriginals(path, opts.OriginalsDir, info.CaptureDate)
		if err != nil {
			return nil, err
		}
	}

	img := &store.Image{
		ID:           uuid.New().String(),
		Path:         finalPath,
		FileName:     filepath.Base(finalPath),
		Size:         stat.Size(),
		Fingerprint:  fp,
		Width:        info.Width,
		Height:       info.Height,
		CaptureDate:  info.CaptureDate,
		ImportDate:   time.Now().UTC(),
		Flag:         store.FlagNone,
		Camera:       info.Camera,
		Lens:         info.Lens,
		ISO:          info.ISO,
		Aperture:     info.Aperture,
		ShutterSpeed: info.ShutterSpeed,
		FocalLength:  info.FocalLength,
	}

	if err := imp.catalog.Insert(ctx, img); err != nil {
		return nil, fmt.Errorf("register %s: %w", path, err)
	}
	return img, nil
}

// expand resolves the requested paths into a sorted list of supported
// files. Directories are walked recursively; a missing path is an error
// because the caller named it explicitly.
func expand(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		stat, err := os.Stat(p)
		if err != nil {
			return nil, liberr.NewIOError("import", p, err)
		}
		if !stat.IsDir() {
			if mediatypes.IsSupported(p) {
				add(p)
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && mediatypes.IsSupported(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, liberr.NewIOError("import", p, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// copyIntoOriginals copies src into originalsDir/YYYY/MM/DD, named after
// the capture date (import time when unknown). Name collisions get a
// numeric suffix; existing files are never overwritten.
func copyIntoOriginals(src, originalsDir string, captured *time.Time) (string, error) {
	when := time.Now().UTC()
	if captured != nil {
		when = *captured
	}
	dir := filepath.Join(originalsDir,
		fmt.Sprintf("%04d", when.Year()),
		fmt.Sprintf("%02d", when.Month()),
		fmt.Sprintf("%02d", when.Day()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", liberr.NewIOError("import", dir, err)
	}

	base := filepath.Base(src)
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]

	for attempt := 0; ; attempt++ {
		name := base
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d%s", stem, attempt, ext)
		}
		dst := filepath.Join(dir, name)

		err := copyFile(src, dst)
		if err == nil {
			return dst, nil
		}
		if !os.IsExist(err) {
			return "", liberr.NewIOError("import", dst, err)
		}
	}
}

// copyFile refuses to replace an existing destination.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

func isDedup(err error) bool {
	var d *liberr.DedupError
	return errors.As(err, &d)
}

func isNotFound(err error) bool {
	return errors.Is(err, liberr.ErrNotFound)
}
