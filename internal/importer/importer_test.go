package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"photo-library/internal/liberr"
	"photo-library/internal/metadata"
	"photo-library/internal/store"
)

// memCatalog is an in-memory Catalog for pipeline tests.
type memCatalog struct {
	mu     sync.Mutex
	byFP   map[string]*store.Image
	images []*store.Image
}

func newMemCatalog() *memCatalog {
	return &memCatalog{byFP: make(map[string]*store.Image)}
}

func (c *memCatalog) FindByFingerprint(ctx context.Context, fp string) (*store.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if img, ok := c.byFP[fp]; ok {
		return img, nil
	}
	return nil, liberr.ErrNotFound
}

func (c *memCatalog) Insert(ctx context.Context, img *store.Image) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byFP[img.Fingerprint] = img
	c.images = append(c.images, img)
	return nil
}

// fakeExtractor returns a fixed capture date and fails for configured names.
type fakeExtractor struct {
	captureDate *time.Time
	failNames   map[string]bool
}

func (e *fakeExtractor) Extract(ctx context.Context, path string) (*metadata.Info, error) {
	if e.failNames[filepath.Base(path)] {
		return nil, fmt.Errorf("unreadable metadata in %s", path)
	}
	return &metadata.Info{CaptureDate: e.captureDate, Camera: "X-T5"}, nil
}

type recordingThumbnailer struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingThumbnailer) GenerateAll(ctx context.Context, img *store.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, img.ID)
	return nil
}

func (r *recordingThumbnailer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestBatchIsolatesFailures covers the core batch contract: one bad file
// yields one error entry and the remaining files still import.
func TestBatchIsolatesFailures(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, src, "a.jpg", "photo a")
	writeFile(t, src, "bad.jpg", "photo b")
	writeFile(t, src, "c.jpg", "photo c")

	imp := New(newMemCatalog(), &fakeExtractor{failNames: map[string]bool{"bad.jpg": true}}, nil)
	result, err := imp.Import(context.Background(), []string{src}, Options{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if len(result.Imported) != 2 {
		t.Errorf("imported %d files, want 2", len(result.Imported))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(result.Errors), result.Errors)
	}
}

func TestLexicographicProcessingOrder(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, src, "zebra.jpg", "z")
	writeFile(t, src, "nested/alpha.jpg", "a")
	writeFile(t, src, "mid.jpg", "m")
	writeFile(t, src, "notes.txt", "skip me")

	var order []string
	progress := func(done, total int, path string) {
		if path != "" {
			order = append(order, filepath.Base(path))
		}
	}

	imp := New(newMemCatalog(), &fakeExtractor{}, nil)
	if _, err := imp.Import(context.Background(), []string{src}, Options{Progress: progress}); err != nil {
		t.Fatalf("Import: %v", err)
	}

	want := []string{"mid.jpg", "alpha.jpg", "zebra.jpg"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("processing order %v, want %v", order, want)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	for i := 0; i < 4; i++ {
		writeFile(t, src, fmt.Sprintf("p%d.jpg", i), fmt.Sprint(i))
	}

	last := -1
	progress := func(done, total int, path string) {
		if done < last {
			t.Errorf("progress went backwards: %d after %d", done, last)
		}
		if total != 4 {
			t.Errorf("total = %d, want 4", total)
		}
		last = done
	}

	imp := New(newMemCatalog(), &fakeExtractor{}, nil)
	if _, err := imp.Import(context.Background(), []string{src}, Options{Progress: progress}); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if last != 4 {
		t.Errorf("final progress %d, want 4", last)
	}
}

func TestDuplicateContentIsRejected(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, src, "orig.jpg", "identical pixels")
	writeFile(t, src, "copy.jpg", "identical pixels")

	catalog := newMemCatalog()
	imp := New(catalog, &fakeExtractor{}, nil)
	result, err := imp.Import(context.Background(), []string{src}, Options{})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if len(result.Imported) != 1 {
		t.Fatalf("imported %d files, want 1", len(result.Imported))
	}
	if len(result.Errors) != 1 {
		t.Fatalf("got %d errors, want 1 duplicate rejection", len(result.Errors))
	}

	var dedup *liberr.DedupError
	if !errors.As(result.Errors[0], &dedup) {
		t.Fatalf("error is %T, want DedupError", result.Errors[0])
	}
	if dedup.ExistingID != result.Imported[0].ID {
		t.Errorf("DedupError points at %s, want %s", dedup.ExistingID, result.Imported[0].ID)
	}

	// Re-importing the same tree is a no-op with two rejections.
	again, err := imp.Import(context.Background(), []string{src}, Options{})
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if len(again.Imported) != 0 || len(again.Errors) != 2 {
		t.Errorf("re-import: %d imported, %d errors, want 0 and 2",
			len(again.Imported), len(again.Errors))
	}
}

func TestCopyIntoOriginalsLayout(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	originals := t.TempDir()
	writeFile(t, src, "sunset.jpg", "evening")

	captured := time.Date(2024, 7, 9, 18, 30, 0, 0, time.UTC)
	imp := New(newMemCatalog(), &fakeExtractor{captureDate: &captured}, nil)

	result, err := imp.Import(context.Background(), []string{src}, Options{
		CopyIntoLibrary: true,
		OriginalsDir:    originals,
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(result.Imported) != 1 {
		t.Fatalf("imported %d files, want 1", len(result.Imported))
	}

	want := filepath.Join(originals, "2024", "07", "09", "sunset.jpg")
	if result.Imported[0].Path != want {
		t.Errorf("image path %s, want %s", result.Imported[0].Path, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("copied file: %v", err)
	}
	if string(data) != "evening" {
		t.Error("copied content differs from source")
	}
}

func TestNameCollisionGetsSuffix(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	originals := t.TempDir()
	writeFile(t, src, "cardA/IMG_0001.jpg", "first card")
	writeFile(t, src, "cardB/IMG_0001.jpg", "second card")

	captured := time.Date(2024, 7, 9, 12, 0, 0, 0, time.UTC)
	imp := New(newMemCatalog(), &fakeExtractor{captureDate: &captured}, nil)

	result, err := imp.Import(context.Background(), []string{src}, Options{
		CopyIntoLibrary: true,
		OriginalsDir:    originals,
	})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(result.Imported) != 2 || len(result.Errors) != 0 {
		t.Fatalf("imported %d, errors %v", len(result.Imported), result.Errors)
	}

	day := filepath.Join(originals, "2024", "07", "09")
	first, err := os.ReadFile(filepath.Join(day, "IMG_0001.jpg"))
	if err != nil {
		t.Fatalf("original name: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(day, "IMG_0001_1.jpg"))
	if err != nil {
		t.Fatalf("suffixed name: %v", err)
	}
	if string(first) != "first card" || string(second) != "second card" {
		t.Error("collision handling overwrote a file")
	}
}

func TestCancellationKeepsCommittedImports(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, src, fmt.Sprintf("p%d.jpg", i), fmt.Sprint(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	progress := func(done, total int, path string) {
		if done == 2 {
			cancel()
		}
	}

	catalog := newMemCatalog()
	imp := New(catalog, &fakeExtractor{}, nil)
	result, err := imp.Import(ctx, []string{src}, Options{Progress: progress})
	if !errors.Is(err, liberr.ErrCanceled) {
		t.Fatalf("got %v, want ErrCanceled", err)
	}

	if len(result.Imported) != 2 {
		t.Errorf("partial result has %d images, want 2", len(result.Imported))
	}
	if len(catalog.images) != 2 {
		t.Errorf("catalog holds %d images after cancel, want the 2 committed", len(catalog.images))
	}
}

func TestEagerThumbnailsRun(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeFile(t, src, "a.jpg", "a")
	writeFile(t, src, "b.jpg", "b")

	thumbs := &recordingThumbnailer{}
	imp := New(newMemCatalog(), &fakeExtractor{}, thumbs)
	if _, err := imp.Import(context.Background(), []string{src}, Options{}); err != nil {
		t.Fatalf("Import: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for thumbs.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := thumbs.count(); got != 2 {
		t.Errorf("thumbnail generation ran for %d images, want 2", got)
	}
}

func TestMissingPathIsAnError(t *testing.T) {
	t.Parallel()

	imp := New(newMemCatalog(), &fakeExtractor{}, nil)
	_, err := imp.Import(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, Options{})
	var ioErr *liberr.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("got %v, want IOError for explicitly named missing path", err)
	}
}
