package bundle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"photo-library/internal/liberr"
)

func TestCreateIsIdempotent(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "My Library")
	b, err := Create(root)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Simulate existing content, then create again.
	marker := filepath.Join(b.OriginalsDir(), "keep.jpg")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Create(root); err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("re-creation touched existing content")
	}

	for _, dir := range []string{b.OriginalsDir(), b.PreviewsDir(), b.ThumbnailsDir(), b.SidecarsDir()} {
		stat, err := os.Stat(dir)
		if err != nil || !stat.IsDir() {
			t.Errorf("missing bundle directory %s: %v", dir, err)
		}
	}
}

func TestOpenRequiresCatalog(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "lib")
	if _, err := Create(root); err != nil {
		t.Fatal(err)
	}

	// No catalog yet: opening must fail.
	var ioErr *liberr.IOError
	if _, err := Open(root); !errors.As(err, &ioErr) {
		t.Fatalf("Open without catalog: %v, want IOError", err)
	}

	if err := os.WriteFile(filepath.Join(root, CatalogFileName), []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(root); err != nil {
		t.Fatalf("Open with catalog: %v", err)
	}
}

func TestOpenRecreatesMissingDirs(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "lib")
	b, err := Create(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b.CatalogPath(), []byte{}, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(b.ThumbnailsDir()); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if stat, err := os.Stat(reopened.ThumbnailsDir()); err != nil || !stat.IsDir() {
		t.Error("Thumbnails directory not recreated")
	}
}
