// Package bundle manages the on-disk layout of a library: a single
// directory holding the catalog database and the managed file trees.
//
//	<library>/
//	    catalog.db
//	    Originals/
//	    Previews/
//	    Thumbnails/
//	    Sidecars/
package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"photo-library/internal/liberr"
	"photo-library/internal/logging"
)

// CatalogFileName is the database file inside a bundle.
const CatalogFileName = "catalog.db"

var subdirs = []string{"Originals", "Previews", "Thumbnails", "Sidecars"}

// Bundle is an opened library directory.
type Bundle struct {
	root string
}

// Create initializes a bundle at root, creating the directory tree as
// needed. Creating over an existing bundle is a no-op; existing content is
// never touched.
func Create(root string) (*Bundle, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, liberr.NewIOError("create bundle", root, err)
	}
	for _, d := range subdirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, liberr.NewIOError("create bundle", filepath.Join(root, d), err)
		}
	}
	logging.Info("Library bundle ready at %s", root)
	return &Bundle{root: root}, nil
}

// Open validates an existing bundle. A missing catalog database is fatal;
// missing managed directories are recreated, since every file inside them
// is derived or re-copyable.
func Open(root string) (*Bundle, error) {
	stat, err := os.Stat(root)
	if err != nil {
		return nil, liberr.NewIOError("open bundle", root, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("bundle path %s is not a directory", root)
	}
	if _, err := os.Stat(filepath.Join(root, CatalogFileName)); err != nil {
		return nil, liberr.NewIOError("open bundle", filepath.Join(root, CatalogFileName), err)
	}

	for _, d := range subdirs {
		path := filepath.Join(root, d)
		if _, err := os.Stat(path); err != nil {
			logging.Warn("Recreating missing bundle directory %s", path)
			if err := os.MkdirAll(path, 0o755); err != nil {
				return nil, liberr.NewIOError("open bundle", path, err)
			}
		}
	}
	return &Bundle{root: root}, nil
}

// Root returns the bundle directory.
func (b *Bundle) Root() string { return b.root }

// CatalogPath returns the catalog database file path.
func (b *Bundle) CatalogPath() string { return filepath.Join(b.root, CatalogFileName) }

// OriginalsDir returns the managed originals tree.
func (b *Bundle) OriginalsDir() string { return filepath.Join(b.root, "Originals") }

// PreviewsDir returns the rendered previews tree.
func (b *Bundle) PreviewsDir() string { return filepath.Join(b.root, "Previews") }

// ThumbnailsDir returns the thumbnail cache tree.
func (b *Bundle) ThumbnailsDir() string { return filepath.Join(b.root, "Thumbnails") }

// SidecarsDir returns the sidecar export tree.
func (b *Bundle) SidecarsDir() string { return filepath.Join(b.root, "Sidecars") }
