// Package liberr defines the error taxonomy shared across the library engine.
// Callers classify failures with errors.Is / errors.As; everything else is
// wrapped context on top of one of these.
package liberr

import (
	"errors"
	"fmt"
)

var (
	// ErrSchema indicates the on-disk catalog schema is newer than this
	// build supports, or schema creation failed.
	ErrSchema = errors.New("unsupported catalog schema")

	// ErrConstraint indicates a uniqueness or referential constraint was
	// violated, e.g. inserting an image with an id that already exists.
	ErrConstraint = errors.New("constraint violation")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCanceled indicates an operation was abandoned because its caller
	// canceled it. Work already committed stays committed.
	ErrCanceled = errors.New("operation canceled")
)

// IOError wraps a filesystem failure with the path it occurred on.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// NewIOError wraps err as an IOError for the given operation and path.
func NewIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}

// DedupError reports that an imported file's content fingerprint matched an
// image already in the library. The import of that file is rejected; the
// batch continues.
type DedupError struct {
	Path        string
	Fingerprint string
	ExistingID  string
}

func (e *DedupError) Error() string {
	return fmt.Sprintf("duplicate content: %s matches existing image %s (fingerprint %s)",
		e.Path, e.ExistingID, e.Fingerprint)
}
