// Package fingerprint computes fast content digests for duplicate
// pre-filtering. The digest is deliberately non-cryptographic: it hashes the
// first and last 64 KiB of a file plus its total size, trading collision
// resistance for speed on large RAW files. It must never be used as a
// security primitive.
package fingerprint

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"photo-library/internal/liberr"
)

// chunkSize is how much of the head and tail of a file is hashed.
const chunkSize = 64 * 1024

// File computes the content fingerprint of the file at path.
// Identical byte content always yields an identical fingerprint.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", liberr.NewIOError("fingerprint", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", liberr.NewIOError("fingerprint", path, err)
	}

	return reader(f, info.Size())
}

// reader hashes the head chunk, the tail chunk when the content is larger
// than both chunks combined, and the total size.
func reader(r io.ReaderAt, size int64) (string, error) {
	h := xxhash.New()

	head := make([]byte, min64(size, chunkSize))
	if _, err := r.ReadAt(head, 0); err != nil && err != io.EOF {
		return "", fmt.Errorf("read head: %w", err)
	}
	_, _ = h.Write(head)

	if size > 2*chunkSize {
		tail := make([]byte, chunkSize)
		if _, err := r.ReadAt(tail, size-chunkSize); err != nil && err != io.EOF {
			return "", fmt.Errorf("read tail: %w", err)
		}
		_, _ = h.Write(tail)
	}

	var sz [8]byte
	binary.LittleEndian.PutUint64(sz[:], uint64(size))
	_, _ = h.Write(sz[:])

	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
