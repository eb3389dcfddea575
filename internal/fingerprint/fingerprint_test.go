package fingerprint

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// TestIdenticalContentIdenticalFingerprint verifies the core dedup property:
// the same bytes always hash to the same fingerprint, regardless of file name.
func TestIdenticalContentIdenticalFingerprint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := bytes.Repeat([]byte("exposure"), 40000) // ~312 KiB, exercises head+tail

	a := writeFile(t, dir, "a.jpg", content)
	b := writeFile(t, dir, "b.jpg", content)

	fpA, err := File(a)
	if err != nil {
		t.Fatalf("File(a): %v", err)
	}
	fpB, err := File(b)
	if err != nil {
		t.Fatalf("File(b): %v", err)
	}

	if fpA != fpB {
		t.Errorf("identical content produced different fingerprints: %s vs %s", fpA, fpB)
	}
	if len(fpA) != 16 {
		t.Errorf("fingerprint should be 16 hex chars, got %q", fpA)
	}
}

func TestDistinctContentDistinctFingerprint(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name string
		a    []byte
		b    []byte
	}{
		{
			name: "small files",
			a:    []byte("one"),
			b:    []byte("two"),
		},
		{
			name: "same size different tail",
			a:    append(bytes.Repeat([]byte{0xAA}, 200*1024), 0x01),
			b:    append(bytes.Repeat([]byte{0xAA}, 200*1024), 0x02),
		},
		{
			name: "same head and tail different size",
			a:    bytes.Repeat([]byte{0xCC}, 300*1024),
			b:    bytes.Repeat([]byte{0xCC}, 301*1024),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pa := writeFile(t, dir, "x_"+tt.name+"_a", tt.a)
			pb := writeFile(t, dir, "x_"+tt.name+"_b", tt.b)

			fpA, err := File(pa)
			if err != nil {
				t.Fatalf("File(a): %v", err)
			}
			fpB, err := File(pb)
			if err != nil {
				t.Fatalf("File(b): %v", err)
			}

			if fpA == fpB {
				t.Errorf("distinct content produced identical fingerprint %s", fpA)
			}
		})
	}
}

func TestEmptyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "empty.jpg", nil)

	fp, err := File(path)
	if err != nil {
		t.Fatalf("File(empty): %v", err)
	}
	if fp == "" {
		t.Error("empty file should still produce a fingerprint")
	}
}

func TestMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := File(filepath.Join(t.TempDir(), "nope.jpg")); err == nil {
		t.Error("expected error for missing file")
	}
}

// TestStableAcrossReads verifies two reads of the same file agree.
func TestStableAcrossReads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "stable.jpg", bytes.Repeat([]byte{0x42}, 150*1024))

	first, err := File(path)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := File(path)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if first != second {
		t.Errorf("fingerprint not stable: %s vs %s", first, second)
	}
}
