package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteAgedFile creates path with size bytes of filler and sets both its
// access and modification times to modTime. Zero modTime keeps the current time.
func WriteAgedFile(t testing.TB, path string, size int, modTime time.Time) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'x'}, max(size, 0)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if modTime.IsZero() {
		return
	}
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}
