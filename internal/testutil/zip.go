package testutil

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// ZipBytes builds an in-memory zip archive from name -> content.
// Entries are written in sorted order so fixtures are reproducible.
func ZipBytes(tb testing.TB, files map[string]string) []byte {
	tb.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("Failed to create zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			tb.Fatalf("Failed to write zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("Failed to close zip writer: %v", err)
	}
	return buf.Bytes()
}

// WriteZip writes a zip archive built by ZipBytes to path.
func WriteZip(tb testing.TB, path string, files map[string]string) {
	tb.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("Failed to create archive directory: %v", err)
	}
	if err := os.WriteFile(path, ZipBytes(tb, files), 0o644); err != nil {
		tb.Fatalf("Failed to write archive: %v", err)
	}
}

// WriteFiles creates name -> content files under root.
func WriteFiles(tb testing.TB, root string, files map[string]string) {
	tb.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			tb.Fatalf("Failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			tb.Fatalf("Failed to write %s: %v", name, err)
		}
	}
}
