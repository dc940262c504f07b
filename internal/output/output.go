// Package output decides where derived files go and writes them.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cmutils/internal/apperrors"
)

// InputStem derives a file stem from an input path: the base name with a
// trailing ".gz" removed, then its last extension removed.
//
//	COX3_gg.fasta -> COX3_gg
//	COX3_gg.fa.gz -> COX3_gg
func InputStem(path string) string {
	base := filepath.Base(path)
	if strings.HasSuffix(base, ".gz") {
		base = trimExt(base)
	}
	return trimExt(base)
}

// trimExt removes the last extension. Leading dots do not start an
// extension, so ".profile" keeps its name.
func trimExt(name string) string {
	trimmed := strings.TrimLeft(name, ".")
	i := strings.LastIndex(trimmed, ".")
	if i < 0 {
		return name
	}
	return name[:len(name)-len(trimmed)+i]
}

// Resolve maps a user-supplied destination to a concrete file path. A
// destination ending in a separator, or naming an existing directory, is
// created and gets stem.ext inside it. Anything else is a file path used
// verbatim, with its parent created.
func Resolve(dest, stem, ext string) (string, error) {
	return resolve(dest, stem, ext, false)
}

// ResolveCoerced is Resolve, except an explicit file path has its extension
// replaced with ext when it does not already carry it.
func ResolveCoerced(dest, stem, ext string) (string, error) {
	return resolve(dest, stem, ext, true)
}

func resolve(dest, stem, ext string, coerce bool) (string, error) {
	if dest == "" {
		return "", apperrors.Validation("output", "output path is required")
	}
	ext = "." + strings.TrimPrefix(ext, ".")

	if isDirTarget(dest) {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return "", apperrors.Internal("output.resolve", fmt.Errorf("failed to create output directory: %w", err))
		}
		return filepath.Join(dest, stem+ext), nil
	}

	path := dest
	if coerce && !strings.EqualFold(filepath.Ext(path), ext) {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ext
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", apperrors.Internal("output.resolve", fmt.Errorf("failed to create output directory: %w", err))
	}
	return path, nil
}

func isDirTarget(dest string) bool {
	if strings.HasSuffix(dest, string(filepath.Separator)) || strings.HasSuffix(dest, "/") {
		return true
	}
	info, err := os.Stat(dest)
	return err == nil && info.IsDir()
}

// Write writes data to path, creating its parent directory.
func Write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.Internal("output.write", fmt.Errorf("failed to create output directory: %w", err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.Internal("output.write", err)
	}
	return nil
}
