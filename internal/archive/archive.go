// Package archive extracts downloaded result archives.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cmutils/internal/apperrors"
	"cmutils/internal/job"
)

// Unzip extracts every entry of the zip archive at src into destDir and
// returns the number of regular files written. Existing files are
// overwritten, so extracting the same archive twice yields the same tree.
func Unzip(src, destDir string) (int, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, apperrors.Archive(src, "failed to open archive", err)
	}
	defer zr.Close()

	if len(zr.File) == 0 {
		return 0, apperrors.Archive(src, "archive has no entries", nil)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return 0, apperrors.Archive(src, "failed to create extract directory", err)
	}

	files := 0
	for _, f := range zr.File {
		targetPath, err := entryPath(destDir, f.Name)
		if err != nil {
			return files, apperrors.Archive(src, err.Error(), nil)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return files, apperrors.Archive(src, "failed to create directory", err)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			slog.Debug("Skipping archive entry", "name", f.Name, "mode", f.Mode().String())
			continue
		}

		if err := extractFile(f, targetPath); err != nil {
			return files, apperrors.Archive(src, fmt.Sprintf("failed to extract %s", f.Name), err)
		}
		files++
	}

	slog.Debug("Extracted archive", "src", src, "dest", destDir, "files", files)
	return files, nil
}

// entryPath resolves an entry name under destDir, rejecting names that escape it.
func entryPath(destDir, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	cleanName := filepath.Clean(filepath.FromSlash(name))
	if cleanName == ".." || strings.HasPrefix(cleanName, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path in archive: %s", name)
	}
	return filepath.Join(destDir, cleanName), nil
}

func extractFile(f *zip.File, targetPath string) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(outFile, rc); err != nil {
		outFile.Close()
		return err
	}
	return outFile.Close()
}

// Stat describes the archive at path.
func Stat(path string) (job.ResultArchive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return job.ResultArchive{Path: path}, apperrors.Archive(path, "failed to stat archive", err)
	}
	if info.IsDir() {
		return job.ResultArchive{Path: path}, apperrors.Archive(path, "archive path is a directory", nil)
	}
	return job.ResultArchive{Path: path, Size: info.Size()}, nil
}
