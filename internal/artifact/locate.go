// Package artifact finds the prediction result file inside an extracted archive.
package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cmutils/internal/apperrors"
)

// TargetName is the result file every TOPCONS archive carries per query.
const TargetName = "query.result.txt"

// Candidate is one file whose base name matches the target.
type Candidate struct {
	Path  string // absolute or root-joined path
	Rel   string // slash-separated path relative to the walk root
	Depth int    // number of separators in Rel
}

// Collect walks root and returns every regular file named name, in walk order.
func Collect(root, name string) ([]Candidate, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperrors.Internal("artifact.collect", fmt.Errorf("failed to stat %s: %w", root, err))
	}
	if !info.IsDir() {
		return nil, apperrors.Validation("root", fmt.Sprintf("not a directory: %s", root))
	}

	var candidates []Candidate
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || info.Name() != name {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		candidates = append(candidates, Candidate{
			Path:  path,
			Rel:   rel,
			Depth: strings.Count(rel, "/"),
		})
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("artifact.collect", fmt.Errorf("failed to walk directory: %w", err))
	}
	return candidates, nil
}

// Select picks the shallowest candidate, breaking ties by lexicographic
// relative path. The input slice is not modified.
func Select(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	sorted := append([]Candidate(nil), candidates...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Depth != sorted[j].Depth {
			return sorted[i].Depth < sorted[j].Depth
		}
		return sorted[i].Rel < sorted[j].Rel
	})
	return sorted[0], true
}

// Locate returns the path of the selected name file under root.
func Locate(root, name string) (string, error) {
	candidates, err := Collect(root, name)
	if err != nil {
		return "", err
	}
	c, ok := Select(candidates)
	if !ok {
		return "", apperrors.ArtifactMissing(root, name)
	}
	slog.Debug("Located artifact", "path", c.Path, "candidates", len(candidates))
	return c.Path, nil
}
