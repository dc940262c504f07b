// Package topology reads TOPCONS/OCTOPUS result files: it truncates them to
// the predicted-topology block, validates their sections, and renders
// membrane spans in Rosetta .span format.
package topology

import (
	"strings"

	"cmutils/internal/apperrors"
)

// Marker lines introducing a predicted topology.
const (
	TopconsMarker = "TOPCONS predicted topology:"
	OctopusMarker = "OCTOPUS predicted topology:"
)

// ExtractBlock returns the verbatim prefix of text through the TOPCONS
// topology marker line and the lines after it, up to and including the
// first whitespace-only line. Without a following blank line the rest of
// the text is kept. Applying ExtractBlock to its own output is a no-op.
func ExtractBlock(text string) (string, error) {
	lines := strings.SplitAfter(text, "\n")
	end := 0
	found := false
	for i, line := range lines {
		end += len(line)
		if !strings.HasPrefix(line, TopconsMarker) {
			continue
		}
		found = true
		for _, next := range lines[i+1:] {
			end += len(next)
			if strings.TrimSpace(next) == "" {
				break
			}
		}
		break
	}
	if !found {
		return "", apperrors.Parse("", "missing '"+TopconsMarker+"' marker")
	}
	return text[:end], nil
}
