package topology

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"cmutils/internal/apperrors"
)

// Predictor labels.
const (
	PredictorTopcons = "TOPCONS"
	PredictorOctopus = "OCTOPUS"
)

var topologyLine = regexp.MustCompile(`^[A-Za-z]+$`)

// Result is a parsed and validated result file.
type Result struct {
	Sequence  string
	Topology  string // one state letter per residue; 'M' marks membrane
	Predictor string // PredictorTopcons or PredictorOctopus
	SeqID     string // sanitized first token of the "Sequence name:" line
}

// Parse reads a result file. source names the input in errors and supplies
// the fallback sequence id when the file has no "Sequence name:" line.
//
// The sequence is the non-blank lines after "Sequence:". The topology is
// the letter-only lines after the first topology marker, ending at the
// first line that is not one. Both must be present and equally long.
func Parse(r io.Reader, source string) (*Result, error) {
	var (
		seqName   string
		seq, topo strings.Builder
		inSeq     bool
		inTopo    bool
		predictor string
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		if strings.HasPrefix(line, "Sequence name:") && seqName == "" {
			seqName = line
		}

		if inTopo {
			if topologyLine.MatchString(line) {
				topo.WriteString(line)
				continue
			}
			if topo.Len() > 0 {
				break
			}
		}

		switch {
		case strings.HasPrefix(line, TopconsMarker), strings.HasPrefix(line, OctopusMarker):
			inSeq, inTopo = false, true
			predictor = PredictorTopcons
			if strings.HasPrefix(line, OctopusMarker) {
				predictor = PredictorOctopus
			}
		case strings.HasPrefix(line, "Sequence:"):
			inSeq, inTopo = true, false
		case inSeq && line != "":
			seq.WriteString(stripBlanks(line))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.Parse(source, fmt.Sprintf("failed to read: %v", err))
	}

	if seq.Len() == 0 {
		return nil, apperrors.Parse(source, "could not find sequence")
	}
	if topo.Len() == 0 {
		return nil, apperrors.Parse(source, fmt.Sprintf("could not find predicted topology (looked for %q, %q)", OctopusMarker, TopconsMarker))
	}
	if seq.Len() != topo.Len() {
		return nil, apperrors.Parse(source, fmt.Sprintf("length difference between seq and topology: seq_len=%d topo_len=%d", seq.Len(), topo.Len()))
	}

	return &Result{
		Sequence:  seq.String(),
		Topology:  topo.String(),
		Predictor: predictor,
		SeqID:     seqID(seqName, source),
	}, nil
}

func stripBlanks(s string) string {
	return strings.NewReplacer(" ", "", "\t", "").Replace(s)
}

// seqID takes the first token after "Sequence name:", else the source stem.
func seqID(seqNameLine, source string) string {
	if _, name, ok := strings.Cut(seqNameLine, ":"); ok {
		if fields := strings.Fields(name); len(fields) > 0 {
			return SanitizeName(fields[0])
		}
	}
	base := filepath.Base(source)
	return SanitizeName(strings.TrimSuffix(base, filepath.Ext(base)))
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeRun     = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	underscoreRun = regexp.MustCompile(`_+`)
)

// SanitizeName makes a filesystem-friendly name: letters, digits, '.', '_'
// and '-' are kept, other runs become a single '_'. An empty result is
// replaced with "sequence".
func SanitizeName(raw string) string {
	s := strings.TrimSpace(raw)
	s = whitespaceRun.ReplaceAllString(s, "_")
	s = unsafeRun.ReplaceAllString(s, "_")
	s = underscoreRun.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "sequence"
	}
	return s
}
