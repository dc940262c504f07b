package topology

import (
	"fmt"
	"strings"

	"cmutils/internal/apperrors"
)

// Span is a membrane segment, 1-based and inclusive.
type Span struct {
	Start int
	End   int
}

// Spans returns the contiguous runs of 'M' in a topology string.
func Spans(topology string) []Span {
	var spans []Span
	for i := 0; i < len(topology); {
		if topology[i] != 'M' {
			i++
			continue
		}
		j := i
		for j < len(topology) && topology[j] == 'M' {
			j++
		}
		spans = append(spans, Span{Start: i + 1, End: j})
		i = j
	}
	return spans
}

// FormatSpan renders one .span block. columns is 2 ("start end") or 4
// ("start end start end"); offset shifts every span.
func FormatSpan(spans []Span, totalLen int, label string, columns, offset int) (string, error) {
	if columns != 2 && columns != 4 {
		return "", apperrors.Validation("columns", "columns must be 2 or 4")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TM region prediction for %s predicted using TOPCONS\n", label)
	fmt.Fprintf(&b, "%d %d\n", len(spans), totalLen)
	b.WriteString("antiparallel\n")
	b.WriteString("n2c\n")
	for _, s := range spans {
		start, end := s.Start+offset, s.End+offset
		if columns == 2 {
			fmt.Fprintf(&b, "%4d  %4d\n", start, end)
		} else {
			fmt.Fprintf(&b, "%4d  %4d  %4d  %4d\n", start, end, start, end)
		}
	}
	return b.String(), nil
}

// SpanOptions controls .span rendering of a parsed result.
type SpanOptions struct {
	Name       string // output base name; the result's SeqID when empty
	Columns    int    // 2 or 4, default 4
	Monomers   int    // copies of the span set, default 1
	MonomerLen int    // residues per monomer, required when Monomers > 1
}

// RenderSpan renders the result's spans, one block per monomer, with each
// copy offset by the monomer length.
func RenderSpan(res *Result, opts SpanOptions) (string, error) {
	base := SpanBase(res, opts.Name)
	columns := opts.Columns
	if columns == 0 {
		columns = 4
	}
	monomers := opts.Monomers
	if monomers == 0 {
		monomers = 1
	}
	if monomers < 1 {
		return "", apperrors.Validation("monomers", "monomers must be >= 1")
	}
	if monomers > 1 && opts.MonomerLen <= 0 {
		return "", apperrors.Validation("len", "len must be provided and > 0 when monomers > 1")
	}

	spans := Spans(res.Topology)
	totalLen := len(res.Sequence)
	if monomers > 1 {
		totalLen = opts.MonomerLen * monomers
	}

	var b strings.Builder
	for i := 0; i < monomers; i++ {
		offset := 0
		if monomers > 1 {
			offset = i * opts.MonomerLen
		}
		block, err := FormatSpan(spans, totalLen, base+".span", columns, offset)
		if err != nil {
			return "", err
		}
		b.WriteString(block)
	}
	return b.String(), nil
}

// SpanBase returns the base name RenderSpan labels the output with.
func SpanBase(res *Result, name string) string {
	if name != "" {
		return SanitizeName(name)
	}
	return res.SeqID
}
