// octopus2span converts a TOPCONS/OCTOPUS result file into a Rosetta .span
// membrane definition.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cmutils/internal/artifact"
	"cmutils/internal/output"
	"cmutils/internal/topology"
)

const exitError = 2

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	input      string
	out        string
	name       string
	monomers   int
	monomerLen int
	columns    int
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitError
	}

	text, base, err := convert(opts)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitError
	}

	if opts.out == "" {
		if _, err := io.WriteString(stdout, text); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return exitError
		}
		return 0
	}

	path, err := output.ResolveCoerced(opts.out, base, "span")
	if err == nil {
		err = output.Write(path, []byte(text))
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return exitError
	}
	return 0
}

// parseArgs accepts flags before and after the positional input.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("octopus2span", flag.ContinueOnError)
	var usage bytes.Buffer
	fs.SetOutput(&usage)
	fs.StringVar(&opts.out, "o", "", "Output .span path or directory; stdout when omitted")
	fs.StringVar(&opts.name, "name", "", "Output base name (without .span); defaults to the sequence name")
	fs.IntVar(&opts.monomers, "monomers", 1, "Number of monomers to replicate spans for")
	fs.IntVar(&opts.monomerLen, "len", 0, "Monomer length, required when -monomers > 1")
	fs.IntVar(&opts.columns, "columns", 4, "Columns per span row: 4 (start end start end) or 2 (start end)")

	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				fmt.Fprint(stderr, usage.String())
			}
			return nil, err
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
	if len(positional) != 1 {
		return nil, fmt.Errorf("expected exactly one input path, got %d", len(positional))
	}
	opts.input = positional[0]
	return opts, nil
}

// convert renders the .span text and returns it with its base name.
func convert(opts *options) (string, string, error) {
	path, err := filepath.Abs(opts.input)
	if err != nil {
		return "", "", err
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		if path, err = artifact.Locate(path, artifact.TargetName); err != nil {
			return "", "", err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	res, err := topology.Parse(f, path)
	if err != nil {
		return "", "", err
	}

	spanOpts := topology.SpanOptions{
		Name:       opts.name,
		Columns:    opts.columns,
		Monomers:   opts.monomers,
		MonomerLen: opts.monomerLen,
	}
	if opts.monomers < 1 {
		return "", "", errors.New("-monomers must be >= 1")
	}
	text, err := topology.RenderSpan(res, spanOpts)
	if err != nil {
		return "", "", err
	}
	return text, topology.SpanBase(res, opts.name), nil
}
