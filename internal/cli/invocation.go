// Package cli turns topcons-job command-line arguments into a validated
// invocation.
package cli

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cmutils/internal/apperrors"
	"cmutils/internal/config"
	"cmutils/internal/pipeline"
)

// InvocationError is a usage problem detected before anything runs.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: apperrors.ExitUsage, Message: fmt.Sprintf(format, args...)}
}

// Invocation is one validated topcons-job run.
type Invocation struct {
	Launcher    string
	Interpreter string

	Sequence string
	JobName  string
	Email    string

	OutputDir    string
	PollInterval time.Duration
	MaxPolls     int
	ExtractDir   string
	KeepArchive  bool

	SkipOutput  bool
	OctopusOut  string
	SpanOut     string
	SpanColumns int

	Runner      string
	DockerImage string

	StatusAddr  string
	CallbackURL string
	CallbackKey string

	LogLevel slog.Level
}

// ParseInvocation parses args (without the program name). d supplies the
// flag defaults; flags always win.
func ParseInvocation(args []string, d *config.Defaults) (*Invocation, error) {
	if d == nil {
		d = &config.Defaults{}
	}

	var usage bytes.Buffer
	fs := flag.NewFlagSet("topcons-job", flag.ContinueOnError)
	fs.SetOutput(&usage)

	inv := &Invocation{CallbackKey: d.CallbackKey, LogLevel: d.LogLevel}
	var pollSeconds float64

	fs.StringVar(&inv.Launcher, "launcher", d.Launcher, "Path to the TOPCONS client launcher script (env TOPCONS_LAUNCHER)")
	fs.StringVar(&inv.Interpreter, "interpreter", d.Interpreter, "Program used to run the launcher; empty runs it directly")
	fs.StringVar(&inv.Sequence, "seq", "", "Input sequence file (FASTA). Required.")
	fs.StringVar(&inv.JobName, "jobname", "", "Job name passed to the service")
	fs.StringVar(&inv.Email, "email", "", "Notification email passed to the service")
	fs.StringVar(&inv.OutputDir, "output-dir", d.OutputDir, "Directory the result archive is downloaded to")
	fs.Float64Var(&pollSeconds, "poll", d.PollInterval.Seconds(), "Seconds between polls")
	fs.IntVar(&inv.MaxPolls, "max-polls", d.MaxPolls, "Maximum number of polls before giving up")
	fs.StringVar(&inv.ExtractDir, "extract-dir", "", "Extraction directory (default <output-dir>/<jobid>)")
	fs.BoolVar(&inv.KeepArchive, "keep-zip", false, "Keep the downloaded archive after extraction")
	fs.BoolVar(&inv.SkipOutput, "no-octopus", false, "Stop after extraction; do not write a .octopus file")
	fs.StringVar(&inv.OctopusOut, "octopus-out", "", "Output .octopus file, or a directory to place <seq stem>.octopus in")
	fs.StringVar(&inv.SpanOut, "span-out", "", "Also write a Rosetta .span file (file or directory)")
	fs.IntVar(&inv.SpanColumns, "span-columns", 4, "Columns per .span row: 2 or 4")
	fs.StringVar(&inv.Runner, "runner", d.Runner, "How the launcher is executed: exec or docker")
	fs.StringVar(&inv.DockerImage, "docker-image", d.DockerImage, "Image for the docker runner")
	fs.StringVar(&inv.StatusAddr, "status-addr", d.StatusAddr, "Serve /livez, /readyz, /status and /metrics on this address")
	fs.StringVar(&inv.CallbackURL, "callback-url", d.CallbackURL, "POST lifecycle CloudEvents to this URL")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, &InvocationError{ExitCode: apperrors.ExitSuccess, Message: usage.String()}
		}
		return nil, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return nil, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}
	inv.PollInterval = time.Duration(pollSeconds * float64(time.Second))

	if err := inv.validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

func (inv *Invocation) validate() error {
	if inv.Launcher == "" {
		return invalidInvocationf("-launcher is required (or set TOPCONS_LAUNCHER)")
	}
	if !isFile(inv.Launcher) {
		return invalidInvocationf("launcher not found: %s", inv.Launcher)
	}
	if inv.Sequence == "" {
		return invalidInvocationf("-seq is required")
	}
	if !isFile(inv.Sequence) {
		return invalidInvocationf("seq file not found: %s", inv.Sequence)
	}
	if inv.OutputDir == "" {
		return invalidInvocationf("-output-dir must not be empty")
	}
	if !inv.SkipOutput && inv.OctopusOut == "" {
		return invalidInvocationf("-octopus-out is required unless -no-octopus is set")
	}
	if inv.SkipOutput && inv.SpanOut != "" {
		return invalidInvocationf("-span-out cannot be combined with -no-octopus")
	}
	if inv.PollInterval < 0 {
		return invalidInvocationf("-poll must not be negative")
	}
	if inv.MaxPolls < 1 {
		return invalidInvocationf("-max-polls must be at least 1 (got %d)", inv.MaxPolls)
	}
	if inv.SpanColumns != 2 && inv.SpanColumns != 4 {
		return invalidInvocationf("-span-columns must be 2 or 4 (got %d)", inv.SpanColumns)
	}
	switch inv.Runner {
	case config.RunnerExec:
	case config.RunnerDocker:
		if inv.DockerImage == "" {
			return invalidInvocationf("-docker-image is required with -runner docker")
		}
	default:
		return invalidInvocationf("invalid -runner %q (expected exec|docker)", inv.Runner)
	}
	return nil
}

// PipelineConfig maps the invocation onto a pipeline run.
func (inv *Invocation) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		SequencePath: inv.Sequence,
		JobName:      inv.JobName,
		Email:        inv.Email,
		OutputDir:    inv.OutputDir,
		ExtractDir:   inv.ExtractDir,
		KeepArchive:  inv.KeepArchive,
		SkipOutput:   inv.SkipOutput,
		OutputPath:   inv.OctopusOut,
		SpanPath:     inv.SpanOut,
		SpanColumns:  inv.SpanColumns,
		PollInterval: inv.PollInterval,
		MaxPolls:     inv.MaxPolls,
		Runner:       inv.Runner,
	}
}

// ExitCode extracts the exit code from a ParseInvocation error.
func ExitCode(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		return invErr.ExitCode
	}
	return apperrors.ExitCode(err)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
