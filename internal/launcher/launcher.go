// Package launcher implements job.Client on top of the TOPCONS launcher script.
//
// The script is the only client of the remote service. Submit runs
// "-m submit" and parses the jobid from stdout; Fetch runs "-m get", which
// downloads {outpath}/{jobid}.zip once the job has finished.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"cmutils/internal/apperrors"
	"cmutils/internal/job"
	"cmutils/internal/runner"
)

// DefaultInterpreter runs the launcher script.
const DefaultInterpreter = "python3"

var jobIDPattern = regexp.MustCompile(`jobid\s*=\s*([A-Za-z0-9_]+)`)

// Markers the launcher prints for terminal remote states, matched case-insensitively.
const (
	markerFailed   = "is failed"
	markerNotFound = "does not exist"
)

// Config selects the script and how it is invoked.
type Config struct {
	Script      string // path to the launcher script, required
	Interpreter string // empty runs the script directly
}

// Client implements job.Client by shelling out through a runner.
type Client struct {
	runner      runner.Runner
	script      string
	interpreter string
}

// New creates a launcher client.
func New(r runner.Runner, cfg Config) (*Client, error) {
	if cfg.Script == "" {
		return nil, apperrors.Validation("launcher", "launcher script path is required")
	}
	script, err := filepath.Abs(cfg.Script)
	if err != nil {
		return nil, apperrors.Validation("launcher", fmt.Sprintf("invalid launcher path: %v", err))
	}
	return &Client{runner: r, script: script, interpreter: cfg.Interpreter}, nil
}

// Submit implements job.Client.
func (c *Client) Submit(ctx context.Context, req job.SubmitRequest) (*job.Submission, error) {
	args := []string{"-m", "submit", "-seq", req.SequencePath}
	if req.JobName != "" {
		args = append(args, "-jobname", req.JobName)
	}
	if req.Email != "" {
		args = append(args, "-email", req.Email)
	}

	out, err := c.run(ctx, args, filepath.Dir(req.SequencePath))
	if err != nil {
		return nil, apperrors.SubmitFailed(commandFailure("submit", err), stdout(out), stderr(out), err)
	}

	jobID, ok := ParseJobID(out.Stdout)
	if !ok {
		return nil, apperrors.SubmitFailed("could not parse jobid from submit output", out.Stdout, out.Stderr, nil)
	}
	slog.Debug("Parsed jobid", "jobId", jobID)
	return &job.Submission{JobID: jobID, Output: out.Stdout}, nil
}

// Fetch implements job.Client.
func (c *Client) Fetch(ctx context.Context, req job.FetchRequest) (*job.FetchResult, error) {
	archivePath := req.ArchivePath
	if archivePath == "" {
		archivePath = job.ArchivePath(req.OutputDir, req.JobID)
	}

	out, err := c.run(ctx, []string{"-m", "get", "-jobid", req.JobID, "-outpath", req.OutputDir}, req.OutputDir)
	if err != nil {
		return nil, apperrors.JobFailed(req.JobID, commandFailure("get", err), stdout(out), stderr(out), err)
	}

	return &job.FetchResult{
		Outcome:     Classify(out.Stdout, archivePath),
		ArchivePath: archivePath,
		Output:      out.Stdout,
		Stderr:      out.Stderr,
	}, nil
}

func (c *Client) run(ctx context.Context, args []string, dir string) (*runner.Output, error) {
	cmd := make([]string, 0, len(args)+2)
	if c.interpreter != "" {
		cmd = append(cmd, c.interpreter)
	}
	cmd = append(cmd, c.script)
	cmd = append(cmd, args...)

	mounts := []string{filepath.Dir(c.script)}
	if dir != "" {
		mounts = append(mounts, dir)
	}
	return c.runner.Run(ctx, runner.Command{Args: cmd, Mounts: mounts})
}

// ParseJobID extracts the first "jobid = X" token from submit output.
func ParseJobID(stdout string) (string, bool) {
	m := jobIDPattern.FindStringSubmatch(stdout)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Classify maps one fetch's stdout and the archive on disk to an outcome.
// The failure marker wins over the not-found marker, and both win over a
// present archive.
func Classify(stdout, archivePath string) job.Outcome {
	low := strings.ToLower(stdout)
	switch {
	case strings.Contains(low, markerFailed):
		return job.OutcomeFailed
	case strings.Contains(low, markerNotFound):
		return job.OutcomeNotFound
	}

	info, err := os.Stat(archivePath)
	if err == nil && !info.IsDir() && info.Size() > 0 {
		return job.OutcomeSucceeded
	}
	return job.OutcomeContinue
}

func commandFailure(mode string, err error) string {
	var exitErr interface{ ExitCode() int }
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("%s command failed (returncode=%d)", mode, exitErr.ExitCode())
	}
	return fmt.Sprintf("%s command failed: %v", mode, err)
}

func stdout(out *runner.Output) string {
	if out == nil {
		return ""
	}
	return out.Stdout
}

func stderr(out *runner.Output) string {
	if out == nil {
		return ""
	}
	return out.Stderr
}

var _ job.Client = (*Client)(nil)
