// Package runner executes the external launcher commands the job client relies on.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Command is one invocation of an external program.
type Command struct {
	Args   []string // program followed by its arguments
	Dir    string   // working directory, empty for the current one
	Env    []string // extra KEY=VALUE entries
	Mounts []string // host paths the command reads or writes, used by sandboxed runners
}

// Output is the captured result of a finished command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner runs commands to completion.
type Runner interface {
	// Run executes the command and captures its output. A non-zero exit
	// returns the output together with an *ExitError.
	Run(ctx context.Context, cmd Command) (*Output, error)
	// Ready reports whether the runner can execute commands.
	Ready(ctx context.Context) error
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Code   int
	Stdout string
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode returns the command's exit status.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Exec runs commands as local processes.
type Exec struct{}

// NewExec creates a local process runner.
func NewExec() *Exec {
	return &Exec{}
}

// Run implements Runner.
func (r *Exec) Run(ctx context.Context, c Command) (*Output, error) {
	if len(c.Args) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("Running command", "command", strings.Join(c.Args, " "), "dir", c.Dir)
	err := cmd.Run()
	out := &Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		out.ExitCode = exitErr.ExitCode()
		return out, &ExitError{Code: out.ExitCode, Stdout: out.Stdout, Stderr: out.Stderr}
	}
	return out, fmt.Errorf("failed to run %s: %w", c.Args[0], err)
}

// Ready implements Runner. Local processes need no daemon.
func (r *Exec) Ready(ctx context.Context) error {
	return nil
}

var _ Runner = (*Exec)(nil)
