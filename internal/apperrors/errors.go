// Package apperrors provides the pipeline's structured errors and their exit codes.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation      = errors.New("validation error")
	ErrSubmitFailed    = errors.New("submit failed")
	ErrJobFailed       = errors.New("job failed")
	ErrJobNotFound     = errors.New("job not found")
	ErrPollTimeout     = errors.New("poll timeout")
	ErrArchive         = errors.New("archive error")
	ErrArtifactMissing = errors.New("artifact missing")
	ErrParse           = errors.New("parse error")
	ErrInternal        = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message, including captured output
	Field    string // For validation errors (e.g., "seq", "max-polls")
	Op       string // Operation that failed (e.g., "archive.unzip")
	JobID    string // Job the error belongs to, if any
	Path     string // File or directory involved, if any
	Output   string // Raw captured output of the failing external call
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes the sentinel and the cause, so errors.Is matches the kind
// and errors.As can still reach the underlying error.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// SubmitFailed creates an error for a submission that errored or returned no jobid.
func SubmitFailed(reason, stdout, stderr string, cause error) error {
	return &Error{
		Sentinel: ErrSubmitFailed,
		Message:  withOutput(reason, stdout, stderr),
		Op:       "job.submit",
		Output:   stdout,
		Cause:    cause,
	}
}

// JobFailed creates an error for a job the service reports as failed, or
// whose fetch call could not be completed.
func JobFailed(jobID, reason, stdout, stderr string, cause error) error {
	return &Error{
		Sentinel: ErrJobFailed,
		Message:  withOutput(fmt.Sprintf("job %s: %s", jobID, reason), stdout, stderr),
		Op:       "job.fetch",
		JobID:    jobID,
		Output:   stdout,
		Cause:    cause,
	}
}

// JobNotFound creates an error for a jobid the service does not know.
func JobNotFound(jobID, stdout string) error {
	return &Error{
		Sentinel: ErrJobNotFound,
		Message:  withOutput(fmt.Sprintf("job %s does not exist (server says so)", jobID), stdout, ""),
		Op:       "job.fetch",
		JobID:    jobID,
		Output:   stdout,
	}
}

// PollTimeout creates an error for a poll loop that ran out of attempts.
func PollTimeout(jobID string, maxPolls int, archivePath string) error {
	return &Error{
		Sentinel: ErrPollTimeout,
		Message: fmt.Sprintf("reached max polls (%d) without getting result archive for job %s; expected: %s",
			maxPolls, jobID, archivePath),
		Op:    "job.poll",
		JobID: jobID,
		Path:  archivePath,
	}
}

// Archive creates an error for a missing, empty, corrupt or unsafe archive.
func Archive(path, reason string, cause error) error {
	msg := fmt.Sprintf("archive %s: %s", path, reason)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return &Error{
		Sentinel: ErrArchive,
		Message:  msg,
		Op:       "archive.unzip",
		Path:     path,
		Cause:    cause,
	}
}

// ArtifactMissing creates an error for an extracted tree with no candidate file.
func ArtifactMissing(root, name string) error {
	return &Error{
		Sentinel: ErrArtifactMissing,
		Message:  fmt.Sprintf("no %s found under: %s", name, root),
		Op:       "artifact.locate",
		Path:     root,
	}
}

// Parse creates an error for a malformed result file.
func Parse(path, reason string) error {
	msg := reason
	if path != "" {
		msg = fmt.Sprintf("%s: %s", path, reason)
	}
	return &Error{
		Sentinel: ErrParse,
		Message:  msg,
		Op:       "topology.parse",
		Path:     path,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

func withOutput(msg, stdout, stderr string) string {
	if stdout == "" && stderr == "" {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	b.WriteString("\nSTDOUT:\n")
	b.WriteString(stdout)
	if stderr != "" {
		b.WriteString("\nSTDERR:\n")
		b.WriteString(stderr)
	}
	return b.String()
}
