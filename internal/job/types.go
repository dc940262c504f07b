package job

import (
	"path/filepath"
	"time"
)

// ArchiveExt is the extension of the result archive the service downloads.
const ArchiveExt = "zip"

// Outcome is the classification of a single fetch against the job service.
type Outcome int

const (
	OutcomeContinue Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// State is a state of the job lifecycle as seen by one run.
type State string

// State constants
const (
	StateSubmitFailed State = "submit_failed"
	StateSubmitted    State = "submitted"
	StatePolling      State = "polling"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
	StateNotFound     State = "not_found"
	StateTimedOut     State = "timed_out"
)

// IsTerminal reports whether no further poll can change the state.
func (s State) IsTerminal() bool {
	switch s {
	case StateSubmitFailed, StateSucceeded, StateFailed, StateNotFound, StateTimedOut:
		return true
	default:
		return false
	}
}

// SubmitRequest describes a job submission.
type SubmitRequest struct {
	SequencePath string
	JobName      string // optional
	Email        string // optional
}

// Submission is the result of a successful submission.
type Submission struct {
	JobID  string
	Output string // raw stdout of the submit call
}

// FetchRequest asks the service for the current result of a job.
type FetchRequest struct {
	JobID       string
	OutputDir   string
	ArchivePath string // where a finished result is expected to land
}

// FetchResult is the classified response of one fetch.
type FetchResult struct {
	Outcome     Outcome
	ArchivePath string
	Output      string // raw stdout of the fetch call
	Stderr      string
}

// PollAttempt records one iteration of the poll loop. Attempts are never persisted.
type PollAttempt struct {
	Index   int // 1..MaxPolls
	At      time.Time
	Outcome Outcome
}

// ResultArchive is a downloaded archive file.
type ResultArchive struct {
	Path string
	Size int64
}

// Present reports whether the archive has been downloaded with content.
func (a ResultArchive) Present() bool {
	return a.Size > 0
}

// ArchivePath returns the canonical download location {dir}/{jobid}.zip.
func ArchivePath(dir, jobID string) string {
	return filepath.Join(dir, jobID+"."+ArchiveExt)
}
