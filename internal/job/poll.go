package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cmutils/internal/apperrors"
	"cmutils/pkg/backoff"
)

// PollConfig bounds the poll loop.
type PollConfig struct {
	Interval time.Duration // fixed delay between attempts
	MaxPolls int           // attempt bound, the only timeout mechanism
}

// Observer is called once per attempt, after the attempt is classified.
type Observer func(PollAttempt)

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithSleep replaces the function used to wait between attempts.
func WithSleep(fn func(time.Duration)) PollerOption {
	return func(p *Poller) { p.sleep = fn }
}

// WithClock replaces the clock used to timestamp attempts.
func WithClock(fn func() time.Time) PollerOption {
	return func(p *Poller) { p.now = fn }
}

// WithObserver registers a per-attempt callback.
func WithObserver(fn Observer) PollerOption {
	return func(p *Poller) { p.observe = fn }
}

// Poller drives repeated fetches until the job reaches a terminal state.
//
// The loop holds no state beyond the attempt counter. Each attempt is
// classified by the client; the poller only decides whether to stop, and
// sleeps a fixed interval otherwise.
type Poller struct {
	client   Client
	maxPolls int
	delay    backoff.Policy
	sleep    func(time.Duration)
	now      func() time.Time
	observe  Observer
}

// NewPoller creates a poller for the given client.
func NewPoller(client Client, cfg PollConfig, opts ...PollerOption) *Poller {
	p := &Poller{
		client:   client,
		maxPolls: cfg.MaxPolls,
		delay:    backoff.Fixed(cfg.Interval),
		sleep:    time.Sleep,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PollResult is the terminal outcome of a poll loop.
type PollResult struct {
	State    State
	Attempts int
	Archive  ResultArchive
	Last     *FetchResult
}

// Poll fetches the job until it succeeds, fails, is reported missing, or the
// attempt bound is exhausted. The result is non-nil whenever the loop ran.
func (p *Poller) Poll(ctx context.Context, jobID, outputDir string) (*PollResult, error) {
	if p.maxPolls < 1 {
		return nil, apperrors.Validation("max-polls", fmt.Sprintf("max polls must be at least 1, got %d", p.maxPolls))
	}
	if jobID == "" {
		return nil, apperrors.Validation("jobid", "jobid is required")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, apperrors.Internal("job.poll", fmt.Errorf("failed to create output directory: %w", err))
	}

	archivePath := ArchivePath(outputDir, jobID)
	logger := slog.With("jobId", jobID, "archive", archivePath)
	result := &PollResult{State: StatePolling}

	for attempt := 1; attempt <= p.maxPolls; attempt++ {
		fr, err := p.client.Fetch(ctx, FetchRequest{
			JobID:       jobID,
			OutputDir:   outputDir,
			ArchivePath: archivePath,
		})
		result.Attempts = attempt

		if err != nil {
			p.record(logger, attempt, OutcomeFailed)
			result.State = StateFailed
			if errors.Is(err, apperrors.ErrJobFailed) {
				return result, err
			}
			return result, apperrors.JobFailed(jobID, "fetch call failed", "", "", err)
		}

		result.Last = fr
		p.record(logger, attempt, fr.Outcome)

		switch fr.Outcome {
		case OutcomeFailed:
			result.State = StateFailed
			return result, apperrors.JobFailed(jobID, "job is failed", fr.Output, fr.Stderr, nil)

		case OutcomeNotFound:
			result.State = StateNotFound
			return result, apperrors.JobNotFound(jobID, fr.Output)

		case OutcomeSucceeded:
			archive, err := statArchive(archivePath)
			if err != nil {
				result.State = StateFailed
				return result, err
			}
			result.Archive = archive
			result.State = StateSucceeded
			logger.Info("Result archive detected", "bytes", archive.Size, "attempt", attempt)
			return result, nil
		}

		if attempt < p.maxPolls {
			p.sleep(p.delay.Delay(attempt))
		}
	}

	result.State = StateTimedOut
	return result, apperrors.PollTimeout(jobID, p.maxPolls, archivePath)
}

func (p *Poller) record(logger *slog.Logger, attempt int, outcome Outcome) {
	at := p.now()
	logger.Info("Poll attempt",
		"attempt", attempt,
		"maxPolls", p.maxPolls,
		"outcome", outcome.String(),
		"at", at.Format(time.DateTime),
	)
	if p.observe != nil {
		p.observe(PollAttempt{Index: attempt, At: at, Outcome: outcome})
	}
}

// statArchive confirms a success classification against the file on disk.
func statArchive(path string) (ResultArchive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ResultArchive{}, apperrors.Archive(path, "result archive missing after success", err)
	}
	archive := ResultArchive{Path: path, Size: info.Size()}
	if !archive.Present() {
		return archive, apperrors.Archive(path, "result archive is empty", nil)
	}
	return archive, nil
}
