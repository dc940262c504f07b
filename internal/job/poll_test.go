package job_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cmutils/internal/apperrors"
	"cmutils/internal/job"
	"cmutils/internal/testutil"
)

func newPoller(client job.Client, maxPolls int, sleeps *[]time.Duration, attempts *[]job.PollAttempt) *job.Poller {
	return job.NewPoller(client, job.PollConfig{Interval: 60 * time.Second, MaxPolls: maxPolls},
		job.WithSleep(func(d time.Duration) { *sleeps = append(*sleeps, d) }),
		job.WithObserver(func(a job.PollAttempt) { *attempts = append(*attempts, a) }),
	)
}

func TestPoll_SucceedsOnAttemptK(t *testing.T) {
	t.Parallel()

	for _, k := range []int{1, 2, 5} {
		dir := t.TempDir()
		steps := make([]testutil.Step, k)
		for i := 0; i < k-1; i++ {
			steps[i] = testutil.Step{Outcome: job.OutcomeContinue, Output: "Job is running"}
		}
		steps[k-1] = testutil.Step{Outcome: job.OutcomeSucceeded, Archive: []byte("PK-data")}
		client := &testutil.ScriptedClient{Steps: steps}

		var sleeps []time.Duration
		var attempts []job.PollAttempt
		res, err := newPoller(client, 5, &sleeps, &attempts).Poll(context.Background(), "ABC123", dir)
		if err != nil {
			t.Fatalf("k=%d: Poll() error = %v", k, err)
		}
		if res.State != job.StateSucceeded {
			t.Errorf("k=%d: State = %s, want succeeded", k, res.State)
		}
		if res.Attempts != k {
			t.Errorf("k=%d: Attempts = %d, want %d", k, res.Attempts, k)
		}
		if len(sleeps) != k-1 {
			t.Errorf("k=%d: slept %d times, want %d", k, len(sleeps), k-1)
		}
		if len(attempts) != k || attempts[k-1].Index != k || attempts[k-1].Outcome != job.OutcomeSucceeded {
			t.Errorf("k=%d: unexpected attempts %+v", k, attempts)
		}
		wantArchive := filepath.Join(dir, "ABC123.zip")
		if res.Archive.Path != wantArchive || res.Archive.Size != int64(len("PK-data")) {
			t.Errorf("k=%d: Archive = %+v, want %s with 7 bytes", k, res.Archive, wantArchive)
		}
	}
}

func TestPoll_ArchivePathComputedOnce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	client := &testutil.ScriptedClient{}

	var sleeps []time.Duration
	var attempts []job.PollAttempt
	_, _ = newPoller(client, 3, &sleeps, &attempts).Poll(context.Background(), "J1", dir)

	want := job.ArchivePath(dir, "J1")
	for i, req := range client.Fetches() {
		if req.ArchivePath != want || req.OutputDir != dir || req.JobID != "J1" {
			t.Errorf("fetch %d: unexpected request %+v", i+1, req)
		}
	}
}

func TestPoll_TimesOut(t *testing.T) {
	t.Parallel()
	client := &testutil.ScriptedClient{}

	var sleeps []time.Duration
	var attempts []job.PollAttempt
	res, err := newPoller(client, 4, &sleeps, &attempts).Poll(context.Background(), "ABC", t.TempDir())

	if !errors.Is(err, apperrors.ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	if res.State != job.StateTimedOut {
		t.Errorf("State = %s, want timed_out", res.State)
	}
	if got := len(client.Fetches()); got != 4 {
		t.Errorf("fetched %d times, want 4", got)
	}
	// No sleep after the final attempt
	if len(sleeps) != 3 {
		t.Errorf("slept %d times, want 3", len(sleeps))
	}
	for _, d := range sleeps {
		if d != 60*time.Second {
			t.Errorf("sleep = %v, want fixed 60s", d)
		}
	}
}

func TestPoll_FailedMarkerIsTerminal(t *testing.T) {
	t.Parallel()
	client := &testutil.ScriptedClient{Steps: []testutil.Step{
		{Outcome: job.OutcomeContinue},
		{Outcome: job.OutcomeFailed, Output: "Job 123 is failed"},
		{Outcome: job.OutcomeSucceeded, Archive: []byte("zip")},
	}}

	var sleeps []time.Duration
	var attempts []job.PollAttempt
	res, err := newPoller(client, 10, &sleeps, &attempts).Poll(context.Background(), "123", t.TempDir())

	if !errors.Is(err, apperrors.ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	if res.State != job.StateFailed || res.Attempts != 2 {
		t.Errorf("got state %s after %d attempts, want failed after 2", res.State, res.Attempts)
	}
}

func TestPoll_NotFoundIsTerminal(t *testing.T) {
	t.Parallel()
	client := &testutil.ScriptedClient{Steps: []testutil.Step{
		{Outcome: job.OutcomeNotFound, Output: "jobid XYZ does not exist"},
	}}

	var sleeps []time.Duration
	var attempts []job.PollAttempt
	res, err := newPoller(client, 10, &sleeps, &attempts).Poll(context.Background(), "XYZ", t.TempDir())

	if !errors.Is(err, apperrors.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if res.State != job.StateNotFound || len(sleeps) != 0 {
		t.Errorf("got state %s with %d sleeps", res.State, len(sleeps))
	}
}

func TestPoll_ClientErrorIsTerminalAndNotRetried(t *testing.T) {
	t.Parallel()
	callErr := errors.New("exit status 3")
	client := &testutil.ScriptedClient{Steps: []testutil.Step{{Err: callErr}}}

	var sleeps []time.Duration
	var attempts []job.PollAttempt
	res, err := newPoller(client, 10, &sleeps, &attempts).Poll(context.Background(), "J", t.TempDir())

	if !errors.Is(err, apperrors.ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	if !errors.Is(err, callErr) {
		t.Error("expected client error to be preserved as cause")
	}
	if res.State != job.StateFailed || len(client.Fetches()) != 1 {
		t.Errorf("got state %s after %d fetches", res.State, len(client.Fetches()))
	}
}

func TestPoll_SuccessWithoutArchiveIsArchiveError(t *testing.T) {
	t.Parallel()
	client := &testutil.ScriptedClient{Steps: []testutil.Step{{Outcome: job.OutcomeSucceeded}}}

	var sleeps []time.Duration
	var attempts []job.PollAttempt
	_, err := newPoller(client, 2, &sleeps, &attempts).Poll(context.Background(), "J", t.TempDir())

	if !errors.Is(err, apperrors.ErrArchive) {
		t.Fatalf("expected ErrArchive, got %v", err)
	}
}

func TestPoll_CreatesOutputDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "out")
	client := &testutil.ScriptedClient{Steps: []testutil.Step{{Outcome: job.OutcomeSucceeded, Archive: []byte("x")}}}

	var sleeps []time.Duration
	var attempts []job.PollAttempt
	if _, err := newPoller(client, 1, &sleeps, &attempts).Poll(context.Background(), "J", dir); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("expected output directory to be created: %v", err)
	}
}

func TestPoll_InvalidConfig(t *testing.T) {
	t.Parallel()
	client := &testutil.ScriptedClient{}

	p := job.NewPoller(client, job.PollConfig{MaxPolls: 0})
	if _, err := p.Poll(context.Background(), "J", t.TempDir()); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected ErrValidation for zero max polls, got %v", err)
	}

	p = job.NewPoller(client, job.PollConfig{MaxPolls: 1})
	if _, err := p.Poll(context.Background(), "", t.TempDir()); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected ErrValidation for empty jobid, got %v", err)
	}
	if len(client.Fetches()) != 0 {
		t.Error("no fetch should happen for invalid input")
	}
}

func TestStateIsTerminal(t *testing.T) {
	t.Parallel()
	terminal := []job.State{job.StateSubmitFailed, job.StateSucceeded, job.StateFailed, job.StateNotFound, job.StateTimedOut}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []job.State{job.StateSubmitted, job.StatePolling} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()
	tests := map[job.Outcome]string{
		job.OutcomeContinue:  "continue",
		job.OutcomeSucceeded: "succeeded",
		job.OutcomeFailed:    "failed",
		job.OutcomeNotFound:  "not_found",
		job.Outcome(42):      "unknown",
	}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(o), got, want)
		}
	}
}
