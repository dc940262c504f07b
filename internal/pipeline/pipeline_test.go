package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cmutils/internal/apperrors"
	"cmutils/internal/job"
	"cmutils/internal/notify"
	"cmutils/internal/testutil"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	root     string
	seq      string
	outDir   string
	sleeps   []time.Duration
	notifier *recordingNotifier
	progress *Progress
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	seq := filepath.Join(root, "COX3gg.fasta")
	if err := os.WriteFile(seq, []byte(">COX3\n"+testutil.ResultSequence+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		root:     root,
		seq:      seq,
		outDir:   filepath.Join(root, "output_topcons"),
		notifier: &recordingNotifier{},
		progress: NewProgress(),
	}
}

func (f *fixture) config() Config {
	return Config{
		SequencePath: f.seq,
		OutputDir:    f.outDir,
		OutputPath:   filepath.Join(f.root, "final") + string(filepath.Separator),
		PollInterval: 60 * time.Second,
		MaxPolls:     5,
		Runner:       "exec",
	}
}

func (f *fixture) run(t *testing.T, cfg Config, client job.Client) (*Report, error) {
	t.Helper()
	return New(cfg, Deps{
		Client:   client,
		Notifier: f.notifier,
		Progress: f.progress,
		Sleep:    func(d time.Duration) { f.sleeps = append(f.sleeps, d) },
	}).Run(context.Background())
}

func succeedingClient(t *testing.T, files map[string]string) *testutil.ScriptedClient {
	return &testutil.ScriptedClient{
		JobID: "ABC123",
		Steps: []testutil.Step{
			{Outcome: job.OutcomeContinue, Output: "Job is queued"},
			{Outcome: job.OutcomeContinue, Output: "Job is running"},
			{Outcome: job.OutcomeSucceeded, Archive: testutil.ZipBytes(t, files)},
		},
	}
}

func standardArchive() map[string]string {
	return map[string]string{
		"ABC123/query.result.txt":       testutil.ResultText,
		"ABC123/seq_0/query.result.txt": "nested copy that must not be picked",
	}
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	client := succeedingClient(t, standardArchive())

	report, err := f.run(t, f.config(), client)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := filepath.Join(f.root, "final", "COX3gg.octopus")
	if report.OutputPath != want {
		t.Errorf("OutputPath = %s, want %s", report.OutputPath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if string(data) != testutil.ResultBlock {
		t.Errorf("output =\n%s\nwant\n%s", data, testutil.ResultBlock)
	}

	if report.JobID != "ABC123" || report.State != job.StateSucceeded || report.Attempts != 3 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.ArtifactPath != filepath.Join(f.outDir, "ABC123", "ABC123", "query.result.txt") {
		t.Errorf("ArtifactPath = %s", report.ArtifactPath)
	}
	if report.Files != 2 {
		t.Errorf("Files = %d, want 2", report.Files)
	}
	if len(f.sleeps) != 2 {
		t.Errorf("slept %d times, want 2", len(f.sleeps))
	}
	if _, err := os.Stat(report.ArchivePath); !os.IsNotExist(err) {
		t.Error("archive should be deleted by default")
	}

	subs := client.Submits()
	if len(subs) != 1 || !filepath.IsAbs(subs[0].SequencePath) {
		t.Errorf("unexpected submits %+v", subs)
	}

	snap := f.progress.Snapshot()
	if !snap.Done || snap.Stage != StageDone || snap.State != job.StateSucceeded || snap.OutputPath != want {
		t.Errorf("unexpected progress %+v", snap)
	}

	wantEvents := []string{
		notify.EventSubmitted,
		notify.EventPoll, notify.EventPoll, notify.EventPoll,
		notify.EventSucceeded,
		notify.EventWritten,
	}
	if got := f.notifier.types(); strings.Join(got, ",") != strings.Join(wantEvents, ",") {
		t.Errorf("events = %v, want %v", got, wantEvents)
	}
}

func TestRun_ExplicitOutputFileAndExtractDir(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cfg := f.config()
	cfg.OutputPath = filepath.Join(f.root, "results", "cox3.txt")
	cfg.ExtractDir = filepath.Join(f.root, "unpacked")
	cfg.KeepArchive = true

	report, err := f.run(t, cfg, succeedingClient(t, standardArchive()))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.OutputPath != cfg.OutputPath {
		t.Errorf("OutputPath = %s, want verbatim %s", report.OutputPath, cfg.OutputPath)
	}
	if report.ExtractDir != cfg.ExtractDir {
		t.Errorf("ExtractDir = %s", report.ExtractDir)
	}
	if _, err := os.Stat(report.ArchivePath); err != nil {
		t.Errorf("archive should be kept: %v", err)
	}
}

func TestRun_SkipOutput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cfg := f.config()
	cfg.SkipOutput = true
	cfg.OutputPath = ""

	report, err := f.run(t, cfg, succeedingClient(t, standardArchive()))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.OutputPath != "" || report.ArtifactPath != "" {
		t.Errorf("expected run to stop after cleanup, got %+v", report)
	}
	if _, err := os.Stat(filepath.Join(report.ExtractDir, "ABC123", "query.result.txt")); err != nil {
		t.Errorf("archive should still be extracted: %v", err)
	}
}

func TestRun_SpanOutput(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	cfg := f.config()
	cfg.SpanPath = filepath.Join(f.root, "spans") + string(filepath.Separator)
	cfg.SpanColumns = 4

	report, err := f.run(t, cfg, succeedingClient(t, standardArchive()))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := filepath.Join(f.root, "spans", "sp_P18945_COX3_CHICK.span")
	if report.SpanPath != want {
		t.Errorf("SpanPath = %s, want %s", report.SpanPath, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "1 30\nantiparallel\nn2c\n   6    26     6    26\n") {
		t.Errorf("unexpected span file:\n%s", data)
	}
}

func TestRun_NoOutputOnBadArtifact(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		files map[string]string
		want  error
	}{
		{"missing artifact", map[string]string{"ABC123/other.txt": "x"}, apperrors.ErrArtifactMissing},
		{"missing marker", map[string]string{"query.result.txt": "Sequence:\nMK\n"}, apperrors.ErrParse},
		{"length mismatch", map[string]string{"query.result.txt": "Sequence:\nMKV\n\nTOPCONS predicted topology:\nMM\n\n"}, apperrors.ErrParse},
		{"no sequence", map[string]string{"query.result.txt": "TOPCONS predicted topology:\nMM\n\n"}, apperrors.ErrParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			cfg := f.config()

			report, err := f.run(t, cfg, succeedingClient(t, tt.files))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if report.OutputPath != "" {
				t.Errorf("OutputPath = %q, want none", report.OutputPath)
			}
			if _, err := os.Stat(filepath.Join(f.root, "final")); !os.IsNotExist(err) {
				t.Error("output location must not be touched on failure")
			}
			types := f.notifier.types()
			if types[len(types)-1] != notify.EventFailed {
				t.Errorf("last event = %s, want failed", types[len(types)-1])
			}
			snap := f.progress.Snapshot()
			if !snap.Done || snap.Error == "" || snap.Stage == StageDone {
				t.Errorf("unexpected progress %+v", snap)
			}
		})
	}
}

func TestRun_SubmitFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	client := &testutil.ScriptedClient{SubmitErr: apperrors.SubmitFailed("could not parse jobid from submit output", "hello", "", nil)}

	report, err := f.run(t, f.config(), client)
	if !errors.Is(err, apperrors.ErrSubmitFailed) {
		t.Fatalf("expected ErrSubmitFailed, got %v", err)
	}
	if report.State != job.StateSubmitFailed {
		t.Errorf("State = %s", report.State)
	}
	if len(client.Fetches()) != 0 {
		t.Error("no poll may follow a failed submit")
	}
	if len(f.notifier.types()) != 0 {
		t.Errorf("no events expected without a jobid, got %v", f.notifier.types())
	}
}

func TestRun_TerminalPollStates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		steps []testutil.Step
		state job.State
		want  error
	}{
		{"failed", []testutil.Step{{Outcome: job.OutcomeFailed, Output: "Job ABC123 is failed"}}, job.StateFailed, apperrors.ErrJobFailed},
		{"not found", []testutil.Step{{Outcome: job.OutcomeNotFound}}, job.StateNotFound, apperrors.ErrJobNotFound},
		{"timeout", nil, job.StateTimedOut, apperrors.ErrPollTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			client := &testutil.ScriptedClient{JobID: "ABC123", Steps: tt.steps}

			report, err := f.run(t, f.config(), client)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if report.State != tt.state {
				t.Errorf("State = %s, want %s", report.State, tt.state)
			}
			if _, err := os.Stat(filepath.Join(f.outDir, "ABC123")); !os.IsNotExist(err) {
				t.Error("nothing may be extracted after a failed poll")
			}
		})
	}
}

func TestRun_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	client := &testutil.ScriptedClient{JobID: "J"}

	cfg := f.config()
	cfg.OutputPath = ""
	if _, err := f.run(t, cfg, client); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected ErrValidation for missing output, got %v", err)
	}

	cfg = f.config()
	cfg.MaxPolls = 0
	if _, err := f.run(t, cfg, client); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected ErrValidation for zero max polls, got %v", err)
	}

	if len(client.Submits()) != 0 {
		t.Error("invalid configuration must not submit")
	}
}

func TestProgress_SnapshotIsCopy(t *testing.T) {
	t.Parallel()
	p := NewProgress()
	p.start(time.Now(), 3)
	p.submitted("J")
	p.attempt(job.PollAttempt{Index: 2, At: time.Now(), Outcome: job.OutcomeContinue})

	snap := p.Snapshot()
	snap.JobID = "changed"
	if p.Snapshot().JobID != "J" {
		t.Error("snapshot must not alias tracker state")
	}
	if s := p.Snapshot(); s.Attempts != 2 || s.LastOutcome != "continue" || s.State != job.StatePolling || s.MaxPolls != 3 {
		t.Errorf("unexpected snapshot %+v", s)
	}
}

func TestRun_ProgressVisibleWhilePolling(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	release := make(chan struct{})
	orch := New(f.config(), Deps{
		Client:   succeedingClient(t, standardArchive()),
		Progress: f.progress,
		Sleep:    func(time.Duration) { <-release },
	})

	done := make(chan error, 1)
	go func() {
		_, err := orch.Run(context.Background())
		done <- err
	}()

	testutil.MustWaitFor(t, func() bool {
		s := f.progress.Snapshot()
		return s.Stage == StagePoll && s.Attempts == 1
	}, testutil.WithTimeout(2*time.Second))

	snap := f.progress.Snapshot()
	if snap.JobID != "ABC123" || snap.State != job.StatePolling || snap.Done {
		t.Errorf("unexpected mid-run snapshot %+v", snap)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !f.progress.Snapshot().Done {
		t.Error("expected run to be done")
	}
}
