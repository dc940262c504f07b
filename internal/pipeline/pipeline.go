// Package pipeline runs one TOPCONS job end to end: submit, poll, extract,
// locate the result file, derive the topology block, and write it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cmutils/internal/apperrors"
	"cmutils/internal/archive"
	"cmutils/internal/artifact"
	"cmutils/internal/job"
	"cmutils/internal/notify"
	"cmutils/internal/observability"
	"cmutils/internal/output"
	"cmutils/internal/topology"
)

// Output extensions.
const (
	OctopusExt = "octopus"
	SpanExt    = "span"
)

// Config describes one run.
type Config struct {
	SequencePath string
	JobName      string
	Email        string

	OutputDir   string // archive download directory
	ExtractDir  string // default OutputDir/<jobid>
	KeepArchive bool

	SkipOutput  bool   // stop after extraction and cleanup
	OutputPath  string // file or directory for the .octopus output
	SpanPath    string // file or directory for an optional .span output
	SpanColumns int    // 2 or 4

	PollInterval time.Duration
	MaxPolls     int

	Runner string // runner name, used as a metrics label
}

// Deps are the collaborators of a run. Only Client is required.
type Deps struct {
	Client   job.Client
	Metrics  *observability.Metrics
	Notifier notify.Notifier
	Progress *Progress
	Sleep    func(time.Duration) // poll interval wait, default time.Sleep
	Now      func() time.Time
}

// Report is what a run produced. Fields are filled as far as the run got.
type Report struct {
	JobID        string
	State        job.State
	Attempts     int
	ArchivePath  string
	ExtractDir   string
	Files        int
	ArtifactPath string
	OutputPath   string
	SpanPath     string
}

// Orchestrator sequences the pipeline stages. It holds no state between runs.
type Orchestrator struct {
	cfg  Config
	deps Deps
}

// New creates an orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Progress == nil {
		deps.Progress = NewProgress()
	}
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{cfg: cfg, deps: deps}
}

// Run executes the pipeline. The returned report is never nil; on error it
// describes how far the run got. No output file is written unless every
// earlier stage succeeded.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	start := o.deps.Now()
	report := &Report{}
	o.deps.Progress.start(start, o.cfg.MaxPolls)
	o.deps.Metrics.RecordJobStarted(ctx, o.cfg.Runner)

	err := o.run(ctx, report)

	o.deps.Progress.finish(report, err)
	o.deps.Metrics.RecordJobCompleted(ctx, o.cfg.Runner, string(report.State), err == nil, o.deps.Now().Sub(start))
	if err != nil && report.JobID != "" {
		o.deps.Notifier.Notify(ctx, notify.Event{
			Type:  notify.EventFailed,
			JobID: report.JobID,
			Data:  map[string]any{"state": string(report.State), "error": err.Error()},
		})
	}
	return report, err
}

func (o *Orchestrator) run(ctx context.Context, report *Report) error {
	if err := o.validate(); err != nil {
		return err
	}
	seqPath, err := filepath.Abs(o.cfg.SequencePath)
	if err != nil {
		return apperrors.Validation("seq", fmt.Sprintf("invalid sequence path: %v", err))
	}
	outputDir, err := filepath.Abs(o.cfg.OutputDir)
	if err != nil {
		return apperrors.Validation("output-dir", fmt.Sprintf("invalid output directory: %v", err))
	}

	// Submit
	var sub *job.Submission
	err = o.stage(ctx, StageSubmit, func() error {
		sub, err = o.deps.Client.Submit(ctx, job.SubmitRequest{
			SequencePath: seqPath,
			JobName:      o.cfg.JobName,
			Email:        o.cfg.Email,
		})
		return err
	})
	if err != nil {
		report.State = job.StateSubmitFailed
		return err
	}
	report.JobID = sub.JobID
	report.State = job.StateSubmitted
	o.deps.Progress.submitted(sub.JobID)

	logger := slog.With("jobId", sub.JobID)
	logger.Info("Job submitted", "seq", seqPath)
	o.deps.Notifier.Notify(ctx, notify.Event{
		Type:  notify.EventSubmitted,
		JobID: sub.JobID,
		Data:  map[string]any{"sequence": seqPath, "jobName": o.cfg.JobName},
	})

	// Poll
	var polled *job.PollResult
	err = o.stage(ctx, StagePoll, func() error {
		poller := job.NewPoller(o.deps.Client,
			job.PollConfig{Interval: o.cfg.PollInterval, MaxPolls: o.cfg.MaxPolls},
			job.WithSleep(o.deps.Sleep),
			job.WithClock(o.deps.Now),
			job.WithObserver(func(a job.PollAttempt) { o.observe(ctx, sub.JobID, a) }),
		)
		polled, err = poller.Poll(ctx, sub.JobID, outputDir)
		return err
	})
	if polled != nil {
		report.State = polled.State
		report.Attempts = polled.Attempts
	}
	report.ArchivePath = job.ArchivePath(outputDir, sub.JobID)
	if err != nil {
		return err
	}
	o.deps.Notifier.Notify(ctx, notify.Event{
		Type:  notify.EventSucceeded,
		JobID: sub.JobID,
		Data:  map[string]any{"attempts": polled.Attempts, "archive": polled.Archive.Path, "bytes": polled.Archive.Size},
	})

	// Extract
	extractDir := o.cfg.ExtractDir
	if extractDir == "" {
		extractDir = filepath.Join(outputDir, sub.JobID)
	}
	report.ExtractDir = extractDir
	err = o.stage(ctx, StageExtract, func() error {
		report.Files, err = archive.Unzip(polled.Archive.Path, extractDir)
		return err
	})
	if err != nil {
		return err
	}
	logger.Info("Archive extracted", "archive", polled.Archive.Path, "dest", extractDir, "files", report.Files)

	// Cleanup never fails the run.
	if !o.cfg.KeepArchive {
		_ = o.stage(ctx, StageCleanup, func() error {
			if err := os.Remove(polled.Archive.Path); err != nil {
				logger.Warn("Could not delete archive", "archive", polled.Archive.Path, "error", err)
				return err
			}
			logger.Info("Deleted archive", "archive", polled.Archive.Path)
			return nil
		})
	}

	if o.cfg.SkipOutput {
		return nil
	}

	// Locate
	err = o.stage(ctx, StageLocate, func() error {
		report.ArtifactPath, err = artifact.Locate(extractDir, artifact.TargetName)
		return err
	})
	if err != nil {
		return err
	}

	// Transform and validate before anything is written.
	var block string
	var parsed *topology.Result
	err = o.stage(ctx, StageTransform, func() error {
		block, parsed, err = derive(report.ArtifactPath)
		return err
	})
	if err != nil {
		return err
	}

	// Write
	err = o.stage(ctx, StageWrite, func() error {
		path, err := output.Resolve(o.cfg.OutputPath, output.InputStem(o.cfg.SequencePath), OctopusExt)
		if err != nil {
			return err
		}
		if err := output.Write(path, []byte(block)); err != nil {
			return err
		}
		report.OutputPath = path
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("Wrote output", "path", report.OutputPath, "artifact", report.ArtifactPath)

	if o.cfg.SpanPath != "" {
		err = o.stage(ctx, StageSpan, func() error {
			report.SpanPath, err = writeSpan(parsed, o.cfg.SpanPath, o.cfg.SpanColumns)
			return err
		})
		if err != nil {
			return err
		}
		logger.Info("Wrote span file", "path", report.SpanPath)
	}

	o.deps.Notifier.Notify(ctx, notify.Event{
		Type:  notify.EventWritten,
		JobID: sub.JobID,
		Data:  map[string]any{"output": report.OutputPath, "span": report.SpanPath},
	})
	return nil
}

func (o *Orchestrator) validate() error {
	switch {
	case o.deps.Client == nil:
		return apperrors.Internal("pipeline.run", errors.New("job client is required"))
	case o.cfg.SequencePath == "":
		return apperrors.Validation("seq", "sequence file is required")
	case o.cfg.OutputDir == "":
		return apperrors.Validation("output-dir", "output directory is required")
	case !o.cfg.SkipOutput && o.cfg.OutputPath == "":
		return apperrors.Validation("octopus-out", "output path is required unless output is skipped")
	case o.cfg.MaxPolls < 1:
		return apperrors.Validation("max-polls", fmt.Sprintf("max polls must be at least 1, got %d", o.cfg.MaxPolls))
	}
	return nil
}

// stage times fn and publishes the stage to progress and metrics.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func() error) error {
	o.deps.Progress.stage(name)
	start := o.deps.Now()
	err := fn()
	o.deps.Metrics.RecordStage(ctx, name, err == nil, o.deps.Now().Sub(start))
	return err
}

func (o *Orchestrator) observe(ctx context.Context, jobID string, a job.PollAttempt) {
	o.deps.Progress.attempt(a)
	o.deps.Metrics.RecordPollAttempt(ctx, a.Outcome.String())
	o.deps.Notifier.Notify(ctx, notify.Event{
		Type:  notify.EventPoll,
		JobID: jobID,
		Data:  map[string]any{"attempt": a.Index, "maxPolls": o.cfg.MaxPolls, "outcome": a.Outcome.String()},
	})
}

// derive reads the artifact and returns its topology block, validated by
// parsing it.
func derive(artifactPath string) (string, *topology.Result, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return "", nil, apperrors.Internal("pipeline.read", err)
	}
	block, err := topology.ExtractBlock(string(data))
	if err != nil {
		return "", nil, apperrors.Parse(artifactPath, err.Error())
	}
	parsed, err := topology.Parse(strings.NewReader(block), artifactPath)
	if err != nil {
		return "", nil, err
	}
	return block, parsed, nil
}

func writeSpan(res *topology.Result, dest string, columns int) (string, error) {
	text, err := topology.RenderSpan(res, topology.SpanOptions{Columns: columns})
	if err != nil {
		return "", err
	}
	path, err := output.ResolveCoerced(dest, topology.SpanBase(res, ""), SpanExt)
	if err != nil {
		return "", err
	}
	if err := output.Write(path, []byte(text)); err != nil {
		return "", err
	}
	return path, nil
}
