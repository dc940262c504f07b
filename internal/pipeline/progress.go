package pipeline

import (
	"sync"
	"time"

	"cmutils/internal/job"
)

// Stage names, in pipeline order.
const (
	StageSubmit    = "submit"
	StagePoll      = "poll"
	StageExtract   = "extract"
	StageCleanup   = "cleanup"
	StageLocate    = "locate"
	StageTransform = "transform"
	StageWrite     = "write"
	StageSpan      = "span"
	StageDone      = "done"
)

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	JobID       string    `json:"jobId,omitempty"`
	State       job.State `json:"state,omitempty"`
	Stage       string    `json:"stage"`
	Attempts    int       `json:"attempts"`
	MaxPolls    int       `json:"maxPolls"`
	LastOutcome string    `json:"lastOutcome,omitempty"`
	LastPollAt  time.Time `json:"lastPollAt,omitzero"`
	StartedAt   time.Time `json:"startedAt"`
	OutputPath  string    `json:"outputPath,omitempty"`
	Error       string    `json:"error,omitempty"`
	Done        bool      `json:"done"`
}

// Progress tracks one run for readers on other goroutines.
type Progress struct {
	mu sync.RWMutex
	s  Snapshot
}

// NewProgress creates an empty tracker.
func NewProgress() *Progress {
	return &Progress{}
}

// Snapshot returns a copy of the current state.
func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.s
}

func (p *Progress) update(fn func(*Snapshot)) {
	p.mu.Lock()
	fn(&p.s)
	p.mu.Unlock()
}

func (p *Progress) start(at time.Time, maxPolls int) {
	p.update(func(s *Snapshot) {
		*s = Snapshot{Stage: StageSubmit, StartedAt: at, MaxPolls: maxPolls}
	})
}

func (p *Progress) submitted(jobID string) {
	p.update(func(s *Snapshot) {
		s.JobID = jobID
		s.State = job.StateSubmitted
	})
}

func (p *Progress) stage(name string) {
	p.update(func(s *Snapshot) { s.Stage = name })
}

func (p *Progress) attempt(a job.PollAttempt) {
	p.update(func(s *Snapshot) {
		s.State = job.StatePolling
		s.Attempts = a.Index
		s.LastOutcome = a.Outcome.String()
		s.LastPollAt = a.At
	})
}

func (p *Progress) finish(r *Report, err error) {
	p.update(func(s *Snapshot) {
		s.State = r.State
		s.Attempts = r.Attempts
		s.OutputPath = r.OutputPath
		s.Done = true
		if err != nil {
			s.Error = err.Error()
			return
		}
		s.Stage = StageDone
	})
}
