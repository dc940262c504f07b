package testutil

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"cmutils/internal/job"
)

// Step is one scripted fetch response.
type Step struct {
	Outcome job.Outcome
	Output  string
	Err     error
	Archive []byte // written to the requested archive path before returning, if non-nil
}

// ScriptedClient is a job.Client that replays scripted fetch responses.
// Fetches beyond the script return OutcomeContinue.
type ScriptedClient struct {
	JobID        string
	SubmitOutput string
	SubmitErr    error
	Steps        []Step

	mu       sync.Mutex
	submits  []job.SubmitRequest
	requests []job.FetchRequest
}

// Submit implements job.Client.
func (c *ScriptedClient) Submit(ctx context.Context, req job.SubmitRequest) (*job.Submission, error) {
	c.mu.Lock()
	c.submits = append(c.submits, req)
	c.mu.Unlock()

	if c.SubmitErr != nil {
		return nil, c.SubmitErr
	}
	return &job.Submission{JobID: c.JobID, Output: c.SubmitOutput}, nil
}

// Fetch implements job.Client.
func (c *ScriptedClient) Fetch(ctx context.Context, req job.FetchRequest) (*job.FetchResult, error) {
	c.mu.Lock()
	idx := len(c.requests)
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	if idx >= len(c.Steps) {
		return &job.FetchResult{Outcome: job.OutcomeContinue, ArchivePath: req.ArchivePath}, nil
	}
	step := c.Steps[idx]
	if step.Archive != nil {
		if err := os.MkdirAll(filepath.Dir(req.ArchivePath), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(req.ArchivePath, step.Archive, 0o644); err != nil {
			return nil, err
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return &job.FetchResult{Outcome: step.Outcome, ArchivePath: req.ArchivePath, Output: step.Output}, nil
}

// Fetches returns the fetch requests received so far.
func (c *ScriptedClient) Fetches() []job.FetchRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]job.FetchRequest(nil), c.requests...)
}

// Submits returns the submit requests received so far.
func (c *ScriptedClient) Submits() []job.SubmitRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]job.SubmitRequest(nil), c.submits...)
}

var _ job.Client = (*ScriptedClient)(nil)
