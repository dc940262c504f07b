// Package job defines the job service contract and the poll loop that drives
// a submitted job to a terminal state.
package job

import "context"

// Client is the job service collaborator.
//
// Implementations own the wire details of the remote prediction service
// (launcher script, authentication, transport). Fetch must return a
// classified FetchResult; a non-nil error means the call itself could not be
// completed and is treated as a terminal failure by the poller.
type Client interface {
	// Submit sends a new job and returns its jobid.
	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)

	// Fetch asks for the current result of a job, downloading the result
	// archive into req.OutputDir when it is ready.
	Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error)
}
