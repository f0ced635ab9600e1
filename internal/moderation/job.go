package moderation

import (
	"context"

	"github.com/chatify/apiserver/types"
)

// Outcome describes how a moderation job ended.
type Outcome string

const (
	// OutcomeChecked means the service answered and the verdict was applied.
	OutcomeChecked Outcome = "checked"
	// OutcomeFailed means the check errored and the post was cleared with
	// moderationError set.
	OutcomeFailed Outcome = "failed"
	// OutcomeDiscarded means the post was gone or already moderated by the
	// time the verdict arrived.
	OutcomeDiscarded Outcome = "discarded"
)

// Result is delivered when a job finishes.
type Result struct {
	PostID  string
	Outcome Outcome
	Post    types.Post
	Err     error
}

// Job is a handle on a scheduled moderation check.
type Job struct {
	postID string
	done   chan struct{}
	result Result
}

func newJob(postID string) *Job {
	return &Job{postID: postID, done: make(chan struct{})}
}

// PostID returns the id of the post being checked.
func (j *Job) PostID() string {
	return j.postID
}

// Done is closed once the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		return j.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (j *Job) finish(result Result) {
	j.result = result
	close(j.done)
}
