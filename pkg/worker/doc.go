// Package worker provides the background worker that drives submission jobs
// forward after the wizard has already reported completion.
//
// Workers consume tasks from a taskqueue.Queue and dispatch each task to the
// Handler registered for its type. They are independent of any wizard
// session: closing a flow never cancels queued work, and with a durable
// queue the work survives process restarts.
//
// # Retries and timeouts
//
// Config controls how a failing handler is treated:
//
//   - MaxAttempts bounds the number of times a task is handled
//   - Backoff delays each re-enqueued attempt linearly
//   - TaskTimeout bounds a single handler invocation
//
// Handlers decide what counts as failure. The submission handler records a
// failed backend call on the job and returns nil, so calls are never
// repeated; only infrastructure errors (a missing job, a broken store) are
// retried.
//
// # Usage
//
// Most applications use stepwise.Background, which runs a pool of workers
// over a shared queue. The worker package is useful when embedding the
// consumer in an existing service loop.
package worker
