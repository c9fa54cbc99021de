// Package taskqueue holds background work that must outlive the wizard
// session that produced it.
package taskqueue

import (
	"context"
	"time"
)

// TaskType identifies what the worker should do.
type TaskType string

const (
	// TaskTypeRunSubmission drives the background calls of a submission job.
	TaskTypeRunSubmission TaskType = "run-submission"
)

// Task represents a unit of work for the worker.
type Task struct {
	ID   string
	Type TaskType

	// JobID references the submission job in the job store. The job, not
	// the task, carries the payload so a task can be replayed safely.
	JobID     string
	SessionID string

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task should be eligible
	// for processing. Zero value means "immediately".
	NotBefore time.Time

	Attempts int
}

// Queue is a simple async task queue interface.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next task, blocking until one is available
	// or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
