package taskqueue

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1024

// InMemoryQueue is a Queue backed by a buffered channel. Tasks are lost on
// process exit. It is safe for concurrent use.
//
// A dequeued task whose NotBefore lies in the future is held by the
// consumer until it is due; held tasks still count towards Len.
type InMemoryQueue struct {
	ch   chan Task
	held atomic.Int64
}

// NewInMemoryQueue creates a queue holding up to capacity tasks.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &InMemoryQueue{ch: make(chan Task, capacity)}
}

var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	select {
	case q.ch <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	var t Task
	select {
	case t = <-q.ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	wait := time.Until(t.NotBefore)
	if wait <= 0 {
		return &t, nil
	}

	q.held.Add(1)
	defer q.held.Add(-1)
	tmr := time.NewTimer(wait)
	defer tmr.Stop()
	select {
	case <-tmr.C:
		return &t, nil
	case <-ctx.Done():
		// Hand the task back for the next consumer.
		select {
		case q.ch <- t:
		default:
			go func() { q.ch <- t }()
		}
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) Len() int {
	return len(q.ch) + int(q.held.Load())
}
