package stepwise

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petrijr/stepwise/internal/taskqueue"
	"github.com/petrijr/stepwise/pkg/worker"
)

func TestRunner_StartTwiceFails(t *testing.T) {
	r := NewRunner(taskqueue.NewInMemoryQueue(4), worker.Config{})
	ctx := context.Background()

	if err := r.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers: %v", err)
	}
	if err := r.StartWorkers(ctx, 1); err == nil {
		t.Fatalf("expected error on second StartWorkers")
	}
	r.Stop()
	r.Stop()

	if err := r.StartWorkers(ctx, 1); err != nil {
		t.Fatalf("StartWorkers after Stop: %v", err)
	}
	r.Stop()
}

func TestRunner_DrainWaitsForHandlers(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(8)
	r := NewRunner(q, worker.Config{MaxAttempts: 1})

	var done atomic.Int32
	r.Handle(taskqueue.TaskTypeRunSubmission, func(ctx context.Context, task *taskqueue.Task) error {
		time.Sleep(20 * time.Millisecond)
		done.Add(1)
		if task.JobID == "bad" {
			return errors.New("boom")
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, id := range []string{"a", "bad", "c"} {
		if err := r.Worker.Enqueue(ctx, taskqueue.Task{Type: taskqueue.TaskTypeRunSubmission, JobID: id}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	if err := r.StartWorkers(ctx, 2); err != nil {
		t.Fatalf("StartWorkers: %v", err)
	}
	defer r.Stop()

	if err := r.Drain(ctx); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := done.Load(); got != 3 {
		t.Fatalf("handled %d tasks, want 3", got)
	}
}

func TestRunner_DrainHonoursContext(t *testing.T) {
	q := taskqueue.NewInMemoryQueue(1)
	r := NewRunner(q, worker.Config{})
	if err := q.Enqueue(context.Background(), taskqueue.Task{Type: taskqueue.TaskTypeRunSubmission}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// No workers: the queue never empties.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := r.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain err = %v, want deadline exceeded", err)
	}
}

type brokenQueue struct {
	dequeues atomic.Int64
}

func (q *brokenQueue) Enqueue(ctx context.Context, t taskqueue.Task) error { return nil }

func (q *brokenQueue) Dequeue(ctx context.Context) (*taskqueue.Task, error) {
	q.dequeues.Add(1)
	return nil, errors.New("redis: connection refused")
}

func (q *brokenQueue) Len() int { return 0 }

func TestRunner_BacksOffWhenQueueFails(t *testing.T) {
	q := &brokenQueue{}
	r := NewRunner(q, worker.Config{})

	if err := r.StartWorkers(context.Background(), 1); err != nil {
		t.Fatalf("StartWorkers: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Stop did not return while backing off")
	}

	// 50+100+200ms covers 300ms, so about four attempts.
	if n := q.dequeues.Load(); n > 8 {
		t.Fatalf("expected a handful of dequeue attempts, got %d", n)
	}
}
