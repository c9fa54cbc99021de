package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/stepwise/internal/taskqueue"
)

// Handler processes one task. A returned error makes the worker retry the
// task according to Config.
type Handler func(ctx context.Context, task *taskqueue.Task) error

// ErrNoHandler is returned for tasks whose type has no registered handler.
var ErrNoHandler = errors.New("worker: no handler for task type")

// Config controls retry and timeout behaviour.
type Config struct {
	// MaxAttempts is the total number of times a failing task is handled.
	// Zero or one means no retries.
	MaxAttempts int

	// Backoff delays the re-enqueued task. Attempt n waits n*Backoff.
	Backoff time.Duration

	// TaskTimeout bounds each handler invocation. Zero means no timeout.
	TaskTimeout time.Duration

	// Logger receives handler failures. Nil discards them.
	Logger *slog.Logger
}

// Worker pulls tasks from a Queue and dispatches them to handlers.
type Worker struct {
	queue taskqueue.Queue
	cfg   Config

	mu       sync.RWMutex
	handlers map[taskqueue.TaskType]Handler
}

// New creates a Worker with no retries.
func New(queue taskqueue.Queue) *Worker {
	return NewWithConfig(queue, Config{})
}

// NewWithConfig creates a Worker with the given configuration.
func NewWithConfig(queue taskqueue.Queue, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Worker{
		queue:    queue,
		cfg:      cfg,
		handlers: make(map[taskqueue.TaskType]Handler),
	}
}

// Handle registers h for tasks of type typ, replacing any previous handler.
func (w *Worker) Handle(typ taskqueue.TaskType, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[typ] = h
}

// Enqueue adds a task, filling ID and EnqueuedAt when empty.
func (w *Worker) Enqueue(ctx context.Context, t taskqueue.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	return w.queue.Enqueue(ctx, t)
}

// ProcessOne pulls a single task from the queue and processes it.
// Returns (processed, error):
//   - processed == false: no task was obtained (ctx cancelled or dequeue failed)
//   - processed == true: a task was handled; err is the handler's result.
//
// A failed task with attempts left is re-enqueued before ProcessOne returns.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	w.mu.RLock()
	h, ok := w.handlers[task.Type]
	w.mu.RUnlock()
	if !ok {
		return true, fmt.Errorf("%w: %q", ErrNoHandler, task.Type)
	}

	hctx := ctx
	if w.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, w.cfg.TaskTimeout)
		defer cancel()
	}

	task.Attempts++
	herr := h(hctx, task)
	if herr == nil {
		return true, nil
	}

	w.cfg.Logger.Error("task_failed",
		slog.String("task_id", task.ID),
		slog.String("type", string(task.Type)),
		slog.String("job_id", task.JobID),
		slog.Int("attempt", task.Attempts),
		slog.String("error", herr.Error()),
	)

	if task.Attempts < w.cfg.MaxAttempts {
		retry := *task
		retry.NotBefore = time.Now().Add(time.Duration(task.Attempts) * w.cfg.Backoff)
		if err := w.queue.Enqueue(context.WithoutCancel(ctx), retry); err != nil {
			return true, errors.Join(herr, fmt.Errorf("re-enqueue task %s: %w", task.ID, err))
		}
	}
	return true, herr
}

// Run processes tasks until ctx is cancelled. Handler errors are logged and
// do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !processed && err != nil {
			return err
		}
	}
}
