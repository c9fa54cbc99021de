package stepwise

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petrijr/stepwise/internal/taskqueue"
	"github.com/petrijr/stepwise/pkg/worker"
)

// Queue failures back off between these bounds, doubling each time.
const (
	minErrorBackoff = 50 * time.Millisecond
	maxErrorBackoff = 5 * time.Second
)

// Runner runs worker goroutines over a task queue. Submission tasks are
// delivered by a Runner independently of any wizard session: closing a
// session never cancels them.
//
// Typical usage:
//
//	rt, _ := stepwise.NewInMemoryRuntime(services, stepwise.Config{})
//	_ = rt.Runner.StartWorkers(ctx, 2)
//	defer rt.Runner.Stop()
type Runner struct {
	// Queue is the task queue the Worker consumes.
	Queue taskqueue.Queue

	// Worker dispatches tasks to handlers registered with Handle.
	Worker *worker.Worker

	logger   *slog.Logger
	inflight atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRunner creates a Runner over q.
func NewRunner(q taskqueue.Queue, cfg worker.Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		Queue:  q,
		Worker: worker.NewWithConfig(q, cfg),
		logger: logger,
	}
}

// Handle registers h for typ. Handlers registered here are counted by Drain.
func (r *Runner) Handle(typ taskqueue.TaskType, h worker.Handler) {
	r.Worker.Handle(typ, func(ctx context.Context, t *taskqueue.Task) error {
		r.inflight.Add(1)
		defer r.inflight.Add(-1)
		return h(ctx, t)
	})
}

// StartWorkers starts 'concurrency' worker goroutines that continuously call
// Worker.ProcessOne(ctx) until the context is cancelled via Stop.
//
// If StartWorkers is called more than once without Stop, it returns an error.
func (r *Runner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("stepwise: runner already started")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()
			backoff := minErrorBackoff
			for {
				processed, err := r.Worker.ProcessOne(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// A single bad task must not stop the loop.
					r.logger.Error("runner_task_error", slog.String("error", err.Error()))
					if processed {
						continue
					}
					// The queue itself failed; wait before asking again.
					if !sleepCtx(ctx, backoff) {
						return
					}
					backoff = min(backoff*2, maxErrorBackoff)
					continue
				}
				backoff = minErrorBackoff
				if !processed && ctx.Err() != nil {
					return
				}
			}
		}()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Stop cancels all worker goroutines started by StartWorkers and waits
// for them to exit. Tasks left in a durable queue are picked up by the
// next process.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Drain blocks until the queue is empty and no handler is running, or ctx
// is done. Tasks delayed by a retry backoff count as queued.
func (r *Runner) Drain(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	quiet := 0
	for {
		if r.Queue.Len() == 0 && r.inflight.Load() == 0 {
			// Two consecutive idle observations cover the gap between a
			// dequeue and the handler starting.
			quiet++
			if quiet >= 2 {
				return nil
			}
		} else {
			quiet = 0
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
