// Package poller implements bounded eventual-consistency polling of
// asynchronous backend jobs.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/petrijr/stepwise/internal/clock"
	"github.com/petrijr/stepwise/pkg/api"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("poller: closed")

	// ErrSuperseded is returned by Poll when another run for the same
	// resource replaced it.
	ErrSuperseded = errors.New("poller: run superseded")
)

// Option configures a Poller.
type Option func(*Poller)

// WithClock replaces the real clock.
func WithClock(clk clock.Clock) Option {
	return func(p *Poller) { p.clock = clk }
}

// WithObserver sets the observer notified after every fetch.
func WithObserver(obs api.Observer) Option {
	return func(p *Poller) {
		if obs != nil {
			p.observer = obs
		}
	}
}

// Poller runs at most one poll per resource id at a time.
type Poller struct {
	svc      api.AnalysisJobService
	clock    clock.Clock
	observer api.Observer

	mu     sync.Mutex
	runs   map[string]*run
	closed bool
}

type run struct {
	id       string
	policy   api.PollPolicy
	fn       func(api.PollableResource)
	ctx      context.Context
	cancel   context.CancelFunc
	timer    clock.Timer
	attempts int
	finished bool
	done     chan struct{}
}

// New creates a Poller for svc.
func New(svc api.AnalysisJobService, opts ...Option) *Poller {
	p := &Poller{
		svc:      svc,
		clock:    clock.Real(),
		observer: api.NoopObserver{},
		runs:     make(map[string]*run),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling resourceID in the background, cancelling any run
// already active for the same id. fn receives every update; the last one
// has a terminal status. fn is not called for runs that were cancelled.
func (p *Poller) Start(ctx context.Context, resourceID string, policy api.PollPolicy, fn func(api.PollableResource)) error {
	_, err := p.start(ctx, resourceID, policy, fn)
	return err
}

// Poll runs a poll and blocks until it reaches a terminal status. Retry
// exhaustion is not an error: the resource is returned with status
// not_available.
func (p *Poller) Poll(ctx context.Context, resourceID string, policy api.PollPolicy) (api.PollableResource, error) {
	out := make(chan api.PollableResource, 1)
	r, err := p.start(ctx, resourceID, policy, func(res api.PollableResource) {
		if res.Status.Terminal() {
			out <- res
		}
	})
	if err != nil {
		return api.PollableResource{}, err
	}

	select {
	case res := <-out:
		return res, nil
	case <-r.done:
		select {
		case res := <-out:
			return res, nil
		default:
		}
		if err := ctx.Err(); err != nil {
			return api.PollableResource{}, err
		}
		return api.PollableResource{}, ErrSuperseded
	}
}

// Stop cancels the active run for resourceID, if any.
func (p *Poller) Stop(resourceID string) {
	p.mu.Lock()
	r := p.runs[resourceID]
	if r != nil {
		p.finishLocked(r)
	}
	p.mu.Unlock()
	if r != nil {
		r.cancel()
	}
}

// Active reports whether a run for resourceID is in progress.
func (p *Poller) Active(resourceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.runs[resourceID]
	return ok
}

// Close cancels every run. Subsequent Start calls fail with ErrClosed.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	var runs []*run
	for _, r := range p.runs {
		p.finishLocked(r)
		runs = append(runs, r)
	}
	p.mu.Unlock()
	for _, r := range runs {
		r.cancel()
	}
}

func (p *Poller) start(ctx context.Context, id string, policy api.PollPolicy, fn func(api.PollableResource)) (*run, error) {
	if fn == nil {
		fn = func(api.PollableResource) {}
	}
	rctx, cancel := context.WithCancel(ctx)
	r := &run{
		id:     id,
		policy: policy.Normalize(),
		fn:     fn,
		ctx:    rctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	prev := p.runs[id]
	if prev != nil {
		p.finishLocked(prev)
	}
	p.runs[id] = r
	p.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	// A cancelled parent context ends the run and stops its timer.
	context.AfterFunc(rctx, func() {
		p.mu.Lock()
		p.finishLocked(r)
		p.mu.Unlock()
	})

	go p.fetch(r)
	return r, nil
}

func (p *Poller) fetch(r *run) {
	if r.ctx.Err() != nil {
		return
	}

	st, err := p.svc.GetJobStatus(r.ctx, r.id)

	p.mu.Lock()
	if r.finished || r.ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	r.attempts++
	res := api.PollableResource{
		ID:          r.id,
		Interval:    r.policy.Interval,
		Attempts:    r.attempts,
		MaxAttempts: r.policy.MaxAttempts,
		Status:      st.Status,
		Payload:     st.Data,
	}
	switch {
	case err != nil:
		res.Status = api.PollError
		res.Payload = nil
		res.Err = err
	case st.Status.Terminal():
	case st.Status == api.PollProcessing || st.Status == api.PollPending:
		if r.attempts >= r.policy.MaxAttempts {
			res.Status = api.PollNotAvailable
			res.Err = api.ErrPollingExhausted
		}
	default:
		res.Status = api.PollError
		res.Err = fmt.Errorf("poller: unknown job status %q", st.Status)
	}
	p.mu.Unlock()

	p.observer.OnPoll(r.ctx, res)
	r.fn(res)

	p.mu.Lock()
	defer p.mu.Unlock()
	if res.Status.Terminal() {
		p.finishLocked(r)
		r.cancel()
		return
	}
	if r.finished {
		return
	}
	r.timer = p.clock.AfterFunc(r.policy.Interval, func() { p.fetch(r) })
}

// finishLocked ends r. It is idempotent; p.mu must be held.
func (p *Poller) finishLocked(r *run) {
	if r.finished {
		return
	}
	r.finished = true
	if r.timer != nil {
		r.timer.Stop()
	}
	if p.runs[r.id] == r {
		delete(p.runs, r.id)
	}
	close(r.done)
}
