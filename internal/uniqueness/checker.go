// Package uniqueness implements the remote uniqueness checker: debounced
// availability checks against a registry service with stale-response
// rejection.
//
// Every edit of a tracked field cancels the field's pending debounce timer
// and starts a new one. When a timer fires, the checker allocates a new
// token for the field, records it as the latest and issues exactly one
// request. A response is applied only if its token is still the latest, so
// results are ordered by issue order rather than arrival order.
package uniqueness

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/petrijr/stepwise/internal/clock"
	"github.com/petrijr/stepwise/pkg/api"
)

// DefaultDelay is the debounce window observed in the reference product.
const DefaultDelay = 500 * time.Millisecond

var (
	// ErrSuperseded is returned by CheckAvailability when a newer edit of
	// the same field arrives before the check resolves.
	ErrSuperseded = errors.New("uniqueness: check superseded by a newer edit")

	// ErrUntracked is returned for fields that were never passed to Track.
	ErrUntracked = errors.New("uniqueness: field is not tracked")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("uniqueness: checker closed")
)

// Option configures a Checker.
type Option func(*Checker)

// WithDelay sets the debounce delay. Non-positive values are ignored.
func WithDelay(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithClock replaces the real clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Checker) { c.clock = clk }
}

// WithObserver sets the observer for issued, applied and stale checks.
func WithObserver(obs api.Observer) Option {
	return func(c *Checker) {
		if obs != nil {
			c.observer = obs
		}
	}
}

// WithListener registers fn to be called after every applied state change.
// fn runs outside the checker's lock.
func WithListener(fn func(api.UniquenessCheckState)) Option {
	return func(c *Checker) { c.listener = fn }
}

// Checker debounces availability checks per field. It is safe for
// concurrent use.
type Checker struct {
	svc      api.UniquenessRegistryService
	clock    clock.Clock
	delay    time.Duration
	observer api.Observer
	listener func(api.UniquenessCheckState)

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	fields map[string]*fieldState
}

type fieldState struct {
	kind   string
	value  string
	status api.CheckStatus

	// next is the last allocated token; latest is the token of the request
	// whose answer is still wanted (0 when none is).
	next   uint64
	latest uint64

	// gen counts edits; a timer only issues if its gen is current.
	gen   uint64
	timer clock.Timer
	wait  *waiter
}

type waiter struct {
	done       chan struct{}
	status     api.CheckStatus
	superseded bool
}

func (w *waiter) resolve(status api.CheckStatus, superseded bool) {
	w.status = status
	w.superseded = superseded
	close(w.done)
}

// New creates a Checker using svc.
func New(svc api.UniquenessRegistryService, opts ...Option) *Checker {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Checker{
		svc:      svc,
		clock:    clock.Real(),
		delay:    DefaultDelay,
		observer: api.NoopObserver{},
		ctx:      ctx,
		cancel:   cancel,
		fields:   make(map[string]*fieldState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Track registers field as checked against the registry kind.
func (c *Checker) Track(field, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fs, ok := c.fields[field]; ok {
		fs.kind = kind
		return
	}
	c.fields[field] = &fieldState{kind: kind, status: api.CheckIdle}
}

// Tracked reports whether field was registered with Track.
func (c *Checker) Tracked(field string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.fields[field]
	return ok
}

// Edit records a new value for field and restarts its debounce timer.
//
// The field reports checking from the edit until the answer for value is
// applied; a blank value resets it to idle without a request.
func (c *Checker) Edit(field, value string) error {
	_, err := c.edit(field, value)
	return err
}

func (c *Checker) edit(field, value string) (*waiter, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	fs, ok := c.fields[field]
	if !ok {
		c.mu.Unlock()
		return nil, ErrUntracked
	}

	c.supersede(fs)
	fs.gen++
	fs.value = value
	w := &waiter{done: make(chan struct{})}

	if value == "" {
		fs.status = api.CheckIdle
		w.resolve(api.CheckIdle, false)
		state := fs.snapshot(field)
		c.mu.Unlock()
		c.notify(state)
		return w, nil
	}

	fs.status = api.CheckChecking
	fs.wait = w
	gen := fs.gen
	fs.timer = c.clock.AfterFunc(c.delay, func() { c.fire(field, gen) })
	c.mu.Unlock()
	return w, nil
}

// supersede cancels the pending timer, invalidates any outstanding token and
// releases waiters. Caller holds c.mu.
func (c *Checker) supersede(fs *fieldState) {
	if fs.timer != nil {
		fs.timer.Stop()
		fs.timer = nil
	}
	fs.latest = 0
	if fs.wait != nil {
		fs.wait.resolve(api.CheckChecking, true)
		fs.wait = nil
	}
}

func (c *Checker) fire(field string, gen uint64) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fs, ok := c.fields[field]
	if !ok || fs.gen != gen {
		c.mu.Unlock()
		return
	}
	fs.timer = nil
	fs.next++
	fs.latest = fs.next
	token, kind, value := fs.latest, fs.kind, fs.value
	state := fs.snapshot(field)
	c.mu.Unlock()

	c.observer.OnUniqueness(c.ctx, state, false)
	go c.issue(field, kind, value, token)
}

func (c *Checker) issue(field, kind, value string, token uint64) {
	res, err := c.svc.CheckAvailable(c.ctx, kind, value)

	status := api.CheckUnavailable
	switch {
	case err != nil:
		status = api.CheckError
	case res.Available:
		status = api.CheckAvailable
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	fs, ok := c.fields[field]
	if !ok || token != fs.latest {
		c.mu.Unlock()
		c.observer.OnUniqueness(c.ctx, api.UniquenessCheckState{
			Field: field, Value: value, Token: token, Status: status,
		}, true)
		return
	}
	fs.status = status
	fs.latest = 0
	if fs.wait != nil {
		fs.wait.resolve(status, false)
		fs.wait = nil
	}
	state := fs.snapshot(field)
	state.Token = token
	c.mu.Unlock()

	c.observer.OnUniqueness(c.ctx, state, false)
	c.notify(state)
}

func (c *Checker) notify(state api.UniquenessCheckState) {
	if c.listener != nil {
		c.listener(state)
	}
}

func (fs *fieldState) snapshot(field string) api.UniquenessCheckState {
	return api.UniquenessCheckState{
		Field:  field,
		Value:  fs.value,
		Token:  fs.next,
		Status: fs.status,
	}
}

// CheckAvailability edits field to value and waits for the answer.
// It returns ErrSuperseded if another edit of field arrives first.
func (c *Checker) CheckAvailability(ctx context.Context, field, value string) (api.CheckStatus, error) {
	w, err := c.edit(field, value)
	if err != nil {
		return api.CheckIdle, err
	}
	select {
	case <-w.done:
		if w.superseded {
			return w.status, ErrSuperseded
		}
		return w.status, nil
	case <-ctx.Done():
		return api.CheckChecking, ctx.Err()
	case <-c.ctx.Done():
		return api.CheckChecking, ErrClosed
	}
}

// Status returns the latest state of field. Untracked fields report idle.
func (c *Checker) Status(field string) api.UniquenessCheckState {
	c.mu.Lock()
	defer c.mu.Unlock()
	fs, ok := c.fields[field]
	if !ok {
		return api.UniquenessCheckState{Field: field, Status: api.CheckIdle}
	}
	return fs.snapshot(field)
}

// States returns the latest state of every tracked field.
func (c *Checker) States() map[string]api.UniquenessCheckState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]api.UniquenessCheckState, len(c.fields))
	for f, fs := range c.fields {
		out[f] = fs.snapshot(f)
	}
	return out
}

// IsAvailable reports whether value is the resolved, available value of field.
func (c *Checker) IsAvailable(field, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	fs, ok := c.fields[field]
	return ok && fs.status == api.CheckAvailable && fs.value == value
}

// Cancel stops any pending check of field and resets it to idle.
func (c *Checker) Cancel(field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fs, ok := c.fields[field]; ok {
		c.supersede(fs)
		fs.gen++
		fs.value = ""
		fs.status = api.CheckIdle
	}
}

// Reset cancels every field. Tracked kinds are kept.
func (c *Checker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, fs := range c.fields {
		c.supersede(fs)
		fs.gen++
		fs.value = ""
		fs.status = api.CheckIdle
	}
}

// Close stops every timer, cancels in-flight requests and discards any
// response that arrives afterwards. Close is idempotent.
func (c *Checker) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, fs := range c.fields {
		c.supersede(fs)
	}
	c.mu.Unlock()
	c.cancel()
}
