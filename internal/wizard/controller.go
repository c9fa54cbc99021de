// Package wizard implements the step controller: a generic, step-gated
// state machine driven by a flow's step table.
//
// A session is in one of four phases. In EDITING the current step accepts
// edits and forward navigation is gated on the validator and, for unique
// fields, on the remote checker resolving to available. Leaving a step with
// an enrichment rule enters AWAITING_ENRICHMENT until the pipeline resolves
// in the background. Confirming the final step passes through SUBMITTING to
// COMPLETED without waiting for any network result.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/stepwise/internal/clock"
	"github.com/petrijr/stepwise/internal/validate"
	"github.com/petrijr/stepwise/pkg/api"
)

// Option configures a Controller.
type Option func(*Controller)

// WithObserver sets the observer for transitions and notices.
func WithObserver(obs api.Observer) Option {
	return func(c *Controller) {
		if obs != nil {
			c.observer = obs
		}
	}
}

// WithOwner sets the key achievements are tracked under. It defaults to the
// session id.
func WithOwner(owner string) Option {
	return func(c *Controller) { c.owner = owner }
}

// WithClock replaces the clock used for timestamps.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// Controller drives one wizard session. It is safe for concurrent use, but
// a session is meant to be driven by a single flow instance.
type Controller struct {
	flow         api.FlowDefinition
	validator    Validator
	checker      UniquenessChecker
	enricher     api.Enricher
	submitter    Submitter
	achievements Achievements
	observer     api.Observer
	clock        clock.Clock
	owner        string

	mu        sync.Mutex
	closed    bool
	id        string
	createdAt time.Time
	phase     api.Phase
	step      string
	values    api.Values
	jobID     string
	unlocked  []string
	unwatch   func()

	// Enrichment runs are identified by generation; a result whose gen is
	// no longer current is dropped.
	enrichGen    uint64
	enrichCancel context.CancelFunc
	enrichDone   chan struct{}

	// editSeq numbers edits; edited holds the sequence number of the last
	// edit per field so enrichment never overwrites a newer user value.
	editSeq uint64
	edited  map[string]uint64

	noticeMu sync.Mutex
	notices  []api.Notice
	pending  []api.Notice
}

// New creates a Controller positioned on the first effective step.
func New(flow api.FlowDefinition, deps Deps, opts ...Option) (*Controller, error) {
	if len(flow.Steps) == 0 {
		return nil, fmt.Errorf("wizard: flow %q has no steps", flow.Name)
	}
	if deps.Submitter == nil {
		return nil, errors.New("wizard: a submitter is required")
	}
	if flow.BuildPayload == nil {
		return nil, fmt.Errorf("wizard: flow %q has no payload builder", flow.Name)
	}

	c := &Controller{
		flow:         flow,
		validator:    deps.Validator,
		checker:      deps.Checker,
		enricher:     deps.Enricher,
		submitter:    deps.Submitter,
		achievements: deps.Achievements,
		observer:     api.NoopObserver{},
		clock:        clock.Real(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.validator == nil {
		reg, err := validate.ForFlow(flow)
		if err != nil {
			return nil, err
		}
		c.validator = reg
	}

	for _, s := range flow.Steps {
		if s.Enrich != nil && c.enricher == nil {
			return nil, fmt.Errorf("wizard: step %q enriches but no enricher is configured", s.ID)
		}
		for field, kind := range s.Unique {
			if c.checker == nil {
				return nil, fmt.Errorf("wizard: step %q has unique field %q but no checker is configured", s.ID, field)
			}
			c.checker.Track(field, kind)
		}
	}

	c.resetLocked()
	return c, nil
}

// resetLocked starts a fresh session. c.mu must be held or c unpublished.
func (c *Controller) resetLocked() {
	c.id = uuid.NewString()
	c.createdAt = c.clock.Now()
	c.phase = api.PhaseEditing
	c.values = api.Values{}
	c.edited = make(map[string]uint64)
	c.jobID = ""
	c.unlocked = nil
	c.step = c.flow.EffectiveSteps(c.values)[0].ID

	c.noticeMu.Lock()
	c.notices = nil
	c.pending = nil
	c.noticeMu.Unlock()
}

// ID returns the current session id. It changes on Restart.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Edit sets a field. Edits are accepted in EDITING and AWAITING_ENRICHMENT;
// a session that is submitting or completed is frozen.
func (c *Controller) Edit(field string, value any) error {
	var ts []api.Transition
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.emit(ts)
	}()

	if c.closed {
		return api.ErrSessionClosed
	}
	if c.phase.Frozen() {
		return api.ErrSessionFrozen
	}

	if value == nil {
		delete(c.values, field)
	} else {
		c.values[field] = value
	}
	c.editSeq++
	c.edited[field] = c.editSeq

	if c.isUnique(field) {
		if err := c.checker.Edit(field, c.values.String(field)); err != nil {
			return fmt.Errorf("uniqueness %s: %w", field, err)
		}
	}

	// A skip predicate may have excluded the current step.
	if t, moved := c.normalizeLocked(); moved {
		ts = append(ts, t)
	}
	return nil
}

// Next attempts a forward transition from the current step. On the final
// step it confirms the flow. When the current step has an enrichment rule
// Next returns immediately in AWAITING_ENRICHMENT; use WaitIdle to block
// until the next step is shown.
func (c *Controller) Next(ctx context.Context) (api.SessionSnapshot, error) {
	var ts []api.Transition
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.emit(ts)
	}()

	if err := c.navigableLocked(); err != nil {
		return c.snapshotLocked(), err
	}

	step, idx, eff := c.currentLocked()
	if err := c.stepReadyLocked(step); err != nil {
		return c.snapshotLocked(), err
	}

	if idx == len(eff)-1 {
		more, err := c.confirmLocked(ctx)
		ts = append(ts, more...)
		return c.snapshotLocked(), err
	}

	if step.Enrich != nil {
		ts = append(ts, c.transitionLocked(api.PhaseAwaitingEnrichment, step.ID))
		c.startEnrichmentLocked(step)
		return c.snapshotLocked(), nil
	}

	ts = append(ts, c.transitionLocked(api.PhaseEditing, eff[idx+1].ID))
	return c.snapshotLocked(), nil
}

// Back moves to the previous effective step. From AWAITING_ENRICHMENT it
// cancels the pending enrichment and returns to the step that started it.
func (c *Controller) Back() (api.SessionSnapshot, error) {
	var ts []api.Transition
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.emit(ts)
	}()

	if c.closed {
		return c.snapshotLocked(), api.ErrSessionClosed
	}
	if c.phase.Frozen() {
		return c.snapshotLocked(), api.ErrNoPreviousStep
	}

	if c.phase == api.PhaseAwaitingEnrichment {
		c.cancelEnrichmentLocked()
		ts = append(ts, c.transitionLocked(api.PhaseEditing, c.step))
		return c.snapshotLocked(), nil
	}

	_, idx, eff := c.currentLocked()
	if idx == 0 {
		return c.snapshotLocked(), api.ErrNoPreviousStep
	}
	ts = append(ts, c.transitionLocked(api.PhaseEditing, eff[idx-1].ID))
	return c.snapshotLocked(), nil
}

// Confirm completes the flow from the final step. Every effective step is
// validated again before anything is submitted. Confirming a completed
// session is a no-op.
func (c *Controller) Confirm(ctx context.Context) (api.SessionSnapshot, error) {
	var ts []api.Transition
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.emit(ts)
	}()

	if c.closed {
		return c.snapshotLocked(), api.ErrSessionClosed
	}
	if c.phase == api.PhaseCompleted {
		return c.snapshotLocked(), nil
	}
	if err := c.navigableLocked(); err != nil {
		return c.snapshotLocked(), err
	}

	step, idx, eff := c.currentLocked()
	if idx != len(eff)-1 {
		return c.snapshotLocked(), api.ErrNotFinalStep
	}
	if err := c.stepReadyLocked(step); err != nil {
		return c.snapshotLocked(), err
	}

	more, err := c.confirmLocked(ctx)
	ts = append(ts, more...)
	return c.snapshotLocked(), err
}

// Restart discards the session and starts a new one on the first step.
// Background submission work of the old session keeps running.
func (c *Controller) Restart() error {
	var ts []api.Transition
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.emit(ts)
	}()

	if c.closed {
		return api.ErrSessionClosed
	}

	from := api.Transition{SessionID: c.id, Flow: c.flow.Name, FromPhase: c.phase, FromStep: c.step}
	c.cancelEnrichmentLocked()
	c.stopWatchLocked()
	if c.checker != nil {
		c.checker.Reset()
	}
	c.resetLocked()

	from.SessionID = c.id
	from.ToPhase = c.phase
	from.ToStep = c.step
	ts = append(ts, from)
	return nil
}

// Close tears the session down: pending enrichment and uniqueness checks
// are cancelled and later callbacks are ignored. Queued submission work is
// not affected. Close is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.cancelEnrichmentLocked()
	c.stopWatchLocked()
	if c.checker != nil {
		c.checker.Close()
	}
}

// CanAdvance reports why Next would fail, or nil if it would succeed.
func (c *Controller) CanAdvance() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.navigableLocked(); err != nil {
		return err
	}
	step, _, _ := c.currentLocked()
	return c.stepReadyLocked(step)
}

// WaitIdle blocks until no enrichment is pending or ctx is done.
func (c *Controller) WaitIdle(ctx context.Context) error {
	c.mu.Lock()
	done := c.enrichDone
	c.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the session.
func (c *Controller) Snapshot() api.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}
