package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the orchestration core for logging and
// metrics.
//
// Implementations should be fast and non-blocking; callbacks may run on
// timer goroutines.
type Observer interface {
	// OnTransition is called after every controller state change.
	OnTransition(ctx context.Context, t Transition)

	// OnUniqueness is called when a check is issued (Status == checking) and
	// when a response is applied. Stale responses are reported with
	// stale == true and not applied.
	OnUniqueness(ctx context.Context, state UniquenessCheckState, stale bool)

	// OnEnrichment is called once per chain run with the producer that won.
	// err is the first stage failure, nil for generated results.
	OnEnrichment(ctx context.Context, kind EnrichmentKind, producedBy Producer, err error, d time.Duration)

	// OnSubmissionCall is called after each background call of a job.
	OnSubmissionCall(ctx context.Context, jobID string, call CallName, err error, d time.Duration)

	// OnPoll is called after every fetch of a polled resource.
	OnPoll(ctx context.Context, res PollableResource)

	// OnNotice is called for every non-blocking notice.
	OnNotice(ctx context.Context, n Notice)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnTransition(ctx context.Context, t Transition) {
}
func (NoopObserver) OnUniqueness(ctx context.Context, s UniquenessCheckState, stale bool) {
}
func (NoopObserver) OnEnrichment(ctx context.Context, k EnrichmentKind, p Producer, err error, d time.Duration) {
}
func (NoopObserver) OnSubmissionCall(ctx context.Context, jobID string, call CallName, err error, d time.Duration) {
}
func (NoopObserver) OnPoll(ctx context.Context, res PollableResource) {
}
func (NoopObserver) OnNotice(ctx context.Context, n Notice) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnTransition(ctx context.Context, t Transition) {
	for _, o := range c.observers {
		o.OnTransition(ctx, t)
	}
}

func (c *CompositeObserver) OnUniqueness(ctx context.Context, s UniquenessCheckState, stale bool) {
	for _, o := range c.observers {
		o.OnUniqueness(ctx, s, stale)
	}
}

func (c *CompositeObserver) OnEnrichment(ctx context.Context, k EnrichmentKind, p Producer, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnEnrichment(ctx, k, p, err, d)
	}
}

func (c *CompositeObserver) OnSubmissionCall(ctx context.Context, jobID string, call CallName, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnSubmissionCall(ctx, jobID, call, err, d)
	}
}

func (c *CompositeObserver) OnPoll(ctx context.Context, res PollableResource) {
	for _, o := range c.observers {
		o.OnPoll(ctx, res)
	}
}

func (c *CompositeObserver) OnNotice(ctx context.Context, n Notice) {
	for _, o := range c.observers {
		o.OnNotice(ctx, n)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs orchestration events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnTransition(ctx context.Context, t Transition) {
	o.Logger.InfoContext(ctx, "step_transition",
		slog.String("flow", t.Flow),
		slog.String("session_id", t.SessionID),
		slog.String("from_phase", string(t.FromPhase)),
		slog.String("to_phase", string(t.ToPhase)),
		slog.String("from_step", t.FromStep),
		slog.String("to_step", t.ToStep),
	)
}

func (o *LoggingObserver) OnUniqueness(ctx context.Context, s UniquenessCheckState, stale bool) {
	msg := "uniqueness_resolved"
	switch {
	case stale:
		msg = "uniqueness_stale_discarded"
	case s.Status == CheckChecking:
		msg = "uniqueness_issued"
	}
	o.Logger.DebugContext(ctx, msg,
		slog.String("field", s.Field),
		slog.Uint64("token", s.Token),
		slog.String("status", string(s.Status)),
	)
}

func (o *LoggingObserver) OnEnrichment(ctx context.Context, k EnrichmentKind, p Producer, err error, d time.Duration) {
	level := slog.LevelDebug
	msg := "enrichment_generated"
	if p == ProducedByFallback {
		level = slog.LevelWarn
		msg = "enrichment_fallback"
	}
	o.Logger.Log(ctx, level, msg,
		slog.String("kind", string(k)),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnSubmissionCall(ctx context.Context, jobID string, call CallName, err error, d time.Duration) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "submission_call_completed",
		slog.String("job_id", jobID),
		slog.String("call", string(call)),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnPoll(ctx context.Context, res PollableResource) {
	o.Logger.DebugContext(ctx, "poll_attempt",
		slog.String("resource_id", res.ID),
		slog.Int("attempt", res.Attempts),
		slog.Int("max_attempts", res.MaxAttempts),
		slog.String("status", string(res.Status)),
	)
}

func (o *LoggingObserver) OnNotice(ctx context.Context, n Notice) {
	o.Logger.InfoContext(ctx, "notice",
		slog.String("kind", string(n.Kind)),
		slog.String("session_id", n.SessionID),
		slog.String("message", n.Message),
		slog.Any("error", n.Err),
	)
}

// BasicMetrics collects simple counters. It implements Observer, and can be
// combined with LoggingObserver via NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	transitions       atomic.Int64
	uniquenessIssued  atomic.Int64
	uniquenessStale   atomic.Int64
	enrichGenerated   atomic.Int64
	enrichFallback    atomic.Int64
	callsSucceeded    atomic.Int64
	callsFailed       atomic.Int64
	totalCallDuration atomic.Int64 // nanoseconds
	pollFetches       atomic.Int64
	noticesEmitted    atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	Transitions         int64
	UniquenessIssued    int64
	UniquenessStale     int64
	EnrichmentGenerated int64
	EnrichmentFallback  int64
	CallsSucceeded      int64
	CallsFailed         int64
	AvgCallDuration     time.Duration
	PollFetches         int64
	Notices             int64
}

func (m *BasicMetrics) OnTransition(ctx context.Context, t Transition) {
	m.transitions.Add(1)
}

func (m *BasicMetrics) OnUniqueness(ctx context.Context, s UniquenessCheckState, stale bool) {
	if stale {
		m.uniquenessStale.Add(1)
		return
	}
	if s.Status == CheckChecking {
		m.uniquenessIssued.Add(1)
	}
}

func (m *BasicMetrics) OnEnrichment(ctx context.Context, k EnrichmentKind, p Producer, err error, d time.Duration) {
	if p == ProducedByFallback {
		m.enrichFallback.Add(1)
		return
	}
	m.enrichGenerated.Add(1)
}

func (m *BasicMetrics) OnSubmissionCall(ctx context.Context, jobID string, call CallName, err error, d time.Duration) {
	if err != nil {
		m.callsFailed.Add(1)
	} else {
		m.callsSucceeded.Add(1)
	}
	m.totalCallDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnPoll(ctx context.Context, res PollableResource) {
	m.pollFetches.Add(1)
}

func (m *BasicMetrics) OnNotice(ctx context.Context, n Notice) {
	m.noticesEmitted.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	ok := m.callsSucceeded.Load()
	failed := m.callsFailed.Load()
	totalNs := m.totalCallDuration.Load()

	var avg time.Duration
	if calls := ok + failed; calls > 0 {
		avg = time.Duration(totalNs / calls)
	}

	return BasicMetricsSnapshot{
		Transitions:         m.transitions.Load(),
		UniquenessIssued:    m.uniquenessIssued.Load(),
		UniquenessStale:     m.uniquenessStale.Load(),
		EnrichmentGenerated: m.enrichGenerated.Load(),
		EnrichmentFallback:  m.enrichFallback.Load(),
		CallsSucceeded:      ok,
		CallsFailed:         failed,
		AvgCallDuration:     avg,
		PollFetches:         m.pollFetches.Load(),
		Notices:             m.noticesEmitted.Load(),
	}
}
