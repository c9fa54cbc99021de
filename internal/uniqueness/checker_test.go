package uniqueness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/stepwise/internal/clock"
	"github.com/petrijr/stepwise/pkg/api"
)

// fakeRegistry answers from a taken set. Values listed in gates block until
// the gate channel is closed.
type fakeRegistry struct {
	mu    sync.Mutex
	taken map[string]bool
	gates map[string]chan struct{}
	fail  error
	calls []string
}

func newFakeRegistry(taken ...string) *fakeRegistry {
	r := &fakeRegistry{taken: make(map[string]bool), gates: make(map[string]chan struct{})}
	for _, v := range taken {
		r.taken[v] = true
	}
	return r
}

func (r *fakeRegistry) gate(value string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{})
	r.gates[value] = ch
	return ch
}

func (r *fakeRegistry) CheckAvailable(ctx context.Context, kind, value string) (api.Availability, error) {
	r.mu.Lock()
	r.calls = append(r.calls, value)
	gate := r.gates[value]
	fail := r.fail
	taken := r.taken[value]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return api.Availability{}, ctx.Err()
		}
	}
	if fail != nil {
		return api.Availability{}, fail
	}
	return api.Availability{Available: !taken}, nil
}

func (r *fakeRegistry) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

type staleCounter struct {
	api.NoopObserver
	mu    sync.Mutex
	stale int
}

func (o *staleCounter) OnUniqueness(ctx context.Context, s api.UniquenessCheckState, stale bool) {
	if stale {
		o.mu.Lock()
		o.stale++
		o.mu.Unlock()
	}
}

func (o *staleCounter) Stale() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stale
}

func newTestChecker(t *testing.T, reg *fakeRegistry, opts ...Option) (*Checker, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Unix(0, 0))
	c := New(reg, append([]Option{WithClock(clk)}, opts...)...)
	c.Track("triggerPhrase", "trigger_phrase")
	t.Cleanup(c.Close)
	return c, clk
}

func waitStatus(t *testing.T, c *Checker, field string, want api.CheckStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.Status(field).Status == want
	}, time.Second, time.Millisecond)
}

func TestChecker_ResolvesAvailableAfterDebounceWindow(t *testing.T) {
	reg := newFakeRegistry()
	c, clk := newTestChecker(t, reg)

	require.NoError(t, c.Edit("triggerPhrase", "Hello Pizzeria"))
	require.Equal(t, api.CheckChecking, c.Status("triggerPhrase").Status)

	clk.Advance(499 * time.Millisecond)
	require.Empty(t, reg.Calls())

	clk.Advance(time.Millisecond)
	waitStatus(t, c, "triggerPhrase", api.CheckAvailable)
	require.Equal(t, []string{"Hello Pizzeria"}, reg.Calls())
	require.True(t, c.IsAvailable("triggerPhrase", "Hello Pizzeria"))
	require.False(t, c.IsAvailable("triggerPhrase", "Hello"))
}

func TestChecker_DebounceCollapsesRapidEdits(t *testing.T) {
	reg := newFakeRegistry()
	c, clk := newTestChecker(t, reg)

	require.NoError(t, c.Edit("triggerPhrase", "ab"))
	clk.Advance(100 * time.Millisecond)
	require.NoError(t, c.Edit("triggerPhrase", "abc"))
	for _, v := range []string{"abcd", "abcde", "abc"} {
		clk.Advance(50 * time.Millisecond)
		require.NoError(t, c.Edit("triggerPhrase", v))
	}

	clk.Advance(DefaultDelay)
	waitStatus(t, c, "triggerPhrase", api.CheckAvailable)

	require.Equal(t, []string{"abc"}, reg.Calls())
	require.Equal(t, 0, clk.Pending())
}

func TestChecker_StaleResponseIsDiscarded(t *testing.T) {
	reg := newFakeRegistry("first")
	gateA := reg.gate("first")
	gateB := reg.gate("second")
	obs := &staleCounter{}
	c, clk := newTestChecker(t, reg, WithObserver(obs))

	require.NoError(t, c.Edit("triggerPhrase", "first"))
	clk.Advance(DefaultDelay)
	require.Eventually(t, func() bool { return len(reg.Calls()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Edit("triggerPhrase", "second"))
	clk.Advance(DefaultDelay)
	require.Eventually(t, func() bool { return len(reg.Calls()) == 2 }, time.Second, time.Millisecond)

	// B resolves before A.
	close(gateB)
	waitStatus(t, c, "triggerPhrase", api.CheckAvailable)

	close(gateA)
	require.Eventually(t, func() bool { return obs.Stale() == 1 }, time.Second, time.Millisecond)

	st := c.Status("triggerPhrase")
	require.Equal(t, api.CheckAvailable, st.Status)
	require.Equal(t, "second", st.Value)
	require.Equal(t, uint64(2), st.Token)
}

func TestChecker_EditDuringFlightInvalidatesToken(t *testing.T) {
	reg := newFakeRegistry()
	gate := reg.gate("slow")
	obs := &staleCounter{}
	c, clk := newTestChecker(t, reg, WithObserver(obs))

	require.NoError(t, c.Edit("triggerPhrase", "slow"))
	clk.Advance(DefaultDelay)
	require.Eventually(t, func() bool { return len(reg.Calls()) == 1 }, time.Second, time.Millisecond)

	// New edit while the request is in flight; debounce not yet elapsed.
	require.NoError(t, c.Edit("triggerPhrase", "fast"))
	close(gate)
	require.Eventually(t, func() bool { return obs.Stale() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, api.CheckChecking, c.Status("triggerPhrase").Status)

	clk.Advance(DefaultDelay)
	waitStatus(t, c, "triggerPhrase", api.CheckAvailable)
	require.Equal(t, "fast", c.Status("triggerPhrase").Value)
}

func TestChecker_UnavailableAndError(t *testing.T) {
	reg := newFakeRegistry("taken")
	c, clk := newTestChecker(t, reg)

	require.NoError(t, c.Edit("triggerPhrase", "taken"))
	clk.Advance(DefaultDelay)
	waitStatus(t, c, "triggerPhrase", api.CheckUnavailable)

	reg.mu.Lock()
	reg.fail = errors.New("registry down")
	reg.mu.Unlock()

	require.NoError(t, c.Edit("triggerPhrase", "other"))
	clk.Advance(DefaultDelay)
	waitStatus(t, c, "triggerPhrase", api.CheckError)
}

func TestChecker_BlankValueIsIdleWithoutRequest(t *testing.T) {
	reg := newFakeRegistry()
	c, clk := newTestChecker(t, reg)

	require.NoError(t, c.Edit("triggerPhrase", "abc"))
	require.NoError(t, c.Edit("triggerPhrase", ""))
	clk.Advance(time.Second)

	require.Equal(t, api.CheckIdle, c.Status("triggerPhrase").Status)
	require.Empty(t, reg.Calls())
}

func TestChecker_UntrackedField(t *testing.T) {
	c, _ := newTestChecker(t, newFakeRegistry())
	require.ErrorIs(t, c.Edit("name", "x"), ErrUntracked)
	require.Equal(t, api.CheckIdle, c.Status("name").Status)
}

func TestChecker_CheckAvailabilityWaitsForAnswer(t *testing.T) {
	reg := newFakeRegistry()
	c, clk := newTestChecker(t, reg)

	type result struct {
		status api.CheckStatus
		err    error
	}
	first := make(chan result, 1)
	go func() {
		st, err := c.CheckAvailability(context.Background(), "triggerPhrase", "one")
		first <- result{st, err}
	}()
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)

	second := make(chan result, 1)
	go func() {
		st, err := c.CheckAvailability(context.Background(), "triggerPhrase", "two")
		second <- result{st, err}
	}()

	r1 := <-first
	require.ErrorIs(t, r1.err, ErrSuperseded)

	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)
	clk.Advance(DefaultDelay)

	r2 := <-second
	require.NoError(t, r2.err)
	require.Equal(t, api.CheckAvailable, r2.status)
	require.Equal(t, []string{"two"}, reg.Calls())
}

func TestChecker_CloseStopsTimersAndDiscardsResponses(t *testing.T) {
	reg := newFakeRegistry()
	gate := reg.gate("late")
	c, clk := newTestChecker(t, reg)

	require.NoError(t, c.Edit("triggerPhrase", "late"))
	clk.Advance(DefaultDelay)
	require.Eventually(t, func() bool { return len(reg.Calls()) == 1 }, time.Second, time.Millisecond)

	c.Close()
	close(gate)

	require.ErrorIs(t, c.Edit("triggerPhrase", "again"), ErrClosed)
	require.Never(t, func() bool {
		return c.Status("triggerPhrase").Status == api.CheckAvailable
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestChecker_ResetClearsState(t *testing.T) {
	reg := newFakeRegistry()
	c, clk := newTestChecker(t, reg)

	require.NoError(t, c.Edit("triggerPhrase", "abc"))
	c.Reset()
	clk.Advance(DefaultDelay)

	require.Empty(t, reg.Calls())
	require.True(t, c.Tracked("triggerPhrase"))
	require.Equal(t, api.CheckIdle, c.Status("triggerPhrase").Status)
}
