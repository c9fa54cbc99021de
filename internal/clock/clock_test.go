package clock

import (
	"testing"
	"time"
)

func TestFake_AdvanceRunsDueTimersInOrder(t *testing.T) {
	c := NewFake(time.Unix(0, 0))

	var order []string
	c.AfterFunc(20*time.Millisecond, func() { order = append(order, "b") })
	c.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	c.AfterFunc(30*time.Millisecond, func() { order = append(order, "c") })

	c.Advance(25 * time.Millisecond)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected [a b], got %v", order)
	}
	if c.Pending() != 1 {
		t.Fatalf("expected 1 pending timer, got %d", c.Pending())
	}
	if got := c.Now(); !got.Equal(time.Unix(0, 0).Add(25 * time.Millisecond)) {
		t.Fatalf("unexpected now: %v", got)
	}
}

func TestFake_StopPreventsCallback(t *testing.T) {
	c := NewFake(time.Unix(0, 0))

	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Fatalf("expected first Stop to report true")
	}
	if tm.Stop() {
		t.Fatalf("expected second Stop to report false")
	}

	c.Advance(2 * time.Second)
	if fired {
		t.Fatalf("stopped timer must not fire")
	}
}

func TestFake_CallbackCanRescheduleWithinWindow(t *testing.T) {
	c := NewFake(time.Unix(0, 0))

	var fires []time.Time
	var tick func()
	tick = func() {
		fires = append(fires, c.Now())
		if len(fires) < 3 {
			c.AfterFunc(time.Second, tick)
		}
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(10 * time.Second)

	if len(fires) != 3 {
		t.Fatalf("expected 3 fires, got %d", len(fires))
	}
	if want := time.Unix(3, 0); !fires[2].Equal(want) {
		t.Fatalf("expected third fire at %v, got %v", want, fires[2])
	}
}
