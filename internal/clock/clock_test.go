package clock_test

import (
	"testing"
	"time"

	"github.com/zsprackett/chargewatch/internal/clock"
)

func TestFake_FiresInDeadlineOrder(t *testing.T) {
	c := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "a") })

	c.Advance(2 * time.Second)
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("after 2s: got %v", order)
	}
	c.Advance(time.Second)
	if len(order) != 2 || order[1] != "b" {
		t.Fatalf("after 3s: got %v", order)
	}
}

func TestFake_StopPreventsFire(t *testing.T) {
	c := clock.NewFake(time.Now())
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Error("expected Stop to report a pending timer")
	}
	if tm.Stop() {
		t.Error("second Stop should report false")
	}
	c.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
	if c.Pending() != 0 {
		t.Errorf("pending: got %d want 0", c.Pending())
	}
}

func TestFake_RearmInsideWindow(t *testing.T) {
	c := clock.NewFake(time.Now())
	ticks := 0
	var arm func()
	arm = func() {
		c.AfterFunc(10*time.Second, func() {
			ticks++
			arm()
		})
	}
	arm()
	c.Advance(35 * time.Second)
	if ticks != 3 {
		t.Errorf("ticks: got %d want 3", ticks)
	}
}
