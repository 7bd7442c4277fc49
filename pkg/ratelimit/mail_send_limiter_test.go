package ratelimit

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*SendLimiter, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	return NewSendLimiterWithClock(clk.now), clk
}

func TestAdmitFirstSend(t *testing.T) {
	l, _ := newTestLimiter()

	d := l.Admit("u1")
	if !d.Allowed {
		t.Fatalf("first admit denied: %+v", d)
	}
}

func TestAdmitDoesNotConsumeBudget(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < 100; i++ {
		if d := l.Admit("u1"); !d.Allowed {
			t.Fatalf("admit %d denied: %+v", i, d)
		}
	}
	half, hour, last := l.Snapshot("u1")
	if half != 0 || hour != 0 || !last.IsZero() {
		t.Fatalf("admit mutated state: half=%d hour=%d last=%v", half, hour, last)
	}
}

func TestIntervalDenial(t *testing.T) {
	l, clk := newTestLimiter()

	if d := l.Admit("u1"); !d.Allowed {
		t.Fatalf("admit: %+v", d)
	}
	l.Commit("u1")

	clk.advance(15 * time.Second)
	d := l.Admit("u1")
	if d.Allowed {
		t.Fatal("expected interval denial")
	}
	if d.Reason != ReasonInterval {
		t.Fatalf("reason = %q, want %q", d.Reason, ReasonInterval)
	}
	if d.Message != "等待 15 秒" {
		t.Fatalf("message = %q", d.Message)
	}

	half, hour, _ := l.Snapshot("u1")
	if half != 1 || hour != 1 {
		t.Fatalf("counters after one commit: half=%d hour=%d", half, hour)
	}

	clk.advance(15 * time.Second)
	if d := l.Admit("u1"); !d.Allowed {
		t.Fatalf("admit after full interval denied: %+v", d)
	}
}

func TestHalfHourLimit(t *testing.T) {
	l, clk := newTestLimiter()

	for i := 0; i < HalfHourLimit; i++ {
		if d := l.Admit("u1"); !d.Allowed {
			t.Fatalf("send %d denied: %+v", i, d)
		}
		l.Commit("u1")
		clk.advance(MinInterval)
	}

	d := l.Admit("u1")
	if d.Allowed {
		t.Fatal("expected half-hour denial")
	}
	if d.Reason != ReasonHalfHourLimit {
		t.Fatalf("reason = %q, want %q", d.Reason, ReasonHalfHourLimit)
	}

	// after the half hour window resets, sends resume
	clk.advance(30 * time.Minute)
	if d := l.Admit("u1"); !d.Allowed {
		t.Fatalf("admit after window reset denied: %+v", d)
	}
}

func TestHourLimit(t *testing.T) {
	l, clk := newTestLimiter()

	sent := 0
	for sent < HourLimit {
		d := l.Admit("u1")
		if !d.Allowed {
			// half hour cap mid-way; wait it out
			if d.Reason != ReasonHalfHourLimit {
				t.Fatalf("unexpected denial: %+v", d)
			}
			clk.advance(d.Wait)
			continue
		}
		l.Commit("u1")
		sent++
		clk.advance(MinInterval)
	}

	d := l.Admit("u1")
	if d.Allowed {
		t.Fatal("expected hour denial")
	}
	if d.Reason != ReasonHourLimit {
		t.Fatalf("reason = %q, want %q", d.Reason, ReasonHourLimit)
	}
}

func TestUsersIndependent(t *testing.T) {
	l, clk := newTestLimiter()

	if d := l.Admit("u1"); !d.Allowed {
		t.Fatalf("u1 admit: %+v", d)
	}
	l.Commit("u1")
	clk.advance(time.Second)

	if d := l.Admit("u2"); !d.Allowed {
		t.Fatalf("u2 blocked by u1 send: %+v", d)
	}
}
