package ui

import (
	"testing"
	"time"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time          { return f.t }
func (f *fakeNow) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestClock() (*Clock, *fakeNow) {
	f := &fakeNow{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewClock()
	c.now = f.now
	return c, f
}

func TestClock(t *testing.T) {
	t.Run("idle until started", func(t *testing.T) {
		c, _ := newTestClock()
		if c.Playing() || c.PositionMs() != 0 {
			t.Error("new clock should be idle at zero")
		}
		if c.Toggle() {
			t.Error("toggle before start must not run the clock")
		}
	})

	t.Run("advances while running", func(t *testing.T) {
		c, f := newTestClock()
		c.Start(10_000)
		f.advance(3 * time.Second)

		if !c.Playing() {
			t.Error("expected playing")
		}
		if got := c.PositionMs(); got != 3000 {
			t.Errorf("PositionMs() = %d, want 3000", got)
		}
	})

	t.Run("pause holds the position", func(t *testing.T) {
		c, f := newTestClock()
		c.Start(10_000)
		f.advance(2 * time.Second)

		if c.Toggle() {
			t.Fatal("expected paused")
		}
		f.advance(5 * time.Second)
		if got := c.PositionMs(); got != 2000 {
			t.Errorf("paused PositionMs() = %d, want 2000", got)
		}
		if c.Playing() {
			t.Error("paused clock is not playing")
		}

		if !c.Toggle() {
			t.Fatal("expected running")
		}
		f.advance(time.Second)
		if got := c.PositionMs(); got != 3000 {
			t.Errorf("resumed PositionMs() = %d, want 3000", got)
		}
	})

	t.Run("stops at the end of the track", func(t *testing.T) {
		c, f := newTestClock()
		c.Start(4_000)
		f.advance(10 * time.Second)

		if c.Playing() {
			t.Error("clock past the end is not playing")
		}
		if got := c.PositionMs(); got != 4000 {
			t.Errorf("PositionMs() = %d, want clamp to 4000", got)
		}
	})

	t.Run("start resets", func(t *testing.T) {
		c, f := newTestClock()
		c.Start(4_000)
		f.advance(3 * time.Second)
		c.Start(8_000)

		if got := c.PositionMs(); got != 0 {
			t.Errorf("PositionMs() = %d after restart", got)
		}
		if c.DurationMs() != 8_000 {
			t.Errorf("DurationMs() = %d", c.DurationMs())
		}
	})
}
