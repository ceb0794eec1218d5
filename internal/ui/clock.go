package ui

import (
	"sync"
	"time"

	"github.com/desertthunder/dashtune/internal/tasks"
)

var _ tasks.PlayerState = (*Clock)(nil)

// Clock tracks the playback position of the current queue entry.
//
// The browser does not decode audio; the clock stands in for the player so the position
// poller has something to save.
type Clock struct {
	mu       sync.Mutex
	now      func() time.Time
	started  time.Time
	offset   int64
	duration int64
	running  bool
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Start restarts the clock at zero for a track of the given length.
func (c *Clock) Start(durationMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = 0
	c.duration = durationMs
	c.started = c.now()
	c.running = true
}

// Toggle pauses or resumes and reports whether the clock is now running.
func (c *Clock) Toggle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started.IsZero() {
		return false
	}
	if c.running {
		c.offset = c.position()
		c.running = false
	} else {
		c.started = c.now()
		c.running = true
	}
	return c.running
}

// Playing is false once the track has run to its end.
func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && (c.duration <= 0 || c.position() < c.duration)
}

// PositionMs never exceeds the track length.
func (c *Clock) PositionMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos := c.position()
	if c.duration > 0 {
		pos = min(pos, c.duration)
	}
	return pos
}

// DurationMs is the length passed to the last Start.
func (c *Clock) DurationMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

func (c *Clock) position() int64 {
	if !c.running {
		return c.offset
	}
	return c.offset + c.now().Sub(c.started).Milliseconds()
}
