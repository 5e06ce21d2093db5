// Package testutil holds helpers shared by package tests.
package testutil

import (
	"sync"
	"time"
)

// Clock provides deterministic, monotonically increasing timestamps.
// Pass [Clock.Now] wherever a package accepts a time source.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewClock returns a clock initialized to a fixed UTC start time that
// advances by one second per call.
func NewClock() *Clock {
	return NewClockAt(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), time.Second)
}

// NewClockAt returns a clock that starts at start and advances by step per call.
// A zero step freezes the clock, which is useful for same-millisecond tests.
func NewClockAt(start time.Time, step time.Duration) *Clock {
	return &Clock{current: start, step: step}
}

// Now returns the current time and then advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.current
	c.current = c.current.Add(c.step)

	return now
}

// NextTimestamp returns the next timestamp in RFC3339 format.
func (c *Clock) NextTimestamp() string {
	return c.Now().Format(time.RFC3339)
}
