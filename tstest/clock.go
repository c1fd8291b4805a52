// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package tstest

import (
	"sync"
	"time"
)

// ClockOpts configures a Clock made by NewClock.
type ClockOpts struct {
	// Start is the first value returned by Clock.Now. Give it an explicit
	// location so tests don't depend on TZ. The zero value means the
	// current time in UTC.
	Start time.Time

	// Step is how far the Clock moves on each call to Now after the first.
	// With a zero Step, simulated time only moves by Advance and AdvanceTo,
	// which lets a test hold a deadline in the future until it chooses to
	// pass it.
	Step time.Duration
}

// NewClock returns a Clock configured by co.
func NewClock(co ClockOpts) *Clock {
	c := &Clock{start: co.Start, step: co.Step}
	c.init()
	return c
}

// Clock is a simulated tstime.Clock for deadline tests. It is safe for
// concurrent use, so one goroutine can move time while another waits on
// it.
type Clock struct {
	initOnce sync.Once
	start    time.Time // not modified after init

	mu      sync.Mutex
	step    time.Duration
	present time.Time // last value returned by Now
	// skipStep is set after init and after each Advance or AdvanceTo, so
	// that the next Now returns the new time as is.
	skipStep bool
}

func (c *Clock) init() {
	c.initOnce.Do(func() {
		if c.start.IsZero() {
			c.start = time.Now().UTC()
		}
		c.present = c.start
		c.skipStep = true
	})
}

// Now returns the simulated time, then moves it forward by the step.
func (c *Clock) Now() time.Time {
	c.init()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.skipStep {
		c.skipStep = false
	} else {
		c.present = c.present.Add(c.step)
	}
	return c.present
}

// Since returns the simulated time elapsed since t. Like Now, it steps the
// clock.
func (c *Clock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// PeekNow returns the last time reported by Now without stepping.
func (c *Clock) PeekNow() time.Time {
	c.init()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.present
}

// Advance moves simulated time by d, which may be negative, and returns the
// new time. The next Now returns that time regardless of the step.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.init()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.present = c.present.Add(d)
	c.skipStep = true
	return c.present
}

// AdvanceTo sets simulated time to t. The next Now returns t regardless of
// the step.
func (c *Clock) AdvanceTo(t time.Time) {
	c.init()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.present = t
	c.skipStep = true
}

// GetStart returns the first time the Clock reported.
func (c *Clock) GetStart() time.Time {
	c.init()
	return c.start
}
