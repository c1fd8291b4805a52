// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package tstest

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestClockStep(t *testing.T) {
	c := qt.New(t)
	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	clock := NewClock(ClockOpts{Start: start, Step: time.Second})

	c.Assert(clock.Now(), qt.Equals, start) // first call does not step
	c.Assert(clock.Now(), qt.Equals, start.Add(time.Second))
	c.Assert(clock.PeekNow(), qt.Equals, start.Add(time.Second))
	c.Assert(clock.Since(start), qt.Equals, 2*time.Second)
}

func TestClockAdvance(t *testing.T) {
	c := qt.New(t)
	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	clock := NewClock(ClockOpts{Start: start, Step: time.Second})

	c.Assert(clock.Advance(time.Minute), qt.Equals, start.Add(time.Minute))
	// Now after Advance skips the step once.
	c.Assert(clock.Now(), qt.Equals, start.Add(time.Minute))
	c.Assert(clock.Now(), qt.Equals, start.Add(time.Minute+time.Second))

	later := start.Add(time.Hour)
	clock.AdvanceTo(later)
	c.Assert(clock.Now(), qt.Equals, later)
	c.Assert(clock.GetStart(), qt.Equals, start)
}

func TestClockZeroStep(t *testing.T) {
	c := qt.New(t)
	start := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	clock := NewClock(ClockOpts{Start: start})

	for range 3 {
		c.Assert(clock.Now(), qt.Equals, start)
	}
	c.Assert(clock.Advance(-time.Second), qt.Equals, start.Add(-time.Second))
	c.Assert(clock.Now(), qt.Equals, start.Add(-time.Second))
	c.Assert(clock.Now(), qt.Equals, start.Add(-time.Second))
}

func TestClockDefaultStart(t *testing.T) {
	before := time.Now()
	clock := NewClock(ClockOpts{})
	if got := clock.Now(); got.Before(before) || got.Location() != time.UTC {
		t.Errorf("Now() = %v; want a UTC time after %v", got, before)
	}
}

func TestLogRecorder(t *testing.T) {
	var r LogRecorder
	r.Logf("mtx[%s]: %d polls", "a", 3)
	if !r.Contains("3 polls") {
		t.Errorf("Lines() = %q; want a line containing %q", r.Lines(), "3 polls")
	}
}

func TestWhileTestRunningLogger(t *testing.T) {
	logf := WhileTestRunningLogger(t)
	logf("hello %s", "world")
}
