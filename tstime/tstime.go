// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package tstime defines the time source used by timed lock acquisition.
package tstime

import "time"

// Clock offers a subset of the functionality from the std/time package.
// Normally, applications will use the StdClock implementation that calls the
// appropriate std/time exported funcs. The advantage of using Clock is that
// tests can substitute a different implementation, allowing the test to
// control time precisely, something required for certain types of tests to
// be possible at all, speeds up execution by not needing to sleep, and can
// dramatically reduce the risk of flaky tests due to variable timing.
type Clock interface {
	// Now returns the current time, as in time.Now.
	Now() time.Time
	// Since returns the time elapsed since t, as in time.Since.
	Since(t time.Time) time.Duration
}

// StdClock is a simple implementation of Clock using the relevant funcs in the
// std/time package.
type StdClock struct{}

// Now calls time.Now.
func (StdClock) Now() time.Time {
	return time.Now()
}

// Since calls time.Since.
func (StdClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// Or returns c, or StdClock if c is nil.
func Or(c Clock) Clock {
	if c == nil {
		return StdClock{}
	}
	return c
}

// Timespec is a point in time split into whole seconds and nanoseconds
// since the Unix epoch, the representation used by C time sources.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// TimespecOf returns t as a Timespec.
func TimespecOf(t time.Time) Timespec {
	return Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Time returns ts as a time.Time. The zero Timespec maps to the zero
// time.Time, not to the Unix epoch, so that "no time at all" survives the
// round trip.
func (ts Timespec) Time() time.Time {
	if ts == (Timespec{}) {
		return time.Time{}
	}
	return time.Unix(ts.Sec, ts.Nsec)
}
