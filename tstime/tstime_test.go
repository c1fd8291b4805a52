// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package tstime

import (
	"testing"
	"time"
)

func TestTimespecRoundTrip(t *testing.T) {
	in := time.Date(2026, 10, 19, 15, 56, 0, 148487491, time.UTC)
	ts := TimespecOf(in)
	if ts.Sec != in.Unix() || ts.Nsec != 148487491 {
		t.Fatalf("TimespecOf(%v) = %+v", in, ts)
	}
	if got := ts.Time(); !got.Equal(in) {
		t.Errorf("round trip = %v; want %v", got, in)
	}
}

func TestTimespecZero(t *testing.T) {
	if got := (Timespec{}).Time(); !got.IsZero() {
		t.Errorf("zero Timespec.Time() = %v; want zero time", got)
	}
}

func TestOr(t *testing.T) {
	if _, ok := Or(nil).(StdClock); !ok {
		t.Errorf("Or(nil) = %T; want StdClock", Or(nil))
	}
	var c Clock = StdClock{}
	if Or(c) != c {
		t.Error("Or(c) did not return c")
	}
}

func TestStdClockSince(t *testing.T) {
	var c StdClock
	start := c.Now()
	time.Sleep(time.Millisecond)
	if d := c.Since(start); d < time.Millisecond {
		t.Errorf("Since = %v after sleeping 1ms", d)
	}
}
