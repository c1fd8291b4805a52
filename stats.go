// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package mtx

import "sync/atomic"

// Stats holds a Mutex's event counters.
type Stats struct {
	acquired    atomic.Int64
	contended   atomic.Int64
	reentered   atomic.Int64
	busy        atomic.Int64
	timedOut    atomic.Int64
	errors      atomic.Int64
	polls       atomic.Int64
	unlocks     atomic.Int64
	usageErrors atomic.Int64
}

func (s *Stats) reset() {
	*s = Stats{}
}

// Counters is a point-in-time copy of a Mutex's Stats.
//
// The fields are read one at a time, so a Counters taken while the Mutex is
// in use need not add up exactly.
type Counters struct {
	Acquired    int64 `json:"acquired"`    // successful lock operations, including re-entries
	Contended   int64 `json:"contended"`   // acquisitions that had to block or poll
	Reentered   int64 `json:"reentered"`   // acquisitions by the owner of a recursive Mutex
	Busy        int64 `json:"busy"`        // attempts that failed with ErrBusy
	TimedOut    int64 `json:"timedOut"`    // attempts that failed with ErrTimedOut
	Errors      int64 `json:"errors"`      // attempts that failed with ErrUnexpected
	Polls       int64 `json:"polls"`       // failed polling attempts by timed locks
	Unlocks     int64 `json:"unlocks"`     // successful Unlock calls
	UsageErrors int64 `json:"usageErrors"` // usage errors reported, whatever the Policy
}

func (s *Stats) counters() Counters {
	return Counters{
		Acquired:    s.acquired.Load(),
		Contended:   s.contended.Load(),
		Reentered:   s.reentered.Load(),
		Busy:        s.busy.Load(),
		TimedOut:    s.timedOut.Load(),
		Errors:      s.errors.Load(),
		Polls:       s.polls.Load(),
		Unlocks:     s.unlocks.Load(),
		UsageErrors: s.usageErrors.Load(),
	}
}

func (s *Stats) record(st Status) {
	switch st {
	case StatusSuccess:
		s.acquired.Add(1)
	case StatusBusy:
		s.busy.Add(1)
	case StatusTimedOut:
		s.timedOut.Add(1)
	case StatusError:
		s.errors.Add(1)
	}
}

// Stats returns a copy of m's counters.
func (m *Mutex) Stats() Counters {
	return m.stats.counters()
}
