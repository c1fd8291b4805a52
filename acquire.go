// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package mtx

import (
	"context"
	"runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tailscale/mtx/critsec"
	"github.com/tailscale/mtx/ctxid"
	"github.com/tailscale/mtx/tstime"
	"github.com/tailscale/mtx/types/opt"
)

// Lock acquires m, blocking until it is available.
//
// If the caller already owns m, Lock never blocks: a Recursive m counts
// one more acquisition, any other m returns ErrBusy and stays held once.
func (m *Mutex) Lock() error {
	if m.destroyed.Load() {
		return m.misuse("lock", ErrDestroyed)
	}
	return m.acquire(opt.Value[time.Time]{}, nil).Err()
}

// TryLock acquires m if that can be done without blocking, and returns
// ErrBusy otherwise. m must have the Try or Timed capability.
func (m *Mutex) TryLock() error {
	if err := m.check("trylock", m.Mode().canTry(), ErrNotTryable); err != nil {
		return err
	}
	return m.acquire(opt.ValueOf(time.Time{}), nil).Err()
}

// TimedLock acquires m, giving up with ErrTimedOut once deadline has passed.
// m must have the Timed capability.
//
// A zero deadline, or one that has already passed, makes a single attempt.
// Otherwise TimedLock polls m until it is acquired or the deadline passes;
// it never blocks on the critical section.
func (m *Mutex) TimedLock(deadline time.Time) error {
	if err := m.check("timedlock", m.Mode().Has(Timed), ErrNotTimed); err != nil {
		return err
	}
	st := m.acquire(opt.ValueOf(deadline), nil)
	if st == StatusBusy {
		st = StatusTimedOut
	}
	return st.Err()
}

// LockContext acquires m, polling until it is acquired, ctx's deadline
// passes, or ctx is canceled. m must have the Timed capability.
//
// ctx's deadline is compared against m's clock. If ctx ends first,
// LockContext returns ctx.Err(), or context.DeadlineExceeded once m's clock
// reaches the deadline.
//
// Only the polling wait watches ctx; a blocking Lock is never canceled. A
// ctx that can never be canceled, such as context.Background, makes
// LockContext block on the critical section like Lock, and nothing can
// interrupt it.
func (m *Mutex) LockContext(ctx context.Context) error {
	if err := m.check("lockcontext", m.Mode().Has(Timed), ErrNotTimed); err != nil {
		return err
	}
	done := ctx.Done()
	if done == nil {
		return m.acquire(opt.Value[time.Time]{}, nil).Err()
	}
	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		deadline = never
	}
	switch st := m.acquire(opt.ValueOf(deadline), done); st {
	case StatusTimedOut:
		if err := ctx.Err(); err != nil {
			return err
		}
		// m's clock reached the deadline before ctx's timer fired.
		return context.DeadlineExceeded
	case StatusBusy:
		// Re-entry by the owner of a non-recursive mutex.
		return ErrTimedOut
	default:
		return st.Err()
	}
}

// never is a deadline that no clock reaches.
var never = time.Unix(1<<62, 0)

// TimedLockFor is TimedLock with a deadline d from now, as told by m's
// clock.
func (m *Mutex) TimedLockFor(d time.Duration) error {
	return m.TimedLock(m.config().clock.Now().Add(d))
}

// TimedLockTimespec is TimedLock with the deadline given as seconds and
// nanoseconds since the Unix epoch. The zero Timespec makes a single
// attempt.
func (m *Mutex) TimedLockTimespec(ts tstime.Timespec) error {
	return m.TimedLock(ts.Time())
}

func (m *Mutex) check(op string, capable bool, notCapable error) error {
	if m.destroyed.Load() {
		return m.misuse(op, ErrDestroyed)
	}
	if !capable {
		return m.misuse(op, notCapable)
	}
	return nil
}

// ownedBy reports whether id currently owns m.
func (m *Mutex) ownedBy(id ctxid.ID) bool {
	return m.depth.Load() != 0 && ctxid.ID(m.owner.Load()) == id
}

// acquire is the single acquisition routine behind every lock operation.
//
// An unset deadline blocks without bound. A zero deadline, or one not after
// the clock's current time, tries once. A future deadline polls, and stops
// early if done is closed.
// A failed attempt reports StatusBusy when the deadline was unset or zero,
// and StatusTimedOut otherwise.
func (m *Mutex) acquire(dl opt.Value[time.Time], done <-chan struct{}) Status {
	cfg := m.config()
	me := cfg.ids()
	cs := m.section()

	// held is whether the caller held m before this call.
	// fresh is whether this call took the critical section.
	var held, fresh bool
	if m.Mode().isBase() {
		held = m.ownedBy(me)
		if !held {
			m.lockSection(cs)
			fresh = true
		}
	} else {
		deadline, bounded := dl.GetOk()
		held = m.ownedBy(me)
		switch {
		case held:
		case !bounded:
			m.lockSection(cs)
			fresh = true
		case deadline.IsZero() || !cfg.clock.Now().Before(deadline):
			fresh = cs.TryLock()
		default:
			fresh = m.poll(cfg, me, cs, deadline, done)
			held = !fresh && m.ownedBy(me)
		}
	}

	st := StatusSuccess
	if held || fresh {
		st = m.count(me, fresh, cs)
	} else if deadline, bounded := dl.GetOk(); !bounded || deadline.IsZero() {
		st = StatusBusy
	} else {
		st = StatusTimedOut
	}
	m.stats.record(st)
	return st
}

// lockSection blocks on cs, counting the acquisition as contended if it
// could not be taken straight away.
func (m *Mutex) lockSection(cs critsec.Section) {
	if cs.TryLock() {
		return
	}
	m.stats.contended.Add(1)
	cs.Lock()
}

// count applies the recursion policy to a tentative acquisition by me.
// fresh is whether cs was taken by this acquisition.
func (m *Mutex) count(me ctxid.ID, fresh bool, cs critsec.Section) Status {
	d := m.depth.Add(1)
	switch {
	case d == 1:
		m.owner.Store(int64(me))
		return StatusSuccess
	case fresh:
		// cs was free but the depth says it's held: the owner markers were
		// relinquished without releasing the count. Undo and let go.
		m.depth.Add(-1)
		cs.Unlock()
		m.config().logf("%v took a critical section recorded as held at depth %d", me, d-1)
		return StatusError
	case !m.Mode().Has(Recursive):
		// Re-entry into a non-recursive mutex. The critical section was not
		// taken again, so only the count is undone.
		m.depth.Add(-1)
		return StatusBusy
	}
	m.stats.reentered.Add(1)
	return StatusSuccess
}

// poll tries to take cs until it succeeds, the clock reaches deadline, or
// done is closed. It reports whether cs was taken. It also stops, without
// taking cs, if me is found to own m.
func (m *Mutex) poll(cfg *config, me ctxid.ID, cs critsec.Section, deadline time.Time, done <-chan struct{}) (took bool) {
	start := cfg.clock.Now()
	p := pacer{cfg: cfg.poll}
	var polls int64
	defer func() {
		m.stats.polls.Add(polls)
		if polls > 0 {
			m.stats.contended.Add(1)
		}
		if lim := cfg.poll.LogLongerThan; lim > 0 {
			if d := cfg.clock.Since(start); d >= lim {
				cfg.logf("timed lock by %v: acquired=%v after %v and %d polls", me, took, d.Round(time.Microsecond), polls)
			}
		}
	}()
	for now := start; now.Before(deadline); now = cfg.clock.Now() {
		if m.ownedBy(me) {
			return false
		}
		if cs.TryLock() {
			return true
		}
		polls++
		select {
		case <-done:
			return false
		default:
		}
		p.pause(deadline.Sub(now))
	}
	return false
}

// pacer spaces out polling attempts: first a run of bare yields, then
// exponentially growing sleeps.
type pacer struct {
	cfg PollConfig
	n   int
	b   *backoff.ExponentialBackOff
}

// pause waits before the next attempt, for no longer than remaining.
func (p *pacer) pause(remaining time.Duration) {
	p.n++
	if p.n <= p.cfg.Spins || p.cfg.MaxInterval <= 0 {
		runtime.Gosched()
		return
	}
	if p.b == nil {
		p.b = backoff.NewExponentialBackOff()
		p.b.InitialInterval = p.cfg.InitialInterval
		if p.b.InitialInterval <= 0 || p.b.InitialInterval > p.cfg.MaxInterval {
			p.b.InitialInterval = p.cfg.MaxInterval
		}
		p.b.MaxInterval = p.cfg.MaxInterval
		p.b.MaxElapsedTime = 0 // the deadline bounds the wait, not the backoff
		p.b.Reset()
	}
	d := p.b.NextBackOff()
	if d == backoff.Stop || d > remaining {
		d = remaining
	}
	if d > 0 {
		time.Sleep(d)
	} else {
		runtime.Gosched()
	}
}
