// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package mtx

import (
	"github.com/tailscale/mtx/critsec"
	"github.com/tailscale/mtx/ctxid"
)

// Unlock releases one acquisition of m by the caller. The critical section
// is released when the last one is.
//
// Unlocking a Mutex the caller does not own is a usage error.
func (m *Mutex) Unlock() error {
	if m.destroyed.Load() {
		return m.misuse("unlock", ErrDestroyed)
	}
	me := m.config().ids()
	if !m.ownedBy(me) {
		return m.misuse("unlock", ErrNotOwner)
	}
	m.stats.unlocks.Add(1)
	if m.depth.Add(-1) == 0 {
		m.owner.Store(int64(ctxid.Unset))
		m.section().Unlock()
	}
	return nil
}

// RelinquishOwnership drops the caller's ownership record of m: it
// decrements the depth and clears the owner. The critical section is left
// as it is.
//
// It is for code that waits on m's critical section directly, such as a
// condition variable, and releases the section itself using Section.
// Calls are not checked; the caller must own m.
func (m *Mutex) RelinquishOwnership() {
	m.owner.Store(int64(ctxid.Unset))
	m.depth.Add(-1)
}

// ReclaimOwnership records the caller as m's owner and increments the
// depth, undoing RelinquishOwnership once the caller has reacquired the
// critical section itself. Calls are not checked.
func (m *Mutex) ReclaimOwnership() {
	m.owner.Store(int64(m.config().ids()))
	m.depth.Add(1)
}

// Section returns the critical section m is built on.
//
// Locking or unlocking it directly bypasses m's bookkeeping; pair such uses
// with RelinquishOwnership and ReclaimOwnership.
func (m *Mutex) Section() critsec.Section { return m.section() }

// CurrentOwns reports whether the calling execution context owns m.
func (m *Mutex) CurrentOwns() bool {
	return m.ownedBy(m.config().ids())
}

// Depth returns the number of unreleased acquisitions of m.
func (m *Mutex) Depth() int { return int(m.depth.Load()) }

// Owner returns the ID of m's owner, and whether m is owned at all.
func (m *Mutex) Owner() (ctxid.ID, bool) {
	if m.depth.Load() == 0 {
		return ctxid.Unset, false
	}
	id := ctxid.ID(m.owner.Load())
	return id, id.IsSet()
}
