// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package mtx

import (
	"github.com/tailscale/mtx/ctxid"
	"github.com/tailscale/mtx/types/opt"
)

// State is a point-in-time view of a Mutex, for debugging.
type State struct {
	Name      string              `json:"name,omitempty"`
	Mode      Mode                `json:"mode"`
	Owner     opt.Value[ctxid.ID] `json:"owner"` // null when not held
	Depth     int                 `json:"depth"`
	Destroyed bool                `json:"destroyed,omitzero"`
}

// Snapshot returns m's current state. The fields are read one at a time
// and may be inconsistent if m is in use.
func (m *Mutex) Snapshot() State {
	st := State{
		Name:      m.Name(),
		Mode:      m.Mode(),
		Depth:     m.Depth(),
		Destroyed: m.destroyed.Load(),
	}
	if id, ok := m.Owner(); ok {
		st.Owner.Set(id)
	}
	return st
}
