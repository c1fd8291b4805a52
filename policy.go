// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package mtx

import "github.com/tailscale/mtx/envknob"

// Policy selects what a Mutex does when a caller breaks its contract, such as
// unlocking a Mutex it does not own.
//
// Usage errors are always detected; Policy only decides how they are
// reported.
type Policy int

const (
	// PolicyDefault uses PolicyPanic if the binary was built with the
	// mtx_panic_on_misuse build tag or MTX_PANIC_ON_MISUSE is set, and
	// PolicyError otherwise.
	PolicyDefault Policy = iota
	// PolicyError returns the *UsageError to the caller.
	PolicyError
	// PolicyPanic panics with the *UsageError.
	PolicyPanic
)

func (p Policy) String() string {
	switch p {
	case PolicyDefault:
		return "default"
	case PolicyError:
		return "error"
	case PolicyPanic:
		return "panic"
	}
	return "Policy(?)"
}

// panicOnMisuseKnob makes PolicyDefault panic. Like every registered knob,
// it only follows changes made with envknob.Setenv.
var panicOnMisuseKnob = envknob.RegisterBool("MTX_PANIC_ON_MISUSE")

func (p Policy) panics() bool {
	if p == PolicyDefault {
		return panicOnMisuse || panicOnMisuseKnob()
	}
	return p == PolicyPanic
}

// misuse records and reports a usage error by op.
func (m *Mutex) misuse(op string, err error) error {
	cfg := m.config()
	ue := &UsageError{Op: op, Name: cfg.name, Err: err}
	m.stats.usageErrors.Add(1)
	cfg.logf("%s by %v: %v", op, cfg.ids(), err)
	if cfg.policy.panics() {
		panic(ue)
	}
	return ue
}
