// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package mtx provides Mutex, a mutual exclusion lock that can be made
// recursive, try-capable and timed, on top of any critical section that
// offers only Lock, TryLock and Unlock.
//
// Every lock operation funnels into one acquisition routine that is given
// an optional deadline:
//
//   - no deadline: block on the critical section until it is acquired;
//   - a zero deadline, or one that has already passed: try once, never block;
//   - a future deadline: poll the critical section until it is acquired or
//     the deadline passes. Critical sections have no timed wait, so timed
//     acquisition never blocks on one.
//
// The Mutex records which execution context (goroutine) owns it and how many
// times the owner has acquired it. An owner never blocks on its own Mutex:
// a recursive Mutex counts the extra acquisition, any other Mutex rejects it
// with ErrBusy (or ErrTimedOut from TimedLock).
//
// Waiters are not served in arrival order.
package mtx

import (
	"errors"
	"fmt"
	"strings"
)

// Mode is the set of capabilities a Mutex is created with.
//
// Plain and Recursive are the base kinds. Try and Timed are capabilities that
// combine with either base kind. A Mode consisting of only Timed, or only
// Recursive, is valid.
type Mode uint32

// The values match the flag values used by C runtimes for the same modes.
const (
	Plain     Mode = 0x01
	Try       Mode = 0x02
	Timed     Mode = 0x04
	Recursive Mode = 0x100

	allModes = Plain | Try | Timed | Recursive
)

// Has reports whether m has every flag in f.
func (m Mode) Has(f Mode) bool { return m&f == f }

// Valid reports whether m is non-zero and has no unknown flags.
func (m Mode) Valid() bool { return m != 0 && m&^allModes == 0 }

// canTry reports whether TryLock is allowed.
func (m Mode) canTry() bool { return m&(Try|Timed) != 0 }

// isBase reports whether m has neither the Try nor the Timed capability.
// Locks on such a mutex always block until acquired.
func (m Mode) isBase() bool { return m&^Recursive == Plain }

var modeNames = []struct {
	m    Mode
	name string
}{
	{Plain, "plain"},
	{Try, "try"},
	{Timed, "timed"},
	{Recursive, "recursive"},
}

func (m Mode) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for _, mn := range modeNames {
		if m.Has(mn.m) {
			parts = append(parts, mn.name)
		}
	}
	if rest := m &^ allModes; rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMode, m)
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	var out Mode
	for _, part := range strings.Split(string(b), "|") {
		found := false
		for _, mn := range modeNames {
			if part == mn.name {
				out |= mn.m
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown flag %q", ErrInvalidMode, part)
		}
	}
	*m = out
	return nil
}

// ParseMode parses a mode written as flag names joined by "|", such as
// "recursive|timed".
func ParseMode(s string) (Mode, error) {
	var m Mode
	err := m.UnmarshalText([]byte(s))
	return m, err
}

// Status is the outcome of a lock attempt.
type Status int

const (
	// StatusSuccess means the lock was acquired.
	StatusSuccess Status = iota
	// StatusBusy means a non-blocking attempt found the lock held.
	StatusBusy
	// StatusTimedOut means the deadline passed before the lock was acquired.
	StatusTimedOut
	// StatusError means the lock's bookkeeping disagreed with its critical
	// section. The critical section is left released.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusBusy:
		return "busy"
	case StatusTimedOut:
		return "timed out"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Err returns the error reported for s, or nil for StatusSuccess.
func (s Status) Err() error {
	switch s {
	case StatusSuccess:
		return nil
	case StatusBusy:
		return ErrBusy
	case StatusTimedOut:
		return ErrTimedOut
	}
	return ErrUnexpected
}

var (
	// ErrBusy is returned when a lock could not be acquired without blocking.
	ErrBusy = errors.New("mtx: busy")
	// ErrTimedOut is returned when a timed lock's deadline passed.
	ErrTimedOut = errors.New("mtx: timed out")
	// ErrUnexpected is returned when a Mutex's owner bookkeeping is found
	// inconsistent with its critical section.
	ErrUnexpected = errors.New("mtx: owner bookkeeping inconsistent with critical section")
	// ErrInvalidMode is returned for a zero Mode or one with unknown flags.
	ErrInvalidMode = errors.New("mtx: invalid mode")
)

// Usage errors. They report a caller breaking the Mutex contract and are
// wrapped in a *UsageError.
var (
	// ErrUsage matches every usage error with errors.Is.
	ErrUsage = errors.New("mtx: usage error")

	ErrNotOwner    = errors.New("unlock of unowned mutex")
	ErrBusyDestroy = errors.New("mutex destroyed while busy")
	ErrNotTryable  = errors.New("trylock not supported by mutex")
	ErrNotTimed    = errors.New("timedlock not supported by mutex")
	ErrDestroyed   = errors.New("use of destroyed mutex")
	ErrReinit      = errors.New("mutex initialized while busy")
)

// UsageError reports a violated precondition of a Mutex operation.
type UsageError struct {
	Op   string // the operation, such as "lock" or "unlock"
	Name string // the Mutex's name, if it has one
	Err  error  // one of the usage errors, such as ErrNotOwner
}

func (e *UsageError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("mtx: %s %s: %v", e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("mtx: %s: %v", e.Op, e.Err)
}

// Unwrap returns the specific usage error and ErrUsage.
func (e *UsageError) Unwrap() []error { return []error{e.Err, ErrUsage} }
