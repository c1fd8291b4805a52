// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package ctxid identifies the execution context (goroutine) that is
// calling into a lock, so that the lock can tell its owner apart from
// everybody else.
package ctxid

import (
	"strconv"

	"github.com/petermattis/goid"
)

// ID identifies an execution context.
//
// The zero value is Unset and never identifies a live goroutine.
type ID int64

// Unset is the ID of no execution context.
const Unset ID = 0

// IsSet reports whether id refers to an execution context.
func (id ID) IsSet() bool { return id != Unset }

func (id ID) String() string {
	if id == Unset {
		return "none"
	}
	return "g" + strconv.FormatInt(int64(id), 10)
}

// Provider returns the ID of the calling execution context.
//
// A Provider must return the same set ID for every call made from one
// execution context while it is alive, and distinct IDs for contexts
// that are alive at the same time.
type Provider func() ID

// Current returns the ID of the calling goroutine.
//
// Goroutine IDs start at 1, so Current never returns Unset.
func Current() ID {
	return ID(goid.Get())
}

// Or returns p, or Current if p is nil.
func (p Provider) Or() Provider {
	if p == nil {
		return Current
	}
	return p
}
