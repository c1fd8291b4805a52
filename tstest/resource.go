// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package tstest

import (
	"bytes"
	"runtime"
	"runtime/pprof"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// leakGrace is how long ResourceCheck lets goroutines finish exiting.
const leakGrace = 3 * time.Second

// ResourceCheck records the goroutines running now and registers a cleanup
// on tb that fails the test if more are still running once it is over.
//
// Lock tests start waiters that must all have returned or timed out by the
// end of the test; a leftover goroutine is usually a waiter stuck on a
// section nobody released, and its stack is logged.
//
// It panics if called from a parallel test.
func ResourceCheck(tb testing.TB) {
	tb.Helper()

	// tb.Setenv panics in parallel tests, which is the point.
	tb.Setenv("MTX_CHECKING_RESOURCES", "1")

	before := snapshotGoroutines()
	tb.Cleanup(func() {
		if tb.Failed() {
			// Doesn't catch panics; see https://github.com/golang/go/issues/49929.
			return
		}
		deadline := time.Now().Add(leakGrace)
		for time.Now().Before(deadline) {
			if runtime.NumGoroutine() <= before.n {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		after := snapshotGoroutines()
		if after.n <= before.n {
			return
		}
		tb.Logf("goroutine diff (-before +after):\n%v", cmp.Diff(before.stacks, after.stacks))

		// Not Fatal: a pending panic would otherwise go unreported.
		tb.Errorf("goroutine count: expected %d, got %d", before.n, after.n)
	})
}

type goroutineSnapshot struct {
	n      int
	stacks []string // one entry per distinct stack, as reported by pprof
}

func snapshotGoroutines() goroutineSnapshot {
	p := pprof.Lookup("goroutine")
	var b bytes.Buffer
	p.WriteTo(&b, 1)
	var stacks []string
	for _, s := range strings.Split(b.String(), "\n\n") {
		if s = strings.TrimSpace(s); s != "" {
			stacks = append(stacks, s)
		}
	}
	return goroutineSnapshot{n: p.Count(), stacks: stacks}
}
