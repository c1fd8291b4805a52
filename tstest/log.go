// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package tstest provides utilities for use in unit tests.
package tstest

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/tailscale/mtx/types/logger"
)

// WhileTestRunningLogger returns a logger.Logf that logs to t.Logf until the
// test finishes, at which point it no longer logs anything. Lock
// diagnostics may be emitted by goroutines that outlive the test function,
// and t.Logf panics once the test is complete.
func WhileTestRunningLogger(t testing.TB) logger.Logf {
	var (
		mu   sync.Mutex
		done bool
	)
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		done = true
	})
	return func(format string, args ...any) {
		t.Helper()
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		t.Logf(format, args...)
	}
}

// LogRecorder is a logger.Logf sink that keeps every line, for tests that
// assert on what was logged.
type LogRecorder struct {
	mu    sync.Mutex
	lines []string
}

// Logf records the formatted line. It can be passed wherever a logger.Logf
// is expected.
func (r *LogRecorder) Logf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

// Lines returns a copy of the recorded lines.
func (r *LogRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Contains reports whether any recorded line contains substr.
func (r *LogRecorder) Contains(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
