// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package critsec contains the critical sections that a mtx.Mutex is built
// on.
//
// A critical section is a binary lock with exactly three operations: Lock,
// TryLock and Unlock. It has no timeout support, no notion of an owner and
// no recursion. Ownership, recursion and deadlines are layered on top by
// package mtx, which only ever talks to a critical section through the
// Section interface.
package critsec

import (
	"context"
	"fmt"
	"sort"
	"sync"

	lock "github.com/viney-shih/go-lock"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/cpu"
	gsync "gvisor.dev/gvisor/pkg/sync"
)

// Section is a binary, non-recursive, non-timed blocking lock.
//
// Unlock may be called by a goroutine other than the one that called Lock.
// *sync.Mutex satisfies Section.
type Section interface {
	// Lock blocks until the section is acquired.
	Lock()
	// TryLock acquires the section if it's free and reports whether it did.
	// It never blocks.
	TryLock() bool
	// Unlock releases the section. It's a run-time error to unlock a free
	// section.
	Unlock()
}

// Destroyer is implemented by sections that need to be told when their
// owning mutex is destroyed.
type Destroyer interface {
	Destroy()
}

// Std returns a Section backed by a sync.Mutex.
func Std() Section { return new(sync.Mutex) }

// CrossGoroutine returns a Section backed by gVisor's CrossGoroutineMutex,
// which documents that it may be unlocked by a goroutine that did not lock
// it.
func CrossGoroutine() Section { return new(gsync.CrossGoroutineMutex) }

// CAS returns a Section backed by a compare-and-swap mutex.
func CAS() Section { return lock.NewCASMutex() }

// Semaphore returns a Section backed by a weighted semaphore of size one.
func Semaphore() Section {
	return &semaphoreSection{w: semaphore.NewWeighted(1)}
}

type semaphoreSection struct {
	w *semaphore.Weighted
}

func (s *semaphoreSection) Lock() {
	// Acquire only fails when its context is done, and Background never is.
	if err := s.w.Acquire(context.Background(), 1); err != nil {
		panic(err)
	}
}

func (s *semaphoreSection) TryLock() bool { return s.w.TryAcquire(1) }

func (s *semaphoreSection) Unlock() { s.w.Release(1) }

// Padded is a sync.Mutex padded out to its own cache line, for arrays of
// sections that are hammered by different CPUs.
//
// The zero value is an unlocked section.
type Padded struct {
	mu sync.Mutex
	_  cpu.CacheLinePad // avoid false sharing with neighboring sections
}

func (p *Padded) Lock()         { p.mu.Lock() }
func (p *Padded) TryLock() bool { return p.mu.TryLock() }
func (p *Padded) Unlock()       { p.mu.Unlock() }

// Factory returns a new, unlocked Section.
type Factory func() Section

var factories = map[string]Factory{
	"std":       Std,
	"gvisor":    CrossGoroutine,
	"cas":       CAS,
	"semaphore": Semaphore,
	"padded":    func() Section { return new(Padded) },
}

// Lookup returns the Factory registered under name.
func Lookup(name string) (Factory, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("critsec: unknown section kind %q (want one of %v)", name, Names())
	}
	return f, nil
}

// Names returns the sorted names accepted by Lookup.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
