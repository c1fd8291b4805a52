// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/tailscale/mtx"
	"golang.org/x/sync/errgroup"
)

type stressConfig struct {
	mode     mtx.Mode
	section  string
	workers  int
	duration time.Duration
	timeout  time.Duration // per TimedLock attempt; 0 means Lock
	hold     time.Duration
	depth    int // acquisitions per turn on a recursive mutex
}

// report is what a stress run prints.
type report struct {
	Mode     mtx.Mode     `json:"mode"`
	Section  string       `json:"section"`
	Workers  int          `json:"workers"`
	Elapsed  string       `json:"elapsed"`
	Turns    int64        `json:"turns"`    // times a worker held the mutex
	Failures int64        `json:"failures"` // attempts that got ErrBusy or ErrTimedOut
	Counters mtx.Counters `json:"counters"`
	Final    mtx.State    `json:"final"`
}

// stressRun is the shared state of one run's workers.
type stressRun struct {
	m      *mtx.Mutex
	cfg    stressConfig
	inside atomic.Int32

	turns    atomic.Int64
	failures atomic.Int64
}

// runStress runs cfg.workers goroutines that take turns holding m until
// cfg.duration has passed or ctx is done, checking that no two of them ever
// hold m at once.
func runStress(ctx context.Context, m *mtx.Mutex, cfg stressConfig) (*report, error) {
	if cfg.workers < 1 {
		return nil, fmt.Errorf("need at least one worker, got %d", cfg.workers)
	}
	if cfg.depth < 1 || !cfg.mode.Has(mtx.Recursive) {
		cfg.depth = 1
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	r := &stressRun{m: m, cfg: cfg}
	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for range cfg.workers {
		g.Go(func() error { return r.work(ctx) })
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &report{
		Mode:     cfg.mode,
		Section:  cfg.section,
		Workers:  cfg.workers,
		Elapsed:  time.Since(start).Round(time.Millisecond).String(),
		Turns:    r.turns.Load(),
		Failures: r.failures.Load(),
		Counters: m.Stats(),
		Final:    m.Snapshot(),
	}, nil
}

func (r *stressRun) work(ctx context.Context) error {
	for n := 0; ctx.Err() == nil; n++ {
		ok, err := r.lock(n)
		if err != nil {
			return err
		}
		if !ok {
			r.failures.Add(1)
			runtime.Gosched()
			continue
		}
		if err := r.turn(); err != nil {
			return err
		}
	}
	return nil
}

// lock makes one attempt to acquire the mutex, with an operation picked by
// n among those the mode allows.
func (r *stressRun) lock(n int) (ok bool, err error) {
	m := r.m
	mode := m.Mode()
	switch {
	case mode.Has(mtx.Timed) && r.cfg.timeout > 0 && n%2 == 0:
		err = m.TimedLockFor(r.cfg.timeout)
	case mode.Has(mtx.Try) && n%3 == 0:
		err = m.TryLock()
	default:
		err = m.Lock()
	}
	if errors.Is(err, mtx.ErrBusy) || errors.Is(err, mtx.ErrTimedOut) {
		return false, nil
	}
	return err == nil, err
}

// turn runs with the mutex held once, re-enters it if it is recursive, and
// releases every level it holds, even when it fails partway.
func (r *stressRun) turn() (err error) {
	held := 1
	n := r.inside.Add(1)
	defer func() {
		r.inside.Add(-1)
		for ; held > 0; held-- {
			if uerr := r.m.Unlock(); uerr != nil && err == nil {
				err = uerr
			}
		}
	}()
	if n != 1 {
		return fmt.Errorf("mutual exclusion violated: %d goroutines hold the mutex", n)
	}
	r.turns.Add(1)
	for ; held < r.cfg.depth; held++ {
		if err := r.m.Lock(); err != nil {
			return fmt.Errorf("re-entering at depth %d: %w", held, err)
		}
	}
	if got := r.m.Depth(); got != r.cfg.depth {
		return fmt.Errorf("depth = %d; want %d", got, r.cfg.depth)
	}
	if r.cfg.hold > 0 {
		time.Sleep(r.cfg.hold)
	}
	return nil
}
