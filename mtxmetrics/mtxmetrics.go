// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package mtxmetrics exports the counters of named mtx.Mutexes as
// Prometheus metrics.
package mtxmetrics

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tailscale/mtx"
	"github.com/tailscale/mtx/types/logger"
)

const mutexKey = "mutex"

// counterFields lists the mtx.Counters exported as Prometheus counters.
var counterFields = []struct {
	name, help string
	get        func(mtx.Counters) int64
}{
	{"acquired_total", "Successful lock operations, including re-entries.", func(c mtx.Counters) int64 { return c.Acquired }},
	{"contended_total", "Acquisitions that had to block or poll.", func(c mtx.Counters) int64 { return c.Contended }},
	{"reentered_total", "Re-entrant acquisitions of recursive mutexes.", func(c mtx.Counters) int64 { return c.Reentered }},
	{"busy_total", "Lock attempts that failed because the mutex was held.", func(c mtx.Counters) int64 { return c.Busy }},
	{"timed_out_total", "Timed lock attempts whose deadline passed.", func(c mtx.Counters) int64 { return c.TimedOut }},
	{"errors_total", "Lock attempts that found inconsistent ownership.", func(c mtx.Counters) int64 { return c.Errors }},
	{"polls_total", "Failed polling attempts by timed locks.", func(c mtx.Counters) int64 { return c.Polls }},
	{"unlocks_total", "Successful unlocks.", func(c mtx.Counters) int64 { return c.Unlocks }},
	{"usage_errors_total", "Usage errors, such as unlocking an unowned mutex.", func(c mtx.Counters) int64 { return c.UsageErrors }},
}

// Collector is a prometheus.Collector for a set of mutexes, labeled by
// their names.
type Collector struct {
	logf logger.Logf

	mu      sync.Mutex
	mutexes map[string]*mtx.Mutex
	last    map[string]mtx.Counters

	registry *prometheus.Registry
	counters []*prometheus.CounterVec // parallel to counterFields
	depth    *prometheus.GaugeVec
}

// NewCollector returns an empty Collector whose metrics are named
// "<namespace>_<counter>". A nil logf discards logs.
func NewCollector(namespace string, logf logger.Logf) *Collector {
	c := &Collector{
		logf:     logger.Or(logf),
		mutexes:  make(map[string]*mtx.Mutex),
		last:     make(map[string]mtx.Counters),
		registry: prometheus.NewRegistry(),
	}
	for _, f := range counterFields {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      f.name,
			Help:      f.help,
		}, []string{mutexKey})
		c.counters = append(c.counters, cv)
		c.registry.MustRegister(cv)
	}
	c.depth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "depth",
		Help:      "Unreleased acquisitions of the mutex.",
	}, []string{mutexKey})
	c.registry.MustRegister(c.depth)
	return c
}

var errNoName = errors.New("mtxmetrics: mutex has no name")

// Add starts exporting m's counters under m's name.
// m must have a name that no other added mutex has.
func (c *Collector) Add(m *mtx.Mutex) error {
	name := m.Name()
	if name == "" {
		return errNoName
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.mutexes[name]; dup {
		return fmt.Errorf("mtxmetrics: duplicate mutex name %q", name)
	}
	c.mutexes[name] = m
	return nil
}

// Remove stops exporting m's counters and drops its series.
func (c *Collector) Remove(m *mtx.Mutex) {
	name := m.Name()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mutexes[name] != m {
		return
	}
	delete(c.mutexes, name)
	delete(c.last, name)
	for _, cv := range c.counters {
		cv.DeleteLabelValues(name)
	}
	c.depth.DeleteLabelValues(name)
}

// update moves each mutex's counters forward to its current Stats.
func (c *Collector) update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, m := range c.mutexes {
		now := m.Stats()
		last := c.last[name]
		for i, f := range counterFields {
			delta := f.get(now) - f.get(last)
			if delta < 0 {
				// The mutex was re-initialized and its counters restarted.
				c.logf("mtxmetrics: %s of %q went backwards; counting from zero", f.name, name)
				delta = f.get(now)
			}
			if delta > 0 {
				c.counters[i].WithLabelValues(name).Add(float64(delta))
			}
		}
		c.last[name] = now
		c.depth.WithLabelValues(name).Set(float64(m.Depth()))
	}
}

// Describe is part of the implementation of prometheus.Collector.
func (c *Collector) Describe(descCh chan<- *prometheus.Desc) {
	c.registry.Describe(descCh)
}

// Collect is part of the implementation of prometheus.Collector.
func (c *Collector) Collect(metricCh chan<- prometheus.Metric) {
	c.update()
	c.registry.Collect(metricCh)
}
