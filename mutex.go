// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package mtx

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tailscale/mtx/critsec"
	"github.com/tailscale/mtx/ctxid"
	"github.com/tailscale/mtx/envknob"
	"github.com/tailscale/mtx/tstime"
	"github.com/tailscale/mtx/types/logger"
)

// A Mutex is a mutual exclusion lock with an owner and a recursion depth.
//
// The zero value is an unlocked Plain mutex using the default options.
// Use New, or Init for a Mutex embedded in a larger struct, for other modes.
//
// A Mutex must not be copied after first use.
type Mutex struct {
	mode Mode            // set by Init; zero means Plain
	cs   critsec.Section // nil means mu
	mu   sync.Mutex
	cfg  *config // nil means defaultConfig()

	// owner is the ctxid.ID of the holder, or ctxid.Unset.
	// It is written only by the context that holds (or is taking) the
	// critical section, so a context comparing it to its own ID never races.
	owner atomic.Int64
	// depth is the number of unmatched acquisitions by owner.
	depth     atomic.Int32
	destroyed atomic.Bool

	stats Stats
}

// Options configures a Mutex. The zero value of each field selects its
// default.
type Options struct {
	// Section is the critical section the Mutex is built on.
	// By default the Mutex embeds a sync.Mutex.
	// The Section must be unlocked and must not be shared.
	Section critsec.Section

	// Clock is the time source for timed locks. Default tstime.StdClock.
	Clock tstime.Clock

	// Context identifies the calling execution context.
	// Default ctxid.Current, the goroutine ID.
	Context ctxid.Provider

	// Poll controls how a timed lock paces its polling.
	// The zero PollConfig selects DefaultPollConfig.
	Poll PollConfig

	// Policy selects what happens on a usage error.
	Policy Policy

	// Logf receives usage errors and slow timed acquisitions, rate limited.
	// By default nothing is logged, unless MTX_DEBUG_LOG is set, in which
	// case the standard logger is used.
	Logf logger.Logf

	// Name identifies the Mutex in logs, errors, snapshots and metrics.
	Name string
}

// PollConfig controls how a timed lock waits between attempts on a held
// critical section. It affects latency and CPU use, never correctness.
type PollConfig struct {
	// Spins is how many failed attempts are followed by only a yield of the
	// processor before sleeping starts.
	Spins int
	// InitialInterval is the first sleep after the spins. It grows
	// exponentially up to MaxInterval. Zero means MaxInterval.
	InitialInterval time.Duration
	// MaxInterval caps each sleep. Zero means never sleep, only yield.
	// Sleeps are also cut short at the deadline.
	MaxInterval time.Duration
	// LogLongerThan, if non-zero, logs acquisitions that spent at least this
	// long polling, and timeouts of at least this long.
	LogLongerThan time.Duration
}

// DefaultPollConfig returns the PollConfig used when Options.Poll is zero.
//
// It can be tuned with the MTX_POLL_SPINS, MTX_POLL_INITIAL, MTX_POLL_MAX and
// MTX_POLL_LOG environment variables.
func DefaultPollConfig() PollConfig {
	pc := PollConfig{
		Spins:           64,
		InitialInterval: 10 * time.Microsecond,
		MaxInterval:     time.Millisecond,
	}
	if v, ok := envknob.LookupInt("MTX_POLL_SPINS"); ok {
		pc.Spins = v
	}
	if v, ok := envknob.LookupDuration("MTX_POLL_INITIAL"); ok {
		pc.InitialInterval = v
	}
	if v, ok := envknob.LookupDuration("MTX_POLL_MAX"); ok {
		pc.MaxInterval = v
	}
	if v, ok := envknob.LookupDuration("MTX_POLL_LOG"); ok {
		pc.LogLongerThan = v
	}
	return pc
}

// config is the resolved form of Options.
type config struct {
	name   string
	clock  tstime.Clock
	ids    ctxid.Provider
	poll   PollConfig
	policy Policy
	logf   logger.Logf
}

// debugLog sends diagnostics of mutexes without a logger to the standard
// logger.
var debugLog = envknob.RegisterBool("MTX_DEBUG_LOG")

var defaultConfig = sync.OnceValue(func() *config {
	return newConfig(nil)
})

func newConfig(opts *Options) *config {
	if opts == nil {
		opts = new(Options)
	}
	c := &config{
		name:   opts.Name,
		clock:  tstime.Or(opts.Clock),
		ids:    opts.Context.Or(),
		poll:   opts.Poll,
		policy: opts.Policy,
	}
	if c.poll == (PollConfig{}) {
		c.poll = DefaultPollConfig()
	}

	logf := opts.Logf
	if logf == nil && debugLog() {
		logf = logger.Std
	}
	if logf == nil {
		c.logf = logger.Discard
	} else {
		prefix := "mtx: "
		if c.name != "" {
			prefix = "mtx[" + c.name + "]: "
		}
		c.logf = logger.WithPrefix(logger.RateLimitedFn(logf, time.Second, 10, 100), prefix)
	}
	return c
}

func (m *Mutex) config() *config {
	if m.cfg == nil {
		return defaultConfig()
	}
	return m.cfg
}

func (m *Mutex) section() critsec.Section {
	if m.cs == nil {
		return &m.mu
	}
	return m.cs
}

// Mode returns the mode m was initialized with.
func (m *Mutex) Mode() Mode {
	if m.mode == 0 {
		return Plain
	}
	return m.mode
}

// Name returns the name m was initialized with.
func (m *Mutex) Name() string { return m.config().name }

// New returns a new, unlocked Mutex with the given mode.
// A nil opts selects the defaults.
//
// The only error is ErrInvalidMode.
func New(mode Mode, opts *Options) (*Mutex, error) {
	m := new(Mutex)
	if err := m.Init(mode, opts); err != nil {
		return nil, err
	}
	return m, nil
}

// Init initializes m in place with the given mode, for a Mutex embedded in
// a larger struct. A nil opts selects the defaults.
//
// Init must not be called concurrently with any other method of m.
// Initializing a Mutex that is held is a usage error. Initializing a
// destroyed Mutex makes it usable again.
func (m *Mutex) Init(mode Mode, opts *Options) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidMode, mode)
	}
	if m.depth.Load() != 0 {
		return m.misuse("init", ErrReinit)
	}
	m.mode = mode
	m.cs = nil
	if opts != nil {
		m.cs = opts.Section
	}
	m.cfg = newConfig(opts)
	m.owner.Store(int64(ctxid.Unset))
	m.depth.Store(0)
	m.destroyed.Store(false)
	m.stats.reset()
	return nil
}

// Destroy ends the life of m. Destroying a held Mutex is a usage error.
// Destroying a nil *Mutex does nothing.
//
// If m's critical section implements critsec.Destroyer, it is destroyed
// too. Any later use of m other than Init is a usage error.
func (m *Mutex) Destroy() error {
	if m == nil {
		return nil
	}
	if m.depth.Load() != 0 {
		return m.misuse("destroy", ErrBusyDestroy)
	}
	if !m.destroyed.CompareAndSwap(false, true) {
		return m.misuse("destroy", ErrDestroyed)
	}
	if d, ok := m.cs.(critsec.Destroyer); ok {
		d.Destroy()
	}
	return nil
}
