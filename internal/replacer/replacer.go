// Package replacer performs the erase-then-insert input synthesis that turns
// a typed trigger into its replacement.
//
// Synthesis is best effort. Injected input that the host drops or delivers
// out of order leaves stray text behind; the executor never retries and
// never reports failure to its caller. Failures are logged and counted.
package replacer

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultSettleDelay lets the host drain the synthesized erasures before the
// replacement is queued behind them.
const DefaultSettleDelay = 50 * time.Millisecond

// MaxSettleDelay bounds the settle delay. The executor runs inside the
// capture callback and the host bypasses callbacks that stall too long.
const MaxSettleDelay = 150 * time.Millisecond

// Injector synthesizes input into the focused application.
type Injector interface {
	// EraseChar deletes one character before the cursor.
	EraseChar() error

	// InsertChar types one character at the cursor. Backends whose native
	// unit is smaller than a rune (UTF-16 on Windows) split it themselves.
	InsertChar(r rune) error
}

// Action is one erase-then-insert instruction.
type Action struct {
	EraseCount int
	InsertText string
}

// Stats counts executor activity.
type Stats struct {
	Executions uint64
	Erased     uint64
	Inserted   uint64
	Failures   uint64
}

// Executor applies Actions through an Injector.
type Executor struct {
	inj    Injector
	settle time.Duration
	sleep  func(time.Duration)
	logger *slog.Logger

	executions atomic.Uint64
	erased     atomic.Uint64
	inserted   atomic.Uint64
	failures   atomic.Uint64
}

// Option configures an Executor.
type Option func(*Executor)

// WithSettleDelay sets the pause between the erase and insert phases.
// Values are clamped to [0, MaxSettleDelay].
func WithSettleDelay(d time.Duration) Option {
	return func(e *Executor) {
		e.settle = clampSettle(d)
	}
}

// WithLogger sets the logger used for delivery failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithSleep replaces time.Sleep, for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(e *Executor) {
		if fn != nil {
			e.sleep = fn
		}
	}
}

// New returns an Executor writing through inj.
func New(inj Injector, opts ...Option) *Executor {
	e := &Executor{
		inj:    inj,
		settle: DefaultSettleDelay,
		sleep:  time.Sleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute erases eraseCount characters, waits for the settle delay, then
// types replacement one character at a time. Negative counts erase nothing.
func (e *Executor) Execute(eraseCount int, replacement string) {
	e.executions.Add(1)

	for i := 0; i < eraseCount; i++ {
		if err := e.inj.EraseChar(); err != nil {
			e.fail("erase", err)
			continue
		}
		e.erased.Add(1)
	}

	if e.settle > 0 {
		e.sleep(e.settle)
	}

	for _, r := range replacement {
		if err := e.inj.InsertChar(r); err != nil {
			e.fail("insert", err)
			continue
		}
		e.inserted.Add(1)
	}
}

// Apply runs an Action.
func (e *Executor) Apply(a Action) {
	e.Execute(a.EraseCount, a.InsertText)
}

// SettleDelay returns the configured settle delay.
func (e *Executor) SettleDelay() time.Duration {
	return e.settle
}

// Stats returns a snapshot of executor counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Executions: e.executions.Load(),
		Erased:     e.erased.Load(),
		Inserted:   e.inserted.Load(),
		Failures:   e.failures.Load(),
	}
}

func (e *Executor) fail(phase string, err error) {
	e.failures.Add(1)
	e.logger.Debug("input synthesis failed", "phase", phase, "error", err)
}

func clampSettle(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > MaxSettleDelay {
		return MaxSettleDelay
	}
	return d
}
