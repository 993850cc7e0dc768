// Package engine connects the capture boundary to trigger detection and
// replacement.
//
// A Coordinator receives every key event from a platform backend, feeds
// printable characters to a matcher.Matcher, resolves completed patterns
// against the current shortcut table and asks the replacer to rewrite the
// text in place. HandleKey reports whether the event must be withheld from
// the focused application.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"unilang/internal/logging"
	"unilang/internal/matcher"
	"unilang/internal/metrics"
	"unilang/internal/platform"
	"unilang/internal/replacer"
)

// Table resolves a completed pattern to its replacement.
type Table interface {
	Lookup(pattern string) (string, bool)
}

// Executor performs a replacement in the focused application.
type Executor interface {
	Execute(eraseCount int, replacement string)
}

// statsExecutor is implemented by executors that count delivery failures.
type statsExecutor interface {
	Stats() replacer.Stats
}

// Replacement describes one performed conversion. It carries the trigger
// and its replacement only, never the surrounding text.
type Replacement struct {
	Pattern    string
	Text       string
	Kind       matcher.Kind
	EraseCount int
	At         time.Time
	ScriptMode matcher.Mode
}

// Coordinator is the per-keystroke decision point. It is safe for
// concurrent use; events are processed one at a time in arrival order.
type Coordinator struct {
	resolver platform.KeyResolver
	table    Table
	exec     Executor

	enabled atomic.Bool

	mu sync.Mutex
	m  *matcher.Matcher

	logger     *slog.Logger
	metrics    *metrics.Engine
	crash      *logging.CrashHandler
	onReplace  func(Replacement)
	now        func() time.Time
	bufferSize int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithBufferSize sets the matcher window. Out-of-range sizes are adjusted by
// matcher.New.
func WithBufferSize(n int) Option {
	return func(c *Coordinator) { c.bufferSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records capture-path metrics into m.
func WithMetrics(m *metrics.Engine) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithCrashHandler writes a crash report for every recovered panic.
func WithCrashHandler(h *logging.CrashHandler) Option {
	return func(c *Coordinator) { c.crash = h }
}

// WithOnReplace registers an observer called after each replacement. It
// runs on the capture path and must not block.
func WithOnReplace(fn func(Replacement)) Option {
	return func(c *Coordinator) { c.onReplace = fn }
}

// New returns an enabled Coordinator.
func New(resolver platform.KeyResolver, table Table, exec Executor, opts ...Option) *Coordinator {
	c := &Coordinator{
		resolver:   resolver,
		table:      table,
		exec:       exec,
		logger:     slog.Default(),
		now:        time.Now,
		bufferSize: matcher.DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewEngine(metrics.NewRegistry("unilang"))
	}
	c.m = matcher.New(c.bufferSize)
	c.enabled.Store(true)
	return c
}

// Enabled reports whether conversion is active.
func (c *Coordinator) Enabled() bool {
	return c.enabled.Load()
}

// SetEnabled turns conversion on or off. Turning it off clears pending
// state so that re-enabling never completes a pattern typed while off.
func (c *Coordinator) SetEnabled(on bool) {
	if c.enabled.Swap(on) == on {
		return
	}
	c.Reset()
	c.logger.Info("conversion toggled", "enabled", on)
}

// Reset clears the matcher.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.m.Reset()
	c.mu.Unlock()
	c.metrics.Resets.Inc()
}

// FocusChanged implements platform.Handler. Text typed into another
// window cannot complete a pattern here.
func (c *Coordinator) FocusChanged() {
	c.Reset()
	c.logger.Debug("focus changed")
}

// Mode returns the matcher mode.
func (c *Coordinator) Mode() matcher.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.Mode()
}

// HandleKey implements platform.Handler.
func (c *Coordinator) HandleKey(ev platform.KeyEvent) (suppress bool) {
	if !ev.Down || !c.enabled.Load() {
		return false
	}

	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			suppress = false
			c.recovered(r, ev)
		}
		c.metrics.HandleKey.Since(start)
	}()

	c.metrics.Keys.Inc()
	return c.handle(ev)
}

func (c *Coordinator) handle(ev platform.KeyEvent) bool {
	key := c.resolver.Resolve(ev)

	switch key.Kind {
	case platform.KeyReset:
		c.m.Reset()
		c.metrics.Resets.Inc()
		return false
	case platform.KeyBackspace:
		c.m.RemoveLastChar()
		return false
	case platform.KeyChar:
	default:
		return false
	}

	match, ok := c.m.AddChar(key.Char)
	if !ok {
		return false
	}
	c.metrics.Matches.Inc()

	text, found := c.table.Lookup(match.Pattern)
	if !found {
		c.metrics.UnknownPatterns.Inc()
		c.logger.Debug("no shortcut for pattern", "kind", match.Kind, "length", match.Length)
		return false
	}

	erase := match.EraseCount()
	c.execute(erase, text)

	mode := c.m.Mode()
	if !c.m.InScriptMode() {
		c.m.Reset()
	}

	c.metrics.Replacements.Inc()
	c.metrics.Suppressed.Inc()
	if c.onReplace != nil {
		c.onReplace(Replacement{
			Pattern:    match.Pattern,
			Text:       text,
			Kind:       match.Kind,
			EraseCount: erase,
			At:         c.now(),
			ScriptMode: mode,
		})
	}
	return true
}

func (c *Coordinator) execute(erase int, text string) {
	se, counts := c.exec.(statsExecutor)
	var before uint64
	if counts {
		before = se.Stats().Failures
	}

	c.exec.Execute(erase, text)

	if counts {
		if failed := se.Stats().Failures - before; failed > 0 {
			c.metrics.InjectorErrors.Add(failed)
		}
	}
}

// recovered runs with c.mu held.
func (c *Coordinator) recovered(r any, ev platform.KeyEvent) {
	c.m.Reset()
	c.metrics.RecoveredPanics.Inc()

	if c.crash != nil {
		c.crash.HandlePanic(r, map[string]any{
			"stage": "handle_key",
			"mode":  c.m.Mode().String(),
		})
		return
	}
	c.logger.Error("panic in key handler", "panic", fmt.Sprint(r), "down", ev.Down)
}
