package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unilang/internal/logging"
	"unilang/internal/matcher"
	"unilang/internal/metrics"
	"unilang/internal/platform"
	"unilang/internal/replacer"
	"unilang/internal/shortcuts"
)

type call struct {
	erase int
	text  string
}

type recordingExecutor struct {
	calls []call
}

func (r *recordingExecutor) Execute(n int, s string) {
	r.calls = append(r.calls, call{n, s})
}

type panickingTable struct{}

func (panickingTable) Lookup(string) (string, bool) { panic("table corrupted") }

type brokenInjector struct{}

func (brokenInjector) EraseChar() error      { return errors.New("queue full") }
func (brokenInjector) InsertChar(rune) error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testTable = shortcuts.FromMap(map[string]string{
	`\alpha`: "α",
	`\to`:    "→",
	"^(":     "⁽",
	"^)":     "⁾",
	"^2":     "²",
	"^3":     "³",
	"^+":     "⁺",
	"_1":     "₁",
})

type fixture struct {
	sim     *platform.Simulated
	coord   *Coordinator
	metrics *metrics.Engine
	exec    *recordingExecutor
	seen    []Replacement
}

// newFixture wires a coordinator to a simulated backend. With live set the
// coordinator writes into the simulated buffer through a real Executor;
// otherwise calls are only recorded.
func newFixture(t *testing.T, table Table, live bool, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		sim:     platform.NewSimulated(),
		metrics: metrics.NewEngine(metrics.NewRegistry("test")),
		exec:    &recordingExecutor{},
	}

	var exec Executor = f.exec
	if live {
		exec = replacer.New(f.sim, replacer.WithSettleDelay(0), replacer.WithLogger(quietLogger()))
	}

	opts = append([]Option{
		WithLogger(quietLogger()),
		WithMetrics(f.metrics),
		WithOnReplace(func(r Replacement) { f.seen = append(f.seen, r) }),
	}, opts...)
	f.coord = New(f.sim, table, exec, opts...)

	require.NoError(t, f.sim.Start(context.Background(), f.coord))
	t.Cleanup(func() { f.sim.Stop() })
	return f
}

func (f *fixture) patterns() []string {
	var out []string
	for _, r := range f.seen {
		out = append(out, r.Pattern)
	}
	return out
}

func TestLatexReplacement(t *testing.T) {
	f := newFixture(t, testTable, false)

	suppressed := f.sim.Type(`\alpha `)

	assert.Equal(t, 1, suppressed)
	assert.Equal(t, []call{{6, "α"}}, f.exec.calls)
	assert.Equal(t, matcher.ModeNormal, f.coord.Mode())
	assert.Equal(t, uint64(1), f.metrics.Replacements.Value())
	assert.Equal(t, uint64(1), f.metrics.Suppressed.Value())
	assert.Equal(t, uint64(7), f.metrics.Keys.Value())
}

func TestLatexReplacementRewritesText(t *testing.T) {
	f := newFixture(t, testTable, true)

	f.sim.Type(`x = \alpha `)
	assert.Equal(t, "x = α", f.sim.String())

	f.sim.Type(` \to  y`)
	assert.Equal(t, "x = α → y", f.sim.String())
}

func TestUnknownPatternPassesThrough(t *testing.T) {
	f := newFixture(t, shortcuts.Empty(), true)

	suppressed := f.sim.Type(`\xy `)

	assert.Zero(t, suppressed)
	assert.Equal(t, `\xy `, f.sim.String())
	assert.Empty(t, f.seen)
	assert.Equal(t, uint64(1), f.metrics.Matches.Value())
	assert.Equal(t, uint64(1), f.metrics.UnknownPatterns.Value())
}

func TestScriptGroup(t *testing.T) {
	f := newFixture(t, testTable, false)

	suppressed := f.sim.Type("^(2+3)")

	assert.Equal(t, 5, suppressed)
	assert.Equal(t, []string{"^(", "^2", "^+", "^3", "^)"}, f.patterns())
	assert.Equal(t, []call{
		{1, "⁽"},
		{0, "²"},
		{0, "⁺"},
		{0, "³"},
		{0, "⁾"},
	}, f.exec.calls)

	assert.Equal(t, matcher.Structural, f.seen[0].Kind)
	for _, r := range f.seen[1:] {
		assert.Equal(t, matcher.AutoConvert, r.Kind)
	}
	assert.Equal(t, matcher.ModeNormal, f.coord.Mode())
}

func TestScriptGroupRewritesText(t *testing.T) {
	f := newFixture(t, testTable, true)

	assert.Equal(t, 5, f.sim.Type("x^(2+3)"))
	assert.Equal(t, "x⁽²⁺³⁾", f.sim.String())

	// Text after the group is typed normally.
	f.sim.Type(" = 5")
	assert.Equal(t, "x⁽²⁺³⁾ = 5", f.sim.String())
}

func TestScriptGroupKeepsUnconvertedChars(t *testing.T) {
	f := newFixture(t, testTable, true)

	// 'x' has no superscript entry and reaches the application unchanged.
	f.sim.Type("^(2x3)")
	assert.Equal(t, "⁽²x³⁾", f.sim.String())
}

func TestScriptModeIsSticky(t *testing.T) {
	f := newFixture(t, testTable, false)

	f.sim.Type("^(2")
	assert.Equal(t, matcher.ModeSuperscript, f.coord.Mode())

	// 'x' has no superscript entry; the mode survives the miss.
	assert.Zero(t, f.sim.Type("x"))
	assert.Equal(t, matcher.ModeSuperscript, f.coord.Mode())

	assert.Equal(t, 1, f.sim.Type("3"))
	assert.Equal(t, "^3", f.seen[len(f.seen)-1].Pattern)
}

func TestSingleShotScript(t *testing.T) {
	f := newFixture(t, testTable, true)

	f.sim.Type("x_1")
	assert.Equal(t, "x₁", f.sim.String())
	assert.Equal(t, matcher.ModeNormal, f.coord.Mode())
}

func TestDisabledPassesThrough(t *testing.T) {
	f := newFixture(t, testTable, true)

	f.coord.SetEnabled(false)
	assert.False(t, f.coord.Enabled())
	assert.Zero(t, f.sim.Type(`\alpha `))
	assert.Equal(t, `\alpha `, f.sim.String())
	assert.Zero(t, f.metrics.Keys.Value())

	f.coord.SetEnabled(true)
	assert.Equal(t, 1, f.sim.Type(`\alpha `))
	assert.Equal(t, `\alpha α`, f.sim.String())
}

func TestReenableDoesNotCompleteStalePattern(t *testing.T) {
	f := newFixture(t, testTable, false)

	f.sim.Type(`\alp`)
	f.coord.SetEnabled(false)
	f.coord.SetEnabled(true)

	assert.Zero(t, f.sim.Type("ha "))
	assert.Empty(t, f.exec.calls)
}

func TestResetKeys(t *testing.T) {
	for _, key := range []string{"\n", "\t", "\x1b"} {
		f := newFixture(t, testTable, false)

		f.sim.Type(`\al` + key + "pha ")
		assert.Empty(t, f.exec.calls, "key %q", key)
	}
}

func TestBackspaceEditsPattern(t *testing.T) {
	f := newFixture(t, testTable, true)

	f.sim.Type(`\alphx` + "\b" + "a ")
	assert.Equal(t, "α", f.sim.String())
}

func TestFocusChangeResets(t *testing.T) {
	f := newFixture(t, testTable, false)

	f.sim.Type(`\alp`)
	f.sim.SwitchFocus()
	f.sim.Type("ha ")
	assert.Empty(t, f.exec.calls)

	f.sim.Type("^(")
	require.Equal(t, matcher.ModeSuperscript, f.coord.Mode())
	f.sim.SwitchFocus()
	assert.Equal(t, matcher.ModeNormal, f.coord.Mode())
}

func TestKeyUpIgnored(t *testing.T) {
	f := newFixture(t, testTable, false)

	assert.False(t, f.coord.HandleKey(platform.KeyEvent{Code: 'a', Down: false}))
	assert.Zero(t, f.metrics.Keys.Value())
}

func TestPanicIsRecovered(t *testing.T) {
	dir := t.TempDir()
	crash := logging.NewCrashHandler(logging.CrashHandlerConfig{
		Dir:       dir,
		Component: "engine",
		Logger:    quietLogger(),
	})
	f := newFixture(t, panickingTable{}, true, WithCrashHandler(crash))

	assert.Zero(t, f.sim.Type(`\alpha `))
	assert.Equal(t, `\alpha `, f.sim.String())
	assert.Equal(t, uint64(1), f.metrics.RecoveredPanics.Value())

	reports, err := crash.Reports()
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "table corrupted", reports[0].PanicValue)

	// The coordinator keeps working after a recovered panic.
	assert.Zero(t, f.sim.Type("abc"))
}

func TestInjectorErrorsCounted(t *testing.T) {
	m := metrics.NewEngine(metrics.NewRegistry("test"))
	exec := replacer.New(brokenInjector{}, replacer.WithSettleDelay(0), replacer.WithLogger(quietLogger()))
	c := New(platform.NewSimulated(), testTable, exec, WithMetrics(m), WithLogger(quietLogger()))

	for _, r := range `\to ` {
		c.HandleKey(platform.KeyEvent{Code: uint32(r), Down: true})
	}
	assert.Equal(t, uint64(3), m.InjectorErrors.Value())
	assert.Equal(t, uint64(1), m.Replacements.Value())
}

func TestReplacementRecord(t *testing.T) {
	f := newFixture(t, testTable, false)
	at := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	f.coord.now = func() time.Time { return at }

	f.sim.Type(`\alpha `)

	require.Len(t, f.seen, 1)
	assert.Equal(t, Replacement{
		Pattern:    `\alpha`,
		Text:       "α",
		Kind:       matcher.Structural,
		EraseCount: 6,
		At:         at,
		ScriptMode: matcher.ModeNormal,
	}, f.seen[0])
}

func TestConcurrentEventsAreSerialized(t *testing.T) {
	m := metrics.NewEngine(metrics.NewRegistry("test"))
	c := New(platform.NewSimulated(), testTable, &lockedExecutor{}, WithMetrics(m), WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, r := range `\alpha ` {
					c.HandleKey(platform.KeyEvent{Code: uint32(r), Down: true})
				}
				if i%17 == 0 {
					c.FocusChanged()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(8*200*7), m.Keys.Value())
	assert.Equal(t, m.HandleKey.Snapshot().Count, m.Keys.Value())
}

type lockedExecutor struct {
	mu sync.Mutex
	n  int
}

func (l *lockedExecutor) Execute(int, string) {
	l.mu.Lock()
	l.n++
	l.mu.Unlock()
}
