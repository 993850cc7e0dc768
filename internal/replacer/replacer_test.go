package replacer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timeline records injector calls and sleeps in one ordered log.
type timeline struct {
	events  []string
	failOn  string
	failErr error
}

func (tl *timeline) EraseChar() error {
	tl.events = append(tl.events, "erase")
	if tl.failOn == "erase" {
		return tl.failErr
	}
	return nil
}

func (tl *timeline) InsertChar(r rune) error {
	tl.events = append(tl.events, "insert:"+string(r))
	if tl.failOn == "insert" {
		return tl.failErr
	}
	return nil
}

func (tl *timeline) sleep(d time.Duration) {
	tl.events = append(tl.events, "sleep:"+d.String())
}

func TestExecuteOrder(t *testing.T) {
	tl := &timeline{}
	e := New(tl, WithSleep(tl.sleep), WithSettleDelay(20*time.Millisecond))

	e.Execute(3, "αβ")

	assert.Equal(t, []string{
		"erase", "erase", "erase",
		"sleep:20ms",
		"insert:α", "insert:β",
	}, tl.events)

	st := e.Stats()
	assert.Equal(t, uint64(1), st.Executions)
	assert.Equal(t, uint64(3), st.Erased)
	assert.Equal(t, uint64(2), st.Inserted)
	assert.Zero(t, st.Failures)
}

func TestExecuteNegativeEraseCount(t *testing.T) {
	tl := &timeline{}
	e := New(tl, WithSleep(tl.sleep), WithSettleDelay(0))

	e.Execute(-2, "x")
	assert.Equal(t, []string{"insert:x"}, tl.events)
}

func TestExecuteContinuesAfterFailure(t *testing.T) {
	tl := &timeline{failOn: "erase", failErr: errors.New("queue full")}
	e := New(tl, WithSleep(tl.sleep), WithSettleDelay(0))

	e.Execute(2, "²")

	assert.Equal(t, []string{"erase", "erase", "insert:²"}, tl.events)
	st := e.Stats()
	assert.Equal(t, uint64(2), st.Failures)
	assert.Zero(t, st.Erased)
	assert.Equal(t, uint64(1), st.Inserted)
}

func TestSettleDelayClamped(t *testing.T) {
	assert.Equal(t, MaxSettleDelay, New(&timeline{}, WithSettleDelay(time.Second)).SettleDelay())
	assert.Zero(t, New(&timeline{}, WithSettleDelay(-time.Second)).SettleDelay())
	assert.Equal(t, DefaultSettleDelay, New(&timeline{}).SettleDelay())
}

func TestBufferApply(t *testing.T) {
	var buf Buffer
	for _, r := range `x \alpha` {
		buf.Deliver(r)
	}

	e := New(&buf, WithSleep(func(time.Duration) {}))
	e.Apply(Action{EraseCount: 6, InsertText: "α"})

	assert.Equal(t, "x α", buf.String())

	ops := buf.Ops()
	require.Len(t, ops, 7)
	assert.Equal(t, OpInsert, ops[6].Kind)
	assert.Equal(t, 'α', ops[6].Char)
}

func TestBufferEraseOnEmpty(t *testing.T) {
	var buf Buffer
	require.NoError(t, buf.EraseChar())
	buf.Backspace()
	assert.Equal(t, "", buf.String())
}
