package platform

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	suppress bool
	events   []KeyEvent
	focus    int
}

func (h *recordingHandler) HandleKey(ev KeyEvent) bool {
	h.events = append(h.events, ev)
	return h.suppress && ev.Down
}

func (h *recordingHandler) FocusChanged() { h.focus++ }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSimulatedResolve(t *testing.T) {
	s := NewSimulated()
	assert.Equal(t, Key{Kind: KeyChar, Char: 'α'}, s.Resolve(KeyEvent{Code: 'α'}))
	assert.Equal(t, Key{Kind: KeyBackspace}, s.Resolve(KeyEvent{Code: SimBackspace}))
	assert.Equal(t, Key{Kind: KeyReset}, s.Resolve(KeyEvent{Code: SimReturn}))
	assert.Equal(t, Key{Kind: KeyReset}, s.Resolve(KeyEvent{Code: SimEscape}))
	assert.Equal(t, Key{Kind: KeyIgnored}, s.Resolve(KeyEvent{}))
}

func TestSimulatedTypePassThrough(t *testing.T) {
	s := NewSimulated()
	h := &recordingHandler{}
	require.NoError(t, s.Start(context.Background(), h))
	defer s.Stop()

	assert.Zero(t, s.Type("ab\bc\n"))
	assert.Equal(t, "ac\n", s.String())
	assert.Len(t, h.events, 10, "press and release per rune")

	s.SwitchFocus()
	assert.Equal(t, 1, h.focus)
}

func TestSimulatedTypeSuppressed(t *testing.T) {
	s := NewSimulated()
	require.NoError(t, s.Start(context.Background(), &recordingHandler{suppress: true}))
	defer s.Stop()

	assert.Equal(t, 3, s.Type("xyz"))
	assert.Empty(t, s.String())
}

func TestSimulatedStartTwice(t *testing.T) {
	s := NewSimulated()
	require.NoError(t, s.Start(context.Background(), &recordingHandler{}))
	assert.ErrorIs(t, s.Start(context.Background(), &recordingHandler{}), ErrAlreadyRunning)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Start(context.Background(), &recordingHandler{}))
}

func TestNewReturnsNativeBackend(t *testing.T) {
	b := New(discardLogger())
	require.NotNil(t, b)
	assert.NotEmpty(t, b.Name())
}
