// Package platform provides the privileged capture-and-inject capability the
// engine runs on. Exactly one native backend is compiled per operating
// system: an IBus input-method engine on Linux, a low-level keyboard hook on
// Windows, and an unavailable stub elsewhere. Simulated drives the same
// contract from a string for dry runs and tests.
package platform

import (
	"context"
	"errors"
	"log/slog"

	"unilang/internal/replacer"
)

var (
	// ErrNotAvailable is returned when the platform has no capture backend.
	ErrNotAvailable = errors.New("keyboard capture not available on this platform")

	// ErrAlreadyRunning is returned by Start when capture is already active.
	ErrAlreadyRunning = errors.New("keyboard capture already running")
)

// KeyEvent is one raw event at the capture boundary. The meaning of Code,
// ScanCode and State is backend specific: keysym, keycode and modifier mask
// under IBus; virtual key, scan code and hook flags under Windows.
type KeyEvent struct {
	Code     uint32
	ScanCode uint32
	State    uint32
	Down     bool
}

// KeyKind classifies a resolved key.
type KeyKind int

const (
	// KeyIgnored is a key that produces no character (modifiers, function
	// keys, chords with Ctrl or Alt).
	KeyIgnored KeyKind = iota
	// KeyChar produces Key.Char.
	KeyChar
	// KeyReset is Enter, Escape or Tab.
	KeyReset
	// KeyBackspace deletes the character before the cursor.
	KeyBackspace
)

func (k KeyKind) String() string {
	switch k {
	case KeyChar:
		return "char"
	case KeyReset:
		return "reset"
	case KeyBackspace:
		return "backspace"
	default:
		return "ignored"
	}
}

// Key is a KeyEvent resolved against the live keyboard state.
type Key struct {
	Kind KeyKind
	Char rune
}

// KeyResolver turns a raw event into a Key using the modifier and layout
// state at the time of the call.
type KeyResolver interface {
	Resolve(ev KeyEvent) Key
}

// Handler receives captured events. HandleKey reports whether the event
// must be suppressed. Both methods are called from the capture context and
// must return promptly.
type Handler interface {
	HandleKey(ev KeyEvent) bool
	FocusChanged()
}

// Backend is the capture and injection capability of one platform.
type Backend interface {
	Name() string

	// Available reports whether capture can run, with a reason if not.
	Available() (bool, string)

	// Start begins delivering events to h. It returns once capture is
	// installed; events arrive on backend-owned goroutines or threads.
	Start(ctx context.Context, h Handler) error

	// Stop removes capture. Safe to call when not running.
	Stop() error

	KeyResolver
	replacer.Injector
}

// Installer is implemented by backends that need a one-time registration
// with the host input system.
type Installer interface {
	Install(executable string) error
	Uninstall() error
}

// New returns the native backend for this platform.
func New(logger *slog.Logger) Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return newNative(logger)
}
